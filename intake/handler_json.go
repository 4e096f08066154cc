package intake

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hazyhaar/docflow/docstore"
)

// requiredFields lists the top-level keys a JSON document must carry for
// each known intent. Unknown intents require nothing.
var requiredFields = map[docstore.Intent][]string{
	docstore.IntentInvoice:    {"invoice_number", "amount", "date", "vendor"},
	docstore.IntentRFQ:        {"request_id", "items", "deadline", "contact"},
	docstore.IntentComplaint:  {"complaint_id", "description", "severity", "contact"},
	docstore.IntentRegulation: {"regulation_id", "title", "effective_date", "jurisdiction"},
}

// fieldMapping renames source fields into the standardized view. The
// source keys are disjoint across intents, so order does not matter.
var fieldMapping = map[string]string{
	"invoice_number": "document_id",
	"request_id":     "document_id",
	"complaint_id":   "document_id",
	"regulation_id":  "document_id",
	"amount":         "value",
	"date":           "timestamp",
	"deadline":       "due_date",
	"effective_date": "timestamp",
}

// JSONHandler validates JSON documents against the intent's required
// fields and produces a standardized view.
type JSONHandler struct {
	logger *slog.Logger
}

// NewJSONHandler creates the JSON document handler.
func NewJSONHandler(logger *slog.Logger) *JSONHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONHandler{logger: logger}
}

// Process parses, validates and standardizes JSON content.
func (h *JSONHandler) Process(ctx context.Context, content string, cls *Classification) (any, error) {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, &InvalidJSONError{Err: err}
	}

	missing := ValidateJSON(parsed, cls.Intent)
	h.logger.Debug("intake: json validated", "doc_id", cls.DocID, "intent", cls.Intent, "missing", missing)

	return &JSONResult{
		Standardized: standardizeJSON(parsed, cls.Intent),
		Validation: Validation{
			IsValid:       len(missing) == 0,
			MissingFields: missing,
		},
		DocID: cls.DocID,
	}, nil
}

// ValidateJSON returns the required fields for the intent that are absent
// from the top-level object, in table order. Empty for unknown intents.
func ValidateJSON(content map[string]any, intent docstore.Intent) []string {
	missing := []string{}
	for _, field := range requiredFields[intent] {
		if _, ok := content[field]; !ok {
			missing = append(missing, field)
		}
	}
	return missing
}

func standardizeJSON(content map[string]any, intent docstore.Intent) Standardized {
	std := Standardized{
		Type:               intent,
		OriginalContent:    content,
		StandardizedFields: map[string]any{},
	}
	for oldField, newField := range fieldMapping {
		if v, ok := content[oldField]; ok {
			std.StandardizedFields[newField] = v
		}
	}
	return std
}
