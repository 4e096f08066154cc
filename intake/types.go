package intake

import "github.com/hazyhaar/docflow/docstore"

// Classification is the classifier's output for one document.
type Classification struct {
	FileType docstore.FileType `json:"file_type"`
	Intent   docstore.Intent   `json:"intent"`
	Source   string            `json:"source"`
	DocID    string            `json:"doc_id"`
}

// Validation reports required-field checking for a JSON document.
type Validation struct {
	IsValid       bool     `json:"is_valid"`
	MissingFields []string `json:"missing_fields"`
}

// Standardized is the normalized view of a JSON document: the original
// content wrapped with its intent and a fixed set of renamed fields.
type Standardized struct {
	Type               docstore.Intent `json:"type"`
	OriginalContent    map[string]any  `json:"original_content"`
	StandardizedFields map[string]any  `json:"standardized_fields"`
}

// JSONResult is the JSON handler's output.
type JSONResult struct {
	Standardized Standardized `json:"standardized_content"`
	Validation   Validation   `json:"validation"`
	DocID        string       `json:"doc_id"`
}

// EmailAnalysis is the structured LLM analysis of an email.
type EmailAnalysis struct {
	Intent  docstore.Intent `json:"intent"`
	Urgency string          `json:"urgency"` // High | Medium | Low
	Summary string          `json:"summary"`
}

// EmailResult is the email handler's output. Headers holds "sender" and
// "subject" when the corresponding header line was present.
type EmailResult struct {
	Headers  map[string]string `json:"headers"`
	Analysis EmailAnalysis     `json:"analysis"`
	ThreadID string            `json:"thread_id"`
	DocID    string            `json:"doc_id"`
}

// ProcessingResult is the aggregate record for one pipeline run.
// Write-once: error results replace partial states.
type ProcessingResult struct {
	Status          string          `json:"status"` // success | error
	Classification  *Classification `json:"classification,omitempty"`
	Processing      any             `json:"processing,omitempty"`
	Analysis        string          `json:"analysis,omitempty"`
	Recommendations string          `json:"recommendations,omitempty"`
	Error           string          `json:"error,omitempty"`

	// Cause carries the original stage error for boundary mapping (HTTP
	// status selection). Not serialized; Error holds the user-facing text.
	Cause error `json:"-"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)
