package intake

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hazyhaar/docflow/docstore"
	"github.com/hazyhaar/docflow/perplexity"
)

// classifyPromptLimit caps how much content is sent for intent detection.
const classifyPromptLimit = 1000

// DetectFileType derives the structural type from the source extension.
func DetectFileType(source string) (docstore.FileType, error) {
	ext := strings.ToLower(filepath.Ext(source))
	switch ext {
	case ".pdf":
		return docstore.FileTypePDF, nil
	case ".json":
		return docstore.FileTypeJSON, nil
	case ".txt":
		return docstore.FileTypeEmail, nil
	default:
		return "", &UnsupportedTypeError{Ext: ext}
	}
}

// Classify determines a document's structural type and business intent,
// and records its initial metadata in the store under a fresh doc id.
//
// Intent lookup failures are non-fatal: the document proceeds with intent
// "Other" and the failure is logged.
func (s *Service) Classify(ctx context.Context, content, source string) (*Classification, error) {
	fileType, err := DetectFileType(source)
	if err != nil {
		return nil, err
	}

	intent := s.classifyIntent(ctx, content)
	docID := s.newID()

	s.store.PutMetadata(docID, docstore.Metadata{
		Source:    source,
		FileType:  fileType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Intent:    intent,
	})
	s.logger.Info("intake: classified", "doc_id", docID, "file_type", fileType, "intent", intent, "source", source)

	return &Classification{
		FileType: fileType,
		Intent:   intent,
		Source:   source,
		DocID:    docID,
	}, nil
}

func (s *Service) classifyIntent(ctx context.Context, content string) docstore.Intent {
	prompt := fmt.Sprintf(`Analyze the following content and classify its intent into one of these categories:
- Invoice
- RFQ (Request for Quote)
- Complaint
- Regulation
- Other

Content: %s

Respond with just the category name.`, truncate(content, classifyPromptLimit, ""))

	reply, err := s.llm.Complete(ctx, []perplexity.Message{
		{Role: "user", Content: prompt},
	}, 50, 0)
	if err != nil {
		s.logger.Warn("intake: intent classification failed, defaulting", "error", err)
		s.store.AddLog("error", "intent classification failed", map[string]any{"error": err.Error()})
		return docstore.IntentOther
	}

	return docstore.Intent(strings.TrimSpace(reply))
}

// truncate caps s at limit bytes, appending marker when cut. The cut
// backs up to a rune boundary so a multibyte character is never split.
func truncate(s string, limit int, marker string) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + marker
}
