// Package docstore provides the process-wide store for documents, their
// metadata, processing logs and statistics.
//
// One Store instance is constructed in main and injected into every
// component that needs it; the store itself carries no global state.
package docstore

// FileType is the structural type of a document, derived from its source
// extension at classification time.
type FileType string

const (
	FileTypePDF   FileType = "PDF"
	FileTypeJSON  FileType = "JSON"
	FileTypeEmail FileType = "EMAIL"

	// FileTypeUnknown buckets statistics for pipeline runs that failed
	// before classification produced a structural type.
	FileTypeUnknown FileType = "UNKNOWN"
)

// Intent is the business intent of a document as reported by the LLM.
// Values outside the five known categories are stored verbatim; the
// required-field table simply has no entry for them.
type Intent string

const (
	IntentInvoice    Intent = "Invoice"
	IntentRFQ        Intent = "RFQ"
	IntentComplaint  Intent = "Complaint"
	IntentRegulation Intent = "Regulation"
	IntentOther      Intent = "Other"
)

// Metadata describes one document. Created at classification time; intent
// and thread id are filled in by later stages, immutable once the
// document's processing completes.
type Metadata struct {
	Source    string   `json:"source"`
	FileType  FileType `json:"file_type"`
	Timestamp string   `json:"timestamp"` // RFC 3339
	Intent    Intent   `json:"intent,omitempty"`
	ThreadID  string   `json:"thread_id,omitempty"`
}

// Document is a stored processing record.
type Document struct {
	Content   any    `json:"content"`
	Timestamp string `json:"timestamp"` // RFC 3339
	Status    string `json:"status"`
}

// LogEntry is one processing log record. Append-only, trimmed only by an
// explicit retention sweep.
type LogEntry struct {
	Timestamp string         `json:"timestamp"` // RFC 3339
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context"`
}

// TypeStats is the per-structural-type statistics breakdown.
type TypeStats struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// Stats holds the running processing counters. Monotonic; reset only by
// ClearAll or Import.
type Stats struct {
	TotalProcessed int                  `json:"total_processed"`
	Successful     int                  `json:"successful"`
	Failed         int                  `json:"failed"`
	ByType         map[string]TypeStats `json:"by_type"`
}

// Snapshot is a full copy of the store contents for bulk export/import.
type Snapshot struct {
	Documents map[string]Document `json:"documents"`
	Metadata  map[string]Metadata `json:"metadata"`
	Logs      []LogEntry          `json:"logs"`
	Stats     Stats               `json:"stats"`
}
