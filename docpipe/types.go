package docpipe

// Format identifies an upload document type.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatJSON Format = "json"
	FormatTXT  Format = "txt"
)

// Document is the result of extracting text from an uploaded file.
type Document struct {
	Path   string `json:"path"`
	Format Format `json:"format"`
	Title  string `json:"title"`
	Text   string `json:"text"`
}
