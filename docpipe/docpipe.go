// Package docpipe extracts text from uploaded document files.
//
// Supported formats:
//   - .pdf  — page-text concatenation via pdfcpu content streams
//   - .txt  — plain read, line structure preserved (email headers are
//     line-anchored downstream)
//   - .json — parse and pretty-printed re-serialization
//
// Usage:
//
//	pipe := docpipe.New(docpipe.Config{})
//	doc, err := pipe.Extract(ctx, "/tmp/uploads/invoice.json")
package docpipe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Pipeline is the upload text-extraction engine.
type Pipeline struct {
	cfg Config
}

// New creates a Pipeline with the given configuration.
func New(cfg Config) *Pipeline {
	cfg.defaults()
	return &Pipeline{cfg: cfg}
}

// Detect returns the document format based on file extension.
func (p *Pipeline) Detect(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return FormatPDF, nil
	case ".json":
		return FormatJSON, nil
	case ".txt":
		return FormatTXT, nil
	default:
		return "", fmt.Errorf("unsupported format: %q", ext)
	}
}

// Extract reads a file and returns its textual content.
func (p *Pipeline) Extract(ctx context.Context, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > p.cfg.MaxFileSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), p.cfg.MaxFileSize)
	}

	format, err := p.Detect(path)
	if err != nil {
		return nil, err
	}

	p.cfg.Logger.Debug("docpipe: extracting", "path", path, "format", format)

	var text string
	switch format {
	case FormatPDF:
		text, err = extractPDF(path)
	case FormatJSON:
		text, err = extractJSON(path)
	case FormatTXT:
		text, err = extractText(path)
	}
	if err != nil {
		return nil, fmt.Errorf("extract %s (%s): %w", path, format, err)
	}

	return &Document{
		Path:   path,
		Format: format,
		Title:  firstLine(text),
		Text:   text,
	}, nil
}

// SupportedExtensions returns the accepted upload extensions.
func SupportedExtensions() []string {
	return []string{".pdf", ".json", ".txt"}
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	text = strings.TrimSpace(text)
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
