package docpipe

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// extractText reads a plain text file. Line structure is preserved: the
// email handler matches headers line by line, so collapsing whitespace
// here would destroy them. Only line endings are normalized.
func extractText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text := string(data)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimSpace(text), nil
}

// extractJSON parses a JSON file and re-serializes it pretty-printed, so
// downstream prompts see a normalized view regardless of input formatting.
func extractJSON(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return "", fmt.Errorf("parse json: %w", err)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}
