// Package archive persists raw LLM responses as per-query JSON files on
// disk, so enrichment output can be audited and replayed independently of
// the in-memory document store.
//
// Each query gets one file per day, named query_<yyyymmdd>_<hash>.json,
// where <hash> is the first 10 hex chars of the query's MD5. The file holds
// the query, a map of response entries keyed by entry ID, and metadata.
package archive

import (
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const fileVersion = "1.0"

// Response is the LLM response payload to archive.
type Response struct {
	Model      string  `json:"model"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	TokensUsed int     `json:"tokens_used"`
}

// Entry is a stored response with its provenance.
type Entry struct {
	Source    string         `json:"source"`
	Type      string         `json:"type"`
	Timestamp string         `json:"timestamp"`
	Values    map[string]any `json:"extracted_values"`
	ThreadID  string         `json:"thread_id,omitempty"`
}

type fileMetadata struct {
	CreatedAt   string `json:"created_at"`
	LastUpdated string `json:"last_updated"`
	Version     string `json:"version"`
}

type queryFile struct {
	Query     string           `json:"query"`
	Responses map[string]Entry `json:"responses"`
	Metadata  fileMetadata     `json:"metadata"`
}

// Filter narrows a Search. Zero-value fields do not filter; MinConfidence
// is a pointer so a threshold of 0 is expressible.
type Filter struct {
	ThreadID      string
	Model         string
	MinConfidence *float64
}

// Archive is a file-backed store of LLM responses, one JSON file per
// query per day. Safe for concurrent use.
type Archive struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// Option configures an Archive.
type Option func(*Archive)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Archive) { a.now = now }
}

// New creates an Archive rooted at dir, creating it if needed.
func New(dir string, opts ...Option) (*Archive, error) {
	a := &Archive{dir: dir, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("archive dir: %w", err)
	}
	return a, nil
}

// Store archives a response under the given query and returns the entry ID.
func (a *Archive) Store(query string, resp Response, threadID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := a.loadOrInit(query)
	if err != nil {
		return "", err
	}

	entryID := fmt.Sprintf("perp_%d_%d", a.now().Unix(), len(data.Responses))
	data.Responses[entryID] = Entry{
		Source:    "perplexity_api",
		Type:      "api_response",
		Timestamp: a.now().Format(time.RFC3339),
		Values: map[string]any{
			"model":         resp.Model,
			"response_text": resp.Text,
			"confidence":    resp.Confidence,
			"tokens_used":   resp.TokensUsed,
		},
		ThreadID: threadID,
	}
	data.Metadata.LastUpdated = a.now().Format(time.RFC3339)

	if err := a.write(a.filePath(query), data); err != nil {
		return "", err
	}
	return entryID, nil
}

// Get retrieves an archived entry. The second return is false when either
// the query file or the entry does not exist.
func (a *Archive) Get(query, entryID string) (Entry, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := a.load(query)
	if err != nil {
		return Entry{}, false, err
	}
	if data == nil {
		return Entry{}, false, nil
	}
	e, ok := data.Responses[entryID]
	return e, ok, nil
}

// ThreadResponses returns all entries for a query belonging to threadID.
func (a *Archive) ThreadResponses(query, threadID string) ([]Entry, error) {
	return a.Search(query, Filter{ThreadID: threadID})
}

// Update merges updates into an entry's extracted values and refreshes its
// timestamp. Returns false when the entry does not exist.
func (a *Archive) Update(query, entryID string, updates map[string]any) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := a.load(query)
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}
	e, ok := data.Responses[entryID]
	if !ok {
		return false, nil
	}

	for k, v := range updates {
		e.Values[k] = v
	}
	e.Timestamp = a.now().Format(time.RFC3339)
	data.Responses[entryID] = e
	data.Metadata.LastUpdated = a.now().Format(time.RFC3339)

	if err := a.write(a.filePath(query), data); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes an entry. Returns false when the entry does not exist.
func (a *Archive) Delete(query, entryID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := a.load(query)
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}
	if _, ok := data.Responses[entryID]; !ok {
		return false, nil
	}

	delete(data.Responses, entryID)
	data.Metadata.LastUpdated = a.now().Format(time.RFC3339)

	if err := a.write(a.filePath(query), data); err != nil {
		return false, err
	}
	return true, nil
}

// Search returns the entries for a query matching the filter.
func (a *Archive) Search(query string, f Filter) ([]Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := a.load(query)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var matches []Entry
	for _, e := range data.Responses {
		if f.ThreadID != "" && e.ThreadID != f.ThreadID {
			continue
		}
		if f.Model != "" {
			if m, _ := e.Values["model"].(string); m != f.Model {
				continue
			}
		}
		if f.MinConfidence != nil {
			c, _ := e.Values["confidence"].(float64)
			if c < *f.MinConfidence {
				continue
			}
		}
		matches = append(matches, e)
	}
	return matches, nil
}

// Clear resets a query's file to an empty response set. A query without a
// file is a no-op.
func (a *Archive) Clear(query string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	path := a.filePath(query)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}
	return a.write(path, a.emptyFile(query))
}

// filePath derives the per-query file name from today's date and the
// query's MD5 prefix.
func (a *Archive) filePath(query string) string {
	sum := md5.Sum([]byte(query))
	hash := fmt.Sprintf("%x", sum)[:10]
	date := a.now().Format("20060102")
	return filepath.Join(a.dir, fmt.Sprintf("query_%s_%s.json", date, hash))
}

func (a *Archive) emptyFile(query string) *queryFile {
	now := a.now().Format(time.RFC3339)
	return &queryFile{
		Query:     query,
		Responses: map[string]Entry{},
		Metadata:  fileMetadata{CreatedAt: now, LastUpdated: now, Version: fileVersion},
	}
}

// load reads a query file, or returns nil when it does not exist.
func (a *Archive) load(query string) (*queryFile, error) {
	raw, err := os.ReadFile(a.filePath(query))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var data queryFile
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("archive file corrupt: %w", err)
	}
	if data.Responses == nil {
		data.Responses = map[string]Entry{}
	}
	return &data, nil
}

func (a *Archive) loadOrInit(query string) (*queryFile, error) {
	data, err := a.load(query)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = a.emptyFile(query)
	}
	return data, nil
}

func (a *Archive) write(path string, data *queryFile) error {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}
