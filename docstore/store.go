package docstore

import (
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"
)

// Store is the shared in-memory document store. Every operation holds the
// single mutex for its whole duration, so no reader ever observes a
// mutation half-applied. Contents live for the process lifetime only.
type Store struct {
	mu        sync.Mutex
	documents map[string]Document
	metadata  map[string]Metadata
	logs      []LogEntry
	stats     Stats

	logger *slog.Logger
	now    func() time.Time
}

// New creates an empty Store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		documents: make(map[string]Document),
		metadata:  make(map[string]Metadata),
		stats:     Stats{ByType: make(map[string]TypeStats)},
		logger:    logger,
		now:       time.Now,
	}
}

// StoreDocument stores a processing record under id, stamping it with the
// current time and "completed" status. Write-once by convention: the
// pipeline stores each result exactly once.
func (s *Store) StoreDocument(id string, content any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[id] = Document{
		Content:   content,
		Timestamp: s.now().UTC().Format(time.RFC3339Nano),
		Status:    "completed",
	}
	s.logger.Debug("docstore: stored document", "doc_id", id)
}

// GetDocument returns the stored record for id. A miss is absence, not an
// error.
func (s *Store) GetDocument(id string) (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	return doc, ok
}

// UpdateDocument merges content into an existing record. When both the
// stored and the new content are maps the keys are merged, otherwise the
// content is replaced. Unknown ids are ignored.
func (s *Store) UpdateDocument(id string, content any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return
	}
	old, oldOK := doc.Content.(map[string]any)
	upd, updOK := content.(map[string]any)
	if oldOK && updOK {
		merged := make(map[string]any, len(old)+len(upd))
		maps.Copy(merged, old)
		maps.Copy(merged, upd)
		doc.Content = merged
	} else {
		doc.Content = content
	}
	s.documents[id] = doc
}

// PutMetadata stores (or replaces) the metadata record for a document.
func (s *Store) PutMetadata(id string, md Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[id] = md
}

// SetThreadID fills in the thread identifier on an existing metadata
// record. Classification writes metadata before any handler runs, so the
// thread id arrives as a later update. Unknown ids are ignored.
func (s *Store) SetThreadID(id, threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	md, ok := s.metadata[id]
	if !ok {
		return
	}
	md.ThreadID = threadID
	s.metadata[id] = md
}

// GetMetadata returns the metadata record for id.
func (s *Store) GetMetadata(id string) (Metadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	md, ok := s.metadata[id]
	return md, ok
}

// ThreadDocuments returns all documents whose metadata carries the given
// thread id, keyed by document id. Thread ids are opaque strings.
func (s *Store) ThreadDocuments(threadID string) map[string]Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Document)
	for id, md := range s.metadata {
		if md.ThreadID != "" && md.ThreadID == threadID {
			if doc, ok := s.documents[id]; ok {
				out[id] = doc
			}
		}
	}
	return out
}

// AddLog appends a log entry with the current timestamp.
func (s *Store) AddLog(level, message string, logCtx map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logCtx == nil {
		logCtx = map[string]any{}
	}
	s.logs = append(s.logs, LogEntry{
		Timestamp: s.now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   message,
		Context:   logCtx,
	})
}

// GetLogs returns log entries in insertion order, optionally filtered by
// level, restricted to the most recent limit entries. A non-positive limit
// defaults to 100.
func (s *Store) GetLogs(level string, limit int) []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	logs := s.logs
	if level != "" {
		filtered := make([]LogEntry, 0, len(logs))
		for _, e := range logs {
			if e.Level == level {
				filtered = append(filtered, e)
			}
		}
		logs = filtered
	}
	if len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}
	out := make([]LogEntry, len(logs))
	copy(out, logs)
	return out
}

// UpdateStats records one processing outcome for the given structural type.
func (s *Store) UpdateStats(fileType FileType, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.TotalProcessed++
	if success {
		s.stats.Successful++
	} else {
		s.stats.Failed++
	}
	ts := s.stats.ByType[string(fileType)]
	ts.Total++
	if success {
		ts.Successful++
	} else {
		ts.Failed++
	}
	s.stats.ByType[string(fileType)] = ts
}

// GetStats returns a snapshot of the current counters.
func (s *Store) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyStatsLocked()
}

// ClearOldLogs removes log entries strictly older than now minus
// retentionDays and returns the number removed. An entry with an
// unparsable timestamp is a defect: the sweep aborts with an error and the
// log is left untouched.
func (s *Store) ClearOldLogs(retentionDays int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)
	kept := make([]LogEntry, 0, len(s.logs))
	for _, e := range s.logs {
		ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
		if err != nil {
			return 0, fmt.Errorf("docstore: log entry has unparsable timestamp %q: %w", e.Timestamp, err)
		}
		if !ts.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(s.logs) - len(kept)
	s.logs = kept
	if removed > 0 {
		s.logger.Info("docstore: cleared old logs", "removed", removed, "retention_days", retentionDays)
	}
	return removed, nil
}

// Export returns a deep copy of the whole store for bulk transfer.
func (s *Store) Export() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Documents: make(map[string]Document, len(s.documents)),
		Metadata:  make(map[string]Metadata, len(s.metadata)),
		Logs:      make([]LogEntry, len(s.logs)),
		Stats:     s.copyStatsLocked(),
	}
	maps.Copy(snap.Documents, s.documents)
	maps.Copy(snap.Metadata, s.metadata)
	copy(snap.Logs, s.logs)
	return snap
}

// Import replaces the store contents with the given snapshot.
func (s *Store) Import(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents = make(map[string]Document, len(snap.Documents))
	maps.Copy(s.documents, snap.Documents)
	s.metadata = make(map[string]Metadata, len(snap.Metadata))
	maps.Copy(s.metadata, snap.Metadata)
	s.logs = make([]LogEntry, len(snap.Logs))
	copy(s.logs, snap.Logs)
	s.stats = snap.Stats
	if s.stats.ByType == nil {
		s.stats.ByType = make(map[string]TypeStats)
	}
	s.logger.Info("docstore: imported snapshot",
		"documents", len(s.documents), "logs", len(s.logs))
}

// ClearAll resets the store to empty.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents = make(map[string]Document)
	s.metadata = make(map[string]Metadata)
	s.logs = nil
	s.stats = Stats{ByType: make(map[string]TypeStats)}
	s.logger.Info("docstore: cleared all data")
}

func (s *Store) copyStatsLocked() Stats {
	out := s.stats
	out.ByType = make(map[string]TypeStats, len(s.stats.ByType))
	maps.Copy(out.ByType, s.stats.ByType)
	return out
}
