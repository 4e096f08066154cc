package docstore

import (
	"sync"
	"testing"
	"time"
)

func TestDocumentRoundTrip(t *testing.T) {
	s := New(nil)
	content := map[string]any{"analysis": "fine", "doc_id": "d1"}
	s.StoreDocument("d1", content)

	doc, ok := s.GetDocument("d1")
	if !ok {
		t.Fatal("document not found after store")
	}
	got, ok := doc.Content.(map[string]any)
	if !ok {
		t.Fatalf("content type %T", doc.Content)
	}
	if got["analysis"] != "fine" {
		t.Errorf("analysis = %v", got["analysis"])
	}
	if doc.Status != "completed" {
		t.Errorf("status = %q", doc.Status)
	}
	if _, err := time.Parse(time.RFC3339Nano, doc.Timestamp); err != nil {
		t.Errorf("timestamp not RFC 3339: %v", err)
	}
}

func TestGetDocument_UnknownID(t *testing.T) {
	s := New(nil)
	if _, ok := s.GetDocument("missing"); ok {
		t.Error("unknown id reported as found")
	}
}

func TestUpdateDocument_MergesMaps(t *testing.T) {
	s := New(nil)
	s.StoreDocument("d1", map[string]any{"a": 1})
	s.UpdateDocument("d1", map[string]any{"b": 2})

	doc, _ := s.GetDocument("d1")
	m := doc.Content.(map[string]any)
	if m["a"] != 1 || m["b"] != 2 {
		t.Errorf("merge result: %v", m)
	}

	// Unknown id is a no-op.
	s.UpdateDocument("missing", map[string]any{"x": 1})
	if _, ok := s.GetDocument("missing"); ok {
		t.Error("update created a document")
	}
}

func TestThreadDocuments(t *testing.T) {
	s := New(nil)
	s.StoreDocument("d1", "one")
	s.StoreDocument("d2", "two")
	s.StoreDocument("d3", "three")
	s.PutMetadata("d1", Metadata{Source: "a.txt", FileType: FileTypeEmail, ThreadID: "T1"})
	s.PutMetadata("d2", Metadata{Source: "b.txt", FileType: FileTypeEmail, ThreadID: "T2"})
	s.PutMetadata("d3", Metadata{Source: "c.txt", FileType: FileTypeEmail, ThreadID: "T1"})

	docs := s.ThreadDocuments("T1")
	if len(docs) != 2 {
		t.Fatalf("thread T1: got %d documents", len(docs))
	}
	if _, ok := docs["d2"]; ok {
		t.Error("d2 belongs to T2, not T1")
	}

	// Documents without a thread id never match, even against "".
	s.PutMetadata("d4", Metadata{Source: "d.json", FileType: FileTypeJSON})
	s.StoreDocument("d4", "four")
	if got := s.ThreadDocuments(""); len(got) != 0 {
		t.Errorf("empty thread id matched %d documents", len(got))
	}
}

func TestSetThreadID(t *testing.T) {
	s := New(nil)
	s.StoreDocument("d1", "email body")
	s.PutMetadata("d1", Metadata{Source: "mail.txt", FileType: FileTypeEmail})

	s.SetThreadID("d1", "T9")

	md, ok := s.GetMetadata("d1")
	if !ok || md.ThreadID != "T9" {
		t.Fatalf("metadata after SetThreadID: %+v (ok=%v)", md, ok)
	}
	// The rest of the record survives the update.
	if md.Source != "mail.txt" || md.FileType != FileTypeEmail {
		t.Fatalf("metadata clobbered: %+v", md)
	}
	if docs := s.ThreadDocuments("T9"); len(docs) != 1 {
		t.Fatalf("thread T9: got %d documents", len(docs))
	}

	// Unknown ids are a no-op, not a new record.
	s.SetThreadID("ghost", "T9")
	if _, ok := s.GetMetadata("ghost"); ok {
		t.Fatal("SetThreadID created metadata for an unknown id")
	}
}

func TestGetLogs_FilterAndLimit(t *testing.T) {
	s := New(nil)
	s.AddLog("info", "one", nil)
	s.AddLog("error", "two", map[string]any{"doc_id": "d1"})
	s.AddLog("info", "three", nil)
	s.AddLog("error", "four", nil)

	all := s.GetLogs("", 100)
	if len(all) != 4 {
		t.Fatalf("all logs: got %d", len(all))
	}
	if all[0].Message != "one" || all[3].Message != "four" {
		t.Error("insertion order not preserved")
	}

	errs := s.GetLogs("error", 100)
	if len(errs) != 2 || errs[0].Message != "two" || errs[1].Message != "four" {
		t.Errorf("error filter: %+v", errs)
	}

	limited := s.GetLogs("", 2)
	if len(limited) != 2 || limited[0].Message != "three" {
		t.Errorf("limit should keep the most recent entries: %+v", limited)
	}

	if got := s.GetLogs("", 0); len(got) != 4 {
		t.Errorf("zero limit should default to 100, got %d entries", len(got))
	}
}

func TestUpdateStats_Concurrent(t *testing.T) {
	s := New(nil)
	const workers = 8
	const perWorker = 100

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range perWorker {
				s.UpdateStats(FileTypeJSON, (w+i)%2 == 0)
			}
		}(w)
	}
	wg.Wait()

	stats := s.GetStats()
	total := workers * perWorker
	if stats.TotalProcessed != total {
		t.Errorf("total = %d, want %d", stats.TotalProcessed, total)
	}
	if stats.Successful+stats.Failed != total {
		t.Errorf("successful+failed = %d, want %d", stats.Successful+stats.Failed, total)
	}
	byType := stats.ByType[string(FileTypeJSON)]
	if byType.Total != total {
		t.Errorf("by_type total = %d, want %d", byType.Total, total)
	}
	if byType.Successful != stats.Successful || byType.Failed != stats.Failed {
		t.Error("per-type counters diverge from global counters")
	}
}

func TestGetStats_SnapshotIsolation(t *testing.T) {
	s := New(nil)
	s.UpdateStats(FileTypePDF, true)
	snap := s.GetStats()
	snap.ByType[string(FileTypePDF)] = TypeStats{Total: 99}

	if s.GetStats().ByType[string(FileTypePDF)].Total != 1 {
		t.Error("mutating a snapshot leaked into the store")
	}
}

func TestClearOldLogs(t *testing.T) {
	s := New(nil)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return base.AddDate(0, 0, -10) }
	s.AddLog("info", "old", nil)
	s.now = func() time.Time { return base }
	s.AddLog("info", "recent", nil)

	removed, err := s.ClearOldLogs(7)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	logs := s.GetLogs("", 100)
	if len(logs) != 1 || logs[0].Message != "recent" {
		t.Errorf("remaining logs: %+v", logs)
	}
}

func TestClearOldLogs_BadTimestamp(t *testing.T) {
	s := New(nil)
	s.AddLog("info", "fine", nil)
	// Corrupt an entry the way a bad import would.
	s.logs = append(s.logs, LogEntry{Timestamp: "not-a-time", Level: "info", Message: "broken"})

	if _, err := s.ClearOldLogs(7); err == nil {
		t.Fatal("expected error for unparsable timestamp")
	}
	// The sweep must not drop anything on failure.
	if len(s.GetLogs("", 100)) != 2 {
		t.Error("failed sweep modified the log")
	}
}

func TestExportImport(t *testing.T) {
	s := New(nil)
	s.StoreDocument("d1", "content")
	s.PutMetadata("d1", Metadata{Source: "a.json", FileType: FileTypeJSON, Intent: IntentInvoice})
	s.AddLog("info", "processed", nil)
	s.UpdateStats(FileTypeJSON, true)

	snap := s.Export()

	dst := New(nil)
	dst.Import(snap)
	if _, ok := dst.GetDocument("d1"); !ok {
		t.Error("document lost in export/import")
	}
	md, ok := dst.GetMetadata("d1")
	if !ok || md.Intent != IntentInvoice {
		t.Errorf("metadata lost: %+v", md)
	}
	if dst.GetStats().TotalProcessed != 1 {
		t.Error("stats lost in export/import")
	}

	// Export is a deep copy: mutating it must not touch the source.
	snap.Documents["d2"] = Document{}
	if _, ok := s.GetDocument("d2"); ok {
		t.Error("snapshot mutation leaked into store")
	}
}

func TestClearAll(t *testing.T) {
	s := New(nil)
	s.StoreDocument("d1", "x")
	s.AddLog("info", "x", nil)
	s.UpdateStats(FileTypeEmail, false)

	s.ClearAll()

	if _, ok := s.GetDocument("d1"); ok {
		t.Error("document survived ClearAll")
	}
	if len(s.GetLogs("", 100)) != 0 {
		t.Error("logs survived ClearAll")
	}
	if s.GetStats().TotalProcessed != 0 {
		t.Error("stats survived ClearAll")
	}
}
