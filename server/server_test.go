package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/docflow/docpipe"
	"github.com/hazyhaar/docflow/docstore"
	"github.com/hazyhaar/docflow/intake"
	"github.com/hazyhaar/docflow/perplexity"
)

func chatReply(w http.ResponseWriter, content string) {
	json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
}

func newTestServer(t *testing.T, llmHandler http.HandlerFunc) *Server {
	t.Helper()
	ts := httptest.NewServer(llmHandler)
	t.Cleanup(ts.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	llm, err := perplexity.New(perplexity.Config{
		APIKey:  "test-key",
		BaseURL: ts.URL,
		Timeout: 2 * time.Second,
		Logger:  logger,
	})
	if err != nil {
		t.Fatal(err)
	}

	svc, err := intake.New(intake.Config{
		Store:  docstore.New(logger),
		LLM:    llm,
		Logger: logger,
	})
	if err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.UploadDir = t.TempDir()

	srv, err := New(cfg, svc, docpipe.New(docpipe.Config{Logger: logger}), logger)
	if err != nil {
		t.Fatal(err)
	}
	return srv
}

func scriptedHandler(replies ...string) http.HandlerFunc {
	var calls atomic.Int64
	return func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		if n >= len(replies) {
			n = len(replies) - 1
		}
		chatReply(w, replies[n])
	}
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestUpload_Invoice(t *testing.T) {
	srv := newTestServer(t, scriptedHandler(
		"Invoice",
		"Invoice analysis text.",
		"Invoice recommendations.",
	))
	router := srv.Router()

	body, contentType := multipartUpload(t, "invoice.json",
		`{"invoice_number":"INV-001","amount":1000.00,"date":"2024-03-20","vendor":"Example Corp"}`)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var result intake.ProcessingResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Status != intake.StatusSuccess {
		t.Fatalf("result: %+v", result)
	}
	if result.Analysis != "Invoice analysis text." {
		t.Fatalf("analysis: %q", result.Analysis)
	}

	// The uploaded temp file is gone.
	if got := dirEntries(t, srv.cfg.UploadDir); got != 0 {
		t.Fatalf("leftover upload files: %d", got)
	}

	// Document retrievable by the returned id.
	docReq := httptest.NewRequest(http.MethodGet, "/documents/"+result.Classification.DocID, nil)
	docRec := httptest.NewRecorder()
	router.ServeHTTP(docRec, docReq)
	if docRec.Code != http.StatusOK {
		t.Fatalf("document status %d", docRec.Code)
	}
}

func dirEntries(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	return len(entries)
}

func TestUpload_MissingFilePart(t *testing.T) {
	srv := newTestServer(t, scriptedHandler("Other"))

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("not multipart"))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestUpload_DisallowedExtension(t *testing.T) {
	srv := newTestServer(t, scriptedHandler("Other"))

	body, contentType := multipartUpload(t, "notes.docx", "doc content")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "invalid file type") {
		t.Fatalf("body: %s", rec.Body.String())
	}
}

func TestUpload_BrokenJSONFailsExtraction(t *testing.T) {
	srv := newTestServer(t, scriptedHandler("Invoice"))

	// Valid extension, broken payload: docpipe rejects it at extraction.
	body, contentType := multipartUpload(t, "broken.json", "{oops")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUpload_TimeoutIs504(t *testing.T) {
	var calls atomic.Int64
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			chatReply(w, "Complaint")
			return
		}
		time.Sleep(3 * time.Second)
		chatReply(w, "too late")
	})

	body, contentType := multipartUpload(t, "mail.txt", "From: a@b.com\nSubject: Hi\n\nBody")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var result intake.ProcessingResult
	json.Unmarshal(rec.Body.Bytes(), &result)
	if result.Status != intake.StatusError || !strings.Contains(result.Error, "timed out") {
		t.Fatalf("result: %+v", result)
	}
}

func TestGetDocument_NotFound(t *testing.T) {
	srv := newTestServer(t, scriptedHandler("Other"))

	req := httptest.NewRequest(http.MethodGet, "/documents/nope", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestLogsAndStats(t *testing.T) {
	srv := newTestServer(t, scriptedHandler("Other"))
	srv.svc.Store().AddLog("info", "hello", nil)
	srv.svc.Store().AddLog("error", "boom", nil)
	srv.svc.Store().UpdateStats(docstore.FileTypeJSON, true)

	req := httptest.NewRequest(http.MethodGet, "/logs?level=error&limit=5", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	var logs []docstore.LogEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &logs); err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || logs[0].Message != "boom" {
		t.Fatalf("logs: %+v", logs)
	}

	statsReq := httptest.NewRequest(http.MethodGet, "/stats", nil)
	statsRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(statsRec, statsReq)
	var stats docstore.Stats
	if err := json.Unmarshal(statsRec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalProcessed != 1 || stats.Successful != 1 {
		t.Fatalf("stats: %+v", stats)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, scriptedHandler("Other"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var health struct {
		Status           string `json:"status"`
		Version          string `json:"version"`
		APIKeyConfigured bool   `json:"api_key_configured"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "healthy" || health.Version != Version || !health.APIKeyConfigured {
		t.Fatalf("health: %+v", health)
	}

	// Trace id header comes from the middleware stack.
	if rec.Header().Get("X-Trace-ID") == "" {
		t.Fatal("missing trace id header")
	}
}
