package shield

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/docflow/kit"
)

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(DefaultHeaders())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing Content-Security-Policy")
	}
}

func TestMaxBody(t *testing.T) {
	h := MaxBody(10)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(200)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/", strings.NewReader("under")))
	if rec.Code != 200 {
		t.Errorf("small body: status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/", strings.NewReader("way over the ten byte limit")))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("large body: status %d", rec.Code)
	}
}

func TestTraceID(t *testing.T) {
	var gotTrace string
	h := TraceID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTrace = kit.GetTraceID(r.Context())
		if GetLogger(r.Context()) == nil {
			t.Error("no per-request logger in context")
		}
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if gotTrace == "" {
		t.Error("trace id not injected into context")
	}
	if rec.Header().Get("X-Trace-ID") != gotTrace {
		t.Errorf("header trace %q != context trace %q", rec.Header().Get("X-Trace-ID"), gotTrace)
	}
}

func TestTraceID_HonorsIncomingHeader(t *testing.T) {
	h := TraceID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := kit.GetTraceID(r.Context()); got != "upstream-42" {
			t.Errorf("trace id = %q, want upstream-42", got)
		}
	}))

	req := httptest.NewRequest("GET", "/stats", nil)
	req.Header.Set("X-Trace-ID", "upstream-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("X-Trace-ID") != "upstream-42" {
		t.Errorf("echoed trace = %q", rec.Header().Get("X-Trace-ID"))
	}
}
