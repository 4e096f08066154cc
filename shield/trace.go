package shield

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/docflow/kit"
)

// TraceID tags every request with a random identifier. It honors an
// incoming X-Trace-ID header so callers can correlate across services,
// stores the id and a derived logger in the context, and logs request
// completion with the measured duration.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = newTraceID()
		}
		w.Header().Set("X-Trace-ID", traceID)

		reqLogger := slog.Default().With("trace_id", traceID, "method", r.Method, "path", r.URL.Path)

		ctx := kit.WithTraceID(r.Context(), traceID)
		ctx = context.WithValue(ctx, LoggerKey, reqLogger)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		reqLogger.Debug("request complete", "duration_ms", time.Since(start).Milliseconds())
	})
}

func newTraceID() string {
	var b [8]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
