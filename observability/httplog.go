package observability

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// RequestLog returns middleware that records each request's method, path,
// status and duration to http_request_logs. The insert runs off the request
// goroutine so a slow observability disk never delays responses.
func RequestLog(db *sql.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			method, path := r.Method, r.URL.Path
			status := ww.Status()
			durationMs := time.Since(start).Milliseconds()
			addr := r.RemoteAddr
			agent := r.UserAgent()
			go func() {
				_, err := db.Exec(`
					INSERT INTO http_request_logs (method, path, status_code, duration_ms, ip_address, user_agent, created_at)
					VALUES (?,?,?,?,?,?,?)`,
					method, path, status, durationMs, addr, agent, time.Now().Unix())
				if err != nil {
					slog.Error("http request log failed", "error", err, "path", path)
				}
			}()
		})
	}
}
