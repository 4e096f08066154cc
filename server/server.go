// Package server exposes the document pipeline over HTTP: multipart
// upload, document retrieval, logs, statistics and health.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/docflow/docpipe"
	"github.com/hazyhaar/docflow/intake"
	"github.com/hazyhaar/docflow/perplexity"
	"github.com/hazyhaar/docflow/shield"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Server is the HTTP boundary around the pipeline service.
type Server struct {
	cfg    *Config
	svc    *intake.Service
	pipe   *docpipe.Pipeline
	logger *slog.Logger
}

// New creates the HTTP server and its upload directory.
func New(cfg *Config, svc *intake.Service, pipe *docpipe.Pipeline, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("upload dir: %w", err)
	}
	return &Server{cfg: cfg, svc: svc, pipe: pipe, logger: logger}, nil
}

// Router builds the chi router with the shield middleware stack. Extra
// middlewares (request logging, etc.) run after the stack.
func (s *Server) Router(extra ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(s.cfg.MaxUploadBytes()) {
		r.Use(mw)
	}
	r.Use(extra...)

	r.Post("/upload", s.handleUpload)
	r.Get("/documents/{id}", s.handleGetDocument)
	r.Get("/logs", s.handleGetLogs)
	r.Get("/stats", s.handleGetStats)
	r.Get("/health", s.handleHealth)

	return r
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("no file part in request"))
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, errors.New("no selected file"))
		return
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtension(ext) {
		writeError(w, http.StatusBadRequest,
			fmt.Errorf("invalid file type %q, allowed types: %s", ext, strings.Join(docpipe.SupportedExtensions(), ", ")))
		return
	}

	// Spool to a temp file so format readers can work from a path. The
	// file is removed on every exit path.
	tmp, err := os.CreateTemp(s.cfg.UploadDir, "upload-*"+ext)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("save upload: %w", err))
		return
	}
	tmpPath := tmp.Name()
	defer func() {
		if rmErr := os.Remove(tmpPath); rmErr != nil {
			s.logger.Error("server: temp file cleanup failed", "path", tmpPath, "error", rmErr)
		}
	}()

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		writeError(w, http.StatusInternalServerError, fmt.Errorf("save upload: %w", err))
		return
	}
	if err := tmp.Close(); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("save upload: %w", err))
		return
	}

	doc, err := s.pipe.Extract(r.Context(), tmpPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("extract text: %w", err))
		return
	}
	shield.GetLogger(r.Context()).Info("server: upload extracted",
		"filename", header.Filename, "chars", len(doc.Text))

	result := s.svc.ProcessDocument(r.Context(), doc.Text, header.Filename)
	if result.Status == intake.StatusError {
		writeJSON(w, errorStatus(result.Cause), result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, ok := s.svc.Store().GetDocument(id)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("document not found"))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	level := r.URL.Query().Get("level")
	limit := queryInt(r, "limit", 100)
	writeJSON(w, http.StatusOK, s.svc.Store().GetLogs(level, limit))
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Store().GetStats())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "healthy",
		"version":            Version,
		"api_key_configured": true, // construction fails without one
		"stats":              s.svc.Store().GetStats(),
	})
}

func allowedExtension(ext string) bool {
	for _, allowed := range docpipe.SupportedExtensions() {
		if ext == allowed {
			return true
		}
	}
	return false
}

// errorStatus maps a pipeline failure kind to an HTTP status. The error
// text itself is already user-facing; this only selects the code.
func errorStatus(err error) int {
	var typeErr *intake.UnsupportedTypeError
	var jsonErr *intake.InvalidJSONError
	var apiErr *perplexity.APIError
	switch {
	case errors.As(err, &typeErr), errors.As(err, &jsonErr):
		return http.StatusBadRequest
	case errors.Is(err, perplexity.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
