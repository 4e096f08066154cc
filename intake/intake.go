// Package intake implements the document processing pipeline: classify,
// route to a type-specific handler, enrich through two LLM calls, and
// persist the aggregated result.
package intake

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/hazyhaar/docflow/archive"
	"github.com/hazyhaar/docflow/docstore"
	"github.com/hazyhaar/docflow/idgen"
	"github.com/hazyhaar/docflow/observability"
	"github.com/hazyhaar/docflow/perplexity"
)

// Config wires the pipeline's collaborators. Store and LLM are required;
// Archive, Events and Metrics are optional observability sinks.
type Config struct {
	Store   *docstore.Store
	LLM     *perplexity.Client
	Archive *archive.Archive
	Events  *observability.EventLogger
	Metrics *observability.MetricsManager
	Logger  *slog.Logger
	IDGen   idgen.Generator
}

// Service orchestrates the pipeline end to end. One instance per process,
// shared across requests; all state lives in the injected store.
type Service struct {
	store    *docstore.Store
	llm      *perplexity.Client
	archive  *archive.Archive
	events   *observability.EventLogger
	metrics  *observability.MetricsManager
	logger   *slog.Logger
	newID    idgen.Generator
	handlers map[docstore.FileType]Handler
}

// New constructs the pipeline service. A missing store or LLM client is a
// ConfigurationError: there is no safe default for either.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, &ConfigurationError{Reason: "document store is required"}
	}
	if cfg.LLM == nil {
		return nil, &ConfigurationError{Reason: "LLM client is required"}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.IDGen == nil {
		cfg.IDGen = idgen.Default
	}

	s := &Service{
		store:   cfg.Store,
		llm:     cfg.LLM,
		archive: cfg.Archive,
		events:  cfg.Events,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		newID:   cfg.IDGen,
	}
	s.handlers = map[docstore.FileType]Handler{
		docstore.FileTypeJSON:  NewJSONHandler(cfg.Logger),
		docstore.FileTypeEmail: NewEmailHandler(cfg.LLM, cfg.IDGen, cfg.Logger),
	}
	return s, nil
}

// Store exposes the underlying document store for query surfaces.
func (s *Service) Store() *docstore.Store { return s.store }

// ProcessDocument drives the full pipeline for one document. Every stage
// failure is converted here into an error-status result; the pipeline
// never retries and never panics outward.
func (s *Service) ProcessDocument(ctx context.Context, content, source string) *ProcessingResult {
	start := time.Now()

	cls, err := s.Classify(ctx, content, source)
	if err != nil {
		return s.fail(ctx, nil, source, start, err)
	}

	handler, ok := s.handlers[cls.FileType]
	if !ok {
		return s.fail(ctx, cls, source, start, &UnsupportedTypeError{Ext: string(cls.FileType)})
	}

	processing, err := handler.Process(ctx, content, cls)
	if err != nil {
		return s.fail(ctx, cls, source, start, err)
	}
	if email, ok := processing.(*EmailResult); ok && email.ThreadID != "" {
		s.store.SetThreadID(cls.DocID, email.ThreadID)
	}

	analysis, err := s.Analyze(ctx, content, cls.FileType)
	if err != nil {
		return s.fail(ctx, cls, source, start, err)
	}

	recommendations, err := s.Recommend(ctx, analysis, cls.FileType)
	if err != nil {
		return s.fail(ctx, cls, source, start, err)
	}

	result := &ProcessingResult{
		Status:          StatusSuccess,
		Classification:  cls,
		Processing:      processing,
		Analysis:        analysis,
		Recommendations: recommendations,
	}

	s.store.StoreDocument(cls.DocID, result)
	s.store.UpdateStats(cls.FileType, true)
	s.store.AddLog("info", "document processed", map[string]any{
		"doc_id":    cls.DocID,
		"file_type": string(cls.FileType),
		"intent":    string(cls.Intent),
	})
	s.recordOutcome(ctx, cls, source, start, true, "")
	s.logger.Info("intake: processed", "doc_id", cls.DocID, "file_type", cls.FileType, "duration", time.Since(start))

	return result
}

// fail turns a stage error into the user-facing error result, persists it
// and books the failure in the statistics. When classification never ran,
// the failure is bucketed under the UNKNOWN structural type and the result
// is stored under a fresh id so it stays addressable.
func (s *Service) fail(ctx context.Context, cls *Classification, source string, start time.Time, err error) *ProcessingResult {
	result := &ProcessingResult{
		Status:         StatusError,
		Classification: cls,
		Error:          err.Error(),
		Cause:          err,
	}

	docID := s.newID()
	fileType := docstore.FileTypeUnknown
	if cls != nil {
		docID = cls.DocID
		fileType = cls.FileType
	}

	s.store.StoreDocument(docID, result)
	s.store.UpdateStats(fileType, false)
	s.store.AddLog("error", "document processing failed", map[string]any{
		"doc_id":    docID,
		"source":    source,
		"file_type": string(fileType),
		"error":     err.Error(),
	})
	s.recordOutcome(ctx, cls, source, start, false, err.Error())
	s.logger.Error("intake: processing failed", "doc_id", docID, "source", source, "error", err)

	return result
}

func (s *Service) recordOutcome(ctx context.Context, cls *Classification, source string, start time.Time, success bool, errMsg string) {
	if s.metrics != nil {
		if success {
			s.metrics.RecordSimple(observability.MetricDocumentsProcessed, 1, "count")
		} else {
			s.metrics.RecordSimple(observability.MetricProcessingFailed, 1, "count")
		}
		s.metrics.Record(&observability.Metric{
			Name:   observability.MetricPipelineDurationMs,
			Value:  float64(time.Since(start).Milliseconds()),
			Labels: map[string]string{"success": strconv.FormatBool(success)},
			Unit:   "milliseconds",
		})
	}
	if s.events == nil {
		return
	}

	event := observability.PipelineEvent{
		EventType: "document_processed",
		Action:    "process",
		Success:   success,
	}
	if !success {
		event.EventType = "document_failed"
		if errMsg != "" {
			if details, err := json.Marshal(map[string]string{"error": errMsg, "source": source}); err == nil {
				event.Details = string(details)
			}
		}
	}
	if cls != nil {
		event.DocumentID = cls.DocID
		event.FileType = string(cls.FileType)
		event.Intent = string(cls.Intent)
	}
	s.events.LogEvent(ctx, event)
}
