// Entry point for the docflow HTTP service: chi router, document pipeline,
// sqlite observability, optional MCP stdio transport.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/docflow/archive"
	"github.com/hazyhaar/docflow/dbopen"
	"github.com/hazyhaar/docflow/docpipe"
	"github.com/hazyhaar/docflow/docstore"
	"github.com/hazyhaar/docflow/intake"
	"github.com/hazyhaar/docflow/observability"
	"github.com/hazyhaar/docflow/perplexity"
	"github.com/hazyhaar/docflow/server"
)

func main() {
	apiKey := os.Getenv("PERPLEXITY_API_KEY")
	if apiKey == "" {
		slog.Error("PERPLEXITY_API_KEY is required")
		os.Exit(1)
	}

	cfg := server.DefaultConfig()
	if path := env("CONFIG_FILE", ""); path != "" {
		loaded, err := server.LoadConfig(path)
		if err != nil {
			slog.Error("load config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if listen := env("LISTEN", ""); listen != "" {
		cfg.Listen = listen
	}
	mcpTransport := env("MCP_TRANSPORT", "")

	// Logging.
	var lvl slog.Level
	switch env("LOG_LEVEL", cfg.LogLevel) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Observability DB.
	obsDB, err := dbopen.Open(cfg.ObservabilityDB, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("observability db", "error", err)
		os.Exit(1)
	}
	defer obsDB.Close()
	if err := observability.Init(obsDB); err != nil {
		slog.Error("observability init", "error", err)
		os.Exit(1)
	}
	events := observability.NewEventLogger(obsDB)
	metrics := observability.NewMetricsManager(obsDB, 100, 5*time.Second)
	defer metrics.Close()

	// LLM client.
	llm, err := perplexity.New(perplexity.Config{
		APIKey:  apiKey,
		Model:   cfg.Perplexity.Model,
		BaseURL: cfg.Perplexity.BaseURL,
		Timeout: cfg.PerplexityTimeout(),
		Logger:  logger,
	})
	if err != nil {
		slog.Error("perplexity client", "error", err)
		os.Exit(1)
	}

	// Document store — one shared instance for the whole process.
	store := docstore.New(logger)

	// Optional raw-response archive.
	var arc *archive.Archive
	if cfg.ArchiveDir != "" {
		arc, err = archive.New(cfg.ArchiveDir)
		if err != nil {
			slog.Error("archive", "error", err)
			os.Exit(1)
		}
	}

	// Pipeline service.
	svc, err := intake.New(intake.Config{
		Store:   store,
		LLM:     llm,
		Archive: arc,
		Events:  events,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		slog.Error("intake service", "error", err)
		os.Exit(1)
	}

	// Periodic retention sweeps: in-memory logs and observability tables.
	if cfg.LogRetentionDays > 0 {
		go func() {
			ticker := time.NewTicker(24 * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if n, err := store.ClearOldLogs(cfg.LogRetentionDays); err != nil {
						slog.Error("log retention sweep", "error", err)
					} else if n > 0 {
						slog.Info("log retention sweep", "removed", n)
					}
					if err := observability.Cleanup(ctx, obsDB, observability.RetentionConfig{
						EventLogsDays: cfg.LogRetentionDays,
						MetricsDays:   cfg.LogRetentionDays,
						HTTPLogsDays:  cfg.LogRetentionDays,
					}); err != nil {
						slog.Error("observability retention sweep", "error", err)
					}
				}
			}
		}()
	}

	// Optional MCP stdio transport.
	if mcpTransport == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "docflow",
			Version: server.Version,
		}, nil)
		svc.RegisterMCP(mcpSrv)
		go func() {
			slog.Info("MCP stdio starting")
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("MCP stdio", "error", err)
			}
		}()
	}

	// HTTP server.
	web, err := server.New(cfg, svc, docpipe.New(docpipe.Config{
		MaxFileSize: cfg.MaxUploadBytes(),
		Logger:      logger,
	}), logger)
	if err != nil {
		slog.Error("server", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           web.Router(observability.RequestLog(obsDB)),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
