// Package observability persists pipeline events and timeseries metrics to
// SQLite, keeping the document pipeline observable without an external
// metrics stack.
//
// The observability database is separate from application state. Call Init()
// on the shared *sql.DB first, then pass it to the constructors.
//
// Writes are buffered and asynchronous: a slow disk never blocks document
// processing.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Standard metric names recorded by the pipeline.
const (
	MetricDocumentsProcessed = "documents_processed_count"
	MetricProcessingFailed   = "documents_failed_count"
	MetricLLMCallDurationMs  = "llm_call_duration_ms"
	MetricPipelineDurationMs = "pipeline_duration_ms"
)

// Metric is a single timeseries datapoint.
type Metric struct {
	Name      string
	Timestamp time.Time
	Value     float64
	Labels    map[string]string // optional, stored as JSON
	Unit      string            // "count", "bytes", "milliseconds"
}

// MetricsManager accumulates metrics in memory and writes them to the
// metrics_timeseries table in batched transactions.
type MetricsManager struct {
	db       *sql.DB
	batch    int
	interval time.Duration

	mu      sync.Mutex
	pending []Metric

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewMetricsManager starts the background flusher. A batch fills at
// bufferSize datapoints; partial batches flush every flushInterval.
func NewMetricsManager(db *sql.DB, bufferSize int, flushInterval time.Duration) *MetricsManager {
	mm := &MetricsManager{
		db:       db,
		batch:    bufferSize,
		interval: flushInterval,
		pending:  make([]Metric, 0, bufferSize),
		quit:     make(chan struct{}),
	}
	mm.wg.Add(1)
	go mm.run()
	return mm
}

// Record queues a datapoint. It never blocks on the database.
func (mm *MetricsManager) Record(m *Metric) {
	mm.mu.Lock()
	mm.pending = append(mm.pending, *m)
	full := len(mm.pending) >= mm.batch
	mm.mu.Unlock()
	if full {
		mm.flush()
	}
}

// RecordSimple records an unlabeled datapoint stamped now.
func (mm *MetricsManager) RecordSimple(name string, value float64, unit string) {
	mm.Record(&Metric{Name: name, Timestamp: time.Now(), Value: value, Unit: unit})
}

// Query returns datapoints newest-first. Empty metricName matches all
// metrics; nil time bounds are open; limit <= 0 means no limit.
func (mm *MetricsManager) Query(metricName string, startTime, endTime *time.Time, limit int) ([]*Metric, error) {
	var sb strings.Builder
	sb.WriteString("SELECT metric_name, timestamp, value, labels, unit FROM metrics_timeseries")

	var conds []string
	var args []any
	if metricName != "" {
		conds = append(conds, "metric_name = ?")
		args = append(args, metricName)
	}
	if startTime != nil {
		conds = append(conds, "timestamp >= ?")
		args = append(args, startTime.Unix())
	}
	if endTime != nil {
		conds = append(conds, "timestamp <= ?")
		args = append(args, endTime.Unix())
	}
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY timestamp DESC")
	if limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, limit)
	}

	rows, err := mm.db.Query(sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var out []*Metric
	for rows.Next() {
		var (
			m      Metric
			ts     int64
			labels sql.NullString
		)
		if err := rows.Scan(&m.Name, &ts, &m.Value, &labels, &m.Unit); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		m.Timestamp = time.Unix(ts, 0)
		if labels.Valid {
			json.Unmarshal([]byte(labels.String), &m.Labels)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// Cleanup deletes datapoints older than retentionDays, returning the count.
func (mm *MetricsManager) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays).Unix()
	res, err := mm.db.ExecContext(ctx, `DELETE FROM metrics_timeseries WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup metrics: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the flusher and writes any pending datapoints.
func (mm *MetricsManager) Close() error {
	close(mm.quit)
	mm.wg.Wait()
	mm.flush()
	return nil
}

func (mm *MetricsManager) run() {
	defer mm.wg.Done()
	ticker := time.NewTicker(mm.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			mm.flush()
		case <-mm.quit:
			return
		}
	}
}

func (mm *MetricsManager) flush() {
	mm.mu.Lock()
	if len(mm.pending) == 0 {
		mm.mu.Unlock()
		return
	}
	batch := mm.pending
	mm.pending = make([]Metric, 0, mm.batch)
	mm.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := mm.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("metrics flush: begin tx", "error", err)
		return
	}
	defer tx.Rollback()

	const insert = `INSERT INTO metrics_timeseries (metric_name, timestamp, value, labels, unit) VALUES (?,?,?,?,?)`
	for i := range batch {
		m := &batch[i]
		var labels any
		if len(m.Labels) > 0 {
			if b, err := json.Marshal(m.Labels); err == nil {
				labels = string(b)
			}
		}
		if _, err := tx.ExecContext(ctx, insert, m.Name, m.Timestamp.Unix(), m.Value, labels, m.Unit); err != nil {
			slog.Error("metrics flush: insert", "metric", m.Name, "error", err)
		}
	}
	if err := tx.Commit(); err != nil {
		slog.Error("metrics flush: commit", "error", err)
	}
}
