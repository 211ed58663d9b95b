package store

import (
	"context"
	"time"

	"github.com/pwkasay/gridcarbon/pkg/gcerrors"
)

// StageMetricsSnapshot is one periodic sample of a pipeline stage's
// counters and queue stats, matching spec.md §3.
type StageMetricsSnapshot struct {
	Pipeline          string
	Stage             string
	SampledAt         time.Time
	ItemsIn           int64
	ItemsOut          int64
	ItemsErrored      int64
	ItemsRetried      int64
	ErrorRate         float64
	ThroughputPerSec  float64
	LatencyP50Ms      float64
	LatencyP95Ms      float64
	LatencyP99Ms      float64
	QueueDepth        int
	QueueUtilization  float64
}

// SavePipelineMetrics bulk-inserts a batch of stage snapshots within one
// transaction.
func (s *Store) SavePipelineMetrics(ctx context.Context, snapshots []StageMetricsSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &gcerrors.StoreError{Op: "save_pipeline_metrics", Err: err}
	}
	defer tx.Rollback() //nolint:errcheck

	for _, snap := range snapshots {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pipeline_metrics
			 (pipeline, stage, sampled_at, items_in, items_out, items_errored, items_retried,
			  error_rate, throughput_per_sec, latency_p50_ms, latency_p95_ms, latency_p99_ms,
			  queue_depth, queue_utilization)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.Pipeline, snap.Stage, snap.SampledAt.UTC().Format(time.RFC3339Nano),
			snap.ItemsIn, snap.ItemsOut, snap.ItemsErrored, snap.ItemsRetried,
			snap.ErrorRate, snap.ThroughputPerSec,
			snap.LatencyP50Ms, snap.LatencyP95Ms, snap.LatencyP99Ms,
			snap.QueueDepth, snap.QueueUtilization,
		); err != nil {
			return &gcerrors.StoreError{Op: "save_pipeline_metrics", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &gcerrors.StoreError{Op: "save_pipeline_metrics", Err: err}
	}

	return nil
}

// GetPipelineMetrics returns snapshots for pipeline within the last hours.
func (s *Store) GetPipelineMetrics(ctx context.Context, pipeline string, hours int) ([]StageMetricsSnapshot, error) {
	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour).UTC().Format(time.RFC3339Nano)

	rows, err := s.db.QueryContext(ctx,
		`SELECT pipeline, stage, sampled_at, items_in, items_out, items_errored, items_retried,
		        error_rate, throughput_per_sec, latency_p50_ms, latency_p95_ms, latency_p99_ms,
		        queue_depth, queue_utilization
		 FROM pipeline_metrics WHERE pipeline = ? AND sampled_at > ? ORDER BY sampled_at ASC`,
		pipeline, cutoff)
	if err != nil {
		return nil, &gcerrors.StoreError{Op: "get_pipeline_metrics", Err: err}
	}
	defer rows.Close()

	var out []StageMetricsSnapshot

	for rows.Next() {
		var (
			snap  StageMetricsSnapshot
			tsRaw string
		)

		if err := rows.Scan(
			&snap.Pipeline, &snap.Stage, &tsRaw, &snap.ItemsIn, &snap.ItemsOut, &snap.ItemsErrored, &snap.ItemsRetried,
			&snap.ErrorRate, &snap.ThroughputPerSec, &snap.LatencyP50Ms, &snap.LatencyP95Ms, &snap.LatencyP99Ms,
			&snap.QueueDepth, &snap.QueueUtilization,
		); err != nil {
			return nil, &gcerrors.StoreError{Op: "get_pipeline_metrics", Err: err}
		}

		ts, err := time.Parse(time.RFC3339Nano, tsRaw)
		if err != nil {
			return nil, &gcerrors.StoreError{Op: "get_pipeline_metrics", Err: err}
		}

		snap.SampledAt = ts
		out = append(out, snap)
	}

	return out, rows.Err()
}
