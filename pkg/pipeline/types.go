// Package pipeline is gridcarbon's reusable staged-pipeline runtime:
// bounded channels between stages, per-stage worker concurrency, retries
// with backoff, typed error routing, dead-letter capture, periodic
// metrics snapshots, lifecycle hooks, and cooperative shutdown.
//
// It replaces the original Python implementation's "weir" framework
// (async generator source + @stage decorator + Pipeline builder) with
// cooperative goroutines over bounded channels, per Design Note
// "Cooperative tasks + bounded channels" — grounded in shape on
// other_examples' rajasatyajit-SupplyChain pipeline.go (semaphore +
// rate-limited worker pool) and golang.org/x/sync/errgroup.
package pipeline

import (
	"context"
	"fmt"
	"time"
)

// SourceFunc produces items onto out until it is done or ctx is
// cancelled, then returns. A finite source returns nil when exhausted; an
// infinite (continuous) source returns only on ctx cancellation (it
// should check ctx.Done() at its own suspension points per spec.md §5).
type SourceFunc[T any] func(ctx context.Context, out chan<- T) error

// StageFunc transforms one input item into one output item. A
// non-nil error routes the item per the pipeline's registered error
// routes (see ErrorRoute).
type StageFunc[T any] func(ctx context.Context, item T) (T, error)

// StageOptions configures one stage's concurrency, retry policy, and (for
// batch stages) batching behavior.
type StageOptions struct {
	// Concurrency is the number of worker goroutines this stage runs.
	// Default 1 (and required for 1, to preserve FIFO ordering).
	Concurrency int

	// Retries is how many times a failed item is retried before being
	// routed to error handling. Default 0 (no retries).
	Retries int

	// RetryBaseDelay is the base of the exponential backoff between
	// retries: delay = RetryBaseDelay * 2^(attempt-1).
	RetryBaseDelay time.Duration

	// BatchSize applies to batch stages (BatchStageDef, added with
	// ThenBatch): items are accumulated until BatchSize is reached or
	// FlushTimeout elapses, then the batch function is invoked once per
	// flush. Per-item stages (StageDef) ignore it.
	BatchSize int

	// FlushTimeout bounds how long a partial batch waits before being
	// flushed anyway.
	FlushTimeout time.Duration
}

func (o StageOptions) concurrency() int {
	if o.Concurrency < 1 {
		return 1
	}

	return o.Concurrency
}

// StageDef names a stage and its function/options.
type StageDef[T any] struct {
	Name string
	Fn   StageFunc[T]
	Opts StageOptions
}

// BatchStageDef is a stage whose function operates on a fixed-size (or
// flush-timeout-bounded) group of items at once — used by the weather
// persist stage (spec.md §4.D: batch_size=24, flush_timeout=5s).
type BatchStageDef[T any] struct {
	Name string
	Fn   func(ctx context.Context, batch []T) error
	Opts StageOptions
}

// FailedItem packages an item whose processing failed with a registered
// error kind after all retries were exhausted.
type FailedItem[T any] struct {
	Item      T
	StageName string
	Err       error
	Attempts  int
}

// ErrorHandler is invoked, in addition to dead-letter capture, for every
// FailedItem matching its registered route.
type ErrorHandler[T any] func(ctx context.Context, failed FailedItem[T])

// ErrorRoute pairs a predicate over the failure with an optional handler.
// Routes are checked in registration order; the first match wins.
type ErrorRoute[T any] struct {
	Match   func(error) bool
	Handler ErrorHandler[T]
}

// Hooks are optional lifecycle callbacks. A panic inside any hook is
// recovered and discarded, so hook failures never propagate to the
// pipeline; the panic is not logged.
type Hooks[T any] struct {
	OnStart    func(stageName string)
	OnError    func(stageName string, item T, err error)
	OnComplete func(stageName string)
}

// StageSnapshot is one periodic sample of a stage's counters and queue
// stats, matching spec.md §3's StageMetricsSnapshot.
type StageSnapshot struct {
	Stage            string
	ItemsIn          int64
	ItemsOut         int64
	ItemsErrored     int64
	ItemsRetried     int64
	ErrorRate        float64
	ThroughputPerSec float64
	LatencyP50       time.Duration
	LatencyP95       time.Duration
	LatencyP99       time.Duration
	QueueDepth       int
	QueueUtilization float64
}

// MetricsObserver receives a batch of per-stage snapshots at each tick of
// the metrics sampler.
type MetricsObserver func(snapshots []StageSnapshot)

// Result is returned by Run: the final accounting and outcome.
type Result struct {
	PipelineName    string
	Completed       bool
	DurationSeconds float64
	StageMetrics    []StageSnapshot
	DeadLetterCount int64
	DeadLetterItems []any // bounded sample, see maxDeadLetterSample
	Topology        string
	FatalErr        error
}

const maxDeadLetterSample = 100

// Summary renders a short human-readable result summary, in the spirit of
// the original's PipelineResult.summary().
func (r *Result) Summary() string {
	status := "completed"
	if !r.Completed {
		status = "did not complete"
	}

	total := int64(0)
	for _, s := range r.StageMetrics {
		if s.ItemsOut > total {
			total = s.ItemsOut
		}
	}

	return fmt.Sprintf("%s: %s in %s, %d items out, %d dead letters",
		r.PipelineName, status, time.Duration(r.DurationSeconds*float64(time.Second)), total, r.DeadLetterCount)
}
