package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/zeebo/xxh3"
)

// Pipeline is a finite ordered sequence of named stages fed by a single
// source, per spec.md §4.C. Build one with New, wire it with WithSource/Then/
// OnError/WithHooks/WithMetrics, then Run it.
type Pipeline[T any] struct {
	name   string
	logger log.Logger

	channelCapacity int
	drainTimeout    time.Duration
	metricsInterval time.Duration

	source SourceFunc[T]
	stages []any // StageDef[T] or BatchStageDef[T]
	routes []ErrorRoute[T]
	hooks  Hooks[T]

	onMetrics MetricsObserver
}

// Config carries the builder's tunables — defaults match spec.md §6's
// seed values; callers override per pipeline (seed vs continuous).
type Config struct {
	ChannelCapacity int
	DrainTimeout    time.Duration
	MetricsInterval time.Duration
}

// DefaultSeedConfig matches spec.md §6's seed defaults.
func DefaultSeedConfig() Config {
	return Config{ChannelCapacity: 128, DrainTimeout: 60 * time.Second, MetricsInterval: 10 * time.Second}
}

// DefaultContinuousConfig matches spec.md §6's continuous defaults.
func DefaultContinuousConfig() Config {
	return Config{ChannelCapacity: 16, DrainTimeout: 15 * time.Second, MetricsInterval: 10 * time.Second}
}

// New constructs a Pipeline builder.
func New[T any](name string, logger log.Logger, cfg Config) *Pipeline[T] {
	if cfg.ChannelCapacity <= 0 {
		cfg.ChannelCapacity = 128
	}

	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 60 * time.Second
	}

	return &Pipeline[T]{
		name:            name,
		logger:          logger,
		channelCapacity: cfg.ChannelCapacity,
		drainTimeout:    cfg.DrainTimeout,
		metricsInterval: cfg.MetricsInterval,
	}
}

// WithSource sets the pipeline's source.
func (p *Pipeline[T]) WithSource(src SourceFunc[T]) *Pipeline[T] {
	p.source = src
	return p
}

// Then appends a per-item stage.
func (p *Pipeline[T]) Then(stage StageDef[T]) *Pipeline[T] {
	p.stages = append(p.stages, stage)
	return p
}

// ThenBatch appends a batch stage.
func (p *Pipeline[T]) ThenBatch(stage BatchStageDef[T]) *Pipeline[T] {
	p.stages = append(p.stages, stage)
	return p
}

// OnError registers an error route. Routes are tried in registration
// order; the first whose Match returns true handles the failure.
func (p *Pipeline[T]) OnError(match func(error) bool, handler ErrorHandler[T]) *Pipeline[T] {
	p.routes = append(p.routes, ErrorRoute[T]{Match: match, Handler: handler})
	return p
}

// WithHooks registers lifecycle hooks.
func (p *Pipeline[T]) WithHooks(h Hooks[T]) *Pipeline[T] {
	p.hooks = h
	return p
}

// WithMetrics registers a periodic metrics observer at the given interval.
// If interval is zero, DefaultContinuousConfig's MetricsInterval is used.
func (p *Pipeline[T]) WithMetrics(interval time.Duration, observer MetricsObserver) *Pipeline[T] {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	p.metricsInterval = interval
	p.onMetrics = observer

	return p
}

// AddMetricsObserver fans an additional observer into the one WithMetrics
// already registered (e.g. a prometheus.Collector's sink alongside a
// store-writing sink) — both receive every tick's snapshot. If WithMetrics
// was never called, observer becomes the only observer, sampled at the
// Config's MetricsInterval (10s when that is unset).
func (p *Pipeline[T]) AddMetricsObserver(observer MetricsObserver) *Pipeline[T] {
	if p.onMetrics == nil {
		p.onMetrics = observer
		return p
	}

	existing := p.onMetrics
	p.onMetrics = func(snapshots []StageSnapshot) {
		existing(snapshots)
		observer(snapshots)
	}

	return p
}

// Topology renders the pipeline's stage sequence as a human string, the
// way the original's pipeline.topology did for log output.
func (p *Pipeline[T]) Topology() string {
	names := make([]string, 0, len(p.stages)+1)
	names = append(names, "source")

	for _, s := range p.stages {
		names = append(names, stageName(s))
	}

	return strings.Join(names, " -> ")
}

// stageName extracts a stage's name regardless of whether it's a per-item
// or batch stage definition — both satisfy namer via the methods below.
// Generic instantiations of StageDef[T]/BatchStageDef[T] can't be
// type-switched directly across T, so this goes through an interface
// instead.
func stageName(s any) string {
	if n, ok := s.(namer); ok {
		return n.stageName()
	}

	return "stage"
}

type namer interface{ stageName() string }

func (s StageDef[T]) stageName() string      { return s.Name }
func (s BatchStageDef[T]) stageName() string { return s.Name }

// internal per-stage runtime counters.
type stageRuntime struct {
	name         string
	itemsIn      int64
	itemsOut     int64
	itemsErrored int64
	itemsRetried int64
	cap          int
	qlen         func() int

	mu         sync.Mutex
	latencies  []time.Duration
	started    int32
	completed  int32
	startTime  time.Time
}

func (r *stageRuntime) recordLatency(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.latencies = append(r.latencies, d)
	if len(r.latencies) > 1000 {
		r.latencies = r.latencies[len(r.latencies)-1000:]
	}
}

func (r *stageRuntime) percentiles() (p50, p95, p99 time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.latencies)
	if n == 0 {
		return 0, 0, 0
	}

	sorted := append([]time.Duration(nil), r.latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	pick := func(pctile float64) time.Duration {
		idx := int(pctile * float64(n-1))
		return sorted[idx]
	}

	return pick(0.50), pick(0.95), pick(0.99)
}

func (r *stageRuntime) snapshot() StageSnapshot {
	itemsIn := atomic.LoadInt64(&r.itemsIn)
	itemsOut := atomic.LoadInt64(&r.itemsOut)
	itemsErrored := atomic.LoadInt64(&r.itemsErrored)
	itemsRetried := atomic.LoadInt64(&r.itemsRetried)

	var errRate float64
	if itemsIn > 0 {
		errRate = float64(itemsErrored) / float64(itemsIn)
	}

	elapsed := time.Since(r.startTime).Seconds()

	var throughput float64
	if elapsed > 0 {
		throughput = float64(itemsOut) / elapsed
	}

	depth := 0
	if r.qlen != nil {
		depth = r.qlen()
	}

	var util float64
	if r.cap > 0 {
		util = float64(depth) / float64(r.cap)
	}

	p50, p95, p99 := r.percentiles()

	return StageSnapshot{
		Stage:            r.name,
		ItemsIn:          itemsIn,
		ItemsOut:         itemsOut,
		ItemsErrored:     itemsErrored,
		ItemsRetried:     itemsRetried,
		ErrorRate:        errRate,
		ThroughputPerSec: throughput,
		LatencyP50:       p50,
		LatencyP95:       p95,
		LatencyP99:       p99,
		QueueDepth:       depth,
		QueueUtilization: util,
	}
}

// deadLetterKey hashes an item's stage+attempt signature for dedup/display
// purposes, using zeebo/xxh3 per spec.md's domain stack wiring.
func deadLetterKey(stageName string, attempts int, errMsg string) uint64 {
	s := fmt.Sprintf("%s|%d|%s", stageName, attempts, errMsg)
	return xxh3.HashString(s)
}

func (p *Pipeline[T]) logf(keyvals ...any) {
	level.Debug(p.logger).Log(keyvals...)
}
