package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/log/level"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/pwkasay/gridcarbon/pkg/gcerrors"
)

func newStageRuntime(name string, capacity int, qlen func() int) *stageRuntime {
	return &stageRuntime{name: name, cap: capacity, qlen: qlen, startTime: time.Now()}
}

type deadLetterSink[T any] struct {
	count int64
	mu    sync.Mutex
	items []any
}

func (d *deadLetterSink[T]) add(f FailedItem[T]) {
	atomic.AddInt64(&d.count, 1)

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.items) < maxDeadLetterSample {
		d.items = append(d.items, f)
	}
}

func (d *deadLetterSink[T]) sample() []any {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]any(nil), d.items...)
}

// fatalState captures the first fatal (unrouted) error and triggers
// pipeline-wide cancellation exactly once.
type fatalState struct {
	once sync.Once
	err  error
	mu   sync.Mutex
}

func (f *fatalState) set(err error, cancel context.CancelFunc) {
	f.once.Do(func() {
		f.mu.Lock()
		f.err = err
		f.mu.Unlock()
		cancel()
	})
}

func (f *fatalState) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.err
}

func safe(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

// Run executes the pipeline to completion: the source drains (finite
// sources) or ctx is cancelled (continuous sources / external shutdown),
// in-flight items drain through every stage, then Run waits up to the
// configured drain timeout before giving up.
func (p *Pipeline[T]) Run(ctx context.Context) (*Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	fatal := &fatalState{}

	chans := make([]chan T, len(p.stages)+1)
	for i := range chans {
		chans[i] = make(chan T, p.channelCapacity)
	}

	runtimes := make([]*stageRuntime, len(p.stages))
	dl := &deadLetterSink[T]{}

	var wg sync.WaitGroup

	sourceDone := make(chan struct{})

	wg.Add(1)

	go func() {
		defer wg.Done()
		defer close(sourceDone)
		defer close(chans[0])

		if p.source == nil {
			return
		}

		if err := p.source(runCtx, chans[0]); err != nil {
			fatal.set(err, cancel)
		}
	}()

	for i, raw := range p.stages {
		in, out := chans[i], chans[i+1]

		switch def := raw.(type) {
		case StageDef[T]:
			p.runPerItemStage(runCtx, &wg, i, def, in, out, runtimes, dl, fatal, cancel)
		case BatchStageDef[T]:
			p.runBatchStage(runCtx, &wg, i, def, in, out, runtimes, dl, fatal, cancel)
		}
	}

	// Drain the terminal channel — the last stage's own itemsOut counter
	// already reflects successful completions; this just prevents the
	// final stage's workers from blocking on a full output channel.
	wg.Add(1)

	go func() {
		defer wg.Done()
		for range chans[len(chans)-1] { //nolint:revive // intentional drain
		}
	}()

	stopMetrics := make(chan struct{})
	metricsDone := make(chan struct{})

	if p.onMetrics == nil {
		close(metricsDone)
	} else {
		go func() {
			defer close(metricsDone)

			interval := p.metricsInterval
			if interval <= 0 {
				interval = 10 * time.Second
			}

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					safe(func() { p.onMetrics(collectSnapshots(runtimes)) })
				case <-stopMetrics:
					return
				}
			}
		}()
	}

	done := make(chan struct{})

	go func() {
		wg.Wait()
		close(done)
	}()

	completed := true

	// The drain timeout counts from the start of shutdown: the source has
	// returned (finite source, or fatal cancellation) or ctx is cancelled.
	select {
	case <-done:
	case <-sourceDone:
	case <-ctx.Done():
	}

	select {
	case <-done:
	case <-time.After(p.drainTimeout):
		completed = false

		level.Warn(p.logger).Log("msg", "drain timeout exceeded, aborting remaining waits", "pipeline", p.name)
		cancel()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	}

	close(stopMetrics)
	<-metricsDone

	ferr := fatal.get()
	if ferr != nil {
		completed = false
	}

	result := &Result{
		PipelineName:    p.name,
		Completed:       completed,
		DurationSeconds: time.Since(start).Seconds(),
		StageMetrics:    collectSnapshots(runtimes),
		DeadLetterCount: atomic.LoadInt64(&dl.count),
		DeadLetterItems: dl.sample(),
		Topology:        p.Topology(),
		FatalErr:        ferr,
	}

	return result, ferr
}

func collectSnapshots(runtimes []*stageRuntime) []StageSnapshot {
	out := make([]StageSnapshot, 0, len(runtimes))

	for _, rt := range runtimes {
		if rt != nil {
			out = append(out, rt.snapshot())
		}
	}

	return out
}

// runPerItemStage dispatches each arriving item to its own goroutine,
// bounded by a weighted semaphore sized to the stage's configured
// concurrency — the worker-pool shape used by the rajasatyajit-SupplyChain
// pipeline runner — and waits for all of them via an errgroup.
func (p *Pipeline[T]) runPerItemStage(
	ctx context.Context,
	wg *sync.WaitGroup,
	idx int,
	def StageDef[T],
	in <-chan T,
	out chan<- T,
	runtimes []*stageRuntime,
	dl *deadLetterSink[T],
	fatal *fatalState,
	cancel context.CancelFunc,
) {
	rt := newStageRuntime(def.Name, p.channelCapacity, func() int { return len(in) })
	runtimes[idx] = rt

	wg.Add(1)

	go func() {
		defer wg.Done()
		defer close(out)

		sem := semaphore.NewWeighted(int64(def.Opts.concurrency()))
		g, gctx := errgroup.WithContext(ctx)

		var startOne sync.Once

		if p.hooks.OnStart != nil {
			startOne.Do(func() { safe(func() { p.hooks.OnStart(def.Name) }) })
		}

	dispatch:
		for {
			select {
			case item, ok := <-in:
				if !ok {
					break dispatch
				}

				if err := sem.Acquire(gctx, 1); err != nil {
					break dispatch
				}

				g.Go(func() error {
					defer sem.Release(1)

					p.processOneItem(ctx, rt, out, def, item, dl, fatal, cancel)

					return nil
				})
			case <-ctx.Done():
				break dispatch
			}
		}

		_ = g.Wait()

		if p.hooks.OnComplete != nil {
			safe(func() { p.hooks.OnComplete(def.Name) })
		}
	}()
}

// processOneItem runs def.Fn for a single item with retry-with-backoff,
// recording stage accounting and routing terminal errors.
func (p *Pipeline[T]) processOneItem(
	ctx context.Context,
	rt *stageRuntime,
	out chan<- T,
	def StageDef[T],
	item T,
	dl *deadLetterSink[T],
	fatal *fatalState,
	cancel context.CancelFunc,
) {
	atomic.AddInt64(&rt.itemsIn, 1)

	start := time.Now()
	attempt := 0

	for {
		attempt++

		result, err := def.Fn(ctx, item)
		if err == nil {
			rt.recordLatency(time.Since(start))
			atomic.AddInt64(&rt.itemsOut, 1)

			select {
			case out <- result:
			case <-ctx.Done():
			}

			return
		}

		if p.hooks.OnError != nil {
			safe(func() { p.hooks.OnError(def.Name, item, err) })
		}

		if attempt <= def.Opts.Retries && gcerrors.IsTransient(err) {
			atomic.AddInt64(&rt.itemsRetried, 1)

			delay := def.Opts.RetryBaseDelay * time.Duration(1<<uint(attempt-1))

			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return
			}
		}

		atomic.AddInt64(&rt.itemsErrored, 1)
		p.routeError(ctx, def.Name, item, err, attempt, dl, fatal, cancel)

		return
	}
}

func (p *Pipeline[T]) runBatchStage(
	ctx context.Context,
	wg *sync.WaitGroup,
	idx int,
	def BatchStageDef[T],
	in <-chan T,
	out chan<- T,
	runtimes []*stageRuntime,
	dl *deadLetterSink[T],
	fatal *fatalState,
	cancel context.CancelFunc,
) {
	rt := newStageRuntime(def.Name, p.channelCapacity, func() int { return len(in) })
	runtimes[idx] = rt

	batchSize := def.Opts.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	flushTimeout := def.Opts.FlushTimeout
	if flushTimeout <= 0 {
		flushTimeout = 5 * time.Second
	}

	wg.Add(1)

	go func() {
		defer wg.Done()
		defer close(out)

		if p.hooks.OnStart != nil {
			safe(func() { p.hooks.OnStart(def.Name) })
		}

		timer := time.NewTimer(flushTimeout)
		defer timer.Stop()

		batch := make([]T, 0, batchSize)

		flush := func() {
			if len(batch) == 0 {
				return
			}

			start := time.Now()

			for range batch {
				atomic.AddInt64(&rt.itemsIn, 1)
			}

			var err error

			attempt := 0

		retry:
			for {
				attempt++
				err = def.Fn(ctx, batch)

				if err == nil || attempt > def.Opts.Retries || !gcerrors.IsTransient(err) {
					break retry
				}

				atomic.AddInt64(&rt.itemsRetried, int64(len(batch)))

				delay := def.Opts.RetryBaseDelay * time.Duration(1<<uint(attempt-1))

				select {
				case <-time.After(delay):
				case <-ctx.Done():
					break retry
				}
			}

			if err == nil {
				rt.recordLatency(time.Since(start))

				for _, item := range batch {
					atomic.AddInt64(&rt.itemsOut, 1)

					select {
					case out <- item:
					case <-ctx.Done():
					}
				}
			} else {
				if p.hooks.OnError != nil {
					for _, item := range batch {
						safe(func() { p.hooks.OnError(def.Name, item, err) })
					}
				}

				for _, item := range batch {
					atomic.AddInt64(&rt.itemsErrored, 1)
					p.routeError(ctx, def.Name, item, err, 1, dl, fatal, cancel)
				}
			}

			batch = make([]T, 0, batchSize)
		}

	loop:
		for {
			select {
			case item, ok := <-in:
				if !ok {
					break loop
				}

				batch = append(batch, item)

				if len(batch) >= batchSize {
					flush()

					if !timer.Stop() {
						<-timer.C
					}

					timer.Reset(flushTimeout)
				}
			case <-timer.C:
				flush()
				timer.Reset(flushTimeout)
			case <-ctx.Done():
				break loop
			}
		}

		flush()

		if p.hooks.OnComplete != nil {
			safe(func() { p.hooks.OnComplete(def.Name) })
		}
	}()
}

func (p *Pipeline[T]) routeError(
	ctx context.Context,
	stageName string,
	item T,
	err error,
	attempts int,
	dl *deadLetterSink[T],
	fatal *fatalState,
	cancel context.CancelFunc,
) {
	failed := FailedItem[T]{Item: item, StageName: stageName, Err: err, Attempts: attempts}

	for _, route := range p.routes {
		if route.Match(err) {
			dl.add(failed)

			if route.Handler != nil {
				safe(func() { route.Handler(ctx, failed) })
			}

			return
		}
	}

	level.Error(p.logger).Log("msg", "unregistered error kind, terminating pipeline", "stage", stageName, "err", err)
	fatal.set(err, cancel)
}
