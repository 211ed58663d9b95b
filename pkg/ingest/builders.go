package ingest

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/time/rate"

	"github.com/pwkasay/gridcarbon/pkg/fuel"
	"github.com/pwkasay/gridcarbon/pkg/gcerrors"
	"github.com/pwkasay/gridcarbon/pkg/nyiso"
	"github.com/pwkasay/gridcarbon/pkg/openweather"
	"github.com/pwkasay/gridcarbon/pkg/pipeline"
	"github.com/pwkasay/gridcarbon/pkg/store"
	"github.com/pwkasay/gridcarbon/pkg/weather"
)

// Defaults from spec.md §6's configuration table.
const (
	DefaultRateLimitDelayFuel    = 500 * time.Millisecond
	DefaultRateLimitDelayWeather = time.Second

	DefaultFuelMixPollInterval = 5 * time.Minute
	DefaultWeatherPollInterval = time.Hour

	weatherBatchSize    = 24
	weatherFlushTimeout = 5 * time.Second

	persistRetries        = 2
	persistRetryBaseDelay = 100 * time.Millisecond
)

// isValidationOrStoreError matches both dead-letter-bound error kinds this
// topology raises, mirroring the original's two on_error registrations.
func isValidationOrStoreError(err error) bool {
	switch err.(type) {
	case *gcerrors.ValidationError, *gcerrors.StoreError:
		return true
	default:
		return false
	}
}

// eventLoggingHandler logs a dead-lettered failure to ingestion_events,
// grounded on the original's make_event_logging_handler.
func eventLoggingHandler[T any](s *store.Store) pipeline.ErrorHandler[T] {
	return func(ctx context.Context, failed pipeline.FailedItem[T]) {
		s.LogEvent(ctx, failed.StageName+"_failure", failed.StageName, failed.Err.Error(),
			map[string]any{"attempts": failed.Attempts})
	}
}

// seedConfig returns cfgOverride[0] if the caller supplied one (wiring
// internal/config's channel_capacity_seed/drain_timeout_seed), otherwise
// spec.md §6's seed defaults.
func seedConfig(cfgOverride ...pipeline.Config) pipeline.Config {
	if len(cfgOverride) > 0 {
		return cfgOverride[0]
	}

	return pipeline.DefaultSeedConfig()
}

// continuousConfig is seedConfig's continuous-pipeline counterpart.
func continuousConfig(cfgOverride ...pipeline.Config) pipeline.Config {
	if len(cfgOverride) > 0 {
		return cfgOverride[0]
	}

	return pipeline.DefaultContinuousConfig()
}

// BuildFuelMixSeedPipeline wires nyiso_date_source -> validate -> persist
// for a one-shot historical import, mirroring build_seed_pipeline.
func BuildFuelMixSeedPipeline(logger log.Logger, s *store.Store, f nyiso.Fetcher, start, end time.Time, cfgOverride ...pipeline.Config) *pipeline.Pipeline[*fuel.Mix] {
	limiter := rate.NewLimiter(rate.Every(DefaultRateLimitDelayFuel), 1)
	handler := eventLoggingHandler[*fuel.Mix](s)

	return pipeline.New[*fuel.Mix]("gridcarbon-seed-fuelmix", logger, seedConfig(cfgOverride...)).
		WithSource(FuelMixSeedSource(f, start, end, limiter)).
		Then(pipeline.StageDef[*fuel.Mix]{
			Name: "validate",
			Fn:   ValidateFuelMix,
			Opts: pipeline.StageOptions{Concurrency: 1},
		}).
		Then(pipeline.StageDef[*fuel.Mix]{
			Name: "persist",
			Fn:   PersistFuelMix(s),
			Opts: pipeline.StageOptions{Concurrency: 1, Retries: persistRetries, RetryBaseDelay: persistRetryBaseDelay},
		}).
		OnError(isValidationOrStoreError, handler)
}

// BuildFuelMixContinuousPipeline wires continuous_source -> validate ->
// persist for ongoing ingestion, mirroring build_continuous_pipeline, and
// emits stage_start/stage_error/stage_complete ingestion_events via hooks.
func BuildFuelMixContinuousPipeline(logger log.Logger, s *store.Store, f nyiso.Fetcher, pollInterval time.Duration, cfgOverride ...pipeline.Config) *pipeline.Pipeline[*fuel.Mix] {
	if pollInterval <= 0 {
		pollInterval = DefaultFuelMixPollInterval
	}

	handler := eventLoggingHandler[*fuel.Mix](s)
	cfg := continuousConfig(cfgOverride...)

	p := pipeline.New[*fuel.Mix]("gridcarbon-ingest-fuelmix", logger, cfg).
		WithSource(FuelMixContinuousSource(f, pollInterval, time.Now)).
		Then(pipeline.StageDef[*fuel.Mix]{
			Name: "validate",
			Fn:   ValidateFuelMix,
			Opts: pipeline.StageOptions{Concurrency: 1},
		}).
		Then(pipeline.StageDef[*fuel.Mix]{
			Name: "persist",
			Fn:   PersistFuelMix(s),
			Opts: pipeline.StageOptions{Concurrency: 1, Retries: persistRetries, RetryBaseDelay: persistRetryBaseDelay},
		}).
		OnError(isValidationOrStoreError, handler).
		WithHooks(lifecycleEventHooks[*fuel.Mix](s))

	return p.WithMetrics(cfg.MetricsInterval, metricsToStore(s, logger, "gridcarbon-ingest-fuelmix"))
}

// BuildWeatherSeedPipeline wires a single historical fetch -> validate ->
// batched persist, for seeding weather alongside a fuel-mix backfill.
func BuildWeatherSeedPipeline(logger log.Logger, s *store.Store, f openweather.Fetcher, start, end time.Time, cfgOverride ...pipeline.Config) *pipeline.Pipeline[weather.Snapshot] {
	handler := eventLoggingHandler[weather.Snapshot](s)

	return pipeline.New[weather.Snapshot]("gridcarbon-seed-weather", logger, seedConfig(cfgOverride...)).
		WithSource(WeatherSeedSource(f, start, end)).
		Then(pipeline.StageDef[weather.Snapshot]{
			Name: "validate",
			Fn:   ValidateWeather,
			Opts: pipeline.StageOptions{Concurrency: 1},
		}).
		ThenBatch(pipeline.BatchStageDef[weather.Snapshot]{
			Name: "persist",
			Fn:   PersistWeatherBatch(s),
			Opts: pipeline.StageOptions{
				Concurrency:  1,
				Retries:      persistRetries,
				BatchSize:    weatherBatchSize,
				FlushTimeout: weatherFlushTimeout,
			},
		}).
		OnError(isValidationOrStoreError, handler)
}

// BuildWeatherContinuousPipeline polls Open-Meteo's forecast endpoint on
// pollInterval and batches writes the same way the seed pipeline does.
func BuildWeatherContinuousPipeline(logger log.Logger, s *store.Store, f openweather.Fetcher, pollInterval time.Duration, cfgOverride ...pipeline.Config) *pipeline.Pipeline[weather.Snapshot] {
	if pollInterval <= 0 {
		pollInterval = DefaultWeatherPollInterval
	}

	handler := eventLoggingHandler[weather.Snapshot](s)
	cfg := continuousConfig(cfgOverride...)

	p := pipeline.New[weather.Snapshot]("gridcarbon-ingest-weather", logger, cfg).
		WithSource(WeatherContinuousSource(f, pollInterval, 2)).
		Then(pipeline.StageDef[weather.Snapshot]{
			Name: "validate",
			Fn:   ValidateWeather,
			Opts: pipeline.StageOptions{Concurrency: 1},
		}).
		ThenBatch(pipeline.BatchStageDef[weather.Snapshot]{
			Name: "persist",
			Fn:   PersistWeatherBatch(s),
			Opts: pipeline.StageOptions{
				Concurrency:  1,
				Retries:      persistRetries,
				BatchSize:    weatherBatchSize,
				FlushTimeout: weatherFlushTimeout,
			},
		}).
		OnError(isValidationOrStoreError, handler).
		WithHooks(lifecycleEventHooks[weather.Snapshot](s))

	return p.WithMetrics(cfg.MetricsInterval, metricsToStore(s, logger, "gridcarbon-ingest-weather"))
}

// lifecycleEventHooks emits stage_start/stage_error/stage_complete
// ingestion_events, used only on continuous pipelines (seed runs are noisy
// enough via their own summary).
func lifecycleEventHooks[T any](s *store.Store) pipeline.Hooks[T] {
	return pipeline.Hooks[T]{
		OnStart: func(stageName string) {
			s.LogEvent(context.Background(), "stage_start", stageName, "stage started", nil)
		},
		OnError: func(stageName string, _ T, err error) {
			s.LogEvent(context.Background(), "stage_error", stageName, err.Error(), nil)
		},
		OnComplete: func(stageName string) {
			s.LogEvent(context.Background(), "stage_complete", stageName, "stage completed", nil)
		},
	}
}

// metricsToStore adapts a pipeline.MetricsObserver into a writer of
// store.StageMetricsSnapshot rows for the given pipeline name.
func metricsToStore(s *store.Store, logger log.Logger, pipelineName string) pipeline.MetricsObserver {
	return func(snapshots []pipeline.StageSnapshot) {
		now := time.Now()
		rows := make([]store.StageMetricsSnapshot, len(snapshots))

		for i, snap := range snapshots {
			rows[i] = store.StageMetricsSnapshot{
				Pipeline:         pipelineName,
				Stage:            snap.Stage,
				SampledAt:        now,
				ItemsIn:          snap.ItemsIn,
				ItemsOut:         snap.ItemsOut,
				ItemsErrored:     snap.ItemsErrored,
				ItemsRetried:     snap.ItemsRetried,
				ErrorRate:        snap.ErrorRate,
				ThroughputPerSec: snap.ThroughputPerSec,
				LatencyP50Ms:     float64(snap.LatencyP50.Milliseconds()),
				LatencyP95Ms:     float64(snap.LatencyP95.Milliseconds()),
				LatencyP99Ms:     float64(snap.LatencyP99.Milliseconds()),
				QueueDepth:       snap.QueueDepth,
				QueueUtilization: snap.QueueUtilization,
			}
		}

		if err := s.SavePipelineMetrics(context.Background(), rows); err != nil {
			level.Warn(logger).Log("msg", "failed to persist pipeline metrics", "pipeline", pipelineName, "err", err)
		}
	}
}
