// Package ingest wires pkg/nyiso and pkg/openweather sources through
// pkg/pipeline's validate/persist stages into pkg/store, for both
// one-shot (seed) and continuous (poll) runs, per spec.md §4.D/§4.E.
package ingest

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/pwkasay/gridcarbon/pkg/fuel"
	"github.com/pwkasay/gridcarbon/pkg/nyiso"
	"github.com/pwkasay/gridcarbon/pkg/openweather"
	"github.com/pwkasay/gridcarbon/pkg/pipeline"
	"github.com/pwkasay/gridcarbon/pkg/weather"
)

// FuelMixSeedSource walks [start, end] day by day, fetching and emitting
// every fuel mix snapshot NYISO published, rate-limited between day
// fetches.
func FuelMixSeedSource(f nyiso.Fetcher, start, end time.Time, limiter *rate.Limiter) pipeline.SourceFunc[*fuel.Mix] {
	return func(ctx context.Context, out chan<- *fuel.Mix) error {
		for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
			mixes, err := f.FetchDay(ctx, day)
			if err != nil {
				// Unavailable upstream days are skipped, not fatal — one
				// bad day shouldn't abort an otherwise-successful seed.
				mixes = nil
			}

			for _, mix := range mixes {
				select {
				case out <- mix:
				case <-ctx.Done():
					return nil
				}
			}

			// Be polite to NYISO between day requests.
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return nil
				}
			}
		}

		return nil
	}
}

// FuelMixContinuousSource polls NYISO for the latest fuel mix snapshot
// every pollInterval, emitting only snapshots newer than the last one seen.
func FuelMixContinuousSource(f nyiso.Fetcher, pollInterval time.Duration, clock func() time.Time) pipeline.SourceFunc[*fuel.Mix] {
	if clock == nil {
		clock = time.Now
	}

	return func(ctx context.Context, out chan<- *fuel.Mix) error {
		var lastSeen time.Time

		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		poll := func() {
			mix, err := nyiso.FetchLatest(ctx, f, clock())
			if err != nil || mix == nil {
				return
			}

			if !mix.Timestamp.After(lastSeen) {
				return
			}

			lastSeen = mix.Timestamp

			select {
			case out <- mix:
			case <-ctx.Done():
			}
		}

		poll()

		for {
			select {
			case <-ticker.C:
				poll()
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// WeatherSeedSource fetches historical weather for [start, end] in one
// request and emits each hourly snapshot.
func WeatherSeedSource(f openweather.Fetcher, start, end time.Time) pipeline.SourceFunc[weather.Snapshot] {
	return func(ctx context.Context, out chan<- weather.Snapshot) error {
		snapshots, err := f.FetchHistorical(ctx, start, end)
		if err != nil {
			return err
		}

		for _, snap := range snapshots {
			select {
			case out <- snap:
			case <-ctx.Done():
				return nil
			}
		}

		return nil
	}
}

// WeatherContinuousSource polls the Open-Meteo forecast endpoint every
// pollInterval (hourly by default per spec.md §6) and emits every returned
// snapshot; persistence is idempotent so re-emitting already-seen hours is
// harmless.
func WeatherContinuousSource(f openweather.Fetcher, pollInterval time.Duration, forecastDays int) pipeline.SourceFunc[weather.Snapshot] {
	return func(ctx context.Context, out chan<- weather.Snapshot) error {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		poll := func() {
			snapshots, err := f.FetchForecast(ctx, forecastDays)
			if err != nil {
				return
			}

			for _, snap := range snapshots {
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			}
		}

		poll()

		for {
			select {
			case <-ticker.C:
				poll()
			case <-ctx.Done():
				return nil
			}
		}
	}
}
