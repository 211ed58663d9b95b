// Package service implements the downstream read operations spec.md §6
// describes: current intensity, forecast (plus cleanest/dirtiest window),
// history, emission factors, and admin status. It is the collaborator
// boundary a REST façade or CLI sits in front of — this package owns no
// transport, only the domain-level read operations themselves.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/pwkasay/gridcarbon/internal/common"
	"github.com/pwkasay/gridcarbon/pkg/forecaster"
	"github.com/pwkasay/gridcarbon/pkg/forecastmodel"
	"github.com/pwkasay/gridcarbon/pkg/fuel"
	"github.com/pwkasay/gridcarbon/pkg/gcerrors"
	"github.com/pwkasay/gridcarbon/pkg/intensity"
	"github.com/pwkasay/gridcarbon/pkg/nyiso"
	"github.com/pwkasay/gridcarbon/pkg/openweather"
	"github.com/pwkasay/gridcarbon/pkg/store"
	"github.com/pwkasay/gridcarbon/pkg/weather"
)

// Source tags where a CurrentIntensity result came from.
type Source string

const (
	SourceLive   Source = "live"
	SourceStored Source = "stored"
)

// CurrentIntensityResult is the current-intensity read operation's
// response shape: latest intensity plus its classification and fuel
// breakdown.
type CurrentIntensityResult struct {
	Intensity      intensity.Intensity
	Category       intensity.Category
	Label          string
	Recommendation string
	Breakdown      []fuel.BreakdownEntry
	Source         Source
}

// Service bundles the collaborators the read operations need: a store for
// history/status, live fetchers for the "freshest possible" current-intensity
// path, and a forecaster engine.
type Service struct {
	Store          *store.Store
	FuelFetcher    nyiso.Fetcher
	WeatherFetcher openweather.Fetcher
	Engine         *forecaster.Engine
	Logger         log.Logger
	Clock          func() time.Time
}

// New builds a Service over its collaborators.
func New(s *store.Store, fuelFetcher nyiso.Fetcher, weatherFetcher openweather.Fetcher, engine *forecaster.Engine, logger log.Logger) *Service {
	return &Service{
		Store:          s,
		FuelFetcher:    fuelFetcher,
		WeatherFetcher: weatherFetcher,
		Engine:         engine,
		Logger:         logger,
		Clock:          time.Now,
	}
}

// CurrentIntensity returns the latest carbon intensity, preferring a live
// NYISO fetch and falling back to the store when the live fetch is
// unavailable or returns no generation. Fails with
// InsufficientHistoricalDataError when neither source has anything.
func (s *Service) CurrentIntensity(ctx context.Context) (*CurrentIntensityResult, error) {
	defer common.TimeTrack(time.Now(), "current intensity", s.Logger)

	if s.FuelFetcher != nil {
		mix, err := nyiso.FetchLatest(ctx, s.FuelFetcher, s.Clock())
		if err != nil {
			level.Warn(s.Logger).Log("msg", "live nyiso fetch failed for current intensity, falling back to store", "err", err)
		} else if mix != nil && mix.HasIntensity() {
			if ci, err := mix.CarbonIntensity(); err == nil {
				return &CurrentIntensityResult{
					Intensity:      ci,
					Category:       ci.Category(),
					Label:          ci.Label(),
					Recommendation: ci.Recommendation(),
					Breakdown:      mix.FuelBreakdown(),
					Source:         SourceLive,
				}, nil
			}
		}
	}

	record, err := s.Store.GetLatestIntensity(ctx)
	if err != nil {
		return nil, err
	}

	if record == nil {
		return nil, &gcerrors.InsufficientHistoricalDataError{Reason: "no live or stored carbon intensity data available"}
	}

	ci := intensity.At(record.GramsCO2PerKWh, record.Timestamp)

	breakdown := make([]fuel.BreakdownEntry, 0, len(record.FuelBreakdown))
	for name, mw := range record.FuelBreakdown {
		cat, err := fuel.ParseCategory(name)
		if err != nil {
			continue
		}

		breakdown = append(breakdown, fuel.BreakdownEntry{Category: cat, GenerationMW: mw})
	}

	return &CurrentIntensityResult{
		Intensity:      ci,
		Category:       ci.Category(),
		Label:          ci.Label(),
		Recommendation: ci.Recommendation(),
		Breakdown:      breakdown,
		Source:         SourceStored,
	}, nil
}

// ForecastResult bundles a generated Forecast with its requested windows.
type ForecastResult struct {
	Forecast *forecastmodel.Forecast
	Cleanest forecastmodel.Window
	Dirtiest forecastmodel.Window
}

const (
	minForecastHours = 1
	maxForecastHours = 48
	minWindowHours   = 1
	maxWindowHours   = 12
)

// weatherForecastDays is how many days of Open-Meteo forecast to request to
// cover up to maxForecastHours ahead.
const weatherForecastDays = 3

// Forecast validates hours/windowHours per spec.md §6, generates a
// forecast via s.Engine, and returns it with both the cleanest and
// dirtiest windowHours-long windows.
func (s *Service) Forecast(ctx context.Context, hours, windowHours int) (*ForecastResult, error) {
	defer common.TimeTrack(time.Now(), "forecast", s.Logger)

	if hours < minForecastHours || hours > maxForecastHours {
		return nil, &gcerrors.InvalidDateRangeError{Reason: fmt.Sprintf("hours must be in [%d,%d], got %d", minForecastHours, maxForecastHours, hours)}
	}

	if windowHours < minWindowHours || windowHours > maxWindowHours {
		return nil, &gcerrors.InvalidDateRangeError{Reason: fmt.Sprintf("window_hours must be in [%d,%d], got %d", minWindowHours, maxWindowHours, windowHours)}
	}

	weatherSnapshots, err := s.forecastWeather(ctx)
	if err != nil {
		level.Warn(s.Logger).Log("msg", "weather forecast fetch failed, continuing without weather correction", "err", err)
	}

	var current *intensity.Intensity

	if cur, err := s.CurrentIntensity(ctx); err == nil {
		current = &cur.Intensity
	}

	forecast, err := s.Engine.Forecast(ctx, hours, weatherSnapshots, current)
	if err != nil {
		return nil, err
	}

	cleanest, ok := forecast.CleanestWindow(windowHours)
	if !ok {
		return nil, &gcerrors.InvalidDateRangeError{Reason: fmt.Sprintf("window_hours %d exceeds forecast length %d", windowHours, len(forecast.Hourly))}
	}

	dirtiest, _ := forecast.DirtiestWindow(windowHours)

	return &ForecastResult{Forecast: forecast, Cleanest: cleanest, Dirtiest: dirtiest}, nil
}

func (s *Service) forecastWeather(ctx context.Context) ([]weather.Snapshot, error) {
	if s.WeatherFetcher == nil {
		return nil, nil
	}

	return s.WeatherFetcher.FetchForecast(ctx, weatherForecastDays)
}

const (
	minHistoryHours = 1
	maxHistoryHours = 720
)

// History returns stored intensity rows within the last hours, ascending.
func (s *Service) History(ctx context.Context, hours int) ([]store.IntensityRecord, error) {
	if hours < minHistoryHours || hours > maxHistoryHours {
		return nil, &gcerrors.InvalidDateRangeError{Reason: fmt.Sprintf("hours must be in [%d,%d], got %d", minHistoryHours, maxHistoryHours, hours)}
	}

	return s.Store.GetCarbonIntensity(ctx, hours)
}

// EmissionFactors returns the fixed emission-factor registry.
func (s *Service) EmissionFactors() []fuel.FactorsSummary {
	return fuel.AllFactorsSummary()
}

// AdminStatus returns derived ingestion status and recent events, optionally
// filtered by event type.
func (s *Service) AdminStatus(ctx context.Context, eventTypeFilter string) (*store.IngestionStatus, error) {
	if eventTypeFilter == "" {
		return s.Store.GetIngestionStatus(ctx)
	}

	latest, err := s.Store.GetLatestIntensity(ctx)
	if err != nil {
		return nil, err
	}

	count, err := s.Store.RecordCount(ctx)
	if err != nil {
		return nil, err
	}

	events, err := s.Store.GetRecentEvents(ctx, 20, eventTypeFilter)
	if err != nil {
		return nil, err
	}

	status := &store.IngestionStatus{RecordCount: count, RecentEvents: events}

	if latest != nil {
		ts := latest.Timestamp
		status.LatestTimestamp = &ts
		status.IsActive = s.Clock().Sub(ts) <= 10*time.Minute
	}

	return status, nil
}
