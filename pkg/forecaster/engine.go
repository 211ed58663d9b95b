// Package forecaster implements the heuristic carbon-intensity forecaster:
// a baseline historical profile blended with weather correction and a
// short-horizon persistence blend, grounded on
// original_source/src/gridcarbon/forecaster/heuristic.py and (for the
// Engine/cache shape) elevated-systems-compute-gardener-scheduler's
// pkg/computegardener/forecast/engine.go.
package forecaster

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jellydator/ttlcache/v3"

	"github.com/pwkasay/gridcarbon/pkg/forecastmodel"
	"github.com/pwkasay/gridcarbon/pkg/intensity"
	"github.com/pwkasay/gridcarbon/pkg/weather"
)

// HistoricalProfileSource is the narrow slice of the store the forecaster
// depends on: hour-of-day averages for a given (month, day-of-week).
type HistoricalProfileSource interface {
	GetHourlyAverages(ctx context.Context, month, dayOfWeek int) (map[int]float64, error)
}

// profileKey is the (month, day-of-week) cache key — 0=Monday, matching
// the store's input convention.
type profileKey struct {
	Month     int
	DayOfWeek int
}

// Engine is the heuristic forecaster. Per §5 ("Shared resources"), an
// Engine's profile cache is private and not safe for concurrent forecast
// requests sharing the same instance without external serialization;
// callers either serialize access or construct one Engine per request.
type Engine struct {
	store            HistoricalProfileSource
	region           string
	logger           log.Logger
	clock            func() time.Time
	cache            *ttlcache.Cache[profileKey, map[int]float64]
	persistenceHours int
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithClock overrides the Engine's notion of "now" — used by tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithRegion overrides the forecast's region label (default "NYISO").
func WithRegion(region string) Option {
	return func(e *Engine) { e.region = region }
}

// WithPersistenceHours overrides the short-horizon persistence-blend window
// (default PersistenceHours), wiring internal/config's persistence_hours.
func WithPersistenceHours(hours int) Option {
	return func(e *Engine) {
		if hours > 0 {
			e.persistenceHours = hours
		}
	}
}

// profileCacheTTL bounds how long a (month, dow) baseline lookup is
// trusted before the next forecast call re-queries the store — long
// enough that a single multi-hour forecast run reuses it, short enough
// that a backfill followed by clear_cache-equivalent usage isn't required
// for freshness within a day.
const profileCacheTTL = 6 * time.Hour

// NewEngine constructs a forecaster Engine over store.
func NewEngine(store HistoricalProfileSource, logger log.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:            store,
		region:           "NYISO",
		logger:           logger,
		clock:            time.Now,
		cache:            ttlcache.New[profileKey, map[int]float64](ttlcache.WithTTL[profileKey, map[int]float64](profileCacheTTL)),
		persistenceHours: PersistenceHours,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// ClearCache invalidates every cached (month, dow) baseline profile —
// the Go analogue of the original's clear_cache(), intended to be called
// after a backfill seeds new historical data.
func (e *Engine) ClearCache() {
	e.cache.DeleteAll()
}

// Forecast generates a carbon-intensity forecast hours ahead (clamped to
// 48), optionally corrected by weather and blended with a current
// observed intensity for the short horizon.
func (e *Engine) Forecast(ctx context.Context, hours int, weatherPoints []weather.Snapshot, current *intensity.Intensity) (*forecastmodel.Forecast, error) {
	if hours > 48 {
		hours = 48
	}

	if hours < 1 {
		hours = 1
	}

	now := e.clock()

	weatherByHour := make(map[int]weather.Snapshot, len(weatherPoints))

	for _, w := range weatherPoints {
		offset := int(w.Timestamp.Sub(now).Hours())
		if offset >= 0 && offset < hours {
			weatherByHour[offset] = w
		}
	}

	hourly := make([]forecastmodel.HourlyForecast, 0, hours)

	for h := 0; h < hours; h++ {
		targetTime := now.Add(time.Duration(h) * time.Hour)

		baseline, err := e.baseline(ctx, targetTime)
		if err != nil {
			return nil, err
		}

		predicted := baseline

		if w, ok := weatherByHour[h]; ok {
			predicted = applyWeatherCorrection(predicted, w)
		}

		if current != nil && h < e.persistenceHours {
			blendWeight := 1 - float64(h)/float64(e.persistenceHours)
			predicted = predicted*(1-blendWeight) + current.GramsCO2PerKWh*blendWeight
		}

		predicted = maxFloat(predicted, PhysicalFloorGramsCO2PerKWh)

		hourly = append(hourly, forecastmodel.HourlyForecast{
			Hour:       targetTime.Truncate(time.Hour),
			Predicted:  intensity.At(predicted, targetTime),
			Confidence: confidenceFor(h),
		})
	}

	return &forecastmodel.Forecast{
		GeneratedAt: now,
		Region:      e.region,
		Hourly:      hourly,
	}, nil
}

// baseline returns Step 1's baseline value for the hour of targetTime,
// consulting the cached (month, dow) profile or falling back to the
// typical profile.
func (e *Engine) baseline(ctx context.Context, targetTime time.Time) (float64, error) {
	month := int(targetTime.Month())
	dow := goWeekdayToMonday0(targetTime.Weekday())
	hour := targetTime.Hour()

	key := profileKey{Month: month, DayOfWeek: dow}

	item := e.cache.Get(key)

	var profile map[int]float64

	if item != nil {
		profile = item.Value()
	} else {
		avgs, err := e.store.GetHourlyAverages(ctx, month, dow)
		if err != nil {
			level.Warn(e.logger).Log("msg", "hourly average lookup failed, using fallback profile", "err", err)
			avgs = nil
		}

		if len(avgs) >= minHistoricalHoursCovered {
			profile = avgs
		} else {
			profile = map[int]float64{}
		}

		e.cache.Set(key, profile, ttlcache.DefaultTTL)
	}

	if v, ok := profile[hour]; ok {
		return v, nil
	}

	return fallbackBaseline(month, dow, hour), nil
}

// applyWeatherCorrection is Step 2.
func applyWeatherCorrection(baseCI float64, w weather.Snapshot) float64 {
	corrected := baseCI

	tempDeparture := w.TemperatureDepartureFromComfort()
	corrected *= 1 + tempDeparture*TempCorrectionPerDegree

	windExcess := maxFloat(0, w.WindSpeed80mMPH-WindThresholdMPH)
	corrected *= 1 - windExcess*WindCorrectionPerMPH

	return corrected
}

func confidenceFor(h int) forecastmodel.Confidence {
	switch {
	case h < 6:
		return forecastmodel.High
	case h < 18:
		return forecastmodel.Medium
	default:
		return forecastmodel.Low
	}
}

// goWeekdayToMonday0 converts Go's time.Weekday (0=Sunday) to the
// 0=Monday convention spec.md standardizes on.
func goWeekdayToMonday0(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}

	return b
}
