package forecaster

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pwkasay/gridcarbon/pkg/intensity"
	"github.com/pwkasay/gridcarbon/pkg/weather"
)

// emptyStore has no historical data — every lookup falls back to the
// typical profile, matching Scenario 5's setup.
type emptyStore struct{}

func (emptyStore) GetHourlyAverages(ctx context.Context, month, dow int) (map[int]float64, error) {
	return nil, nil
}

func testLogger() log.Logger { return log.NewLogfmtLogger(io.Discard) }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// Scenario 5 — Persistence blend.
func TestEngine_Scenario5_PersistenceBlend(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC) // a Monday
	eng := NewEngine(emptyStore{}, testLogger(), WithClock(fixedClock(now)))

	current := intensity.New(500)
	f, err := eng.Forecast(context.Background(), 24, nil, &current)
	require.NoError(t, err)

	assert.InDelta(t, 500, f.Hourly[0].Predicted.GramsCO2PerKWh, 1e-9)
	assert.LessOrEqual(t, f.Hourly[23].Predicted.GramsCO2PerKWh, f.Hourly[0].Predicted.GramsCO2PerKWh)

	for k := 0; k < PersistenceHours; k++ {
		baseline := fallbackBaseline(int(now.Add(time.Duration(k)*time.Hour).Month()),
			goWeekdayToMonday0(now.Add(time.Duration(k)*time.Hour).Weekday()),
			now.Add(time.Duration(k)*time.Hour).Hour())
		baseline = maxFloat(baseline, PhysicalFloorGramsCO2PerKWh)

		want := baseline*float64(k)/float64(PersistenceHours) + 500*float64(PersistenceHours-k)/float64(PersistenceHours)
		got := f.Hourly[k].Predicted.GramsCO2PerKWh
		assert.InDelta(t, want, got, 1e-6, "hour %d", k)
	}
}

// Invariant 7 — persistence blend boundary conditions.
func TestEngine_Invariant_PersistenceBoundary(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	eng := NewEngine(emptyStore{}, testLogger(), WithClock(fixedClock(now)))

	current := intensity.New(500)
	withBlend, err := eng.Forecast(context.Background(), 24, nil, &current)
	require.NoError(t, err)

	withoutBlend, err := eng.Forecast(context.Background(), 24, nil, nil)
	require.NoError(t, err)

	assert.InDelta(t, 500, withBlend.Hourly[0].Predicted.GramsCO2PerKWh, 1e-9)

	for k := PersistenceHours; k < 24; k++ {
		assert.InDelta(t,
			withoutBlend.Hourly[k].Predicted.GramsCO2PerKWh,
			withBlend.Hourly[k].Predicted.GramsCO2PerKWh,
			1e-9, "hour %d should equal pure baseline once h>=PersistenceHours", k)
	}
}

// Invariant 9 — weather correction monotonicity.
func TestEngine_Invariant_WeatherCorrectionMonotone(t *testing.T) {
	base := 300.0

	departures := []float64{0, 5, 10, 20}
	prev := applyWeatherCorrection(base, weather.Snapshot{TemperatureF: 70, WindSpeed80mMPH: 5})

	for _, d := range departures[1:] {
		w := weather.Snapshot{TemperatureF: 75 + d, WindSpeed80mMPH: 5}
		ci := applyWeatherCorrection(base, w)
		assert.GreaterOrEqual(t, ci, prev)
		prev = ci
	}

	winds := []float64{10, 15, 20, 30}
	prevWind := applyWeatherCorrection(base, weather.Snapshot{TemperatureF: 70, WindSpeed80mMPH: winds[0]})

	for _, mph := range winds[1:] {
		w := weather.Snapshot{TemperatureF: 70, WindSpeed80mMPH: mph}
		ci := applyWeatherCorrection(base, w)
		assert.LessOrEqual(t, ci, prevWind)
		prevWind = ci
	}
}

func TestEngine_ForecastHoursClampedTo48(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	eng := NewEngine(emptyStore{}, testLogger(), WithClock(fixedClock(now)))

	f, err := eng.Forecast(context.Background(), 96, nil, nil)
	require.NoError(t, err)
	assert.Len(t, f.Hourly, 48)
}

func TestEngine_ClearCache(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	eng := NewEngine(emptyStore{}, testLogger(), WithClock(fixedClock(now)))

	_, err := eng.Forecast(context.Background(), 24, nil, nil)
	require.NoError(t, err)
	assert.Greater(t, eng.cache.Len(), 0)

	eng.ClearCache()
	assert.Equal(t, 0, eng.cache.Len())
}
