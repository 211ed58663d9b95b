package forecastmodel

import (
	"testing"
	"time"

	"github.com/pwkasay/gridcarbon/pkg/intensity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildForecast(values []float64) *Forecast {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	hourly := make([]HourlyForecast, len(values))

	for i, v := range values {
		hourly[i] = HourlyForecast{
			Hour:      base.Add(time.Duration(i) * time.Hour),
			Predicted: intensity.New(v),
		}
	}

	return &Forecast{GeneratedAt: base, Region: "NYISO", Hourly: hourly}
}

// Scenario 4 — Window search.
func TestForecast_Scenario4_WindowSearch(t *testing.T) {
	values := make([]float64, 24)
	for h := 0; h < 24; h++ {
		diff := h - 3
		if diff < 0 {
			diff = -diff
		}

		values[h] = 200 + 150*float64(diff)/15
	}

	f := buildForecast(values)

	cleanest, ok := f.CleanestWindow(3)
	require.True(t, ok)
	// Hours 2-4 (start 2) straddle the minimum at hour 3 and have the lowest mean.
	assert.Equal(t, 2, cleanest.Start.Hour(), "cleanest window should be centred on hour 3")

	dirtiest, ok := f.DirtiestWindow(3)
	require.True(t, ok)
	// |h-3| is maximized at h=23 (diff=20) vs h=0 (diff=3); window of 3 hours
	// ending near the far boundary dominates.
	assert.GreaterOrEqual(t, dirtiest.Start.Hour(), 20)
}

// Invariant 5 — cleanest.average <= dirtiest.average, equality iff uniform.
func TestForecast_Invariant_CleanestLEDirtiest(t *testing.T) {
	f := buildForecast([]float64{300, 100, 450, 200, 150, 500, 120})

	for k := 1; k <= len(f.Hourly); k++ {
		c, ok1 := f.CleanestWindow(k)
		d, ok2 := f.DirtiestWindow(k)
		require.True(t, ok1)
		require.True(t, ok2)
		assert.True(t, c.Average.LessOrEqual(d.Average), "k=%d", k)
	}

	uniform := buildForecast([]float64{200, 200, 200, 200})
	c, _ := uniform.CleanestWindow(2)
	d, _ := uniform.DirtiestWindow(2)
	assert.InDelta(t, c.Average.GramsCO2PerKWh, d.Average.GramsCO2PerKWh, 1e-9)
}

func TestForecast_Window_KTooLarge(t *testing.T) {
	f := buildForecast([]float64{100, 200, 300})
	_, ok := f.CleanestWindow(4)
	assert.False(t, ok)
}
