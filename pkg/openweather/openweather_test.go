package openweather

import (
	"io"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSnapshots_UnitConversion(t *testing.T) {
	var resp hourlyResponse
	resp.Hourly.Time = []string{"2024-01-15T00:00", "2024-01-15T01:00"}
	resp.Hourly.Temperature2m = []float64{0, 20}  // 0C -> 32F, 20C -> 68F
	resp.Hourly.WindSpeed80m = []float64{10, 0}   // 10 km/h -> 6.2 mph
	resp.Hourly.CloudCover = []float64{50, 100}

	logger := log.NewLogfmtLogger(io.Discard)
	snaps := toSnapshots(resp, logger)

	require.Len(t, snaps, 2)
	assert.InDelta(t, 32.0, snaps[0].TemperatureF, 0.1)
	assert.InDelta(t, 6.2, snaps[0].WindSpeed80mMPH, 0.1)
	assert.InDelta(t, 50.0, snaps[0].CloudCoverPct, 0.1)

	assert.InDelta(t, 68.0, snaps[1].TemperatureF, 0.1)
}

func TestToSnapshots_SkipsUnparseableTimestamp(t *testing.T) {
	var resp hourlyResponse
	resp.Hourly.Time = []string{"not-a-timestamp", "2024-01-15T01:00"}
	resp.Hourly.Temperature2m = []float64{0, 0}

	logger := log.NewLogfmtLogger(io.Discard)
	snaps := toSnapshots(resp, logger)

	require.Len(t, snaps, 1)
}

func TestToSnapshots_ShortSeriesDefaultToZero(t *testing.T) {
	var resp hourlyResponse
	resp.Hourly.Time = []string{"2024-01-15T00:00"}
	// Temperature2m/WindSpeed80m/CloudCover left empty — valueAt must not panic.

	logger := log.NewLogfmtLogger(io.Discard)
	snaps := toSnapshots(resp, logger)

	require.Len(t, snaps, 1)
	assert.InDelta(t, 32.0, snaps[0].TemperatureF, 0.1) // 0C -> 32F default
}
