package store

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pwkasay/gridcarbon/pkg/fuel"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "gridcarbon.db")
	s, err := Open(dbPath, log.NewLogfmtLogger(io.Discard))
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func sampleMix(ts time.Time) *fuel.Mix {
	return fuel.New(ts, []fuel.Generation{
		{Category: fuel.NaturalGas, GenerationMW: 5000},
		{Category: fuel.Nuclear, GenerationMW: 3000},
		{Category: fuel.Hydro, GenerationMW: 2000},
		{Category: fuel.Wind, GenerationMW: 500},
	})
}

// Invariant 6 — idempotence of save_fuel_mix.
func TestStore_Invariant_SaveFuelMixIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ts := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	mix := sampleMix(ts)

	require.NoError(t, s.SaveFuelMix(ctx, mix))
	countAfterFirst, err := s.RecordCount(ctx)
	require.NoError(t, err)

	require.NoError(t, s.SaveFuelMix(ctx, mix))
	countAfterSecond, err := s.RecordCount(ctx)
	require.NoError(t, err)

	assert.Equal(t, countAfterFirst, countAfterSecond)
	assert.Equal(t, 1, countAfterSecond)

	latest, err := s.GetLatestIntensity(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	ci, err := mix.CarbonIntensity()
	require.NoError(t, err)
	assert.InDelta(t, ci.GramsCO2PerKWh, latest.GramsCO2PerKWh, 1e-6)
}

func TestStore_GetLatestIntensity_Empty(t *testing.T) {
	s := newTestStore(t)

	latest, err := s.GetLatestIntensity(context.Background())
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestStore_HourlyAverages_DayOfWeekTranslation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// 2024-06-17 is a Monday (0 in the 0=Monday convention).
	monday := time.Date(2024, 6, 17, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveFuelMix(ctx, sampleMix(monday)))

	dow := 0
	averages, err := s.HourlyAverages(ctx, nil, &dow)
	require.NoError(t, err)
	require.Contains(t, averages, 9)

	// A different day-of-week filter should not match this row.
	otherDOW := 2
	averages, err = s.HourlyAverages(ctx, nil, &otherDOW)
	require.NoError(t, err)
	assert.NotContains(t, averages, 9)
}

func TestStore_LogEvent_And_GetRecentEvents(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.LogEvent(ctx, "validate_failure", "validate", "zero/negative generation", map[string]any{"attempts": 1})

	events, err := s.GetRecentEvents(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "validate_failure", events[0].EventType)

	filtered, err := s.GetRecentEvents(ctx, 10, "something_else")
	require.NoError(t, err)
	assert.Empty(t, filtered)
}

func TestStore_IngestionStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	status, err := s.GetIngestionStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.IsActive)
	assert.Equal(t, 0, status.RecordCount)

	require.NoError(t, s.SaveFuelMix(ctx, sampleMix(time.Now())))

	status, err = s.GetIngestionStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.IsActive)
	assert.Equal(t, 1, status.RecordCount)
}

func TestStore_PipelineMetricsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	snap := StageMetricsSnapshot{
		Pipeline:         "gridcarbon-ingest",
		Stage:            "persist",
		SampledAt:        time.Now(),
		ItemsIn:          10,
		ItemsOut:         9,
		ItemsErrored:     1,
		QueueDepth:       3,
		QueueUtilization: 0.19,
	}

	require.NoError(t, s.SavePipelineMetrics(ctx, []StageMetricsSnapshot{snap}))

	got, err := s.GetPipelineMetrics(ctx, "gridcarbon-ingest", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "persist", got[0].Stage)
	assert.Equal(t, int64(10), got[0].ItemsIn)
}
