package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pwkasay/gridcarbon/pkg/forecaster"
	"github.com/pwkasay/gridcarbon/pkg/fuel"
	"github.com/pwkasay/gridcarbon/pkg/gcerrors"
	"github.com/pwkasay/gridcarbon/pkg/store"
	"github.com/pwkasay/gridcarbon/pkg/weather"
)

func testLogger() log.Logger { return log.NewLogfmtLogger(io.Discard) }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(t.TempDir()+"/gridcarbon.db", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

type fakeFuelFetcher struct {
	mixes []*fuel.Mix
	err   error
}

func (f *fakeFuelFetcher) FetchDay(_ context.Context, _ time.Time) ([]*fuel.Mix, error) {
	return f.mixes, f.err
}

type fakeWeatherFetcher struct {
	snapshots []weather.Snapshot
	err       error
}

func (f *fakeWeatherFetcher) FetchForecast(_ context.Context, _ int) ([]weather.Snapshot, error) {
	return f.snapshots, f.err
}

func (f *fakeWeatherFetcher) FetchHistorical(_ context.Context, _, _ time.Time) ([]weather.Snapshot, error) {
	return f.snapshots, f.err
}

func sampleMix(ts time.Time) *fuel.Mix {
	return fuel.New(ts, []fuel.Generation{
		{Category: fuel.NaturalGas, GenerationMW: 100},
		{Category: fuel.Wind, GenerationMW: 50},
		{Category: fuel.Nuclear, GenerationMW: 200},
	})
}

func TestCurrentIntensity_PrefersLiveFetch(t *testing.T) {
	s := newTestStore(t)
	fuelFetcher := &fakeFuelFetcher{mixes: []*fuel.Mix{sampleMix(time.Now())}}

	svc := New(s, fuelFetcher, nil, forecaster.NewEngine(s, testLogger()), testLogger())

	result, err := svc.CurrentIntensity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourceLive, result.Source)
	assert.Len(t, result.Breakdown, 3)
}

func TestCurrentIntensity_FallsBackToStoreWhenLiveUnavailable(t *testing.T) {
	s := newTestStore(t)

	mix := sampleMix(time.Now().Add(-time.Hour))
	require.NoError(t, s.SaveFuelMix(context.Background(), mix))

	fuelFetcher := &fakeFuelFetcher{mixes: nil}

	svc := New(s, fuelFetcher, nil, forecaster.NewEngine(s, testLogger()), testLogger())

	result, err := svc.CurrentIntensity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourceStored, result.Source)
}

func TestCurrentIntensity_NoDataAnywhereFails(t *testing.T) {
	s := newTestStore(t)
	svc := New(s, &fakeFuelFetcher{}, nil, forecaster.NewEngine(s, testLogger()), testLogger())

	_, err := svc.CurrentIntensity(context.Background())
	require.Error(t, err)

	var insufficient *gcerrors.InsufficientHistoricalDataError
	assert.ErrorAs(t, err, &insufficient)
}

func TestForecast_RejectsOutOfRangeHours(t *testing.T) {
	s := newTestStore(t)
	svc := New(s, nil, nil, forecaster.NewEngine(s, testLogger()), testLogger())

	_, err := svc.Forecast(context.Background(), 0, 4)
	require.Error(t, err)

	var invalid *gcerrors.InvalidDateRangeError
	assert.ErrorAs(t, err, &invalid)

	_, err = svc.Forecast(context.Background(), 49, 4)
	require.Error(t, err)
	assert.ErrorAs(t, err, &invalid)
}

func TestForecast_RejectsOutOfRangeWindow(t *testing.T) {
	s := newTestStore(t)
	svc := New(s, nil, nil, forecaster.NewEngine(s, testLogger()), testLogger())

	_, err := svc.Forecast(context.Background(), 24, 13)
	require.Error(t, err)

	_, err = svc.Forecast(context.Background(), 24, 0)
	require.Error(t, err)
}

func TestForecast_WindowExceedsHoursIsRejected(t *testing.T) {
	s := newTestStore(t)
	svc := New(s, nil, nil, forecaster.NewEngine(s, testLogger()), testLogger())

	_, err := svc.Forecast(context.Background(), 3, 6)
	require.Error(t, err)

	var invalid *gcerrors.InvalidDateRangeError
	assert.ErrorAs(t, err, &invalid)
}

func TestForecast_ReturnsCleanestAndDirtiestWindows(t *testing.T) {
	s := newTestStore(t)
	weatherFetcher := &fakeWeatherFetcher{}

	svc := New(s, nil, weatherFetcher, forecaster.NewEngine(s, testLogger()), testLogger())

	result, err := svc.Forecast(context.Background(), 24, 4)
	require.NoError(t, err)
	assert.Len(t, result.Forecast.Hourly, 24)
	assert.True(t, result.Cleanest.Average.GramsCO2PerKWh <= result.Dirtiest.Average.GramsCO2PerKWh)
}

func TestForecast_ContinuesWhenWeatherFetchFails(t *testing.T) {
	s := newTestStore(t)
	weatherFetcher := &fakeWeatherFetcher{err: errors.New("open-meteo down")}

	svc := New(s, nil, weatherFetcher, forecaster.NewEngine(s, testLogger()), testLogger())

	result, err := svc.Forecast(context.Background(), 12, 3)
	require.NoError(t, err)
	assert.Len(t, result.Forecast.Hourly, 12)
}

func TestHistory_RejectsOutOfRangeHours(t *testing.T) {
	s := newTestStore(t)
	svc := New(s, nil, nil, forecaster.NewEngine(s, testLogger()), testLogger())

	_, err := svc.History(context.Background(), 721)
	require.Error(t, err)

	_, err = svc.History(context.Background(), 0)
	require.Error(t, err)
}

func TestHistory_ReturnsAscendingRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveFuelMix(ctx, sampleMix(time.Now().Add(-2*time.Hour))))
	require.NoError(t, s.SaveFuelMix(ctx, sampleMix(time.Now().Add(-1*time.Hour))))

	svc := New(s, nil, nil, forecaster.NewEngine(s, testLogger()), testLogger())

	rows, err := svc.History(ctx, 6)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Timestamp.Before(rows[1].Timestamp))
}

func TestEmissionFactors_ReturnsFullRegistry(t *testing.T) {
	s := newTestStore(t)
	svc := New(s, nil, nil, forecaster.NewEngine(s, testLogger()), testLogger())

	factors := svc.EmissionFactors()
	assert.Len(t, factors, len(fuel.AllCategories))
}

func TestAdminStatus_FiltersByEventType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.LogEvent(ctx, "stage_start", "validate", "started", nil)
	s.LogEvent(ctx, "stage_error", "validate", "boom", nil)

	svc := New(s, nil, nil, forecaster.NewEngine(s, testLogger()), testLogger())

	status, err := svc.AdminStatus(ctx, "stage_error")
	require.NoError(t, err)
	require.Len(t, status.RecentEvents, 1)
	assert.Equal(t, "stage_error", status.RecentEvents[0].EventType)
}
