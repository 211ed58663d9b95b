package nyiso

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pwkasay/gridcarbon/pkg/fuel"
	"github.com/pwkasay/gridcarbon/pkg/gcerrors"
)

const sampleCSV = `Time Stamp,Time Zone,Fuel Category,Gen MW
01/15/2024 00:05:00,EST,Dual Fuel,1200.5
01/15/2024 00:05:00,EST,Natural Gas,4300.2
01/15/2024 00:05:00,EST,Nuclear,3100.0
01/15/2024 00:05:00,EST,Hydro,1900.1
01/15/2024 00:05:00,EST,Other Fossil,150.0
01/15/2024 00:10:00,EST,Natural Gas,4400.0
01/15/2024 00:10:00,EST,Nuclear,3100.0
`

func TestParseCSV_GroupsByTimestamp(t *testing.T) {
	logger := log.NewLogfmtLogger(io.Discard)

	mixes, err := parseCSV(sampleCSV, logger)
	require.NoError(t, err)
	require.Len(t, mixes, 2)

	first := mixes[0]
	assert.Len(t, first.FuelBreakdown(), 5)
	assert.Equal(t, 2024, first.Timestamp.Year())
	assert.Equal(t, time.Month(1), first.Timestamp.Month())
	assert.Equal(t, 15, first.Timestamp.Day())

	second := mixes[1]
	assert.Len(t, second.FuelBreakdown(), 2)
}

func TestParseCSV_SkipsMalformedRows(t *testing.T) {
	logger := log.NewLogfmtLogger(io.Discard)

	csvText := `Time Stamp,Time Zone,Fuel Category,Gen MW
01/15/2024 00:05:00,EST,Made Up Fuel,100
01/15/2024 00:05:00,EST,Wind,not-a-number
,EST,Wind,500
`

	mixes, err := parseCSV(csvText, logger)
	require.NoError(t, err)
	assert.Empty(t, mixes)
}

func TestParseCSV_Empty(t *testing.T) {
	logger := log.NewLogfmtLogger(io.Discard)

	mixes, err := parseCSV("Time Stamp,Time Zone,Fuel Category,Gen MW\n", logger)
	require.NoError(t, err)
	assert.Empty(t, mixes)
}

type stubFetcher struct {
	mixesByDay map[string][]*fuel.Mix
	errByDay   map[string]error
}

func (s *stubFetcher) FetchDay(_ context.Context, day time.Time) ([]*fuel.Mix, error) {
	key := day.Format("20060102")
	if err, ok := s.errByDay[key]; ok {
		return nil, err
	}

	return s.mixesByDay[key], nil
}

func TestFetchLatest_FallsBackToYesterday(t *testing.T) {
	now := time.Date(2024, 1, 15, 0, 3, 0, 0, time.UTC)
	yesterdayMix := fuel.New(now.AddDate(0, 0, -1), []fuel.Generation{{Category: fuel.NaturalGas, GenerationMW: 100}})

	f := &stubFetcher{
		mixesByDay: map[string][]*fuel.Mix{
			"20240114": {yesterdayMix},
		},
	}

	got, err := FetchLatest(context.Background(), f, now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, yesterdayMix.Timestamp, got.Timestamp)
}

func TestFetchLatest_NoDataEitherDay(t *testing.T) {
	now := time.Date(2024, 1, 15, 0, 3, 0, 0, time.UTC)
	f := &stubFetcher{mixesByDay: map[string][]*fuel.Mix{}}

	got, err := FetchLatest(context.Background(), f, now)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFetchLatest_UnavailableSkipsToNextDay(t *testing.T) {
	now := time.Date(2024, 1, 15, 0, 3, 0, 0, time.UTC)
	yesterdayMix := fuel.New(now.AddDate(0, 0, -1), []fuel.Generation{{Category: fuel.Wind, GenerationMW: 50}})

	f := &stubFetcher{
		errByDay: map[string]error{
			"20240115": &gcerrors.NYISOFetchError{Err: assert.AnError},
		},
		mixesByDay: map[string][]*fuel.Mix{
			"20240114": {yesterdayMix},
		},
	}

	got, err := FetchLatest(context.Background(), f, now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, yesterdayMix.Timestamp, got.Timestamp)
}
