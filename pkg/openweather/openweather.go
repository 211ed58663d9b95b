// Package openweather fetches hourly weather observations from Open-Meteo
// (no API key required, 10,000 requests/day free tier) for the NYC area,
// the region NYISO's fuel mix serves.
package openweather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/pwkasay/gridcarbon/internal/common"
	"github.com/pwkasay/gridcarbon/pkg/gcerrors"
	"github.com/pwkasay/gridcarbon/pkg/weather"
)

const (
	forecastURL   = "https://api.open-meteo.com/v1/forecast"
	historicalURL = "https://archive-api.open-meteo.com/v1/archive"
	hourlyParams  = "temperature_2m,wind_speed_80m,cloud_cover"
)

var eastern = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone(name, 0)
	}

	return loc
}

// Fetcher retrieves weather snapshots. The HTTP implementation is Client;
// tests substitute a fake.
type Fetcher interface {
	FetchForecast(ctx context.Context, days int) ([]weather.Snapshot, error)
	FetchHistorical(ctx context.Context, start, end time.Time) ([]weather.Snapshot, error)
}

// Client is the HTTP-backed Fetcher, fixed to NYC coordinates per spec.
type Client struct {
	HTTP      *http.Client
	Logger    log.Logger
	Latitude  float64
	Longitude float64
}

// NewClient returns a Client pinned to weather.NYCLatitude/NYCLongitude.
func NewClient(logger log.Logger) *Client {
	return &Client{
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		Logger:    logger,
		Latitude:  weather.NYCLatitude,
		Longitude: weather.NYCLongitude,
	}
}

type hourlyResponse struct {
	Hourly struct {
		Time          []string  `json:"time"`
		Temperature2m []float64 `json:"temperature_2m"`
		WindSpeed80m  []float64 `json:"wind_speed_80m"`
		CloudCover    []float64 `json:"cloud_cover"`
	} `json:"hourly"`
}

// FetchForecast fetches the next `days` days of hourly weather.
func (c *Client) FetchForecast(ctx context.Context, days int) ([]weather.Snapshot, error) {
	params := url.Values{
		"latitude":      {fmt.Sprintf("%.4f", c.Latitude)},
		"longitude":     {fmt.Sprintf("%.4f", c.Longitude)},
		"hourly":        {hourlyParams},
		"forecast_days": {strconv.Itoa(days)},
		"timezone":      {"America/New_York"},
	}

	snapshots, err := c.get(ctx, forecastURL, params)
	if err != nil {
		return nil, &gcerrors.WeatherFetchError{Err: err}
	}

	return snapshots, nil
}

// FetchHistorical fetches hourly weather for [start, end] inclusive.
func (c *Client) FetchHistorical(ctx context.Context, start, end time.Time) ([]weather.Snapshot, error) {
	params := url.Values{
		"latitude":   {fmt.Sprintf("%.4f", c.Latitude)},
		"longitude":  {fmt.Sprintf("%.4f", c.Longitude)},
		"start_date": {start.Format("2006-01-02")},
		"end_date":   {end.Format("2006-01-02")},
		"hourly":     {hourlyParams},
		"timezone":   {"America/New_York"},
	}

	snapshots, err := c.get(ctx, historicalURL, params)
	if err != nil {
		return nil, &gcerrors.WeatherFetchError{Err: err}
	}

	return snapshots, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]weather.Snapshot, error) {
	full := endpoint + "?" + params.Encode()

	level.Info(c.Logger).Log("msg", "fetching open-meteo weather", "url", endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("open-meteo returned %d for %s", resp.StatusCode, endpoint)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed hourlyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}

	return toSnapshots(parsed, c.Logger), nil
}

// toSnapshots converts Open-Meteo's parallel-array hourly response into
// weather.Snapshot values, converting °C to °F and km/h to mph.
func toSnapshots(resp hourlyResponse, logger log.Logger) []weather.Snapshot {
	times := resp.Hourly.Time
	out := make([]weather.Snapshot, 0, len(times))

	for i, tsStr := range times {
		ts, err := time.ParseInLocation("2006-01-02T15:04", tsStr, eastern)
		if err != nil {
			level.Debug(logger).Log("msg", "skipping weather point with unparseable timestamp", "index", i)
			continue
		}

		tempC := common.SanitizeFloat(valueAt(resp.Hourly.Temperature2m, i))
		tempF := round1(tempC*9/5 + 32)

		windKmh := common.SanitizeFloat(valueAt(resp.Hourly.WindSpeed80m, i))
		windMph := round1(windKmh * 0.621371)

		cloud := round1(common.SanitizeFloat(valueAt(resp.Hourly.CloudCover, i)))

		out = append(out, weather.Snapshot{
			Timestamp:       ts,
			TemperatureF:    tempF,
			WindSpeed80mMPH: windMph,
			CloudCoverPct:   cloud,
		})
	}

	return out
}

func valueAt(series []float64, i int) float64 {
	if i < len(series) {
		return series[i]
	}

	return 0
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
