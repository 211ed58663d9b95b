// Package nyiso fetches real-time fuel-mix data from NYISO's public CSV
// feed. No authentication required. Data is published at predictable URLs:
//
//	http://mis.nyiso.com/public/csv/rtfuelmix/{YYYYMMDD}rtfuelmix.csv
//
// Each CSV has columns Time Stamp, Time Zone, Fuel Category, Gen MW and is
// updated every five minutes; historical data goes back to roughly 2013.
package nyiso

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/pwkasay/gridcarbon/internal/common"
	"github.com/pwkasay/gridcarbon/pkg/fuel"
	"github.com/pwkasay/gridcarbon/pkg/gcerrors"
)

const baseURL = "http://mis.nyiso.com/public/csv/rtfuelmix"

var eastern = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone(name, 0)
	}

	return loc
}

// Fetcher retrieves NYISO fuel mix data. The HTTP implementation is Client;
// tests substitute a fake.
type Fetcher interface {
	FetchDay(ctx context.Context, day time.Time) ([]*fuel.Mix, error)
}

// Client is the HTTP-backed Fetcher.
type Client struct {
	HTTP   *http.Client
	Logger log.Logger
}

// NewClient returns a Client with a 30s timeout, matching the original's
// sync/async fetchers.
func NewClient(logger log.Logger) *Client {
	return &Client{HTTP: &http.Client{Timeout: 30 * time.Second}, Logger: logger}
}

// FetchDay retrieves and parses one day's fuel mix CSV. Up to 288 snapshots
// are returned (one every five minutes).
func (c *Client) FetchDay(ctx context.Context, day time.Time) ([]*fuel.Mix, error) {
	url := fmt.Sprintf("%s/%srtfuelmix.csv", baseURL, day.Format("20060102"))

	level.Info(c.Logger).Log("msg", "fetching nyiso fuel mix", "date", day.Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &gcerrors.NYISOFetchError{Err: err}
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &gcerrors.NYISOFetchError{Err: fmt.Errorf("fetching %s: %w", url, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &gcerrors.NYISOFetchError{Err: fmt.Errorf("nyiso returned %d for %s", resp.StatusCode, url)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &gcerrors.NYISOFetchError{Err: err}
	}

	return parseCSV(string(body), c.Logger)
}

// parseCSV groups CSV rows by timestamp (one row per timestamp/fuel-category
// pair) and assembles complete fuel.Mix snapshots, mirroring the original's
// _parse_csv.
func parseCSV(text string, logger log.Logger) ([]*fuel.Mix, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}

		return nil, &gcerrors.NYISOFetchError{Err: err}
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}

	byTimestamp := map[string][]fuel.Generation{}

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}

		if err != nil {
			level.Debug(logger).Log("msg", "skipping malformed csv row", "err", err)
			continue
		}

		tsStr := cell(row, col, "Time Stamp")
		fuelLabel := cell(row, col, "Fuel Category")
		genStr := cell(row, col, "Gen MW")

		if tsStr == "" || fuelLabel == "" {
			continue
		}

		category, err := fuel.ParseCategory(fuelLabel)
		if err != nil {
			level.Debug(logger).Log("msg", "skipping row with unknown fuel category", "label", fuelLabel)
			continue
		}

		genMW, err := strconv.ParseFloat(strings.TrimSpace(genStr), 64)
		if err != nil {
			level.Debug(logger).Log("msg", "skipping row with unparseable generation", "value", genStr)
			continue
		}

		genMW = common.SanitizeFloat(genMW)

		byTimestamp[tsStr] = append(byTimestamp[tsStr], fuel.Generation{Category: category, GenerationMW: genMW})
	}

	timestamps := make([]string, 0, len(byTimestamp))
	for ts := range byTimestamp {
		timestamps = append(timestamps, ts)
	}

	sort.Strings(timestamps)

	mixes := make([]*fuel.Mix, 0, len(timestamps))

	for _, tsStr := range timestamps {
		// NYISO timestamps look like "01/15/2024 00:05:00".
		ts, err := time.ParseInLocation("01/02/2006 15:04:05", tsStr, eastern)
		if err != nil {
			level.Debug(logger).Log("msg", "could not parse timestamp", "value", tsStr)
			continue
		}

		mixes = append(mixes, fuel.New(ts, byTimestamp[tsStr]))
	}

	return mixes, nil
}

func cell(row []string, col map[string]int, name string) string {
	idx, ok := col[name]
	if !ok || idx >= len(row) {
		return ""
	}

	return strings.TrimSpace(row[idx])
}

// FetchLatest tries today's CSV, then yesterday's, returning the most
// recent fuel.Mix snapshot. Returns (nil, nil) if neither day has data.
func FetchLatest(ctx context.Context, f Fetcher, now time.Time) (*fuel.Mix, error) {
	for _, day := range []time.Time{now, now.AddDate(0, 0, -1)} {
		mixes, err := f.FetchDay(ctx, day)
		if err != nil {
			if gcerrors.IsUnavailable(err) {
				continue
			}

			return nil, err
		}

		if len(mixes) > 0 {
			return mixes[len(mixes)-1], nil
		}
	}

	return nil, nil
}
