// Package store is the single façade over gridcarbon's relational
// database, grounded on the teacher's pkg/api/db/db.go (sqlite + embedded
// migrations) and on original_source/src/gridcarbon/storage/store.py for
// the exact schema and query shapes.
//
// The original Python implementation exposed a blocking Store and a
// separate AsyncStore with identical operations. Go's goroutine model
// makes that duality unnecessary: every operation here takes a
// context.Context and is safe to call either from a blocking caller (the
// CLI, the forecaster) or from within a pipeline persist-stage worker
// goroutine (the pipeline's own concurrency model is what would have been
// "non-blocking" in the original) — see DESIGN.md for the Open Question
// resolution.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pwkasay/gridcarbon/pkg/fuel"
	"github.com/pwkasay/gridcarbon/pkg/gcerrors"
)

// Store is a sqlite-backed historical data store for fuel mix, derived
// carbon intensity, weather, ingestion events, and pipeline metrics.
type Store struct {
	db     *sql.DB
	logger log.Logger
}

// Open opens (creating if necessary) the sqlite database at dbPath and
// applies any pending schema migrations.
func Open(dbPath string, logger log.Logger) (*Store, error) {
	// _busy_timeout lets sqlite3 retry internally instead of returning
	// SQLITE_BUSY immediately, in case another gridcarbon process (e.g. an
	// operator running `ingest` and `serve` against the same file despite
	// the CLI's guidance not to) holds a write lock at the same moment.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Single-writer discipline: the pipeline's persist stages run at
	// concurrency=1 per spec §4.C/§4.D, so one connection is sufficient
	// and avoids SQLITE_BUSY contention from concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	mg, err := newMigrator(dbPath, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	if err := mg.up(); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// IntensityRecord is one stored carbon_intensity row.
type IntensityRecord struct {
	Timestamp         time.Time
	GramsCO2PerKWh    float64
	TotalGenerationMW float64
	CleanPercentage   float64
	FuelBreakdown     map[string]float64
}

// SaveFuelMix transactionally upserts every fuel row of mix plus its
// derived carbon_intensity row. Idempotent: replaying the same mix
// twice leaves identical state (invariant 6).
func (s *Store) SaveFuelMix(ctx context.Context, mix *fuel.Mix) error {
	if !mix.HasIntensity() {
		return &gcerrors.StoreError{Op: "save_fuel_mix", Err: fmt.Errorf("mix at %s has no generation", mix.Timestamp)}
	}

	ts := mix.Timestamp.UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &gcerrors.StoreError{Op: "save_fuel_mix", Err: err}
	}
	defer tx.Rollback() //nolint:errcheck

	for _, f := range mix.Fuels {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO fuel_mix (timestamp, fuel_category, generation_mw)
			 VALUES (?, ?, ?)
			 ON CONFLICT(timestamp, fuel_category) DO UPDATE SET generation_mw = excluded.generation_mw`,
			ts, f.Category.String(), f.GenerationMW,
		); err != nil {
			return &gcerrors.StoreError{Op: "save_fuel_mix", Err: err}
		}
	}

	breakdown := make(map[string]float64, len(mix.Fuels))
	for _, b := range mix.FuelBreakdown() {
		breakdown[b.Category.String()] = b.GenerationMW
	}

	breakdownJSON, err := json.Marshal(breakdown)
	if err != nil {
		return &gcerrors.StoreError{Op: "save_fuel_mix", Err: err}
	}

	ci, err := mix.CarbonIntensity()
	if err != nil {
		return &gcerrors.StoreError{Op: "save_fuel_mix", Err: err}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO carbon_intensity (timestamp, grams_co2_per_kwh, total_generation_mw, clean_percentage, fuel_breakdown_json)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(timestamp) DO UPDATE SET
		   grams_co2_per_kwh = excluded.grams_co2_per_kwh,
		   total_generation_mw = excluded.total_generation_mw,
		   clean_percentage = excluded.clean_percentage,
		   fuel_breakdown_json = excluded.fuel_breakdown_json`,
		ts, ci.GramsCO2PerKWh, mix.TotalGenerationMW(), mix.CleanPercentage(), string(breakdownJSON),
	); err != nil {
		return &gcerrors.StoreError{Op: "save_fuel_mix", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &gcerrors.StoreError{Op: "save_fuel_mix", Err: err}
	}

	return nil
}

// SaveFuelMixes bulk-saves snapshots, skipping (but logging) individual
// failures, and returns the count successfully saved.
func (s *Store) SaveFuelMixes(ctx context.Context, mixes []*fuel.Mix) int {
	count := 0

	for _, m := range mixes {
		if err := s.SaveFuelMix(ctx, m); err != nil {
			level.Warn(s.logger).Log("msg", "skipping fuel mix in bulk save", "err", err)
			continue
		}

		count++
	}

	return count
}

// SaveWeather upserts a single hourly weather observation keyed by
// timestamp.
func (s *Store) SaveWeather(ctx context.Context, ts time.Time, tempF, windMPH, cloudPct float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO weather (timestamp, temperature_f, wind_speed_80m_mph, cloud_cover_pct)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(timestamp) DO UPDATE SET
		   temperature_f = excluded.temperature_f,
		   wind_speed_80m_mph = excluded.wind_speed_80m_mph,
		   cloud_cover_pct = excluded.cloud_cover_pct`,
		ts.UTC().Format(time.RFC3339Nano), tempF, windMPH, cloudPct,
	)
	if err != nil {
		return &gcerrors.StoreError{Op: "save_weather", Err: err}
	}

	return nil
}

// SaveWeatherBatch writes a batch of weather snapshots within one
// transaction — used by the weather persist stage's batched commit.
func (s *Store) SaveWeatherBatch(ctx context.Context, rows []WeatherRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &gcerrors.StoreError{Op: "save_weather_batch", Err: err}
	}
	defer tx.Rollback() //nolint:errcheck

	for _, r := range rows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO weather (timestamp, temperature_f, wind_speed_80m_mph, cloud_cover_pct)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(timestamp) DO UPDATE SET
			   temperature_f = excluded.temperature_f,
			   wind_speed_80m_mph = excluded.wind_speed_80m_mph,
			   cloud_cover_pct = excluded.cloud_cover_pct`,
			r.Timestamp.UTC().Format(time.RFC3339Nano), r.TemperatureF, r.WindSpeed80mMPH, r.CloudCoverPct,
		); err != nil {
			return &gcerrors.StoreError{Op: "save_weather_batch", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &gcerrors.StoreError{Op: "save_weather_batch", Err: err}
	}

	return nil
}

// WeatherRow is one row of a batched weather write.
type WeatherRow struct {
	Timestamp       time.Time
	TemperatureF    float64
	WindSpeed80mMPH float64
	CloudCoverPct   float64
}

// GetCarbonIntensity returns intensity rows newer than now-hours, ascending.
func (s *Store) GetCarbonIntensity(ctx context.Context, hours int) ([]IntensityRecord, error) {
	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour).UTC().Format(time.RFC3339Nano)

	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, grams_co2_per_kwh, total_generation_mw, clean_percentage, fuel_breakdown_json
		 FROM carbon_intensity WHERE timestamp > ? ORDER BY timestamp ASC`, cutoff)
	if err != nil {
		return nil, &gcerrors.StoreError{Op: "get_carbon_intensity", Err: err}
	}
	defer rows.Close()

	return scanIntensityRows(rows)
}

// GetLatestIntensity returns the most recent intensity row, or nil if the
// store has none.
func (s *Store) GetLatestIntensity(ctx context.Context) (*IntensityRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, grams_co2_per_kwh, total_generation_mw, clean_percentage, fuel_breakdown_json
		 FROM carbon_intensity ORDER BY timestamp DESC LIMIT 1`)
	if err != nil {
		return nil, &gcerrors.StoreError{Op: "get_latest_intensity", Err: err}
	}
	defer rows.Close()

	records, err := scanIntensityRows(rows)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, nil
	}

	return &records[0], nil
}

func scanIntensityRows(rows *sql.Rows) ([]IntensityRecord, error) {
	var out []IntensityRecord

	for rows.Next() {
		var (
			tsRaw         string
			ci            float64
			total         float64
			cleanPct      float64
			breakdownJSON sql.NullString
		)

		if err := rows.Scan(&tsRaw, &ci, &total, &cleanPct, &breakdownJSON); err != nil {
			return nil, &gcerrors.StoreError{Op: "scan_intensity", Err: err}
		}

		ts, err := time.Parse(time.RFC3339Nano, tsRaw)
		if err != nil {
			return nil, &gcerrors.StoreError{Op: "scan_intensity", Err: err}
		}

		breakdown := map[string]float64{}
		if breakdownJSON.Valid && breakdownJSON.String != "" {
			if err := json.Unmarshal([]byte(breakdownJSON.String), &breakdown); err != nil {
				return nil, &gcerrors.StoreError{Op: "scan_intensity", Err: err}
			}
		}

		out = append(out, IntensityRecord{
			Timestamp:         ts,
			GramsCO2PerKWh:    ci,
			TotalGenerationMW: total,
			CleanPercentage:   cleanPct,
			FuelBreakdown:     breakdown,
		})
	}

	return out, rows.Err()
}

// HourlyAverages groups stored carbon intensity by hour-of-day, optionally
// filtered to a specific calendar month and/or day-of-week (0=Monday).
// Hours with no data are absent from the result.
func (s *Store) HourlyAverages(ctx context.Context, month, dayOfWeek *int) (map[int]float64, error) {
	query := `SELECT CAST(strftime('%H', timestamp) AS INTEGER) AS hour, AVG(grams_co2_per_kwh) AS avg_ci
	          FROM carbon_intensity`

	var (
		conditions []string
		args       []any
	)

	if month != nil {
		conditions = append(conditions, "CAST(strftime('%m', timestamp) AS INTEGER) = ?")
		args = append(args, *month)
	}

	if dayOfWeek != nil {
		// SQLite's strftime('%w') is 0=Sunday; translate from the
		// 0=Monday input convention at this boundary only.
		sqliteDOW := (*dayOfWeek + 1) % 7
		conditions = append(conditions, "CAST(strftime('%w', timestamp) AS INTEGER) = ?")
		args = append(args, sqliteDOW)
	}

	if len(conditions) > 0 {
		query += " WHERE " + joinAnd(conditions)
	}

	query += " GROUP BY hour ORDER BY hour"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &gcerrors.StoreError{Op: "get_hourly_averages", Err: err}
	}
	defer rows.Close()

	out := map[int]float64{}

	for rows.Next() {
		var (
			hour int
			avg  float64
		)

		if err := rows.Scan(&hour, &avg); err != nil {
			return nil, &gcerrors.StoreError{Op: "get_hourly_averages", Err: err}
		}

		out[hour] = avg
	}

	return out, rows.Err()
}

// GetHourlyAverages implements forecaster.HistoricalProfileSource,
// always filtering by both month and day-of-week.
func (s *Store) GetHourlyAverages(ctx context.Context, month, dayOfWeek int) (map[int]float64, error) {
	return s.HourlyAverages(ctx, &month, &dayOfWeek)
}

func joinAnd(conditions []string) string {
	out := conditions[0]
	for _, c := range conditions[1:] {
		out += " AND " + c
	}

	return out
}

// RecordCount returns the total number of carbon_intensity rows.
func (s *Store) RecordCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM carbon_intensity").Scan(&count); err != nil {
		return 0, &gcerrors.StoreError{Op: "record_count", Err: err}
	}

	return count, nil
}
