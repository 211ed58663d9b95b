package ingest

import (
	"context"

	"github.com/pwkasay/gridcarbon/pkg/fuel"
	"github.com/pwkasay/gridcarbon/pkg/store"
	"github.com/pwkasay/gridcarbon/pkg/weather"
)

// PersistFuelMix upserts a single fuel mix snapshot (and its derived
// carbon_intensity row) into s.
func PersistFuelMix(s *store.Store) func(ctx context.Context, mix *fuel.Mix) (*fuel.Mix, error) {
	return func(ctx context.Context, mix *fuel.Mix) (*fuel.Mix, error) {
		if err := s.SaveFuelMix(ctx, mix); err != nil {
			return mix, err
		}

		return mix, nil
	}
}

// PersistWeatherBatch upserts a batch of weather snapshots into s within
// one transaction — wired as a pipeline.BatchStageDef.
func PersistWeatherBatch(s *store.Store) func(ctx context.Context, batch []weather.Snapshot) error {
	return func(ctx context.Context, batch []weather.Snapshot) error {
		rows := make([]store.WeatherRow, len(batch))
		for i, snap := range batch {
			rows[i] = store.WeatherRow{
				Timestamp:       snap.Timestamp,
				TemperatureF:    snap.TemperatureF,
				WindSpeed80mMPH: snap.WindSpeed80mMPH,
				CloudCoverPct:   snap.CloudCoverPct,
			}
		}

		return s.SaveWeatherBatch(ctx, rows)
	}
}
