package ingest

import (
	"context"
	"fmt"

	"github.com/pwkasay/gridcarbon/pkg/fuel"
	"github.com/pwkasay/gridcarbon/pkg/gcerrors"
	"github.com/pwkasay/gridcarbon/pkg/weather"
)

const minFuelCategories = 3

// ValidateFuelMix rejects snapshots with non-positive total generation,
// fewer than three reporting fuel categories, or any negative generation
// value.
func ValidateFuelMix(_ context.Context, mix *fuel.Mix) (*fuel.Mix, error) {
	if mix.TotalGenerationMW() <= 0 {
		return mix, &gcerrors.ValidationError{Reason: "zero/negative total generation"}
	}

	if len(mix.Fuels) < minFuelCategories {
		return mix, &gcerrors.ValidationError{Reason: fmt.Sprintf("fewer than %d fuel categories reporting", minFuelCategories)}
	}

	for _, f := range mix.Fuels {
		if f.GenerationMW < 0 {
			return mix, &gcerrors.ValidationError{Reason: fmt.Sprintf("zero/negative generation for %s", f.Category)}
		}
	}

	return mix, nil
}

const (
	minTemperatureF = -40.0
	maxTemperatureF = 130.0
	maxCloudPct     = 100.0
)

// ValidateWeather rejects physically implausible readings: temperature
// outside [-40, 130]°F, negative wind speed, or cloud cover outside
// [0, 100]%.
func ValidateWeather(_ context.Context, snap weather.Snapshot) (weather.Snapshot, error) {
	if snap.TemperatureF < minTemperatureF || snap.TemperatureF > maxTemperatureF {
		return snap, &gcerrors.ValidationError{Reason: fmt.Sprintf("temperature %.1f°F out of range", snap.TemperatureF)}
	}

	if snap.WindSpeed80mMPH < 0 {
		return snap, &gcerrors.ValidationError{Reason: "negative wind speed"}
	}

	if snap.CloudCoverPct < 0 || snap.CloudCoverPct > maxCloudPct {
		return snap, &gcerrors.ValidationError{Reason: fmt.Sprintf("cloud cover %.1f%% out of range", snap.CloudCoverPct)}
	}

	return snap, nil
}
