// Package intensity defines the carbon-intensity value type and its
// category classification, grounded on original_source's
// models/fuel_mix.py CarbonIntensity dataclass.
package intensity

import (
	"fmt"
	"time"
)

// Category is a closed, totally-ordered classification of a carbon
// intensity value.
type Category int

const (
	VeryClean Category = iota
	Clean
	Moderate
	Dirty
	VeryDirty
)

// Fixed thresholds in gCO2/kWh, inclusive upper bound per band.
const (
	veryCleanMax = 150
	cleanMax     = 250
	moderateMax  = 350
	dirtyMax     = 450
)

func (c Category) String() string {
	switch c {
	case VeryClean:
		return "very_clean"
	case Clean:
		return "clean"
	case Moderate:
		return "moderate"
	case Dirty:
		return "dirty"
	case VeryDirty:
		return "very_dirty"
	default:
		return "unknown"
	}
}

// Label returns the human-facing label, emoji included, shown by the CLI
// and the current-intensity service operation.
func (c Category) Label() string {
	switch c {
	case VeryClean:
		return "🟢 Very Clean"
	case Clean:
		return "🟢 Clean"
	case Moderate:
		return "🟡 Moderate"
	case Dirty:
		return "🟠 Dirty"
	case VeryDirty:
		return "🔴 Very Dirty"
	default:
		return "unknown"
	}
}

// Recommendation returns the fixed advisory string for the category.
func (c Category) Recommendation() string {
	switch c {
	case VeryClean:
		return "Great time to run energy-intensive tasks"
	case Clean:
		return "Good time for flexible workloads"
	case Moderate:
		return "Average grid conditions"
	case Dirty:
		return "Consider deferring non-urgent tasks"
	case VeryDirty:
		return "Defer flexible workloads if possible"
	default:
		return ""
	}
}

// CategoryFor classifies a gCO2/kWh value into a Category. Total and
// monotone: thresholds are ≤150 very_clean, ≤250 clean, ≤350 moderate,
// ≤450 dirty, >450 very_dirty.
func CategoryFor(gramsCO2PerKWh float64) Category {
	switch {
	case gramsCO2PerKWh <= veryCleanMax:
		return VeryClean
	case gramsCO2PerKWh <= cleanMax:
		return Clean
	case gramsCO2PerKWh <= moderateMax:
		return Moderate
	case gramsCO2PerKWh <= dirtyMax:
		return Dirty
	default:
		return VeryDirty
	}
}

// Intensity is a single carbon-intensity measurement, optionally stamped
// with the timestamp it applies to.
type Intensity struct {
	GramsCO2PerKWh float64
	Timestamp      time.Time
	HasTimestamp   bool
}

// New constructs an untimestamped Intensity.
func New(gramsCO2PerKWh float64) Intensity {
	return Intensity{GramsCO2PerKWh: gramsCO2PerKWh}
}

// At constructs an Intensity stamped with ts.
func At(gramsCO2PerKWh float64, ts time.Time) Intensity {
	return Intensity{GramsCO2PerKWh: gramsCO2PerKWh, Timestamp: ts, HasTimestamp: true}
}

// Category classifies this intensity.
func (i Intensity) Category() Category { return CategoryFor(i.GramsCO2PerKWh) }

// Label is a shortcut for i.Category().Label().
func (i Intensity) Label() string { return i.Category().Label() }

// Recommendation is a shortcut for i.Category().Recommendation().
func (i Intensity) Recommendation() string { return i.Category().Recommendation() }

// KgCO2PerKWh converts grams to kilograms per kWh.
func (i Intensity) KgCO2PerKWh() float64 { return i.GramsCO2PerKWh / 1000.0 }

// KgCO2PerMWh converts grams/kWh to kg CO2 per MWh (1 MWh = 1000 kWh, so
// the gram-per-kWh value already equals kg per MWh numerically).
func (i Intensity) KgCO2PerMWh() float64 { return i.GramsCO2PerKWh }

// LbsCO2PerMWh converts kg/MWh to lbs/MWh.
func (i Intensity) LbsCO2PerMWh() float64 { return i.KgCO2PerMWh() * 2.20462 }

// TonsCO2PerMWh converts kg/MWh to metric tonnes/MWh.
func (i Intensity) TonsCO2PerMWh() float64 { return i.KgCO2PerMWh() / 1000.0 }

// Add sums two intensities' gram values, carrying neither timestamp — used
// to accumulate before dividing into an average.
func (i Intensity) Add(other Intensity) Intensity {
	return New(i.GramsCO2PerKWh + other.GramsCO2PerKWh)
}

// Div divides the gram value by n, for averaging.
func (i Intensity) Div(n float64) Intensity {
	return New(i.GramsCO2PerKWh / n)
}

// Less orders intensities by gram value, ascending (cleanest first).
func (i Intensity) Less(other Intensity) bool {
	return i.GramsCO2PerKWh < other.GramsCO2PerKWh
}

// LessOrEqual orders intensities by gram value, ascending, inclusive.
func (i Intensity) LessOrEqual(other Intensity) bool {
	return i.GramsCO2PerKWh <= other.GramsCO2PerKWh
}

func (i Intensity) String() string {
	return fmt.Sprintf("%.1f gCO2/kWh (%s)", i.GramsCO2PerKWh, i.Category())
}
