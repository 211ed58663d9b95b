package fuel

import (
	"sort"
	"time"

	"github.com/pwkasay/gridcarbon/pkg/gcerrors"
	"github.com/pwkasay/gridcarbon/pkg/intensity"
)

// Generation is one fuel category's generation in MW at a FuelMix's
// timestamp.
type Generation struct {
	Category     Category
	GenerationMW float64
}

// IsClean reports whether this fuel's emission factor is zero.
func (g Generation) IsClean() bool { return IsClean(g.Category) }

// IsFossil reports whether this fuel's emission factor is positive.
func (g Generation) IsFossil() bool { return !g.IsClean() }

// Mix is a fuel-mix snapshot at one timestamp: the ordered set of
// per-category generation readings NYISO reported together. Derived
// fields (TotalMW, CleanMW, CleanPercentage, FuelBreakdown,
// CarbonIntensity) are computed eagerly at construction and are
// immutable thereafter — FuelMix is never mutated after New returns.
type Mix struct {
	Timestamp time.Time
	Fuels     []Generation

	totalMW         float64
	cleanMW         float64
	carbonIntensity float64
	hasIntensity    bool
	breakdown       []BreakdownEntry
}

// BreakdownEntry is one row of FuelBreakdown: a category and its MW,
// ordered descending by MW with ties broken by input order.
type BreakdownEntry struct {
	Category     Category
	GenerationMW float64
}

// New builds a Mix, eagerly computing its derived fields. fuels is copied
// and never mutated; duplicate categories are not deduplicated here — that
// is the validate stage's job (see pkg/ingest).
func New(ts time.Time, fuels []Generation) *Mix {
	m := &Mix{
		Timestamp: ts,
		Fuels:     append([]Generation(nil), fuels...),
	}
	m.compute()

	return m
}

func (m *Mix) compute() {
	var weighted float64

	breakdown := make([]BreakdownEntry, 0, len(m.Fuels))

	for _, f := range m.Fuels {
		m.totalMW += f.GenerationMW

		if f.IsClean() {
			m.cleanMW += f.GenerationMW
		}

		weighted += f.GenerationMW * Factor(f.Category)

		breakdown = append(breakdown, BreakdownEntry{
			Category:     f.Category,
			GenerationMW: f.GenerationMW,
		})
	}

	sort.SliceStable(breakdown, func(i, j int) bool {
		return breakdown[i].GenerationMW > breakdown[j].GenerationMW
	})

	m.breakdown = breakdown

	if m.totalMW > 0 {
		m.carbonIntensity = weighted / m.totalMW
		m.hasIntensity = true
	}
}

// TotalGenerationMW is the sum of all fuels' generation.
func (m *Mix) TotalGenerationMW() float64 { return m.totalMW }

// CleanGenerationMW is the sum of generation from zero-factor fuels.
func (m *Mix) CleanGenerationMW() float64 { return m.cleanMW }

// FossilGenerationMW is the sum of generation from positive-factor fuels.
func (m *Mix) FossilGenerationMW() float64 { return m.totalMW - m.cleanMW }

// CleanPercentage is 100 * clean / total, in [0, 100]. Returns 0 when
// total generation is zero (guarded by validation upstream, but defined
// here to avoid a division by zero in ad-hoc callers).
func (m *Mix) CleanPercentage() float64 {
	if m.totalMW <= 0 {
		return 0
	}

	return 100 * m.cleanMW / m.totalMW
}

// FuelBreakdown returns the per-category generation, sorted descending by
// MW, ties broken by the order fuels were supplied in.
func (m *Mix) FuelBreakdown() []BreakdownEntry {
	return append([]BreakdownEntry(nil), m.breakdown...)
}

// FuelPercentages returns each category's share of total generation.
func (m *Mix) FuelPercentages() map[Category]float64 {
	out := make(map[Category]float64, len(m.Fuels))
	if m.totalMW <= 0 {
		return out
	}

	for _, f := range m.Fuels {
		out[f.Category] += 100 * f.GenerationMW / m.totalMW
	}

	return out
}

// CarbonIntensity returns the generation-weighted carbon intensity of this
// mix, stamped with the mix's timestamp. Fails with *gcerrors.EmptyMixError
// if the mix has no fuels or zero total generation — check HasIntensity
// first to avoid the error path entirely.
func (m *Mix) CarbonIntensity() (intensity.Intensity, error) {
	if !m.hasIntensity {
		return intensity.Intensity{}, &gcerrors.EmptyMixError{}
	}

	return intensity.At(m.carbonIntensity, m.Timestamp), nil
}

// HasIntensity reports whether this mix has a well-defined carbon
// intensity (requires total generation > 0).
func (m *Mix) HasIntensity() bool { return m.hasIntensity }
