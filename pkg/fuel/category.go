// Package fuel defines NYISO's fuel category enumeration, the emission
// factor registry, and the FuelMix/FuelGeneration snapshot types.
//
// Grounded on original_source/src/gridcarbon/sources/emission_factors.py
// and models/fuel_mix.py.
package fuel

import (
	"strings"

	"github.com/pwkasay/gridcarbon/pkg/gcerrors"
)

// Category is the closed set of seven fuel categories NYISO reports in its
// real-time fuel mix feed.
type Category int

const (
	NaturalGas Category = iota
	DualFuel
	Nuclear
	Hydro
	Wind
	OtherRenewables
	OtherFossil
)

// categoryLabels gives each Category its canonical NYISO CSV label.
var categoryLabels = map[Category]string{
	NaturalGas:      "Natural Gas",
	DualFuel:        "Dual Fuel",
	Nuclear:         "Nuclear",
	Hydro:           "Hydro",
	Wind:            "Wind",
	OtherRenewables: "Other Renewables",
	OtherFossil:     "Other Fossil Fuels",
}

// AllCategories lists the seven categories in a fixed, stable order.
var AllCategories = []Category{
	NaturalGas, DualFuel, Nuclear, OtherFossil, OtherRenewables, Wind, Hydro,
}

func (c Category) String() string {
	if s, ok := categoryLabels[c]; ok {
		return s
	}

	return "unknown"
}

// categoryAliases maps normalized upstream labels (including known
// variants, e.g. "Other Fossil" without "Fuels") to a Category.
var categoryAliases = map[string]Category{
	"Dual Fuel":          DualFuel,
	"Natural Gas":        NaturalGas,
	"Nuclear":            Nuclear,
	"Other Fossil Fuels": OtherFossil,
	"Other Fossil":       OtherFossil,
	"Other Renewables":   OtherRenewables,
	"Wind":               Wind,
	"Hydro":              Hydro,
}

// ParseCategory parses a fuel category from an upstream label. Matching is
// case- and whitespace-insensitive via a fixed alias table; an unrecognized
// label fails with UnknownFuelCategoryError.
func ParseCategory(label string) (Category, error) {
	normalized := strings.TrimSpace(label)
	normalized = strings.Title(strings.ToLower(normalized)) //nolint:staticcheck // matches Python's str.title()

	if c, ok := categoryAliases[normalized]; ok {
		return c, nil
	}

	return 0, &gcerrors.UnknownFuelCategoryError{Label: label}
}
