package fuel

// EmissionFactor is the direct-combustion gCO2/kWh attributed to a fuel
// category, plus its provenance for transparency (shown by the CLI's
// "factors" command and the emission-factors service operation).
type EmissionFactor struct {
	Category       Category
	GramsCO2PerKWh float64
	Source         string
}

// EmissionFactors is the fixed registry used by every carbon intensity
// calculation in the system. Values and provenance strings are carried
// verbatim from the original implementation's EPA eGRID 2022 sourcing.
var EmissionFactors = map[Category]EmissionFactor{
	NaturalGas: {
		Category:       NaturalGas,
		GramsCO2PerKWh: 450,
		Source:         "EPA eGRID 2022 NYCW/NYUP weighted average for gas fleet",
	},
	DualFuel: {
		Category:       DualFuel,
		GramsCO2PerKWh: 480,
		Source:         "EPA eGRID 2022, NYC dual-fuel plants (predominantly gas operation)",
	},
	Nuclear: {
		Category:       Nuclear,
		GramsCO2PerKWh: 0,
		Source:         "Zero direct combustion emissions",
	},
	Hydro: {
		Category:       Hydro,
		GramsCO2PerKWh: 0,
		Source:         "Zero direct combustion emissions",
	},
	Wind: {
		Category:       Wind,
		GramsCO2PerKWh: 0,
		Source:         "Zero direct combustion emissions",
	},
	OtherRenewables: {
		Category:       OtherRenewables,
		GramsCO2PerKWh: 0,
		Source:         "Biomass/landfill gas treated as carbon-neutral by convention",
	},
	OtherFossil: {
		Category:       OtherFossil,
		GramsCO2PerKWh: 840,
		Source:         "EPA eGRID 2022 weighted average for oil/coal in NYISO",
	},
}

// Factor returns the gCO2/kWh emission factor for a category.
func Factor(c Category) float64 {
	return EmissionFactors[c].GramsCO2PerKWh
}

// IsClean reports whether a category's emission factor is zero.
func IsClean(c Category) bool {
	return Factor(c) == 0
}

// FactorsSummary is a serialization-friendly dump of the registry, in a
// fixed category order, used by the emission-factors service operation.
type FactorsSummary struct {
	Fuel           string  `json:"fuel"`
	GramsCO2PerKWh float64 `json:"grams_co2_per_kwh"`
	Source         string  `json:"source"`
}

// AllFactorsSummary returns the registry as a stable, ordered slice.
func AllFactorsSummary() []FactorsSummary {
	out := make([]FactorsSummary, 0, len(AllCategories))

	for _, c := range AllCategories {
		ef := EmissionFactors[c]
		out = append(out, FactorsSummary{
			Fuel:           c.String(),
			GramsCO2PerKWh: ef.GramsCO2PerKWh,
			Source:         ef.Source,
		})
	}

	return out
}
