package forecaster

// TypicalHourlyProfile is the fallback "typical NYISO day" hourly CI table
// (gCO2/kWh), used when the store has insufficient historical coverage for
// a given (month, day-of-week). Carried verbatim from the original
// implementation's published-research derivation.
var TypicalHourlyProfile = map[int]float64{
	0: 200, 1: 185, 2: 175, 3: 170, 4: 170, 5: 180,
	6: 220, 7: 270, 8: 310, 9: 330, 10: 320, 11: 310,
	12: 300, 13: 290, 14: 290, 15: 300, 16: 330, 17: 370,
	18: 380, 19: 360, 20: 330, 21: 300, 22: 260, 23: 230,
}

// defaultHourlyCI is used for an hour missing from TypicalHourlyProfile —
// never happens in practice since the table is complete for 0-23, but
// guards against a future incomplete table.
const defaultHourlyCI = 280.0

// SeasonalMultiplier scales the typical profile per calendar month;
// shoulder seasons (spring/fall) run cleaner, peak summer/winter dirtier.
var SeasonalMultiplier = map[int]float64{
	1: 1.10, 2: 1.05, 3: 0.95, 4: 0.90, 5: 0.88, 6: 1.00,
	7: 1.15, 8: 1.15, 9: 1.00, 10: 0.90, 11: 0.95, 12: 1.05,
}

// WeekendMultiplier discounts the typical profile on Saturday/Sunday,
// reflecting lower weekend load.
const WeekendMultiplier = 0.88

// Weather correction coefficients.
const (
	TempCorrectionPerDegree = 0.005
	WindCorrectionPerMPH    = 0.003
	WindThresholdMPH        = 10.0
)

// PersistenceHours is the short horizon (in hours) over which the forecast
// blends toward the current observed intensity.
const PersistenceHours = 6

// PhysicalFloorGramsCO2PerKWh is the minimum plausible carbon intensity
// (roughly the nuclear/hydro-only floor).
const PhysicalFloorGramsCO2PerKWh = 50.0

// minHistoricalHoursCovered is the minimum number of hours (out of 24) a
// stored (month, dow) profile must cover before it is trusted over the
// fallback typical profile.
const minHistoricalHoursCovered = 20

// fallbackBaseline computes the typical-profile-derived baseline for an
// hour, applying the seasonal and (if applicable) weekend multipliers.
func fallbackBaseline(month, dayOfWeek, hour int) float64 {
	base, ok := TypicalHourlyProfile[hour]
	if !ok {
		base = defaultHourlyCI
	}

	if m, ok := SeasonalMultiplier[month]; ok {
		base *= m
	}

	if dayOfWeek >= 5 { // Saturday=5, Sunday=6 in a 0=Monday convention
		base *= WeekendMultiplier
	}

	return base
}
