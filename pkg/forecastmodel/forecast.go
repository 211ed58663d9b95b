// Package forecastmodel defines the Forecast, HourlyForecast, and Window
// value types produced by pkg/forecaster, grounded on
// original_source/src/gridcarbon/forecaster/heuristic.py.
package forecastmodel

import (
	"time"

	"github.com/pwkasay/gridcarbon/pkg/intensity"
)

// Confidence is the forecaster's self-reported reliability tier for a
// single hourly prediction.
type Confidence int

const (
	Low Confidence = iota
	Medium
	High
)

func (c Confidence) String() string {
	switch c {
	case High:
		return "high"
	case Medium:
		return "medium"
	default:
		return "low"
	}
}

// HourlyForecast is one hour's predicted intensity.
type HourlyForecast struct {
	Hour       time.Time
	Predicted  intensity.Intensity
	Confidence Confidence
}

// Forecast is an ordered sequence of 1-48 hourly predictions for a region,
// generated at a point in time.
type Forecast struct {
	GeneratedAt time.Time
	Region      string
	Hourly      []HourlyForecast
}

// WindowLabel distinguishes the two kinds of window a forecast can be
// queried for.
type WindowLabel int

const (
	Cleanest WindowLabel = iota
	Dirtiest
)

func (l WindowLabel) String() string {
	if l == Dirtiest {
		return "dirtiest"
	}

	return "cleanest"
}

// Window is a contiguous k-hour subsequence of a Forecast, together with
// its mean intensity.
type Window struct {
	Start   time.Time
	End     time.Time
	Average intensity.Intensity
	Label   WindowLabel
}

// CleanestWindow returns the contiguous k-hour window minimizing mean
// intensity, tie-broken by earliest start. Returns (Window{}, false) if
// k > len(f.Hourly) or k <= 0.
func (f *Forecast) CleanestWindow(k int) (Window, bool) {
	return f.window(k, Cleanest)
}

// DirtiestWindow returns the contiguous k-hour window maximizing mean
// intensity, tie-broken by earliest start.
func (f *Forecast) DirtiestWindow(k int) (Window, bool) {
	return f.window(k, Dirtiest)
}

func (f *Forecast) window(k int, label WindowLabel) (Window, bool) {
	n := len(f.Hourly)
	if k <= 0 || k > n {
		return Window{}, false
	}

	var sum float64
	for i := 0; i < k; i++ {
		sum += f.Hourly[i].Predicted.GramsCO2PerKWh
	}

	bestStart := 0
	bestSum := sum

	for start := 1; start <= n-k; start++ {
		sum += f.Hourly[start+k-1].Predicted.GramsCO2PerKWh - f.Hourly[start-1].Predicted.GramsCO2PerKWh

		switch label {
		case Cleanest:
			if sum < bestSum {
				bestSum = sum
				bestStart = start
			}
		case Dirtiest:
			if sum > bestSum {
				bestSum = sum
				bestStart = start
			}
		}
	}

	avg := bestSum / float64(k)
	start := f.Hourly[bestStart].Hour
	end := f.Hourly[bestStart+k-1].Hour.Add(time.Hour)

	return Window{
		Start:   start,
		End:     end,
		Average: intensity.New(avg),
		Label:   label,
	}, true
}
