package weather

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSnapshot_Derived(t *testing.T) {
	cases := []struct {
		name          string
		tempF         float64
		wantHeating   bool
		wantCooling   bool
		wantDeparture float64
	}{
		{"cold", 40, true, false, 25},
		{"comfortable", 70, false, false, 0},
		{"hot", 90, false, true, 15},
		{"exact heating boundary", 65, false, false, 0},
		{"exact cooling boundary", 75, false, false, 0},
	}

	for _, c := range cases {
		s := Snapshot{Timestamp: time.Now(), TemperatureF: c.tempF}
		assert.Equal(t, c.wantHeating, s.IsHeatingWeather(), c.name)
		assert.Equal(t, c.wantCooling, s.IsCoolingWeather(), c.name)
		assert.InDelta(t, c.wantDeparture, s.TemperatureDepartureFromComfort(), 1e-9, c.name)
	}
}
