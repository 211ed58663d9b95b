package intensity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Invariant 3 — Category is a total, monotone step function.
func TestCategoryFor_Monotone(t *testing.T) {
	values := []float64{-10, 0, 50, 150, 150.01, 200, 250, 250.01, 300, 350, 350.01, 400, 450, 450.01, 600, 1000}

	prev := VeryClean
	for i, v := range values {
		c := CategoryFor(v)
		assert.GreaterOrEqual(t, int(c), int(prev), "category must not decrease as value increases (value=%v)", v)
		prev = c

		if i > 0 {
			assert.True(t, c >= VeryClean && c <= VeryDirty)
		}
	}
}

func TestCategoryFor_Thresholds(t *testing.T) {
	cases := []struct {
		v    float64
		want Category
	}{
		{150, VeryClean},
		{150.1, Clean},
		{250, Clean},
		{250.1, Moderate},
		{350, Moderate},
		{350.1, Dirty},
		{450, Dirty},
		{450.1, VeryDirty},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, CategoryFor(c.v), "value=%v", c.v)
	}
}

func TestIntensity_Conversions(t *testing.T) {
	i := New(450)
	assert.InDelta(t, 0.45, i.KgCO2PerKWh(), 1e-9)
	assert.InDelta(t, 450, i.KgCO2PerMWh(), 1e-9)
	assert.InDelta(t, 450*2.20462, i.LbsCO2PerMWh(), 1e-6)
	assert.InDelta(t, 0.45, i.TonsCO2PerMWh(), 1e-9)
}

func TestIntensity_AddDiv(t *testing.T) {
	a := New(100)
	b := New(300)
	avg := a.Add(b).Div(2)
	assert.InDelta(t, 200, avg.GramsCO2PerKWh, 1e-9)
}

func TestIntensity_Ordering(t *testing.T) {
	low := New(100)
	high := New(400)
	assert.True(t, low.Less(high))
	assert.True(t, low.LessOrEqual(high))
	assert.False(t, high.Less(low))
}

func TestCategory_LabelsAndRecommendations(t *testing.T) {
	for c := VeryClean; c <= VeryDirty; c++ {
		assert.NotEmpty(t, c.Label())
		assert.NotEmpty(t, c.Recommendation())
	}
}
