package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuantileIndex(t *testing.T) {
	testCases := []struct {
		name       string
		confidence float64
		trials     int
		expected   int
	}{
		{"median of ten", 0.5, 10, 5},
		{"99 percent of 100", 0.99, 100, 1},
		{"zero confidence clamps to last", 0, 10, 9},
		{"confidence above one clamps to first", 1.5, 10, 0},
		{"confidence of one", 1, 10, 0},
		{"no trials", 0.95, 0, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, QuantileIndex(tc.confidence, tc.trials))
		})
	}
}

func TestValueAtRisk(t *testing.T) {
	sorted := []float64{80, 90, 95, 100, 110}

	// (1-0.6)*5 = 2, so the third smallest value
	assert.InDelta(t, 5.0, ValueAtRisk(100, sorted, 0.6), 1e-12)
	assert.InDelta(t, 20.0, ValueAtRisk(100, sorted, 0.99), 1e-12)
	assert.Equal(t, 0.0, ValueAtRisk(100, nil, 0.95))
}

func TestValueAtRisk_NegativeForProfitSkew(t *testing.T) {
	sorted := []float64{120, 130}

	// Not floored at zero
	assert.InDelta(t, -30.0, ValueAtRisk(100, sorted, 0.5), 1e-12)
}

func TestExpectedShortfall(t *testing.T) {
	sorted := []float64{80, 90, 95, 100, 110}

	es := ExpectedShortfall(100, sorted, 0.6)
	assert.InDelta(t, 100-(80.0+90.0+95.0)/3, es, 1e-9)
	assert.GreaterOrEqual(t, es, ValueAtRisk(100, sorted, 0.6))
	assert.Equal(t, 0.0, ExpectedShortfall(100, nil, 0.95))
}
