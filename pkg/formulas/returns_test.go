package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateReturns(t *testing.T) {
	tests := []struct {
		name     string
		prices   []float64
		expected []float64
	}{
		{"empty", nil, []float64{}},
		{"single price", []float64{100}, []float64{}},
		{"rising then falling", []float64{100, 110, 99}, []float64{0.1, -0.1}},
		{"zero previous price", []float64{0, 5, 10}, []float64{0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateReturns(tt.prices)
			assert.Len(t, got, len(tt.expected))
			for i := range tt.expected {
				assert.InDelta(t, tt.expected[i], got[i], 1e-12)
			}
		})
	}
}

func TestSimpleReturn(t *testing.T) {
	assert.InDelta(t, 0.05, SimpleReturn(100, 105), 1e-12)
	assert.Equal(t, 0.0, SimpleReturn(0, 105))
}
