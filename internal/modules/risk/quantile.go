package risk

import "math"

// DefaultConfidence replaces a missing (non-positive) confidence level.
const DefaultConfidence = 0.95

// QuantileIndex returns floor((1-confidence) * trials) clamped to
// [0, trials-1].
func QuantileIndex(confidence float64, trials int) int {
	if trials <= 0 {
		return 0
	}

	idx := int(math.Floor((1 - confidence) * float64(trials)))
	if idx < 0 {
		return 0
	}
	if idx > trials-1 {
		return trials - 1
	}
	return idx
}

// ValueAtRisk returns totalValue - sorted[QuantileIndex]. The result is not
// floored at zero: a profit-skewed distribution yields a negative VaR.
func ValueAtRisk(totalValue float64, sorted []float64, confidence float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return totalValue - sorted[QuantileIndex(confidence, len(sorted))]
}

// ExpectedShortfall returns the mean loss over the tail sorted[0..idx], where
// idx is the VaR index. Like VaR it is signed.
func ExpectedShortfall(totalValue float64, sorted []float64, confidence float64) float64 {
	if len(sorted) == 0 {
		return 0
	}

	idx := QuantileIndex(confidence, len(sorted))
	sum := 0.0
	for _, v := range sorted[:idx+1] {
		sum += v
	}
	return totalValue - sum/float64(idx+1)
}
