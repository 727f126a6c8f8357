// Package formulas holds small numerical helpers shared by ingestion paths.
package formulas

// CalculateReturns converts a price series into simple daily returns,
// (p[i] - p[i-1]) / p[i-1]. A zero previous price yields a zero return.
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}

	return returns
}

// SimpleReturn is the single-step form of CalculateReturns.
func SimpleReturn(prev, next float64) float64 {
	if prev == 0 {
		return 0
	}
	return (next - prev) / prev
}
