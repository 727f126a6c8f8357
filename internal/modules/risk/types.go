package risk

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Request is a request-scoped position set.
type Request struct {
	// Positions maps asset id to quantity. Negative quantities are shorts.
	Positions  map[string]float64 `json:"positions"`
	TotalValue float64            `json:"total_value"`
	// ConfidenceLevel <= 0 means DefaultConfidence.
	ConfidenceLevel float64 `json:"confidence_level"`
	// HorizonDays is accepted and echoed but does not scale volatility yet.
	// Whether to apply sqrt(t) scaling is unresolved; see DESIGN.md.
	HorizonDays float64 `json:"horizon_days"`
}

// Validate rejects requests that cannot be simulated.
func (r Request) Validate() error {
	if len(r.Positions) == 0 {
		return fmt.Errorf("%w: positions are required", ErrInvalidInput)
	}
	if !isFinite(r.TotalValue) || r.TotalValue <= 0 {
		return fmt.Errorf("%w: total value must be positive, got %v", ErrInvalidInput, r.TotalValue)
	}
	if !isFinite(r.ConfidenceLevel) {
		return fmt.Errorf("%w: confidence level must be finite", ErrInvalidInput)
	}
	if !isFinite(r.HorizonDays) {
		return fmt.Errorf("%w: horizon must be finite", ErrInvalidInput)
	}
	for asset, qty := range r.Positions {
		if asset == "" {
			return fmt.Errorf("%w: empty asset id", ErrInvalidInput)
		}
		if !isFinite(qty) {
			return fmt.Errorf("%w: quantity for %s is not finite", ErrInvalidInput, asset)
		}
	}
	return nil
}

// Confidence returns the effective confidence level.
func (r Request) Confidence() float64 {
	if r.ConfidenceLevel <= 0 {
		return DefaultConfidence
	}
	return r.ConfidenceLevel
}

// Horizon returns the effective horizon in days.
func (r Request) Horizon() float64 {
	if r.HorizonDays <= 0 {
		return 1
	}
	return r.HorizonDays
}

// Assets returns the position asset ids, sorted.
func (r Request) Assets() []string {
	assets := make([]string, 0, len(r.Positions))
	for asset := range r.Positions {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets
}

// VaRReport is the outcome of one calculation.
type VaRReport struct {
	ID string `json:"id"`
	// ValueAtRisk is total value minus the simulated value at the confidence
	// quantile. It is intentionally not floored at zero, so a profit-skewed
	// simulation reports a negative VaR.
	ValueAtRisk       float64 `json:"value_at_risk"`
	ExpectedShortfall float64 `json:"expected_shortfall"`
	// AssetNames orders CorrelationMatrix (row-major, n*n) and
	// VolatilityPerAsset.
	AssetNames         []string  `json:"asset_names"`
	CorrelationMatrix  []float64 `json:"correlation_matrix"`
	VolatilityPerAsset []float64 `json:"volatility_per_asset"`
	SimulationMode     Mode      `json:"simulation_mode"`
	ConfidenceLevel    float64   `json:"confidence_level"`
	HorizonDays        float64   `json:"horizon_days"`
	TotalValue         float64   `json:"total_value"`
	Trials             int       `json:"trials"`
	Observations       int       `json:"observations"`
	Timestamp          time.Time `json:"timestamp"`
}

// AssetHistory describes one tracked asset.
type AssetHistory struct {
	Asset  string `json:"asset"`
	Length int    `json:"length"`
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
