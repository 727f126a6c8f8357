package risk

import (
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultTrials is the number of Monte Carlo trials per calculation.
	DefaultTrials = 10_000
	// DefaultFallbackVolatility is the daily volatility assumed when history
	// is too short to estimate one.
	DefaultFallbackVolatility = 0.02
)

// Mode identifies how simulated returns were generated.
type Mode string

const (
	ModeCorrelated       Mode = "correlated"
	ModeDiagonalFallback Mode = "diagonal_fallback"
	ModeStaticFallback   Mode = "static_fallback"
)

// Plan is the input of one simulation run.
type Plan struct {
	TotalValue float64
	// Weights[j] is position_j / TotalValue, aligned with Model.Assets.
	Weights []float64
	// Model is nil when the history was insufficient.
	Model         *CovarianceModel
	Factorization Factorization
}

// SimulationResult holds the simulated terminal portfolio values in
// ascending order.
type SimulationResult struct {
	Mode   Mode
	Values []float64
}

// Simulator runs a fixed number of Monte Carlo trials against a single
// random source. It is not safe for concurrent use.
type Simulator struct {
	trials             int
	fallbackVolatility float64
	rng                *rand.Rand
}

// NewSimulator creates a simulator drawing from src. Non-positive trials or
// volatility fall back to the package defaults.
func NewSimulator(trials int, fallbackVolatility float64, src rand.Source) *Simulator {
	if trials <= 0 {
		trials = DefaultTrials
	}
	if fallbackVolatility <= 0 {
		fallbackVolatility = DefaultFallbackVolatility
	}
	return &Simulator{
		trials:             trials,
		fallbackVolatility: fallbackVolatility,
		rng:                rand.New(src),
	}
}

// Trials returns the number of trials per run.
func (s *Simulator) Trials() int {
	return s.trials
}

// Run selects the simulation mode from the plan and returns sorted values.
//
// Mode selection:
//   - no model (insufficient history): static fallback
//   - factorized covariance: correlated
//   - otherwise: diagonal fallback
func (s *Simulator) Run(plan Plan) SimulationResult {
	var res SimulationResult

	switch {
	case plan.Model == nil:
		res = SimulationResult{Mode: ModeStaticFallback, Values: s.static(plan.TotalValue)}
	case plan.Factorization.Ok():
		res = SimulationResult{Mode: ModeCorrelated, Values: s.correlated(plan)}
	default:
		res = SimulationResult{Mode: ModeDiagonalFallback, Values: s.diagonal(plan)}
	}

	sort.Float64s(res.Values)
	return res
}

// static applies a single N(0, fallbackVolatility) shock to the whole
// portfolio per trial.
func (s *Simulator) static(totalValue float64) []float64 {
	values := make([]float64, s.trials)
	for t := range values {
		values[t] = totalValue * (1 + s.normal(0, s.fallbackVolatility))
	}
	return values
}

// correlated draws r = L*z + mean with z ~ N(0, I).
func (s *Simulator) correlated(plan Plan) []float64 {
	model := plan.Model
	n := model.Dim()

	z := mat.NewVecDense(n, nil)
	r := mat.NewVecDense(n, nil)

	values := make([]float64, s.trials)
	for t := range values {
		for j := 0; j < n; j++ {
			z.SetVec(j, s.rng.NormFloat64())
		}
		r.MulVec(plan.Factorization.L, z)
		r.AddVec(r, model.Mean)

		values[t] = plan.TotalValue * (1 + weightedSum(plan.Weights, r))
	}
	return values
}

// diagonal samples each asset independently from N(mean_j, sqrt(|cov_jj|)).
func (s *Simulator) diagonal(plan Plan) []float64 {
	model := plan.Model
	n := model.Dim()
	vols := model.Volatilities()

	means := make([]float64, n)
	for j := range means {
		means[j] = model.Mean.AtVec(j)
	}

	values := make([]float64, s.trials)
	for t := range values {
		portfolioReturn := 0.0
		for j, w := range plan.Weights {
			portfolioReturn += w * s.normal(means[j], vols[j])
		}
		values[t] = plan.TotalValue * (1 + portfolioReturn)
	}
	return values
}

// normal draws from N(mu, sigma) on the simulator's generator
func (s *Simulator) normal(mu, sigma float64) float64 {
	return s.rng.NormFloat64()*sigma + mu
}

func weightedSum(weights []float64, r mat.Vector) float64 {
	sum := 0.0
	for j, w := range weights {
		sum += w * r.AtVec(j)
	}
	return sum
}
