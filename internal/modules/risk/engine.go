// Package risk implements the Monte Carlo Value-at-Risk engine: a rolling
// store of daily returns, covariance estimation, correlated and fallback
// simulation, and quantile extraction.
package risk

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config holds engine tuning.
type Config struct {
	Trials             int
	HistoryCap         int
	FallbackVolatility float64
}

// Engine owns the return history and the random generator and serializes
// every operation that touches either of them.
//
// sem is a one-slot semaphore; acquisition observes the caller's context.
// Once acquired, a calculation runs to completion.
type Engine struct {
	sem     chan struct{}
	store   *ReturnStore
	sim     *Simulator
	metrics *Metrics
	log     zerolog.Logger
	now     func() time.Time
}

// NewEngine creates an engine whose generator is seeded once from the
// operating system's entropy source.
func NewEngine(cfg Config, metrics *Metrics, log zerolog.Logger) (*Engine, error) {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("failed to seed random source: %w", err)
	}
	return newEngine(cfg, rand.NewChaCha8(seed), metrics, log), nil
}

func newEngine(cfg Config, src rand.Source, metrics *Metrics, log zerolog.Logger) *Engine {
	store := NewReturnStore(cfg.HistoryCap)
	sim := NewSimulator(cfg.Trials, cfg.FallbackVolatility, src)

	e := &Engine{
		sem:     make(chan struct{}, 1),
		store:   store,
		sim:     sim,
		metrics: metrics,
		log:     log.With().Str("component", "risk_engine").Logger(),
		now:     time.Now,
	}

	e.log.Info().
		Int("trials", sim.Trials()).
		Int("history_cap", store.Cap()).
		Float64("fallback_volatility", sim.fallbackVolatility).
		Msg("Risk engine initialized")

	return e
}

func (e *Engine) acquire(ctx context.Context) error {
	// Fast path so an already-cancelled context does not lose to a free lock
	select {
	case e.sem <- struct{}{}:
		return nil
	default:
	}

	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
	}
}

func (e *Engine) release() {
	<-e.sem
}

// Calculate runs estimation, simulation and quantile extraction for req.
//
// It fails only with ErrInvalidInput or ErrUnavailable. Short histories and
// non-positive-definite covariance are reported through SimulationMode.
func (e *Engine) Calculate(ctx context.Context, req Request) (*VaRReport, error) {
	if err := req.Validate(); err != nil {
		e.metrics.observeRejection("invalid_input")
		return nil, err
	}

	assets := req.Assets()
	confidence := req.Confidence()

	if err := e.acquire(ctx); err != nil {
		e.metrics.observeRejection("unavailable")
		e.log.Warn().Err(err).Int("assets", len(assets)).Msg("Could not acquire risk engine")
		return nil, err
	}
	defer e.release()

	start := time.Now()

	weights := make([]float64, len(assets))
	for j, asset := range assets {
		weights[j] = req.Positions[asset] / req.TotalValue
	}

	plan := Plan{TotalValue: req.TotalValue, Weights: weights}

	// Static fallback reports zero volatility and correlation, matching a
	// covariance estimate over fewer than two rows
	n := len(assets)
	correlation := make([]float64, n*n)
	volatility := make([]float64, n)
	observations := e.store.CommonLength(assets)

	model, err := EstimateCovariance(e.store, assets)
	switch {
	case err == nil:
		plan.Model = model
		plan.Factorization = Factorize(model.Cov)
		correlation = model.Correlation()
		volatility = model.Volatilities()
	case errors.Is(err, ErrInsufficientData):
		e.log.Debug().Err(err).Msg("Falling back to static volatility")
	default:
		// Only reachable with an empty asset list, which Validate rejects
		return nil, err
	}

	res := e.sim.Run(plan)

	report := &VaRReport{
		ID:                 uuid.NewString(),
		ValueAtRisk:        ValueAtRisk(req.TotalValue, res.Values, confidence),
		ExpectedShortfall:  ExpectedShortfall(req.TotalValue, res.Values, confidence),
		AssetNames:         assets,
		CorrelationMatrix:  correlation,
		VolatilityPerAsset: volatility,
		SimulationMode:     res.Mode,
		ConfidenceLevel:    confidence,
		HorizonDays:        req.Horizon(),
		TotalValue:         req.TotalValue,
		Trials:             len(res.Values),
		Observations:       observations,
		Timestamp:          e.now().UTC(),
	}

	elapsed := time.Since(start)
	e.metrics.observeCalculation(res.Mode, elapsed)

	e.log.Debug().
		Str("id", report.ID).
		Str("mode", string(res.Mode)).
		Int("assets", n).
		Int("observations", observations).
		Float64("confidence", confidence).
		Float64("var", report.ValueAtRisk).
		Dur("duration", elapsed).
		Msg("VaR calculated")

	return report, nil
}

// AppendReturn appends one daily return for asset.
func (e *Engine) AppendReturn(ctx context.Context, asset string, value float64) error {
	_, err := e.AppendReturns(ctx, asset, []float64{value})
	return err
}

// AppendReturns appends values oldest-first and returns the resulting series
// length. Non-finite values are dropped with a warning.
func (e *Engine) AppendReturns(ctx context.Context, asset string, values []float64) (int, error) {
	if err := e.acquire(ctx); err != nil {
		return 0, err
	}
	defer e.release()

	appended, dropped := 0, 0
	for _, v := range values {
		if !isFinite(v) {
			dropped++
			continue
		}
		e.store.Append(asset, v)
		appended++
	}

	if dropped > 0 {
		e.log.Warn().Str("asset", asset).Int("dropped", dropped).Msg("Dropped non-finite returns")
	}

	length := e.store.Len(asset)
	e.metrics.observeAppend(appended, dropped, len(e.store.series))
	return length, nil
}

// Returns returns a copy of the stored returns for asset, oldest first.
func (e *Engine) Returns(ctx context.Context, asset string) ([]float64, error) {
	if err := e.acquire(ctx); err != nil {
		return nil, err
	}
	defer e.release()

	return e.store.Returns(asset), nil
}

// Assets lists every tracked asset with its stored history length.
func (e *Engine) Assets(ctx context.Context) ([]AssetHistory, error) {
	if err := e.acquire(ctx); err != nil {
		return nil, err
	}
	defer e.release()

	names := e.store.Assets()
	out := make([]AssetHistory, len(names))
	for i, name := range names {
		out[i] = AssetHistory{Asset: name, Length: e.store.Len(name)}
	}
	return out, nil
}
