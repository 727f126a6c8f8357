package risk

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	return newEngine(Config{}, testSource(), nil, logger)
}

// syntheticReturns produces a deterministic, realistic-looking daily return
// series. Different phases keep two series from being collinear.
func syntheticReturns(days int, drift, scale, phase float64) []float64 {
	rets := make([]float64, days)
	for i := range rets {
		x := float64(i)
		rets[i] = drift + scale*math.Sin(0.7*x+phase) + 0.4*scale*math.Cos(1.9*x+2*phase)
	}
	return rets
}

func TestNewEngine_SeedsFromEntropy(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	engine, err := NewEngine(Config{Trials: 1000}, nil, logger)
	require.NoError(t, err)

	report, err := engine.Calculate(context.Background(), Request{
		Positions:  map[string]float64{"A": 100},
		TotalValue: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, 1000, report.Trials)
}

func TestEngine_VaRRespectsConfidenceLevel(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.AppendReturns(ctx, "BTC-USD", []float64{100.0, 101.0, 99.5, 101.5, 102.7, 101.2})
	require.NoError(t, err)

	req := Request{
		Positions:   map[string]float64{"BTC-USD": 1.0},
		TotalValue:  10_000,
		HorizonDays: 1,
	}

	req.ConfidenceLevel = 0.90
	low, err := engine.Calculate(ctx, req)
	require.NoError(t, err)

	req.ConfidenceLevel = 0.99
	high, err := engine.Calculate(ctx, req)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, high.ValueAtRisk, low.ValueAtRisk, "higher confidence should not reduce VaR")
}

func TestEngine_MonotonicAcrossConfidenceLevels(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.AppendReturns(ctx, "A", syntheticReturns(200, 0.0005, 0.02, 0))
	require.NoError(t, err)
	_, err = engine.AppendReturns(ctx, "B", syntheticReturns(200, 0.0002, 0.015, 1.3))
	require.NoError(t, err)

	req := Request{
		Positions:  map[string]float64{"A": 6000, "B": 4000},
		TotalValue: 10_000,
	}

	prev := math.Inf(-1)
	for _, confidence := range []float64{0.80, 0.90, 0.95, 0.99} {
		req.ConfidenceLevel = confidence
		report, err := engine.Calculate(ctx, req)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, report.ValueAtRisk, prev, "confidence %v", confidence)
		prev = report.ValueAtRisk
	}
}

func TestEngine_StaticFallbackWithoutHistory(t *testing.T) {
	engine := newTestEngine(t)

	report, err := engine.Calculate(context.Background(), Request{
		Positions:       map[string]float64{"A": 10_000},
		TotalValue:      10_000,
		ConfidenceLevel: 0.95,
	})
	require.NoError(t, err)

	assert.Equal(t, ModeStaticFallback, report.SimulationMode)
	assert.Greater(t, report.ValueAtRisk, 0.0)
	assert.Less(t, report.ValueAtRisk, 10_000.0)

	assert.Equal(t, []string{"A"}, report.AssetNames)
	assert.Equal(t, []float64{0}, report.CorrelationMatrix)
	assert.Equal(t, []float64{0}, report.VolatilityPerAsset)
	assert.Equal(t, DefaultTrials, report.Trials)
	assert.Equal(t, 0, report.Observations)
}

func TestEngine_StaticFallbackWhenAnyAssetIsShort(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.AppendReturns(ctx, "A", syntheticReturns(100, 0, 0.01, 0))
	require.NoError(t, err)
	require.NoError(t, engine.AppendReturn(ctx, "B", 0.01))

	report, err := engine.Calculate(ctx, Request{
		Positions:  map[string]float64{"A": 1, "B": 1},
		TotalValue: 1000,
	})
	require.NoError(t, err)

	assert.Equal(t, ModeStaticFallback, report.SimulationMode)
	assert.Equal(t, 1, report.Observations)
}

func TestEngine_CorrelatedWithRealisticData(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.AppendReturns(ctx, "A", syntheticReturns(100, 0.0008, 0.02, 0))
	require.NoError(t, err)
	_, err = engine.AppendReturns(ctx, "B", syntheticReturns(100, 0.0004, 0.012, 0.9))
	require.NoError(t, err)

	report, err := engine.Calculate(ctx, Request{
		Positions:       map[string]float64{"B": 5000, "A": 10_000},
		TotalValue:      15_000,
		ConfidenceLevel: 0.99,
	})
	require.NoError(t, err)

	assert.Equal(t, ModeCorrelated, report.SimulationMode)
	assert.Greater(t, report.ValueAtRisk, 0.0)
	assert.Less(t, report.ValueAtRisk, 15_000.0)
	assert.GreaterOrEqual(t, report.ExpectedShortfall, report.ValueAtRisk)

	// Diagnostics are ordered by asset name
	assert.Equal(t, []string{"A", "B"}, report.AssetNames)
	require.Len(t, report.CorrelationMatrix, 4)
	assert.InDelta(t, 1.0, report.CorrelationMatrix[0], 1e-9)
	assert.InDelta(t, 1.0, report.CorrelationMatrix[3], 1e-9)
	assert.Equal(t, report.CorrelationMatrix[1], report.CorrelationMatrix[2])
	require.Len(t, report.VolatilityPerAsset, 2)
	assert.Greater(t, report.VolatilityPerAsset[0], report.VolatilityPerAsset[1])
	assert.Equal(t, 100, report.Observations)
}

func TestEngine_IdenticalSeriesResolveToDiagonalFallback(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	series := syntheticReturns(150, 0.0003, 0.015, 0.4)
	_, err := engine.AppendReturns(ctx, "AAA", series)
	require.NoError(t, err)
	_, err = engine.AppendReturns(ctx, "BBB", series)
	require.NoError(t, err)

	report, err := engine.Calculate(ctx, Request{
		Positions:  map[string]float64{"AAA": 500, "BBB": 500},
		TotalValue: 1000,
	})
	require.NoError(t, err)

	assert.Equal(t, ModeDiagonalFallback, report.SimulationMode)
	assert.InDelta(t, 1.0, report.CorrelationMatrix[1], 1e-9)
	assert.False(t, math.IsNaN(report.ValueAtRisk))
}

func TestEngine_DefaultsConfidenceAndHorizon(t *testing.T) {
	engine := newTestEngine(t)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	engine.now = func() time.Time { return fixed }

	report, err := engine.Calculate(context.Background(), Request{
		Positions:  map[string]float64{"A": 1},
		TotalValue: 100,
	})
	require.NoError(t, err)

	assert.Equal(t, DefaultConfidence, report.ConfidenceLevel)
	assert.Equal(t, 1.0, report.HorizonDays)
	assert.Equal(t, fixed, report.Timestamp)
	assert.NotEmpty(t, report.ID)
}

func TestEngine_HorizonIsNotUsedForScaling(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	req := Request{
		Positions:       map[string]float64{"A": 1},
		TotalValue:      100,
		ConfidenceLevel: 0.95,
	}

	// Same seed, same draws: only the echoed horizon may differ
	one := newEngine(Config{}, testSource(), nil, logger)
	req.HorizonDays = 1
	r1, err := one.Calculate(ctx, req)
	require.NoError(t, err)

	ten := newEngine(Config{}, testSource(), nil, logger)
	req.HorizonDays = 10
	r10, err := ten.Calculate(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, r1.ValueAtRisk, r10.ValueAtRisk)
	assert.Equal(t, 10.0, r10.HorizonDays)
}

func TestEngine_InvalidInput(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	testCases := []struct {
		name string
		req  Request
	}{
		{"nil positions", Request{TotalValue: 100}},
		{"empty positions", Request{Positions: map[string]float64{}, TotalValue: 100}},
		{"zero total value", Request{Positions: map[string]float64{"A": 1}}},
		{"negative total value", Request{Positions: map[string]float64{"A": 1}, TotalValue: -5}},
		{"infinite total value", Request{Positions: map[string]float64{"A": 1}, TotalValue: math.Inf(1)}},
		{"nan quantity", Request{Positions: map[string]float64{"A": math.NaN()}, TotalValue: 100}},
		{"empty asset id", Request{Positions: map[string]float64{"": 1}, TotalValue: 100}},
		{"nan confidence", Request{Positions: map[string]float64{"A": 1}, TotalValue: 100, ConfidenceLevel: math.NaN()}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			report, err := engine.Calculate(ctx, tc.req)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Nil(t, report)
		})
	}
}

func TestEngine_UnavailableWhenLockNotObtained(t *testing.T) {
	engine := newTestEngine(t)

	// Hold the engine lock as if another calculation were running
	engine.sem <- struct{}{}
	defer engine.release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := engine.Calculate(ctx, Request{
		Positions:  map[string]float64{"A": 1},
		TotalValue: 100,
	})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = engine.AppendReturns(ctx, "A", []float64{0.01})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestEngine_AppendDropsNonFinite(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	n, err := engine.AppendReturns(ctx, "A", []float64{0.01, math.NaN(), math.Inf(-1), 0.02})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rets, err := engine.Returns(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.01, 0.02}, rets)
}

func TestEngine_Assets(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.AppendReturn(ctx, "ETH-USD", 0.01))
	_, err := engine.AppendReturns(ctx, "BTC-USD", []float64{0.01, 0.02})
	require.NoError(t, err)

	assets, err := engine.Assets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []AssetHistory{
		{Asset: "BTC-USD", Length: 2},
		{Asset: "ETH-USD", Length: 1},
	}, assets)
}

func TestEngine_ConcurrentCalculateAndAppend(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	engine := newEngine(Config{Trials: 500}, testSource(), nil, logger)
	ctx := context.Background()

	_, err := engine.AppendReturns(ctx, "A", syntheticReturns(50, 0, 0.01, 0))
	require.NoError(t, err)
	_, err = engine.AppendReturns(ctx, "B", syntheticReturns(50, 0, 0.02, 1))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 40)

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := engine.AppendReturns(ctx, "A", []float64{0.001 * float64(i%5)})
			errs <- err
		}(i)
		go func() {
			defer wg.Done()
			report, err := engine.Calculate(ctx, Request{
				Positions:  map[string]float64{"A": 1, "B": 1},
				TotalValue: 2,
			})
			if err == nil {
				assert.Equal(t, 500, report.Trials)
			}
			errs <- err
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	rets, err := engine.Returns(ctx, "A")
	require.NoError(t, err)
	assert.Len(t, rets, 70)
}

func TestEngine_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	engine := newEngine(Config{Trials: 100}, testSource(), metrics, logger)
	ctx := context.Background()

	_, err := engine.AppendReturns(ctx, "A", []float64{0.01, math.NaN()})
	require.NoError(t, err)

	_, err = engine.Calculate(ctx, Request{Positions: map[string]float64{"A": 1}, TotalValue: 10})
	require.NoError(t, err)
	_, err = engine.Calculate(ctx, Request{})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.calculations.WithLabelValues(string(ModeStaticFallback))))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.rejections.WithLabelValues("invalid_input")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.appended))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.dropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.trackedAssets))
}
