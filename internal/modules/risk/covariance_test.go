package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func storeWith(series map[string][]float64) *ReturnStore {
	store := NewReturnStore(DefaultHistoryCap)
	for asset, rets := range series {
		for _, r := range rets {
			store.Append(asset, r)
		}
	}
	return store
}

func TestEstimateCovariance_SampleCovariance(t *testing.T) {
	store := storeWith(map[string][]float64{
		"A": {1, 2, 3, 4},
		"B": {4, 3, 2, 1},
	})

	model, err := EstimateCovariance(store, []string{"A", "B"})
	require.NoError(t, err)

	assert.Equal(t, 4, model.Observations)
	assert.InDelta(t, 2.5, model.Mean.AtVec(0), 1e-12)
	assert.InDelta(t, 2.5, model.Mean.AtVec(1), 1e-12)

	// Sample variance of 1..4 with N-1 denominator is 5/3
	assert.InDelta(t, 5.0/3.0, model.Cov.At(0, 0), 1e-12)
	assert.InDelta(t, 5.0/3.0, model.Cov.At(1, 1), 1e-12)
	assert.InDelta(t, -5.0/3.0, model.Cov.At(0, 1), 1e-12)
	assert.Equal(t, model.Cov.At(0, 1), model.Cov.At(1, 0), "covariance must be symmetric")
}

func TestEstimateCovariance_UsesOldestEntriesUpToCommonLength(t *testing.T) {
	store := storeWith(map[string][]float64{
		"A": {1, 2, 3, 100, 200},
		"B": {1, 2, 3},
	})

	model, err := EstimateCovariance(store, []string{"A", "B"})
	require.NoError(t, err)

	assert.Equal(t, 3, model.Observations)
	// Only the first three entries of A take part
	assert.InDelta(t, 2.0, model.Mean.AtVec(0), 1e-12)
	assert.InDelta(t, 1.0, model.Cov.At(0, 0), 1e-12)
}

func TestEstimateCovariance_InsufficientData(t *testing.T) {
	store := storeWith(map[string][]float64{
		"A": {0.01, 0.02, 0.03},
		"B": {0.01},
	})

	_, err := EstimateCovariance(store, []string{"A", "B"})
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = EstimateCovariance(store, []string{"A", "UNSEEN"})
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = EstimateCovariance(store, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCovarianceModel_CorrelationAndVolatility(t *testing.T) {
	store := storeWith(map[string][]float64{
		"A": {1, 2, 3, 4},
		"B": {4, 3, 2, 1},
		"C": {5, 5, 5, 5},
	})

	model, err := EstimateCovariance(store, []string{"A", "B", "C"})
	require.NoError(t, err)

	corr := model.Correlation()
	require.Len(t, corr, 9)

	assert.InDelta(t, 1.0, corr[0], 1e-12)  // A,A
	assert.InDelta(t, -1.0, corr[1], 1e-12) // A,B
	assert.Equal(t, 0.0, corr[2])           // A,C: C has zero variance
	assert.Equal(t, 0.0, corr[8])           // C,C
	for _, c := range corr {
		assert.GreaterOrEqual(t, c, -1.0)
		assert.LessOrEqual(t, c, 1.0)
	}

	vols := model.Volatilities()
	require.Len(t, vols, 3)
	assert.InDelta(t, 1.2909944487, vols[0], 1e-9)
	assert.Equal(t, 0.0, vols[2])
}

func TestFactorize(t *testing.T) {
	pd := mat.NewSymDense(2, []float64{
		4, 2,
		2, 3,
	})
	f := Factorize(pd)
	require.True(t, f.Ok())
	assert.Equal(t, Factorized, f.Outcome)
	assert.InDelta(t, 2.0, f.L.At(0, 0), 1e-12)
	assert.InDelta(t, 1.0, f.L.At(1, 0), 1e-12)
	assert.InDelta(t, 1.4142135623, f.L.At(1, 1), 1e-9)
	assert.Equal(t, 0.0, f.L.At(0, 1), "factor must be lower triangular")

	indefinite := mat.NewSymDense(2, []float64{
		1, 2,
		2, 1,
	})
	f = Factorize(indefinite)
	assert.False(t, f.Ok())
	assert.Equal(t, NotPositiveDefinite, f.Outcome)
	assert.Nil(t, f.L)
	assert.Equal(t, "not_positive_definite", f.Outcome.String())
}

func TestFactorize_SingularFromIdenticalSeries(t *testing.T) {
	series := make([]float64, 120)
	for i := range series {
		series[i] = 0.01 * float64((i*7)%11-5)
	}
	store := storeWith(map[string][]float64{"A": series, "B": series})

	model, err := EstimateCovariance(store, []string{"A", "B"})
	require.NoError(t, err)

	assert.False(t, Factorize(model.Cov).Ok())
}
