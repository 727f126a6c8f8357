package risk

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// CovarianceModel summarizes the aligned return history of a set of assets.
// Index j of Mean, Cov and the derived views refers to Assets[j].
type CovarianceModel struct {
	Assets       []string
	Observations int
	Mean         *mat.VecDense
	Cov          *mat.SymDense
}

// EstimateCovariance builds the mean vector and sample covariance matrix
// (N-1 denominator) from the first L returns of every asset, where L is the
// common length of the requested series.
//
// Fewer than two aligned observations yields ErrInsufficientData rather than
// a degenerate matrix.
func EstimateCovariance(store *ReturnStore, assets []string) (*CovarianceModel, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("%w: no assets to estimate", ErrInvalidInput)
	}

	l := store.CommonLength(assets)
	if l < 2 {
		return nil, fmt.Errorf("%w: %d aligned observations across %d assets", ErrInsufficientData, l, len(assets))
	}

	n := len(assets)

	// Rows are days (oldest first), columns are assets
	data := mat.NewDense(l, n, nil)
	mean := mat.NewVecDense(n, nil)
	for j, asset := range assets {
		col := store.head(asset, l)
		data.SetCol(j, col)
		mean.SetVec(j, stat.Mean(col, nil))
	}

	cov := mat.NewSymDense(n, nil)
	stat.CovarianceMatrix(cov, data, nil)

	names := make([]string, n)
	copy(names, assets)

	return &CovarianceModel{
		Assets:       names,
		Observations: l,
		Mean:         mean,
		Cov:          cov,
	}, nil
}

// Dim returns the number of assets in the model.
func (m *CovarianceModel) Dim() int {
	return len(m.Assets)
}

// Volatilities returns sqrt(|cov_jj|) for every asset.
func (m *CovarianceModel) Volatilities() []float64 {
	n := m.Dim()
	vols := make([]float64, n)
	for j := 0; j < n; j++ {
		vols[j] = math.Sqrt(math.Abs(m.Cov.At(j, j)))
	}
	return vols
}

// Correlation returns the row-major flattened correlation matrix.
// correlation(i,j) = cov(i,j) / (std_i * std_j), and 0 whenever either
// standard deviation is 0.
func (m *CovarianceModel) Correlation() []float64 {
	n := m.Dim()
	vols := m.Volatilities()

	corr := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if vols[i] == 0 || vols[j] == 0 {
				continue
			}
			c := m.Cov.At(i, j) / (vols[i] * vols[j])
			// Rounding can push perfectly correlated pairs just past 1
			corr[i*n+j] = math.Max(-1, math.Min(1, c))
		}
	}
	return corr
}
