package risk

import "gonum.org/v1/gonum/mat"

// maxConditionNumber rejects factors of numerically singular matrices. Two
// identical return series can leave a tiny positive pivot that LAPACK accepts.
const maxConditionNumber = 1e12

// FactorOutcome tags the result of a Cholesky factorization attempt.
type FactorOutcome int

const (
	// NotPositiveDefinite means the covariance matrix has no Cholesky factor.
	NotPositiveDefinite FactorOutcome = iota
	// Factorized means L holds the lower-triangular factor.
	Factorized
)

func (o FactorOutcome) String() string {
	if o == Factorized {
		return "factorized"
	}
	return "not_positive_definite"
}

// Factorization is the explicit outcome of factorizing a covariance matrix.
// It selects between the correlated and the diagonal simulation modes.
type Factorization struct {
	Outcome FactorOutcome
	L       *mat.TriDense
}

// Factorize attempts cov = L * Lᵀ.
func Factorize(cov mat.Symmetric) Factorization {
	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok || chol.Cond() > maxConditionNumber {
		return Factorization{Outcome: NotPositiveDefinite}
	}

	var l mat.TriDense
	chol.LTo(&l)

	return Factorization{Outcome: Factorized, L: &l}
}

// Ok reports whether a lower-triangular factor is available.
func (f Factorization) Ok() bool {
	return f.Outcome == Factorized && f.L != nil
}
