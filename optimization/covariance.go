package optimization

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/quantfolio/quantfolio/pkg/formulas"
)

// CovarianceFromReturns builds the sample covariance matrix from per-asset
// return series. returns[i] is the series for symbols[i]; all series must
// have equal length and at least 2 observations.
func CovarianceFromReturns(returns [][]float64) (*mat.SymDense, error) {
	n := len(returns)
	if n == 0 {
		return nil, ErrNoAssets
	}
	obs := len(returns[0])
	if obs < 2 {
		return nil, fmt.Errorf("%w: need at least 2 observations, got %d", ErrDimensionMismatch, obs)
	}
	for i := 1; i < n; i++ {
		if len(returns[i]) != obs {
			return nil, fmt.Errorf("%w: series %d has %d observations, expected %d",
				ErrDimensionMismatch, i, len(returns[i]), obs)
		}
	}

	// stat.CovarianceMatrix wants observations in rows, assets in columns.
	data := mat.NewDense(obs, n, nil)
	for j, series := range returns {
		for i, r := range series {
			data.Set(i, j, r)
		}
	}

	cov := mat.NewSymDense(n, nil)
	stat.CovarianceMatrix(cov, data, nil)
	return cov, nil
}

// ExpectedReturns calculates the periodic mean return per asset, in the
// same order as the input series.
func ExpectedReturns(returns [][]float64) []float64 {
	mu := make([]float64, len(returns))
	for i, series := range returns {
		mu[i] = formulas.Mean(series)
	}
	return mu
}

// ensurePositiveDefinite returns a covariance matrix safe for the solver.
// A singular or indefinite matrix (fewer observations than assets,
// perfectly correlated series) gets diagonal loading: add epsilon*avgVar
// to the diagonal, doubling epsilon until Cholesky succeeds.
func ensurePositiveDefinite(cov *mat.SymDense) (*mat.SymDense, bool) {
	var chol mat.Cholesky
	if chol.Factorize(cov) {
		return cov, false
	}

	n := cov.SymmetricDim()
	avgVar := 0.0
	for i := 0; i < n; i++ {
		avgVar += cov.At(i, i)
	}
	avgVar /= float64(n)
	if avgVar <= 0 {
		avgVar = 1e-8
	}

	loaded := mat.NewSymDense(n, nil)
	for eps := 1e-8; eps <= 1; eps *= 2 {
		loaded.CopySym(cov)
		for i := 0; i < n; i++ {
			loaded.SetSym(i, i, cov.At(i, i)+eps*avgVar)
		}
		if chol.Factorize(loaded) {
			return loaded, true
		}
	}

	// Pathological input; fall back to a pure diagonal matrix.
	diag := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		diag.SetSym(i, i, avgVar)
	}
	return diag, true
}
