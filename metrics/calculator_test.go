package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/quantfolio/pkg/formulas"
	"github.com/quantfolio/quantfolio/portfolio"
)

// blendedFixture is the [0.6, 0.4] two-asset scenario:
// 0.6*[0.01,-0.02,0.03] + 0.4*[0.00,0.01,-0.01].
var blendedFixture = []float64{0.006, -0.008, 0.014}

func TestSharpe(t *testing.T) {
	sharpe, err := Sharpe(blendedFixture, 0.04, 252)
	require.NoError(t, err)

	annRet := math.Pow(1+0.004, 252) - 1
	annVol := formulas.StdDev(blendedFixture) * math.Sqrt(252)
	assert.InDelta(t, (annRet-0.04)/annVol, sharpe, 1e-9)
}

func TestSharpe_Degenerate(t *testing.T) {
	_, err := Sharpe([]float64{0.01}, 0.04, 252)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = Sharpe([]float64{0.01, 0.01, 0.01}, 0.04, 252)
	assert.ErrorIs(t, err, ErrZeroVolatility)
}

func TestSortino_PenalizesOnlyDownside(t *testing.T) {
	// Same mean and variance, downside concentrated differently.
	mild := []float64{0.02, -0.005, 0.02, -0.005}
	harsh := []float64{0.01, -0.03, 0.04, 0.01}

	mildScore, err := Sortino(mild, 0, 0, 252)
	require.NoError(t, err)
	harshScore, err := Sortino(harsh, 0, 0, 252)
	require.NoError(t, err)

	assert.Greater(t, mildScore, harshScore)
}

func TestSortino_NoDownside(t *testing.T) {
	_, err := Sortino([]float64{0.01, 0.02, 0.03}, 0, 0, 252)
	assert.ErrorIs(t, err, ErrZeroVolatility)
}

func TestCalmar(t *testing.T) {
	assert.InDelta(t, 2.0, Calmar(0.10, 0.05), 1e-9)
	assert.Equal(t, 0.0, Calmar(0.10, 0), "zero drawdown yields 0, not infinity")
}

func TestBeta(t *testing.T) {
	bench := []float64{0.01, -0.02, 0.015, -0.005, 0.02}

	beta, err := Beta(bench, bench)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, beta, 1e-9, "series vs itself")

	levered := make([]float64, len(bench))
	for i, r := range bench {
		levered[i] = 2 * r
	}
	beta, err = Beta(levered, bench)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, beta, 1e-9)
}

func TestBeta_Errors(t *testing.T) {
	_, err := Beta([]float64{0.01}, []float64{0.01})
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = Beta([]float64{0.01, 0.02}, []float64{0.01})
	assert.ErrorIs(t, err, portfolio.ErrMisalignedSeries)

	_, err = Beta([]float64{0.01, 0.02}, []float64{0.01, 0.01})
	assert.ErrorIs(t, err, ErrZeroVolatility)
}

func TestAlpha(t *testing.T) {
	// Portfolio exactly on the security market line has zero alpha.
	assert.InDelta(t, 0.0, Alpha(0.10, 0.10, 1.0, 0.04), 1e-12)
	assert.InDelta(t, 0.02, Alpha(0.12, 0.10, 1.0, 0.04), 1e-12)
}

func TestInformationRatio(t *testing.T) {
	returns := []float64{0.012, -0.018, 0.017, -0.003, 0.022}
	bench := []float64{0.01, -0.02, 0.015, -0.005, 0.02}

	ir, err := InformationRatio(returns, bench, 252)
	require.NoError(t, err)
	assert.Greater(t, ir, 0.0, "consistently beating the benchmark")

	_, err = InformationRatio(bench, bench, 252)
	assert.ErrorIs(t, err, ErrZeroVolatility, "zero tracking error")
}

func TestConcentration(t *testing.T) {
	hhi, effN, err := Concentration(portfolio.WeightVector{"A": 0.25, "B": 0.25, "C": 0.25, "D": 0.25})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, hhi, 1e-9)
	assert.InDelta(t, 4.0, effN, 1e-9)

	hhi, effN, err = Concentration(portfolio.WeightVector{"A": 1})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, hhi, 1e-9)
	assert.InDelta(t, 1.0, effN, 1e-9)
}

func TestConcentration_InvalidWeights(t *testing.T) {
	_, _, err := Concentration(portfolio.WeightVector{"A": 0.5, "B": 0.3})
	assert.ErrorIs(t, err, ErrInvalidWeights)

	_, _, err = Concentration(nil)
	assert.ErrorIs(t, err, ErrInvalidWeights)
}

func TestCompute_FullBundle(t *testing.T) {
	returns := []float64{0.012, -0.018, 0.017, -0.003, 0.022, -0.009, 0.005, 0.011}
	bench := []float64{0.01, -0.02, 0.015, -0.005, 0.02, -0.01, 0.004, 0.01}

	result, err := Compute(returns, bench, Options{
		RiskFreeRate:   0.04,
		PeriodsPerYear: 252,
		Confidence:     0.95,
		Weights:        portfolio.WeightVector{"A": 0.5, "B": 0.5},
	})
	require.NoError(t, err)

	assert.InDelta(t, formulas.AnnualizedReturn(returns, 252), result.AnnualizedReturn, 1e-9)
	assert.InDelta(t, formulas.AnnualizedVolatility(returns, 252), result.AnnualizedVolatility, 1e-9)
	assert.GreaterOrEqual(t, result.CVaR, result.VaR)
	assert.GreaterOrEqual(t, result.MaxDrawdown, 0.0)
	assert.LessOrEqual(t, result.MaxDrawdown, 1.0)
	assert.InDelta(t, 0.625, result.WinRate, 1e-9)
	assert.InDelta(t, 0.5, result.HHI, 1e-9)
	assert.InDelta(t, 2.0, result.EffectiveN, 1e-9)

	require.NotNil(t, result.VsBenchmark)
	assert.Greater(t, result.VsBenchmark.Beta, 0.0)
	assert.Greater(t, result.VsBenchmark.ExcessReturn, 0.0)
}

func TestCompute_NoBenchmark(t *testing.T) {
	result, err := Compute(blendedFixture, nil, DefaultOptions())
	require.NoError(t, err)
	assert.Nil(t, result.VsBenchmark)
	assert.Zero(t, result.HHI)
}

func TestCompute_InsufficientData(t *testing.T) {
	_, err := Compute([]float64{0.01}, nil, DefaultOptions())
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestCompute_InvalidWeightsRejected(t *testing.T) {
	opts := DefaultOptions()
	opts.Weights = portfolio.WeightVector{"A": 0.9}
	_, err := Compute(blendedFixture, nil, opts)
	assert.ErrorIs(t, err, ErrInvalidWeights)
}
