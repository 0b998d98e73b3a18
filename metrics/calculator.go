// Package metrics calculates risk/return metrics over a portfolio return
// series, optionally relative to a benchmark. All functions are pure and
// deterministic; degenerate inputs surface typed errors instead of NaN.
package metrics

import (
	"errors"
	"fmt"
	"math"

	"github.com/quantfolio/quantfolio/pkg/formulas"
	"github.com/quantfolio/quantfolio/portfolio"
)

// ConcentrationTolerance is the allowed weight-sum deviation for HHI.
const ConcentrationTolerance = 1e-4

var (
	// ErrInsufficientData indicates fewer than 2 usable observations.
	ErrInsufficientData = errors.New("insufficient data: need at least 2 observations")
	// ErrZeroVolatility indicates a ratio with a zero-volatility denominator.
	ErrZeroVolatility = errors.New("zero volatility: ratio undefined")
	// ErrInvalidWeights indicates a weight vector violating the sum-to-one invariant.
	ErrInvalidWeights = errors.New("invalid weights: sum deviates from 1")
)

// Options configures metric computation.
type Options struct {
	RiskFreeRate   float64 // Annual risk-free rate as a decimal
	TargetReturn   float64 // Annual minimum acceptable return for Sortino
	PeriodsPerYear int     // 252 daily, 52 weekly, 12 monthly
	Confidence     float64 // Confidence level for VaR/CVaR
	// Weights, when provided, adds concentration metrics (HHI, EffectiveN)
	// to the result. Validated against ConcentrationTolerance.
	Weights portfolio.WeightVector
}

// DefaultOptions returns options for daily data with a 4% risk-free rate
// and 95% tail confidence.
func DefaultOptions() Options {
	return Options{
		RiskFreeRate:   0.04,
		PeriodsPerYear: 252,
		Confidence:     0.95,
	}
}

// Benchmark holds metrics relative to a benchmark return series.
type Benchmark struct {
	Beta             float64 `json:"beta"`
	Alpha            float64 `json:"alpha"`
	InformationRatio float64 `json:"information_ratio"`
	ExcessReturn     float64 `json:"excess_return"`
}

// Result is an immutable bundle of scalar metrics for one return series.
type Result struct {
	AnnualizedReturn     float64    `json:"annualized_return"`
	AnnualizedVolatility float64    `json:"annualized_volatility"`
	Sharpe               float64    `json:"sharpe"`
	Sortino              float64    `json:"sortino"`
	Calmar               float64    `json:"calmar"`
	MaxDrawdown          float64    `json:"max_drawdown"`
	VaR                  float64    `json:"var"`
	CVaR                 float64    `json:"cvar"`
	Confidence           float64    `json:"confidence"`
	WinRate              float64    `json:"win_rate"`
	ProfitFactor         float64    `json:"profit_factor"`
	UlcerIndex           float64    `json:"ulcer_index"`
	HHI                  float64    `json:"hhi,omitempty"`
	EffectiveN           float64    `json:"effective_n,omitempty"`
	VsBenchmark          *Benchmark `json:"vs_benchmark,omitempty"`
}

// Sharpe calculates the annualized Sharpe ratio.
//
//	Sharpe = (annualizedReturn - riskFreeRate) / annualizedVolatility
func Sharpe(returns []float64, riskFreeRate float64, periodsPerYear int) (float64, error) {
	if len(returns) < 2 {
		return 0, ErrInsufficientData
	}

	vol := formulas.AnnualizedVolatility(returns, periodsPerYear)
	if vol == 0 {
		return 0, ErrZeroVolatility
	}

	return (formulas.AnnualizedReturn(returns, periodsPerYear) - riskFreeRate) / vol, nil
}

// Sortino calculates the annualized Sortino ratio, penalizing only
// volatility below the periodic target return.
//
//	downsideDev = sqrt(mean(min(r - target, 0)^2)) x sqrt(periodsPerYear)
func Sortino(returns []float64, riskFreeRate, targetReturn float64, periodsPerYear int) (float64, error) {
	if len(returns) < 2 {
		return 0, ErrInsufficientData
	}

	periodicTarget := targetReturn / float64(periodsPerYear)
	sumSquared := 0.0
	for _, r := range returns {
		if d := r - periodicTarget; d < 0 {
			sumSquared += d * d
		}
	}

	downsideDev := math.Sqrt(sumSquared/float64(len(returns))) * math.Sqrt(float64(periodsPerYear))
	if downsideDev == 0 {
		return 0, ErrZeroVolatility
	}

	return (formulas.AnnualizedReturn(returns, periodsPerYear) - riskFreeRate) / downsideDev, nil
}

// Calmar calculates annualized return per unit of maximum drawdown.
// Zero drawdown yields 0 rather than infinity.
func Calmar(annualizedReturn, maxDrawdown float64) float64 {
	if maxDrawdown == 0 {
		return 0
	}
	return annualizedReturn / maxDrawdown
}

// Beta calculates portfolio beta against a benchmark:
// Cov(port, bench) / Var(bench).
func Beta(returns, benchmark []float64) (float64, error) {
	if len(returns) != len(benchmark) {
		return 0, fmt.Errorf("%w: %d vs %d observations", portfolio.ErrMisalignedSeries, len(returns), len(benchmark))
	}
	if len(returns) < 2 {
		return 0, ErrInsufficientData
	}

	benchVar := formulas.Variance(benchmark)
	if benchVar == 0 {
		return 0, ErrZeroVolatility
	}

	return formulas.Covariance(returns, benchmark) / benchVar, nil
}

// Alpha calculates Jensen's alpha from annualized returns and beta.
//
//	Alpha = portReturn - (riskFree + Beta x (benchReturn - riskFree))
func Alpha(portReturn, benchReturn, beta, riskFreeRate float64) float64 {
	return portReturn - (riskFreeRate + beta*(benchReturn-riskFreeRate))
}

// InformationRatio calculates the annualized mean excess return over the
// benchmark per unit of tracking error.
func InformationRatio(returns, benchmark []float64, periodsPerYear int) (float64, error) {
	if len(returns) != len(benchmark) {
		return 0, fmt.Errorf("%w: %d vs %d observations", portfolio.ErrMisalignedSeries, len(returns), len(benchmark))
	}
	if len(returns) < 2 {
		return 0, ErrInsufficientData
	}

	excess := make([]float64, len(returns))
	for i := range returns {
		excess[i] = returns[i] - benchmark[i]
	}

	trackingError := formulas.StdDev(excess)
	if trackingError == 0 {
		return 0, ErrZeroVolatility
	}

	return formulas.Mean(excess) / trackingError * math.Sqrt(float64(periodsPerYear)), nil
}

// Concentration calculates the Herfindahl-Hirschman index and effective
// number of positions for a weight vector.
func Concentration(weights portfolio.WeightVector) (hhi, effectiveN float64, err error) {
	if len(weights) == 0 {
		return 0, 0, fmt.Errorf("%w: empty vector", ErrInvalidWeights)
	}
	if sum := weights.Sum(); math.Abs(sum-1) > ConcentrationTolerance {
		return 0, 0, fmt.Errorf("%w: sum=%v", ErrInvalidWeights, sum)
	}

	for _, w := range weights {
		hhi += w * w
	}
	return hhi, 1 / hhi, nil
}

// Compute calculates the full metric bundle for a return series.
// benchmark may be nil; when present it must align with returns.
func Compute(returns, benchmark []float64, opts Options) (Result, error) {
	if len(returns) < 2 {
		return Result{}, ErrInsufficientData
	}
	if opts.PeriodsPerYear <= 0 {
		opts.PeriodsPerYear = DefaultOptions().PeriodsPerYear
	}
	if opts.Confidence <= 0 || opts.Confidence >= 1 {
		opts.Confidence = DefaultOptions().Confidence
	}

	annReturn := formulas.AnnualizedReturn(returns, opts.PeriodsPerYear)
	annVol := formulas.AnnualizedVolatility(returns, opts.PeriodsPerYear)

	sharpe, err := Sharpe(returns, opts.RiskFreeRate, opts.PeriodsPerYear)
	if err != nil {
		return Result{}, fmt.Errorf("sharpe: %w", err)
	}

	// A series with no downside has an undefined Sortino; report 0 there
	// rather than failing the whole bundle.
	sortino, err := Sortino(returns, opts.RiskFreeRate, opts.TargetReturn, opts.PeriodsPerYear)
	if err != nil && !errors.Is(err, ErrZeroVolatility) {
		return Result{}, fmt.Errorf("sortino: %w", err)
	}

	values := valuePath(returns)
	maxDD := formulas.MaxDrawdown(values)

	result := Result{
		AnnualizedReturn:     annReturn,
		AnnualizedVolatility: annVol,
		Sharpe:               sharpe,
		Sortino:              sortino,
		Calmar:               Calmar(annReturn, maxDD),
		MaxDrawdown:          maxDD,
		VaR:                  formulas.VaR(returns, opts.Confidence),
		CVaR:                 formulas.CVaR(returns, opts.Confidence),
		Confidence:           opts.Confidence,
		WinRate:              formulas.WinRate(returns),
		ProfitFactor:         formulas.ProfitFactor(returns),
		UlcerIndex:           formulas.UlcerIndex(values),
	}

	if opts.Weights != nil {
		hhi, effN, err := Concentration(opts.Weights)
		if err != nil {
			return Result{}, err
		}
		result.HHI = hhi
		result.EffectiveN = effN
	}

	if benchmark != nil {
		beta, err := Beta(returns, benchmark)
		if err != nil {
			return Result{}, fmt.Errorf("beta: %w", err)
		}
		ir, err := InformationRatio(returns, benchmark, opts.PeriodsPerYear)
		if err != nil && !errors.Is(err, ErrZeroVolatility) {
			return Result{}, fmt.Errorf("information ratio: %w", err)
		}

		benchReturn := formulas.AnnualizedReturn(benchmark, opts.PeriodsPerYear)
		result.VsBenchmark = &Benchmark{
			Beta:             beta,
			Alpha:            Alpha(annReturn, benchReturn, beta, opts.RiskFreeRate),
			InformationRatio: ir,
			ExcessReturn:     annReturn - benchReturn,
		}
	}

	return result, nil
}

// valuePath compounds returns into a unit-initial value series.
func valuePath(returns []float64) []float64 {
	values := make([]float64, len(returns)+1)
	values[0] = 1
	for i, r := range returns {
		values[i+1] = values[i] * (1 + r)
	}
	return values
}
