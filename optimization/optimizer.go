package optimization

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/quantfolio/quantfolio/portfolio"
)

// penaltyWeight scales the quadratic penalties that enforce the sum-to-one,
// sector and risk-ceiling constraints inside the smooth objective.
const penaltyWeight = 1000.0

// Optimizer solves constrained weight allocation for a fixed universe.
// Safe for concurrent use; all state is read-only after construction.
type Optimizer struct {
	constraints Constraints
	opts        Options
	log         zerolog.Logger
}

// New creates an optimizer with the given constraint set.
func New(constraints Constraints, opts Options, logger zerolog.Logger) *Optimizer {
	return &Optimizer{
		constraints: constraints,
		opts:        opts.withDefaults(),
		log:         logger.With().Str("component", "optimizer").Logger(),
	}
}

// Optimize solves for weights over the universe. mu holds periodic expected
// returns aligned with symbols; cov is the periodic covariance matrix.
// Infeasible constraint sets fail before any iteration. A singular
// covariance matrix is repaired by diagonal loading, never an error.
func (o *Optimizer) Optimize(symbols []string, mu []float64, cov *mat.SymDense, objective Objective) (*Solution, error) {
	n := len(symbols)
	if n == 0 {
		return nil, ErrNoAssets
	}
	if len(mu) != n {
		return nil, fmt.Errorf("%w: %d expected returns for %d symbols", ErrDimensionMismatch, len(mu), n)
	}
	if cov.SymmetricDim() != n {
		return nil, fmt.Errorf("%w: covariance is %dx%d for %d symbols",
			ErrDimensionMismatch, cov.SymmetricDim(), cov.SymmetricDim(), n)
	}

	bounds := o.constraints.bounds(symbols)
	if err := o.checkFeasibility(symbols, bounds); err != nil {
		return nil, err
	}

	cov, repaired := ensurePositiveDefinite(cov)
	if repaired {
		o.log.Warn().Int("assets", n).Msg("covariance not positive definite, applied diagonal loading")
	}

	switch objective {
	case MaxSharpe, MinVariance, MaxReturn:
		return o.solvePenalty(symbols, mu, cov, bounds, objective)
	case RiskParity:
		return o.solveRiskParity(symbols, mu, cov, bounds)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownObjective, objective)
	}
}

// checkFeasibility rejects constraint sets that no weight vector can
// satisfy, before any solver iteration runs.
func (o *Optimizer) checkFeasibility(symbols []string, bounds [][2]float64) error {
	if o.constraints.MaxLeverage > 0 && o.constraints.MaxLeverage < 1-portfolio.WeightSumTolerance {
		return fmt.Errorf("%w: leverage cap %.4f below full investment",
			ErrInfeasibleConstraints, o.constraints.MaxLeverage)
	}

	var sumLower, reachable float64
	sectorLower := make(map[string]float64)
	sectorUpper := make(map[string]float64)

	for i, symbol := range symbols {
		lo, hi := bounds[i][0], bounds[i][1]
		if lo > hi {
			return fmt.Errorf("%w: %s has min %.4f above max %.4f", ErrInfeasibleConstraints, symbol, lo, hi)
		}
		sumLower += lo
		if sector := o.constraints.Sectors[symbol]; sector != "" && o.constraints.MaxSectorExposure > 0 {
			sectorLower[sector] += lo
			sectorUpper[sector] += hi
		} else {
			reachable += hi
		}
	}

	if sumLower > 1+portfolio.WeightSumTolerance {
		return fmt.Errorf("%w: minimum weights sum to %.4f", ErrInfeasibleConstraints, sumLower)
	}

	// Sectors can contribute at most their exposure cap.
	for sector, upper := range sectorUpper {
		if sectorLower[sector] > o.constraints.MaxSectorExposure+portfolio.WeightSumTolerance {
			return fmt.Errorf("%w: sector %s minimums sum to %.4f above cap %.4f",
				ErrInfeasibleConstraints, sector, sectorLower[sector], o.constraints.MaxSectorExposure)
		}
		reachable += math.Min(upper, o.constraints.MaxSectorExposure)
	}

	if reachable < 1-portfolio.WeightSumTolerance {
		return fmt.Errorf("%w: maximum achievable weight is %.4f", ErrInfeasibleConstraints, reachable)
	}
	return nil
}

// solvePenalty minimizes a smooth penalty formulation of the objective with
// BFGS, falling back to Nelder-Mead. Each evaluation projects the iterate
// into the per-asset bounds; equality and sector constraints enter as
// quadratic penalties.
func (o *Optimizer) solvePenalty(symbols []string, mu []float64, cov *mat.SymDense, bounds [][2]float64, objective Objective) (*Solution, error) {
	n := len(symbols)
	rfPeriodic := o.opts.RiskFreeRate / float64(o.opts.PeriodsPerYear)

	var maxVariance float64
	if objective == MaxReturn {
		if o.opts.MaxRisk <= 0 {
			return nil, ErrRiskCeilingRequired
		}
		periodicVol := o.opts.MaxRisk / math.Sqrt(float64(o.opts.PeriodsPerYear))
		maxVariance = periodicVol * periodicVol
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			xp := projectToBounds(x, bounds)
			ret := dot(mu, xp)
			variance := quadForm(xp, cov)

			var obj float64
			switch objective {
			case MinVariance:
				obj = variance
			case MaxSharpe:
				obj = -(ret - rfPeriodic) / math.Sqrt(math.Max(variance, 1e-12))
			case MaxReturn:
				obj = -ret
				// Relative excess keeps the penalty effective at the
				// tiny magnitudes of periodic variances.
				if excess := (variance - maxVariance) / maxVariance; excess > 0 {
					obj += penaltyWeight * excess * excess
				}
			}

			sum := 0.0
			for i := 0; i < n; i++ {
				sum += xp[i]
			}
			obj += penaltyWeight * (sum - 1) * (sum - 1)
			obj += o.sectorPenalty(xp, symbols)
			return obj
		},
		Grad: func(grad, x []float64) {
			xp := projectToBounds(x, bounds)
			ret := dot(mu, xp)
			variance := quadForm(xp, cov)

			for i := 0; i < n; i++ {
				dVar := 0.0
				for j := 0; j < n; j++ {
					dVar += 2 * cov.At(i, j) * xp[j]
				}
				switch objective {
				case MinVariance:
					grad[i] = dVar
				case MaxSharpe:
					std := math.Sqrt(math.Max(variance, 1e-12))
					grad[i] = -mu[i]/std + (ret-rfPeriodic)*dVar/(2*std*std*std)
				case MaxReturn:
					grad[i] = -mu[i]
					if excess := (variance - maxVariance) / maxVariance; excess > 0 {
						grad[i] += 2 * penaltyWeight * excess * dVar / maxVariance
					}
				}
			}

			sum := 0.0
			for i := 0; i < n; i++ {
				sum += xp[i]
			}
			for i := 0; i < n; i++ {
				grad[i] += 2 * penaltyWeight * (sum - 1)
			}
			o.addSectorPenaltyGradient(grad, xp, symbols)
		},
	}

	initial := make([]float64, n)
	for i := range initial {
		initial[i] = 1.0 / float64(n)
	}
	settings := o.solverSettings()

	result, err := optimize.Minimize(problem, initial, settings, &optimize.BFGS{})
	if err != nil || result == nil || !converged(result.Status) {
		fallback, fbErr := optimize.Minimize(problem, initial, settings, &optimize.NelderMead{})
		if fbErr == nil && fallback != nil && (err != nil || result == nil || fallback.F < result.F) {
			result, err = fallback, nil
		}
	}
	if result == nil {
		return nil, fmt.Errorf("optimization failed: %w", err)
	}

	solution := o.finalize(symbols, mu, cov, result.X, bounds)
	solution.Converged = converged(result.Status)
	solution.Iterations = result.Stats.MajorIterations
	if !solution.Converged {
		o.log.Warn().
			Str("objective", string(objective)).
			Int("iterations", solution.Iterations).
			Msg("solver stopped before convergence, returning best iterate")
	}
	return solution, nil
}

// finalize projects the raw iterate into bounds, clamps negatives and
// renormalizes to a fully invested weight vector, then annualizes.
func (o *Optimizer) finalize(symbols []string, mu []float64, cov *mat.SymDense, x []float64, bounds [][2]float64) *Solution {
	xp := projectToBounds(x, bounds)
	sum := 0.0
	for _, w := range xp {
		sum += math.Max(0, w)
	}

	weights := make(portfolio.WeightVector, len(symbols))
	final := make([]float64, len(symbols))
	for i, symbol := range symbols {
		w := math.Max(0, xp[i]) / math.Max(sum, 1e-10)
		weights[symbol] = w
		final[i] = w
	}

	periodicRet := dot(mu, final)
	variance := quadForm(final, cov)
	years := float64(o.opts.PeriodsPerYear)

	annReturn := math.Pow(1+periodicRet, years) - 1
	annVol := math.Sqrt(variance) * math.Sqrt(years)

	sharpe := 0.0
	if annVol > 0 {
		sharpe = (annReturn - o.opts.RiskFreeRate) / annVol
	}

	return &Solution{
		Weights:    weights,
		Return:     annReturn,
		Volatility: annVol,
		Sharpe:     sharpe,
	}
}

func (o *Optimizer) sectorPenalty(x []float64, symbols []string) float64 {
	limit := o.constraints.MaxSectorExposure
	if limit <= 0 || len(o.constraints.Sectors) == 0 {
		return 0
	}

	exposure := make(map[string]float64)
	for i, symbol := range symbols {
		if sector := o.constraints.Sectors[symbol]; sector != "" {
			exposure[sector] += x[i]
		}
	}

	var penalty float64
	for _, weight := range exposure {
		if weight > limit {
			penalty += penaltyWeight * (weight - limit) * (weight - limit)
		}
	}
	return penalty
}

func (o *Optimizer) addSectorPenaltyGradient(grad, x []float64, symbols []string) {
	limit := o.constraints.MaxSectorExposure
	if limit <= 0 || len(o.constraints.Sectors) == 0 {
		return
	}

	exposure := make(map[string]float64)
	for i, symbol := range symbols {
		if sector := o.constraints.Sectors[symbol]; sector != "" {
			exposure[sector] += x[i]
		}
	}

	for sector, weight := range exposure {
		if weight <= limit {
			continue
		}
		d := 2 * penaltyWeight * (weight - limit)
		for i, symbol := range symbols {
			if o.constraints.Sectors[symbol] == sector {
				grad[i] += d
			}
		}
	}
}

// solverSettings stops the solver once the relative objective improvement
// stays under the configured tolerance.
func (o *Optimizer) solverSettings() *optimize.Settings {
	return &optimize.Settings{
		MajorIterations: o.opts.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Relative:   o.opts.Tolerance,
			Iterations: 20,
		},
	}
}

func converged(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence:
		return true
	}
	return false
}

func projectToBounds(x []float64, bounds [][2]float64) []float64 {
	proj := make([]float64, len(x))
	for i := range x {
		proj[i] = math.Max(bounds[i][0], math.Min(bounds[i][1], x[i]))
	}
	return proj
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func quadForm(x []float64, cov *mat.SymDense) float64 {
	var v float64
	for i := range x {
		for j := range x {
			v += x[i] * x[j] * cov.At(i, j)
		}
	}
	return v
}
