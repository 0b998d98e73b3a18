// Package optimization solves constrained portfolio weight allocation
// problems over expected returns and a covariance matrix, and traces
// efficient frontiers.
package optimization

import (
	"errors"

	"github.com/quantfolio/quantfolio/portfolio"
)

// Objective selects the quantity the optimizer maximizes or minimizes.
type Objective string

const (
	// MaxSharpe maximizes (mu'w - rf) / sqrt(w'Cw).
	MaxSharpe Objective = "max_sharpe"
	// MinVariance minimizes w'Cw.
	MinVariance Objective = "min_variance"
	// MaxReturn maximizes mu'w subject to a volatility ceiling.
	MaxReturn Objective = "max_return"
	// RiskParity equalizes each position's contribution to portfolio risk.
	RiskParity Objective = "risk_parity"
)

var (
	// ErrNoAssets indicates an empty universe.
	ErrNoAssets = errors.New("no assets provided")
	// ErrDimensionMismatch indicates inconsistent mu/covariance/symbol sizes.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrInfeasibleConstraints indicates no weight vector can satisfy the
	// constraint set. Detected before any iteration runs.
	ErrInfeasibleConstraints = errors.New("infeasible constraints")
	// ErrUnknownObjective indicates an unrecognized objective.
	ErrUnknownObjective = errors.New("unknown objective")
	// ErrRiskCeilingRequired indicates MaxReturn was requested without a
	// volatility ceiling.
	ErrRiskCeilingRequired = errors.New("max_return objective requires a risk ceiling")
)

// Constraints bounds the feasible weight region. Zero values mean
// "unconstrained" except MaxPositionSize, which defaults to 1.
type Constraints struct {
	MaxPositionSize   float64           // Per-asset weight cap, (0,1]
	MinPositionSize   float64           // Per-asset weight floor, [0,1)
	MaxSectorExposure float64           // Cap on summed weight per sector, (0,1]
	Sectors           map[string]string // symbol -> sector label
	ForbiddenSymbols  []string          // Symbols forced to zero weight
	// MaxLeverage caps gross exposure. The engine is long-only and fully
	// invested, so gross equals 1; any cap below 1 is infeasible and
	// caps of 1 or more are satisfied trivially. Zero means 1.
	MaxLeverage float64
}

// normalized fills defaults and returns per-asset bounds for the universe.
func (c Constraints) bounds(symbols []string) [][2]float64 {
	maxPos := c.MaxPositionSize
	if maxPos <= 0 || maxPos > 1 {
		maxPos = 1
	}

	forbidden := make(map[string]bool, len(c.ForbiddenSymbols))
	for _, s := range c.ForbiddenSymbols {
		forbidden[s] = true
	}

	bounds := make([][2]float64, len(symbols))
	for i, symbol := range symbols {
		if forbidden[symbol] {
			bounds[i] = [2]float64{0, 0}
			continue
		}
		bounds[i] = [2]float64{c.MinPositionSize, maxPos}
	}
	return bounds
}

// Options tunes the solver.
type Options struct {
	RiskFreeRate   float64 // Annual rate, used by MaxSharpe and reporting
	PeriodsPerYear int     // Annualization factor; defaults to 252
	MaxRisk        float64 // Annualized volatility ceiling for MaxReturn
	MaxIterations  int     // Solver iteration cap; defaults to 500
	Tolerance      float64 // Relative convergence tolerance; defaults to 1e-6
}

func (o Options) withDefaults() Options {
	if o.PeriodsPerYear <= 0 {
		o.PeriodsPerYear = 252
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = 500
	}
	if o.Tolerance <= 0 {
		o.Tolerance = 1e-6
	}
	return o
}

// Solution is the outcome of one optimization run. When the solver stops
// on its iteration cap, Weights holds the best iterate and Converged is
// false; callers decide whether that is acceptable.
type Solution struct {
	Weights    portfolio.WeightVector `json:"weights"`
	Return     float64                `json:"return"`     // Annualized
	Volatility float64                `json:"volatility"` // Annualized
	Sharpe     float64                `json:"sharpe"`
	Converged  bool                   `json:"converged"`
	Iterations int                    `json:"iterations"`
}

// FrontierPoint is one solved point on the efficient frontier.
type FrontierPoint struct {
	TargetReturn float64                `json:"target_return"` // Periodic
	Weights      portfolio.WeightVector `json:"weights"`
	Return       float64                `json:"return"`     // Annualized
	Volatility   float64                `json:"volatility"` // Annualized
}
