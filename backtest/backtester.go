// Package backtest replays named historical periods: optimize the universe
// once at the start of each period, hold the weights, and score the
// realized path.
package backtest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/metrics"
	"github.com/quantfolio/quantfolio/optimization"
	"github.com/quantfolio/quantfolio/pkg/formulas"
	"github.com/quantfolio/quantfolio/portfolio"
)

// ErrPeriodTooShort indicates a period with fewer than 2 return
// observations after alignment.
var ErrPeriodTooShort = errors.New("period too short to backtest")

// Period is a named date range, inclusive on both ends. Dates are ISO
// strings matching the aligned history calendar.
type Period struct {
	Name  string `json:"name"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// Config parameterizes a backtest run.
type Config struct {
	Objective   optimization.Objective
	Constraints optimization.Constraints
	Options     optimization.Options
	// RebalanceEvery re-optimizes after this many return observations,
	// using only data seen so far within the period. Zero holds the
	// initial weights for the whole period.
	RebalanceEvery int
}

// PeriodResult scores one period's realized path under the optimized
// weights.
type PeriodResult struct {
	Period           Period                 `json:"period"`
	Weights          portfolio.WeightVector `json:"weights"`
	Converged        bool                   `json:"converged"`
	CumulativeReturn float64                `json:"cumulative_return"`
	AnnualizedReturn float64                `json:"annualized_return"`
	Volatility       float64                `json:"volatility"`
	Sharpe           float64                `json:"sharpe"`
	MaxDrawdown      float64                `json:"max_drawdown"`
	WinRate          float64                `json:"win_rate"`
}

// Backtester replays periods against aligned price history.
type Backtester struct {
	log zerolog.Logger
}

// New creates a backtester.
func New(logger zerolog.Logger) *Backtester {
	return &Backtester{log: logger.With().Str("component", "backtest").Logger()}
}

// Run backtests each period in order. Cancellation is observed between
// periods. A period whose dates fall outside the history fails the run.
func (b *Backtester) Run(ctx context.Context, history portfolio.History, periods []Period, cfg Config) ([]PeriodResult, error) {
	if cfg.Objective == "" {
		cfg.Objective = optimization.MaxSharpe
	}
	opt := optimization.New(cfg.Constraints, cfg.Options, b.log)

	results := make([]PeriodResult, 0, len(periods))
	for _, period := range periods {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := b.runPeriod(history, period, opt, cfg)
		if err != nil {
			return nil, fmt.Errorf("period %q: %w", period.Name, err)
		}
		results = append(results, *result)
	}
	return results, nil
}

func (b *Backtester) runPeriod(history portfolio.History, period Period, opt *optimization.Optimizer, cfg Config) (*PeriodResult, error) {
	slice, err := history.SliceDates(period.Start, period.End)
	if err != nil {
		return nil, err
	}
	if slice.Len() < 3 { // need at least 2 return observations
		return nil, fmt.Errorf("%w: %d price points between %s and %s",
			ErrPeriodTooShort, slice.Len(), period.Start, period.End)
	}

	symbols := slice.Symbols()
	returns := slice.Returns()
	total := slice.Len() - 1

	solution, err := optimizeOn(opt, symbols, returns, 0, total, cfg.Objective)
	if err != nil {
		return nil, err
	}
	initialWeights := solution.Weights

	realized := make([]float64, 0, total)
	weights := initialWeights
	for start := 0; start < total; {
		end := total
		if cfg.RebalanceEvery > 0 {
			if next := start + cfg.RebalanceEvery; next < end {
				end = next
			}
		}

		chunk := make(map[string][]float64, len(symbols))
		for _, symbol := range symbols {
			chunk[symbol] = returns[symbol][start:end]
		}
		blended, err := portfolio.BlendedReturns(weights, chunk)
		if err != nil {
			return nil, err
		}
		realized = append(realized, blended...)
		start = end

		// Re-optimize on everything seen so far in this period.
		if cfg.RebalanceEvery > 0 && start >= 2 && start < total {
			rebalanced, err := optimizeOn(opt, symbols, returns, 0, start, cfg.Objective)
			if err != nil {
				return nil, err
			}
			weights = rebalanced.Weights
		}
	}

	periods := cfg.Options.PeriodsPerYear
	if periods <= 0 {
		periods = 252
	}
	sharpe, err := metrics.Sharpe(realized, cfg.Options.RiskFreeRate, periods)
	if err != nil {
		sharpe = 0
	}

	values := make([]float64, len(realized)+1)
	values[0] = 1
	for i, r := range realized {
		values[i+1] = values[i] * (1 + r)
	}

	b.log.Debug().
		Str("period", period.Name).
		Int("observations", len(realized)).
		Bool("converged", solution.Converged).
		Msg("period complete")

	return &PeriodResult{
		Period:           period,
		Weights:          initialWeights,
		Converged:        solution.Converged,
		CumulativeReturn: formulas.CompoundReturn(realized),
		AnnualizedReturn: formulas.AnnualizedReturn(realized, periods),
		Volatility:       formulas.AnnualizedVolatility(realized, periods),
		Sharpe:           sharpe,
		MaxDrawdown:      formulas.MaxDrawdown(values),
		WinRate:          formulas.WinRate(realized),
	}, nil
}

func optimizeOn(opt *optimization.Optimizer, symbols []string, returns map[string][]float64, from, to int, objective optimization.Objective) (*optimization.Solution, error) {
	series := make([][]float64, len(symbols))
	for i, symbol := range symbols {
		series[i] = returns[symbol][from:to]
	}
	cov, err := optimization.CovarianceFromReturns(series)
	if err != nil {
		return nil, err
	}
	return opt.Optimize(symbols, optimization.ExpectedReturns(series), cov, objective)
}
