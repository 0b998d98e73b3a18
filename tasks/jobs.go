package tasks

import (
	"context"

	"github.com/quantfolio/quantfolio/backtest"
	"github.com/quantfolio/quantfolio/montecarlo"
	"github.com/quantfolio/quantfolio/portfolio"
	"github.com/quantfolio/quantfolio/walkforward"
)

// MonteCarloJob runs a bootstrap simulation in the background, reporting
// progress at the simulator's batch checkpoints.
type MonteCarloJob struct {
	Simulator *montecarlo.Simulator
	Returns   []float64
	Config    montecarlo.Config
}

func (j MonteCarloJob) Kind() string { return "montecarlo" }

func (j MonteCarloJob) Run(ctx context.Context, report func(completed, total int)) (any, error) {
	cfg := j.Config
	cfg.OnProgress = report
	return j.Simulator.Run(ctx, j.Returns, cfg)
}

// WalkForwardJob runs a walk-forward analysis in the background, reporting
// progress per completed window.
type WalkForwardJob struct {
	Validator *walkforward.Validator
	History   portfolio.History
	Config    walkforward.Config
}

func (j WalkForwardJob) Kind() string { return "walkforward" }

func (j WalkForwardJob) Run(ctx context.Context, report func(completed, total int)) (any, error) {
	cfg := j.Config
	cfg.OnProgress = report
	return j.Validator.Run(ctx, j.History, cfg)
}

// BacktestJob replays historical periods in the background.
type BacktestJob struct {
	Backtester *backtest.Backtester
	History    portfolio.History
	Periods    []backtest.Period
	Config     backtest.Config
}

func (j BacktestJob) Kind() string { return "backtest" }

func (j BacktestJob) Run(ctx context.Context, report func(completed, total int)) (any, error) {
	results := make([]backtest.PeriodResult, 0, len(j.Periods))
	for i, period := range j.Periods {
		out, err := j.Backtester.Run(ctx, j.History, []backtest.Period{period}, j.Config)
		if err != nil {
			return nil, err
		}
		results = append(results, out...)
		report(i+1, len(j.Periods))
	}
	return results, nil
}
