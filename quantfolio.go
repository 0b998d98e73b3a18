// Package quantfolio assembles the engine: the metric calculators, the
// constrained optimizer, the validation procedures, and the background
// task manager, wired with shared configuration and logging.
package quantfolio

import (
	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/backtest"
	"github.com/quantfolio/quantfolio/config"
	"github.com/quantfolio/quantfolio/metrics"
	"github.com/quantfolio/quantfolio/montecarlo"
	"github.com/quantfolio/quantfolio/optimization"
	"github.com/quantfolio/quantfolio/pkg/logger"
	"github.com/quantfolio/quantfolio/portfolio"
	"github.com/quantfolio/quantfolio/tasks"
	"github.com/quantfolio/quantfolio/walkforward"
)

// Engine bundles the calculators behind one configuration. The zero value
// is not usable; construct with New or NewFromEnv. Safe for concurrent use.
type Engine struct {
	cfg *config.Config
	log zerolog.Logger

	// Tasks schedules the long-running validations in the background.
	Tasks *tasks.Manager
}

// New builds an engine from an explicit configuration.
func New(cfg *config.Config) *Engine {
	return NewWithLogger(cfg, logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	}))
}

// NewWithLogger builds an engine with a caller-supplied logger.
func NewWithLogger(cfg *config.Config, lg zerolog.Logger) *Engine {
	return &Engine{
		cfg:   cfg,
		log:   lg,
		Tasks: tasks.NewManager(cfg.WorkerConcurrency, lg),
	}
}

// NewFromEnv loads configuration from the environment (and .env when
// present) and builds the engine.
func NewFromEnv() (*Engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return New(cfg), nil
}

// Metrics computes the risk/return bundle for a return series using the
// engine's risk-free rate, periodicity, and tail confidence. A nil
// benchmark skips the relative metrics; a nil weight vector skips the
// concentration metrics.
func (e *Engine) Metrics(returns, benchmark []float64, weights portfolio.WeightVector) (metrics.Result, error) {
	return metrics.Compute(returns, benchmark, metrics.Options{
		RiskFreeRate:   e.cfg.RiskFreeRate,
		PeriodsPerYear: e.cfg.PeriodsPerYear,
		Confidence:     e.cfg.Confidence,
		Weights:        weights,
	})
}

// Optimizer builds a constrained optimizer sharing the engine's logger.
// Zero-valued rate and periodicity options pick up the engine defaults.
func (e *Engine) Optimizer(constraints optimization.Constraints, opts optimization.Options) *optimization.Optimizer {
	if opts.RiskFreeRate == 0 {
		opts.RiskFreeRate = e.cfg.RiskFreeRate
	}
	if opts.PeriodsPerYear == 0 {
		opts.PeriodsPerYear = e.cfg.PeriodsPerYear
	}
	return optimization.New(constraints, opts, e.log)
}

// SubmitMonteCarlo schedules a bootstrap simulation in the background and
// returns the task id. Zero-valued path count, horizon, and confidence
// pick up the engine defaults.
func (e *Engine) SubmitMonteCarlo(returns []float64, cfg montecarlo.Config) string {
	if cfg.Paths <= 0 {
		cfg.Paths = e.cfg.MonteCarloPaths
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = e.cfg.MonteCarloHorizon
	}
	if cfg.Confidence <= 0 || cfg.Confidence >= 1 {
		cfg.Confidence = e.cfg.Confidence
	}
	return e.Tasks.Submit(tasks.MonteCarloJob{
		Simulator: montecarlo.New(e.log),
		Returns:   returns,
		Config:    cfg,
	})
}

// SubmitWalkForward schedules a walk-forward validation in the background
// and returns the task id.
func (e *Engine) SubmitWalkForward(history portfolio.History, cfg walkforward.Config) string {
	return e.Tasks.Submit(tasks.WalkForwardJob{
		Validator: walkforward.New(e.log),
		History:   history,
		Config:    cfg,
	})
}

// SubmitBacktest schedules a historical backtest over the given periods in
// the background and returns the task id.
func (e *Engine) SubmitBacktest(history portfolio.History, periods []backtest.Period, cfg backtest.Config) string {
	return e.Tasks.Submit(tasks.BacktestJob{
		Backtester: backtest.New(e.log),
		History:    history,
		Periods:    periods,
		Config:     cfg,
	})
}
