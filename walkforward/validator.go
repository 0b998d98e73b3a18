// Package walkforward measures how an optimized allocation degrades out of
// sample. The universe is re-optimized on each in-sample window and the
// resulting weights held, unchanged, over the following out-of-sample
// window; the Sharpe gap between the two is the degradation.
package walkforward

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/metrics"
	"github.com/quantfolio/quantfolio/optimization"
	"github.com/quantfolio/quantfolio/portfolio"
)

// ErrInsufficientHistory indicates the history cannot fit even one
// in-sample plus out-of-sample iteration.
var ErrInsufficientHistory = errors.New("insufficient history for walk-forward analysis")

// Verdict labels for Report.Verdict.
const (
	VerdictExcellent = "excellent"
	VerdictGood      = "good"
	VerdictFair      = "fair"
	VerdictPoor      = "poor"
)

// Config parameterizes a walk-forward run. Window sizes count return
// observations, not calendar days.
type Config struct {
	InSampleWindow  int                      // Observations used to optimize
	OutSampleWindow int                      // Observations the weights are held over
	StepSize        int                      // Window advance; defaults to OutSampleWindow
	Objective       optimization.Objective   // Defaults to MaxSharpe
	Constraints     optimization.Constraints //
	Options         optimization.Options     // Solver and annualization settings
	// OnProgress, when set, is called after each completed window.
	OnProgress func(completed, total int)
}

func (c Config) withDefaults() Config {
	if c.StepSize <= 0 {
		c.StepSize = c.OutSampleWindow
	}
	if c.Objective == "" {
		c.Objective = optimization.MaxSharpe
	}
	return c
}

// Window is one completed walk-forward iteration. Windows with a zero
// in-sample Sharpe are recorded but excluded from the aggregate, since
// their degradation ratio is undefined.
type Window struct {
	Index           int     `json:"index"`
	InSampleStart   string  `json:"in_sample_start"`
	InSampleEnd     string  `json:"in_sample_end"`
	OutSampleStart  string  `json:"out_sample_start"`
	OutSampleEnd    string  `json:"out_sample_end"`
	InSampleSharpe  float64 `json:"in_sample_sharpe"`
	OutSampleSharpe float64 `json:"out_sample_sharpe"`
	DegradationPct  float64 `json:"degradation_pct"`
	Excluded        bool    `json:"excluded"`
}

// Report aggregates all windows. AvgDegradation is the raw mean and may be
// negative when out-of-sample beats in-sample; OverfittingScore clamps it
// to [0, 100] for the verdict.
type Report struct {
	Windows          []Window `json:"windows"`
	AvgDegradation   float64  `json:"avg_degradation"`
	OverfittingScore float64  `json:"overfitting_score"`
	Verdict          string   `json:"verdict"`
}

// Validator runs walk-forward analyses.
type Validator struct {
	log zerolog.Logger
}

// New creates a validator.
func New(logger zerolog.Logger) *Validator {
	return &Validator{log: logger.With().Str("component", "walkforward").Logger()}
}

// Run walks the aligned history window by window. Cancellation is observed
// between windows.
func (v *Validator) Run(ctx context.Context, history portfolio.History, cfg Config) (*Report, error) {
	cfg = cfg.withDefaults()
	if cfg.InSampleWindow <= 0 || cfg.OutSampleWindow <= 0 {
		return nil, fmt.Errorf("window sizes must be positive, got in=%d out=%d", cfg.InSampleWindow, cfg.OutSampleWindow)
	}

	symbols := history.Symbols()
	returns := history.Returns()
	total := history.Len() - 1 // return observations

	span := cfg.InSampleWindow + cfg.OutSampleWindow
	if total < span {
		return nil, fmt.Errorf("%w: have %d observations, need %d", ErrInsufficientHistory, total, span)
	}
	windowCount := (total-span)/cfg.StepSize + 1

	opt := optimization.New(cfg.Constraints, cfg.Options, v.log)
	report := &Report{Windows: make([]Window, 0, windowCount)}
	var degradationSum float64
	scored := 0

	for w := 0; w < windowCount; w++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := w * cfg.StepSize
		inEnd := start + cfg.InSampleWindow
		outEnd := inEnd + cfg.OutSampleWindow

		window, err := v.evaluateWindow(symbols, returns, history, opt, cfg, w, start, inEnd, outEnd)
		if err != nil {
			return nil, fmt.Errorf("window %d: %w", w, err)
		}

		if window.Excluded {
			v.log.Debug().Int("window", w).Msg("zero in-sample sharpe, excluding from aggregate")
		} else {
			degradationSum += window.DegradationPct
			scored++
		}
		report.Windows = append(report.Windows, *window)

		if cfg.OnProgress != nil {
			cfg.OnProgress(w+1, windowCount)
		}
	}

	if scored > 0 {
		report.AvgDegradation = degradationSum / float64(scored)
	}
	report.OverfittingScore = math.Min(100, math.Max(0, report.AvgDegradation))
	report.Verdict = verdict(report.OverfittingScore)
	return report, nil
}

func (v *Validator) evaluateWindow(
	symbols []string,
	returns map[string][]float64,
	history portfolio.History,
	opt *optimization.Optimizer,
	cfg Config,
	index, start, inEnd, outEnd int,
) (*Window, error) {
	inSample := make(map[string][]float64, len(symbols))
	outSample := make(map[string][]float64, len(symbols))
	series := make([][]float64, len(symbols))
	for i, symbol := range symbols {
		inSample[symbol] = returns[symbol][start:inEnd]
		outSample[symbol] = returns[symbol][inEnd:outEnd]
		series[i] = inSample[symbol]
	}

	cov, err := optimization.CovarianceFromReturns(series)
	if err != nil {
		return nil, err
	}
	solution, err := opt.Optimize(symbols, optimization.ExpectedReturns(series), cov, cfg.Objective)
	if err != nil {
		return nil, err
	}

	inBlended, err := portfolio.BlendedReturns(solution.Weights, inSample)
	if err != nil {
		return nil, err
	}
	outBlended, err := portfolio.BlendedReturns(solution.Weights, outSample)
	if err != nil {
		return nil, err
	}

	inSharpe := sharpeOrZero(inBlended, cfg.Options)
	outSharpe := sharpeOrZero(outBlended, cfg.Options)

	window := &Window{
		Index:           index,
		InSampleStart:   history.Dates[start],
		InSampleEnd:     history.Dates[inEnd],
		OutSampleStart:  history.Dates[inEnd],
		OutSampleEnd:    history.Dates[outEnd],
		InSampleSharpe:  inSharpe,
		OutSampleSharpe: outSharpe,
	}

	if inSharpe == 0 {
		window.Excluded = true
		return window, nil
	}
	window.DegradationPct = (inSharpe - outSharpe) / math.Abs(inSharpe) * 100
	return window, nil
}

// sharpeOrZero maps degenerate windows (flat returns) to a zero score
// instead of an error; Run excludes them from the aggregate.
func sharpeOrZero(returns []float64, opts optimization.Options) float64 {
	periods := opts.PeriodsPerYear
	if periods <= 0 {
		periods = 252
	}
	sharpe, err := metrics.Sharpe(returns, opts.RiskFreeRate, periods)
	if err != nil {
		return 0
	}
	return sharpe
}

func verdict(score float64) string {
	switch {
	case score < 10:
		return VerdictExcellent
	case score < 25:
		return VerdictGood
	case score < 50:
		return VerdictFair
	default:
		return VerdictPoor
	}
}
