// Package montecarlo projects portfolio outcomes by bootstrap resampling
// of historical returns. Runs are deterministic for a given seed,
// independent of worker count.
package montecarlo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/quantfolio/quantfolio/pkg/formulas"
)

const (
	// MaxPaths bounds the number of simulated paths per run.
	MaxPaths = 10_000
	// MaxHorizon bounds the number of steps per path.
	MaxHorizon = 252
	// batchSize is the unit of parallel work and the progress checkpoint
	// interval. Each batch owns its own seeded source, so results do not
	// depend on how batches are scheduled across workers.
	batchSize = 1_000
)

var (
	// ErrNoReturns indicates an empty historical return series.
	ErrNoReturns = errors.New("no historical returns to resample")
	// ErrLimitExceeded indicates a request beyond MaxPaths or MaxHorizon.
	ErrLimitExceeded = errors.New("simulation size limit exceeded")
)

// Config parameterizes a simulation run.
type Config struct {
	Paths       int       // Number of bootstrap paths; defaults to MaxPaths
	Horizon     int       // Steps per path; defaults to MaxHorizon
	Seed        int64     // Source seed; identical seeds reproduce results exactly
	Confidence  float64   // Tail confidence for VaR/CVaR; defaults to 0.95
	Percentiles []float64 // Reported percentiles; defaults to {5, 95}
	// OnProgress, when set, is called after every completed batch with the
	// number of finished paths and the total. Calls may come from multiple
	// goroutines but the completed count only grows.
	OnProgress func(completed, total int)
}

func (c Config) withDefaults() Config {
	if c.Paths <= 0 {
		c.Paths = MaxPaths
	}
	if c.Horizon <= 0 {
		c.Horizon = MaxHorizon
	}
	if c.Confidence <= 0 || c.Confidence >= 1 {
		c.Confidence = 0.95
	}
	if len(c.Percentiles) == 0 {
		c.Percentiles = []float64{5, 95}
	}
	return c
}

// Result summarizes the distribution of terminal cumulative returns.
type Result struct {
	Paths       int                 `json:"paths"`
	Horizon     int                 `json:"horizon"`
	Mean        float64             `json:"mean"`
	Median      float64             `json:"median"`
	StdDev      float64             `json:"std_dev"`
	Percentiles map[float64]float64 `json:"percentiles"`
	VaR         float64             `json:"var"`
	CVaR        float64             `json:"cvar"`
	ProbLoss    float64             `json:"prob_loss"`
}

// Simulator runs bootstrap projections. Safe for concurrent use.
type Simulator struct {
	log zerolog.Logger
}

// New creates a simulator.
func New(logger zerolog.Logger) *Simulator {
	return &Simulator{log: logger.With().Str("component", "montecarlo").Logger()}
}

// Run simulates cfg.Paths bootstrap paths of cfg.Horizon steps each,
// resampling the given periodic returns with replacement. Cancellation is
// observed at batch boundaries; a cancelled run returns ctx.Err().
func (s *Simulator) Run(ctx context.Context, returns []float64, cfg Config) (*Result, error) {
	if len(returns) == 0 {
		return nil, ErrNoReturns
	}
	cfg = cfg.withDefaults()
	if cfg.Paths > MaxPaths || cfg.Horizon > MaxHorizon {
		return nil, fmt.Errorf("%w: %d paths x %d steps (max %d x %d)",
			ErrLimitExceeded, cfg.Paths, cfg.Horizon, MaxPaths, MaxHorizon)
	}

	s.log.Debug().
		Int("paths", cfg.Paths).
		Int("horizon", cfg.Horizon).
		Int64("seed", cfg.Seed).
		Msg("starting simulation")

	terminal := make([]float64, cfg.Paths)
	var completed atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for start := 0; start < cfg.Paths; start += batchSize {
		start := start
		batch := start / batchSize
		end := start + batchSize
		if end > cfg.Paths {
			end = cfg.Paths
		}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			// Deterministic per batch regardless of scheduling.
			rng := rand.New(rand.NewSource(cfg.Seed + int64(batch)))
			for p := start; p < end; p++ {
				cumulative := 1.0
				for step := 0; step < cfg.Horizon; step++ {
					cumulative *= 1 + returns[rng.Intn(len(returns))]
				}
				terminal[p] = cumulative - 1
			}

			done := completed.Add(int64(end - start))
			if cfg.OnProgress != nil {
				cfg.OnProgress(int(done), cfg.Paths)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return summarize(terminal, cfg), nil
}

func summarize(terminal []float64, cfg Config) *Result {
	sorted := make([]float64, len(terminal))
	copy(sorted, terminal)
	sort.Float64s(sorted)

	percentiles := make(map[float64]float64, len(cfg.Percentiles))
	for _, p := range cfg.Percentiles {
		percentiles[p] = formulas.Percentile(sorted, p)
	}

	losses := 0
	for _, r := range sorted {
		if r < 0 {
			losses++
		}
	}

	return &Result{
		Paths:       len(terminal),
		Horizon:     cfg.Horizon,
		Mean:        formulas.Mean(terminal),
		Median:      formulas.Percentile(sorted, 50),
		StdDev:      formulas.PopStdDev(terminal),
		Percentiles: percentiles,
		VaR:         formulas.VaR(terminal, cfg.Confidence),
		CVaR:        formulas.CVaR(terminal, cfg.Confidence),
		ProbLoss:    float64(losses) / float64(len(terminal)),
	}
}
