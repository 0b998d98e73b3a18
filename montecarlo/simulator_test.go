package montecarlo

import (
	"context"
	"math"
	"sort"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleReturns = []float64{0.012, -0.018, 0.017, -0.003, 0.022, -0.009, 0.005, 0.011, -0.014, 0.008}

func TestRun_SameSeedReproduces(t *testing.T) {
	sim := New(zerolog.Nop())
	cfg := Config{Paths: 2000, Horizon: 50, Seed: 42}

	first, err := sim.Run(context.Background(), sampleReturns, cfg)
	require.NoError(t, err)
	second, err := sim.Run(context.Background(), sampleReturns, cfg)
	require.NoError(t, err)

	assert.Equal(t, first, second, "identical seeds must reproduce identical results")
}

func TestRun_DifferentSeedsDiffer(t *testing.T) {
	sim := New(zerolog.Nop())

	first, err := sim.Run(context.Background(), sampleReturns, Config{Paths: 2000, Horizon: 50, Seed: 1})
	require.NoError(t, err)
	second, err := sim.Run(context.Background(), sampleReturns, Config{Paths: 2000, Horizon: 50, Seed: 2})
	require.NoError(t, err)

	assert.NotEqual(t, first.Mean, second.Mean)
}

func TestRun_ConstantReturnsConverge(t *testing.T) {
	// Resampling a single constant return makes every path exactly
	// (1+mu)^horizon - 1.
	sim := New(zerolog.Nop())
	result, err := sim.Run(context.Background(), []float64{0.001}, Config{Paths: 500, Horizon: 100, Seed: 7})
	require.NoError(t, err)

	expected := math.Pow(1.001, 100) - 1
	assert.InDelta(t, expected, result.Mean, 1e-9)
	assert.InDelta(t, expected, result.Median, 1e-9)
	assert.InDelta(t, 0.0, result.StdDev, 1e-12)
	assert.Equal(t, 0.0, result.ProbLoss)
}

func TestRun_SummaryInvariants(t *testing.T) {
	sim := New(zerolog.Nop())
	result, err := sim.Run(context.Background(), sampleReturns, Config{
		Paths:       3000,
		Horizon:     60,
		Seed:        99,
		Percentiles: []float64{5, 50, 95},
	})
	require.NoError(t, err)

	assert.Equal(t, 3000, result.Paths)
	assert.Equal(t, 60, result.Horizon)
	assert.GreaterOrEqual(t, result.CVaR, result.VaR)
	assert.GreaterOrEqual(t, result.ProbLoss, 0.0)
	assert.LessOrEqual(t, result.ProbLoss, 1.0)

	p5, p50, p95 := result.Percentiles[5], result.Percentiles[50], result.Percentiles[95]
	assert.LessOrEqual(t, p5, p50)
	assert.LessOrEqual(t, p50, p95)
	assert.InDelta(t, result.Median, p50, 1e-12)
}

func TestRun_ProgressCheckpoints(t *testing.T) {
	var mu sync.Mutex
	var reports []int

	sim := New(zerolog.Nop())
	_, err := sim.Run(context.Background(), sampleReturns, Config{
		Paths:   2500,
		Horizon: 10,
		Seed:    1,
		OnProgress: func(completed, total int) {
			mu.Lock()
			reports = append(reports, completed)
			mu.Unlock()
			assert.Equal(t, 2500, total)
		},
	})
	require.NoError(t, err)

	// Callbacks may interleave across workers; sorted, the cumulative
	// counts are strictly increasing and end at the full path count.
	require.Len(t, reports, 3, "one report per batch")
	sort.Ints(reports)
	for i := 1; i < len(reports); i++ {
		assert.Greater(t, reports[i], reports[i-1])
	}
	assert.Equal(t, 2500, reports[len(reports)-1])
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sim := New(zerolog.Nop())
	_, err := sim.Run(ctx, sampleReturns, Config{Paths: 5000, Horizon: 100, Seed: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_InputValidation(t *testing.T) {
	sim := New(zerolog.Nop())

	_, err := sim.Run(context.Background(), nil, Config{})
	assert.ErrorIs(t, err, ErrNoReturns)

	_, err = sim.Run(context.Background(), sampleReturns, Config{Paths: MaxPaths + 1})
	assert.ErrorIs(t, err, ErrLimitExceeded)

	_, err = sim.Run(context.Background(), sampleReturns, Config{Horizon: MaxHorizon + 1})
	assert.ErrorIs(t, err, ErrLimitExceeded)
}
