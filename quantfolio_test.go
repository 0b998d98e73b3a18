package quantfolio

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/quantfolio/config"
	"github.com/quantfolio/quantfolio/montecarlo"
	"github.com/quantfolio/quantfolio/tasks"
)

func testConfig() *config.Config {
	return &config.Config{
		LogLevel:          "error",
		RiskFreeRate:      0.04,
		PeriodsPerYear:    252,
		Confidence:        0.95,
		MonteCarloPaths:   2000,
		MonteCarloHorizon: 50,
		WorkerConcurrency: 2,
	}
}

func TestEngine_MetricsUsesConfigDefaults(t *testing.T) {
	e := NewWithLogger(testConfig(), zerolog.Nop())

	returns := []float64{0.01, -0.005, 0.02, 0.003, -0.01, 0.015, 0.002, -0.004}
	result, err := e.Metrics(returns, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.95, result.Confidence)
	assert.NotZero(t, result.AnnualizedVolatility)
}

func TestEngine_SubmitMonteCarloAppliesDefaults(t *testing.T) {
	e := NewWithLogger(testConfig(), zerolog.Nop())

	returns := []float64{0.01, -0.005, 0.02, 0.003, -0.01}
	id := e.SubmitMonteCarlo(returns, montecarlo.Config{Seed: 42})

	task, err := e.Tasks.Await(id, 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, tasks.StatusCompleted, task.Status)

	result, ok := task.Result.(*montecarlo.Result)
	require.True(t, ok)
	assert.Equal(t, 2000, result.Paths)
	assert.Equal(t, 50, result.Horizon)
}
