package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, DefaultRiskFreeRate, cfg.RiskFreeRate)
	assert.Equal(t, DefaultPeriodsPerYear, cfg.PeriodsPerYear)
	assert.Equal(t, DefaultConfidence, cfg.Confidence)
	assert.Equal(t, DefaultMonteCarloPaths, cfg.MonteCarloPaths)
	assert.Equal(t, DefaultMonteCarloHorizon, cfg.MonteCarloHorizon)
	assert.Equal(t, DefaultWorkerConcurrency, cfg.WorkerConcurrency)
	assert.False(t, cfg.DevMode)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("QUANTFOLIO_LOG_LEVEL", "debug")
	t.Setenv("QUANTFOLIO_RISK_FREE_RATE", "0.02")
	t.Setenv("QUANTFOLIO_PERIODS_PER_YEAR", "12")
	t.Setenv("QUANTFOLIO_WORKERS", "8")
	t.Setenv("QUANTFOLIO_DEV_MODE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 0.02, cfg.RiskFreeRate)
	assert.Equal(t, 12, cfg.PeriodsPerYear)
	assert.Equal(t, 8, cfg.WorkerConcurrency)
	assert.True(t, cfg.DevMode)
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	t.Setenv("QUANTFOLIO_CONFIDENCE", "1.5")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("QUANTFOLIO_PERIODS_PER_YEAR", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultPeriodsPerYear, cfg.PeriodsPerYear)
}
