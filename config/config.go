// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Defaults for the numerical engine. Daily data is assumed unless the
// caller overrides PeriodsPerYear.
const (
	DefaultRiskFreeRate      = 0.04
	DefaultPeriodsPerYear    = 252
	DefaultConfidence        = 0.95
	DefaultMonteCarloPaths   = 10000
	DefaultMonteCarloHorizon = 252
	DefaultWorkerConcurrency = 4
)

// Config holds engine configuration
type Config struct {
	LogLevel          string
	RiskFreeRate      float64 // Annual risk-free rate as a decimal
	PeriodsPerYear    int     // 252 daily, 52 weekly, 12 monthly
	Confidence        float64 // Confidence level for VaR/CVaR
	MonteCarloPaths   int
	MonteCarloHorizon int
	WorkerConcurrency int // Max concurrent background jobs
	DevMode           bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:          getEnv("QUANTFOLIO_LOG_LEVEL", "info"),
		RiskFreeRate:      getEnvFloat("QUANTFOLIO_RISK_FREE_RATE", DefaultRiskFreeRate),
		PeriodsPerYear:    getEnvInt("QUANTFOLIO_PERIODS_PER_YEAR", DefaultPeriodsPerYear),
		Confidence:        getEnvFloat("QUANTFOLIO_CONFIDENCE", DefaultConfidence),
		MonteCarloPaths:   getEnvInt("QUANTFOLIO_MC_PATHS", DefaultMonteCarloPaths),
		MonteCarloHorizon: getEnvInt("QUANTFOLIO_MC_HORIZON", DefaultMonteCarloHorizon),
		WorkerConcurrency: getEnvInt("QUANTFOLIO_WORKERS", DefaultWorkerConcurrency),
		DevMode:           getEnvBool("QUANTFOLIO_DEV_MODE", false),
	}

	if cfg.PeriodsPerYear <= 0 {
		return nil, fmt.Errorf("invalid periods per year: %d", cfg.PeriodsPerYear)
	}
	if cfg.Confidence <= 0 || cfg.Confidence >= 1 {
		return nil, fmt.Errorf("invalid confidence level: %v (must be in (0,1))", cfg.Confidence)
	}
	if cfg.WorkerConcurrency <= 0 {
		return nil, fmt.Errorf("invalid worker concurrency: %d", cfg.WorkerConcurrency)
	}

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a fallback
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable or returns a fallback
func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvFloat retrieves a float environment variable or returns a fallback
func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvBool retrieves a boolean environment variable or returns a fallback
func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
