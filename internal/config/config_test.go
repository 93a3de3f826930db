package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.SimulationYears)
	assert.Equal(t, 4, cfg.StepsPerYear)
	assert.Equal(t, int64(42), cfg.RandomSeed)
	assert.Equal(t, "gpt-4", cfg.ModelName)
	assert.Equal(t, 0.7, cfg.ModelTemperature)
	assert.Equal(t, 1024, cfg.ModelMaxTokens)
	assert.Equal(t, "./data/tradewar.db", cfg.DatabasePath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8000, cfg.Port)
	assert.False(t, cfg.DevMode)
	assert.Empty(t, cfg.ModelAPIKey, "model credentials are optional")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SIMULATION_YEARS", "10")
	t.Setenv("SIMULATION_STEPS_PER_YEAR", "2")
	t.Setenv("RANDOM_SEED", "7")
	t.Setenv("MODEL_API_KEY", "sk-test")
	t.Setenv("MODEL_TEMPERATURE", "0.2")
	t.Setenv("PORT", "9090")
	t.Setenv("DEV_MODE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.SimulationYears)
	assert.Equal(t, 2, cfg.StepsPerYear)
	assert.Equal(t, int64(7), cfg.RandomSeed)
	assert.Equal(t, "sk-test", cfg.ModelAPIKey)
	assert.Equal(t, 0.2, cfg.ModelTemperature)
	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.DevMode)
}

func TestMalformedValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("SIMULATION_YEARS", "many")
	t.Setenv("MODEL_TEMPERATURE", "warm")
	t.Setenv("DEV_MODE", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.SimulationYears)
	assert.Equal(t, 0.7, cfg.ModelTemperature)
	assert.False(t, cfg.DevMode)
}

func TestValidate(t *testing.T) {
	cfg := &Config{DatabasePath: "x.db", SimulationYears: 1, StepsPerYear: 4}
	assert.NoError(t, cfg.Validate())

	cfg.DatabasePath = ""
	assert.Error(t, cfg.Validate())

	cfg.DatabasePath = "x.db"
	cfg.SimulationYears = 0
	assert.Error(t, cfg.Validate())

	cfg.SimulationYears = 1
	cfg.StepsPerYear = 0
	assert.Error(t, cfg.Validate())
}
