package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Simulation defaults used when a request does not override them.
	SimulationYears int
	StepsPerYear    int
	RandomSeed      int64

	// Model API settings for model-backed decision providers.
	ModelBaseURL     string
	ModelAPIKey      string
	ModelName        string
	ModelTemperature float64
	ModelMaxTokens   int

	DatabasePath string
	LogLevel     string
	Port         int
	DevMode      bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		SimulationYears:  getEnvAsInt("SIMULATION_YEARS", 5),
		StepsPerYear:     getEnvAsInt("SIMULATION_STEPS_PER_YEAR", 4),
		RandomSeed:       int64(getEnvAsInt("RANDOM_SEED", 42)),
		ModelBaseURL:     getEnv("MODEL_BASE_URL", "https://api.openai.com/v1"),
		ModelAPIKey:      getEnv("MODEL_API_KEY", ""),
		ModelName:        getEnv("MODEL_NAME", "gpt-4"),
		ModelTemperature: getEnvAsFloat("MODEL_TEMPERATURE", 0.7),
		ModelMaxTokens:   getEnvAsInt("MODEL_MAX_TOKENS", 1024),
		DatabasePath:     getEnv("DATABASE_PATH", "./data/tradewar.db"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		Port:             getEnvAsInt("PORT", 8000),
		DevMode:          getEnvAsBool("DEV_MODE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.SimulationYears <= 0 {
		return fmt.Errorf("SIMULATION_YEARS must be positive")
	}
	if c.StepsPerYear <= 0 {
		return fmt.Errorf("SIMULATION_STEPS_PER_YEAR must be positive")
	}

	// Note: model credentials optional; rule-based strategies need none.

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
