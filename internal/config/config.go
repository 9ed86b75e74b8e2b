// Package config provides application configuration management.
// It loads settings from environment variables and provides defaults for
// the server, the generation API, the document store and the pipeline.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for tunable pipeline constants.
const (
	// DefaultDedupTTL is how long an event ID is remembered for duplicate
	// suppression. LINE retries for minutes, not hours.
	DefaultDedupTTL = 10 * time.Minute

	// DefaultHistoryDepth is how many stored turns are replayed to the
	// generation API. Bounds the context window; unbounded accumulation
	// is explicitly avoided.
	DefaultHistoryDepth = 6

	// DefaultLineRateRPS caps outbound LINE messaging API calls.
	DefaultLineRateRPS = 50.0
)

// Config holds all application configuration
type Config struct {
	// LINE Bot Configuration. Both may be empty: the webhook route then
	// degrades to a no-op 200 responder instead of crashing the process.
	LineChannelToken  string
	LineChannelSecret string

	// Generation API Configuration
	LLMProvider  string // "openai" or "gemini"
	LLMModel     string // empty = provider default
	OpenAIAPIKey string
	GeminiAPIKey string

	// Server Configuration
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration

	// Data Configuration
	DataDir string // directory for the SQLite document store

	// Pipeline Configuration
	DedupTTL     time.Duration
	HistoryDepth int
	LineRateRPS  float64

	// Metrics Authentication
	MetricsUsername string
	MetricsPassword string // empty = no auth on /metrics

	// Sentry
	SentryDSN         string
	SentryEnvironment string
	SentrySampleRate  float64

	// Better Stack
	BetterStackToken    string
	BetterStackEndpoint string
}

// Load reads configuration from environment variables.
// It attempts to load a .env file first, then reads from env vars.
func Load() (*Config, error) {
	// Ignore error if the .env file doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		LineChannelToken:  getEnv(EnvLineChannelAccessToken, ""),
		LineChannelSecret: getEnv(EnvLineChannelSecret, ""),

		LLMProvider:  getEnv(EnvLLMProvider, "openai"),
		LLMModel:     getEnv(EnvLLMModel, ""),
		OpenAIAPIKey: getEnv(EnvOpenAIAPIKey, ""),
		GeminiAPIKey: getEnv(EnvGeminiAPIKey, ""),

		Port:            getEnv(EnvPort, "8080"),
		LogLevel:        getEnv(EnvLogLevel, "info"),
		ShutdownTimeout: getDurationEnv(EnvShutdownTimeout, 30*time.Second),

		DataDir: getEnv(EnvDataDir, "data"),

		DedupTTL:     getDurationEnv(EnvDedupTTL, DefaultDedupTTL),
		HistoryDepth: getIntEnv(EnvHistoryDepth, DefaultHistoryDepth),
		LineRateRPS:  getFloatEnv(EnvLineRateRPS, DefaultLineRateRPS),

		MetricsUsername: getEnv(EnvMetricsUsername, "prometheus"),
		MetricsPassword: getEnv(EnvMetricsPassword, ""),

		SentryDSN:         getEnv(EnvSentryDSN, ""),
		SentryEnvironment: getEnv(EnvSentryEnvironment, "production"),
		SentrySampleRate:  getFloatEnv(EnvSentrySampleRate, 1.0),

		BetterStackToken:    getEnv(EnvBetterStackToken, ""),
		BetterStackEndpoint: getEnv(EnvBetterStackEndpoint, ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if required configuration values are set.
// Missing LINE credentials are deliberately not an error: the webhook
// degrades instead. A missing generation API key is a startup-time
// fatal misconfiguration.
func (c *Config) Validate() error {
	var errs []error

	switch c.LLMProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New(EnvOpenAIAPIKey+" is required"))
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New(EnvGeminiAPIKey+" is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported %s: %q", EnvLLMProvider, c.LLMProvider))
	}

	if c.Port == "" {
		errs = append(errs, errors.New(EnvPort+" must not be empty"))
	}
	if c.DedupTTL < time.Minute || c.DedupTTL > time.Hour {
		errs = append(errs, fmt.Errorf("%s must be between 1m and 1h, got %s", EnvDedupTTL, c.DedupTTL))
	}
	if c.HistoryDepth < 1 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %d", EnvHistoryDepth, c.HistoryDepth))
	}
	if c.LineRateRPS <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvLineRateRPS, c.LineRateRPS))
	}

	return errors.Join(errs...)
}

// LineEnabled reports whether both LINE credentials are configured.
func (c *Config) LineEnabled() bool {
	return c.LineChannelToken != "" && c.LineChannelSecret != ""
}

// SQLitePath returns the full path to the SQLite database file.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "nutrilog.db")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloatEnv(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
