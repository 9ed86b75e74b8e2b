// Package config defines environment variable keys for configuration.
package config

//nolint:gosec // Environment variable keys are not credentials.
const (
	// LINE messaging (optional: absence degrades the webhook to a no-op responder)
	EnvLineChannelAccessToken = "LINE_CHANNEL_ACCESS_TOKEN"
	EnvLineChannelSecret      = "LINE_CHANNEL_SECRET"

	// Generation API (required)
	EnvLLMProvider  = "LLM_PROVIDER" // "openai" (default) or "gemini"
	EnvLLMModel     = "LLM_MODEL"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvGeminiAPIKey = "GEMINI_API_KEY"

	// Server
	EnvPort            = "PORT"
	EnvLogLevel        = "LOG_LEVEL"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	// Data
	EnvDataDir = "DATA_DIR"

	// Pipeline tuning
	EnvDedupTTL     = "DEDUP_TTL"
	EnvHistoryDepth = "HISTORY_DEPTH"

	// Outbound rate limit
	EnvLineRateRPS = "LINE_RATE_RPS"

	// Metrics auth
	EnvMetricsUsername = "METRICS_USERNAME"
	EnvMetricsPassword = "METRICS_PASSWORD"

	// Sentry
	EnvSentryDSN         = "SENTRY_DSN"
	EnvSentryEnvironment = "SENTRY_ENVIRONMENT"
	EnvSentrySampleRate  = "SENTRY_SAMPLE_RATE"

	// Better Stack log shipping
	EnvBetterStackToken    = "BETTERSTACK_TOKEN"
	EnvBetterStackEndpoint = "BETTERSTACK_ENDPOINT"
)
