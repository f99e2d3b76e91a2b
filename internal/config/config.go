package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Ledger source: a remote CSV export URL, or a local file when
	// LedgerFile is set (file wins for local development).
	SheetCSVURL string
	LedgerFile  string

	// Narrative-AI collaborator. Empty URL disables insights entirely;
	// the dashboard degrades to "no narrative available".
	InsightsAPIURL string

	// Overlay persistence (justifications + contact log).
	OverlayPath string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		SheetCSVURL:    getEnv("SHEET_CSV_URL", ""),
		LedgerFile:     getEnv("LEDGER_FILE", ""),
		InsightsAPIURL: getEnv("INSIGHTS_API_URL", ""),
		OverlayPath:    getEnv("OVERLAY_PATH", "overlays.json"),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 15*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 4),

		CacheTTL: getEnvDuration("CACHE_TTL", 5*time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
