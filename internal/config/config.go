package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port              int
	NatsURL           string
	NatsToken         string
	DatabaseURL       string
	LogLevel          string
	LlamaServerURL    string
	Model             string
	CheckpointDir     string
	CheckpointTTL     time.Duration
	CatalogPath       string
	MaxRetries        int
	RetryReduction    int
	PassTimeout       time.Duration
	RateLimit         float64
	DetailedProfiling bool
	PageSize          int
}

func Load() Config {
	// A local .env file is a development convenience, not a requirement.
	_ = godotenv.Load()

	return Config{
		Port:              envInt("DRAMATIS_PORT", 8090),
		NatsURL:           envStr("NATS_URL", ""),
		NatsToken:         envStr("NATS_TOKEN", ""),
		DatabaseURL:       envStr("DATABASE_URL", ""),
		LogLevel:          envStr("LOG_LEVEL", "info"),
		LlamaServerURL:    envStr("LLAMA_SERVER_URL", "http://localhost:8080"),
		Model:             envStr("DRAMATIS_MODEL", "qwen3-1.7b"),
		CheckpointDir:     envStr("DRAMATIS_CHECKPOINT_DIR", "~/.dramatis/checkpoints"),
		CheckpointTTL:     envDur("DRAMATIS_CHECKPOINT_TTL", 24*time.Hour),
		CatalogPath:       envStr("DRAMATIS_CATALOG", ""),
		MaxRetries:        envInt("DRAMATIS_MAX_RETRIES", 2),
		RetryReduction:    envInt("DRAMATIS_RETRY_REDUCTION", 512),
		PassTimeout:       envDur("DRAMATIS_PASS_TIMEOUT", 10*time.Minute),
		RateLimit:         envFloat("DRAMATIS_RATE_LIMIT", 0),
		DetailedProfiling: envBool("DRAMATIS_DETAILED_PROFILING", false),
		PageSize:          envInt("DRAMATIS_PAGE_SIZE", 10000),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
