package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            int
	NatsURL         string
	NatsToken       string
	DatabaseURL     string
	LogLevel        string
	AnthropicAPIKey string
	AnthropicModel  string
	SlackBotToken   string
	SlackChannel    string
	EchoURL         string
	APIToken        string

	// Provider selection. Adapters are chosen here, never by callers.
	Transcriber string
	Evaluator   string

	// Transcription options.
	WordTimings   bool
	Language      string
	MinConfidence float64

	// Scoring thresholds.
	ViolationThreshold float64
	ReviewThreshold    float64

	// Retry policy for retryable provider failures.
	RetryCap        int
	RetryBaseMillis int

	// Worker pools.
	PipelineWorkers int
	ImportWorkers   int
}

func Load() Config {
	// Optional; real deployments set the environment directly.
	_ = godotenv.Load()

	return Config{
		Port:            envInt("ANDERSON_PORT", 8760),
		NatsURL:         envStr("NATS_URL", "nats://hermes:4222"),
		NatsToken:       envStr("NATS_TOKEN", ""),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("ANDERSON_MODEL", "claude-sonnet-4-20250514"),
		SlackBotToken:   envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:    envStr("SLACK_REVIEWS_CHANNEL", ""),
		EchoURL:         envStr("ECHO_URL", "http://echo:8720"),
		APIToken:        envStr("ANDERSON_API_TOKEN", ""),

		Transcriber: envStr("ANDERSON_TRANSCRIBER", "echo"),
		Evaluator:   envStr("ANDERSON_EVALUATOR", "anthropic"),

		WordTimings:   envBool("ANDERSON_WORD_TIMINGS", false),
		Language:      envStr("ANDERSON_LANGUAGE", "en"),
		MinConfidence: envFloat("ANDERSON_MIN_CONFIDENCE", 0.6),

		ViolationThreshold: envFloat("ANDERSON_VIOLATION_THRESHOLD", 40),
		ReviewThreshold:    envFloat("ANDERSON_REVIEW_THRESHOLD", 70),

		RetryCap:        envInt("ANDERSON_RETRY_CAP", 3),
		RetryBaseMillis: envInt("ANDERSON_RETRY_BASE_MS", 500),

		PipelineWorkers: envInt("ANDERSON_PIPELINE_WORKERS", 4),
		ImportWorkers:   envInt("ANDERSON_IMPORT_WORKERS", 8),
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
