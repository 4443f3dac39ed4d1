// Package coreconfig loads the single process-wide configuration object
// spec §6 names: decay constants, bleed, cluster/braid sizing, LLM
// deadlines, queue/worker sizing, and cache TTL. Everything else is
// derived from per-kind LearningConfig and Subscription records.
package coreconfig

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/lotustrader/learningcore/internal/utils"
)

// Config is the process-wide configuration for the learning core.
type Config struct {
	// Store / cache / LLM connection strings.
	DatabaseDSN string
	RedisAddr   string
	OpenAIKey   string
	OpenAIModel string

	// HTTP port the metrics/health endpoint listens on.
	Port string

	// EWMA temporal decay, spec §4.8.
	TauShort time.Duration
	TauLong  time.Duration

	// Importance bleed coefficient, spec §4.8 step 4.
	Bleed          float64
	BleedThreshold float64

	// Clustering, spec §4.5.
	MinClusterSize int
	MaxBraidLevel  int

	// Cross-module feedback defaults, spec §4.4 Open Questions.
	CrossModuleWeight        float64
	CrossModuleMinSamples    int

	// LLM call bounds, spec §4.6 and §5.
	LLMDeadline        time.Duration
	BraidMaxRetries    int
	DispatchMaxRetries int

	// Worker pool, spec §5 and §11.
	WorkerCount       int
	QueueBatchSize    int
	QueueVisibility   time.Duration
	QueuePollInterval time.Duration

	// Context cache, spec §4.9.
	ContextCacheTTL time.Duration

	LogLevel string
}

// Load reads configuration from the environment, optionally loading a
// .env file first (ignored if absent — this is a development
// convenience, never required in production).
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DatabaseDSN: getEnv("LEARNINGCORE_DATABASE_DSN", ""),
		RedisAddr:   getEnv("LEARNINGCORE_REDIS_ADDR", "localhost:6379"),
		OpenAIKey:   getEnv("LEARNINGCORE_OPENAI_API_KEY", ""),
		OpenAIModel: getEnv("LEARNINGCORE_OPENAI_MODEL", "gpt-4o-mini"),

		Port: getEnv("LEARNINGCORE_PORT", "8080"),

		TauShort:       getDuration("LEARNINGCORE_TAU_SHORT", 14*24*time.Hour),
		TauLong:        getDuration("LEARNINGCORE_TAU_LONG", 90*24*time.Hour),
		Bleed:          getFloat("LEARNINGCORE_BLEED", 0.2),
		BleedThreshold: getFloat("LEARNINGCORE_BLEED_THRESHOLD", 0.05),

		MinClusterSize: getInt("LEARNINGCORE_MIN_CLUSTER_SIZE", 3),
		MaxBraidLevel:  getInt("LEARNINGCORE_MAX_BRAID_LEVEL", 4),

		CrossModuleWeight:     getFloat("LEARNINGCORE_CROSS_MODULE_WEIGHT", 0.3),
		CrossModuleMinSamples: getInt("LEARNINGCORE_CROSS_MODULE_MIN_SAMPLES", 10),

		LLMDeadline:        getDuration("LEARNINGCORE_LLM_DEADLINE", 30*time.Second),
		BraidMaxRetries:    getInt("LEARNINGCORE_BRAID_MAX_RETRIES", 3),
		DispatchMaxRetries: getInt("LEARNINGCORE_DISPATCH_MAX_RETRIES", 5),

		WorkerCount:       getInt("LEARNINGCORE_WORKER_COUNT", 4),
		QueueBatchSize:    getInt("LEARNINGCORE_QUEUE_BATCH_SIZE", 16),
		QueueVisibility:   getDuration("LEARNINGCORE_QUEUE_VISIBILITY", 30*time.Second),
		QueuePollInterval: getDuration("LEARNINGCORE_QUEUE_POLL_INTERVAL", 500*time.Millisecond),

		ContextCacheTTL: getDuration("LEARNINGCORE_CONTEXT_CACHE_TTL", 15*time.Minute),

		LogLevel: getEnv("LEARNINGCORE_LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	return utils.DefaultValue(os.Getenv(key), fallback)
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
