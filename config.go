package learningcore

import "github.com/lotustrader/learningcore/internal/coreconfig"

// Config is the process-wide configuration for the learning core:
// decay constants, bleed, cluster/braid sizing, LLM deadlines,
// queue/worker sizing, and cache TTL.
type Config = coreconfig.Config

// LoadConfig reads configuration from the environment (optionally
// preceded by a .env file, ignored if absent).
func LoadConfig() *Config {
	return coreconfig.Load()
}
