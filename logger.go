package learningcore

import (
	"github.com/lotustrader/learningcore/internal/obslog"
	"github.com/rs/zerolog"
)

// SetupLogging configures the process-wide zerolog logger at the given
// level (debug, info, warn, error) and returns it. Call once at process
// start; individual components should derive their own sub-logger from
// the returned value, or use ComponentLogger.
func SetupLogging(level string) zerolog.Logger {
	return obslog.Setup(level)
}

// ComponentLogger returns a sub-logger tagged with the given component
// name, e.g. ComponentLogger("coordinator").
func ComponentLogger(name string) zerolog.Logger {
	return obslog.Component(name)
}
