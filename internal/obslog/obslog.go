// Package obslog configures the process-wide zerolog logger: a single
// Setup called once at process start, plus a package-level default any
// component can grab a sub-logger from via With().
package obslog

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var base = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Setup parses level (case-insensitive: debug, info, warn, error;
// anything else defaults to info), sets it as zerolog's global level,
// and returns the base logger. Call once at process start; components
// derive their own sub-logger from the returned value via
// With().Str("component", name).Logger().
func Setup(level string) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(level))
	return base
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a sub-logger tagged with the given component name,
// e.g. obslog.Component("coordinator") for the C11 logger a Coordinator
// is wired with.
func Component(name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
