// Package log configures the zerolog logger used across the persistence
// layer. Components obtain sub-loggers via For so that every event is
// tagged with its origin.
package log

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var root zerolog.Logger

func init() {
	level := zerolog.InfoLevel
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(v)); err == nil {
			level = parsed
		}
	}
	root = zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}

// Logger returns the root logger.
func Logger() zerolog.Logger {
	return root
}

// For returns a logger tagged with the given component name.
func For(component string) zerolog.Logger {
	return root.With().Str("component", component).Logger()
}
