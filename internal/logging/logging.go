// Package logging provides a process-wide structured logger built on zerolog.
package logging

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the process-wide logger.
type Config struct {
	// Level is one of "debug", "info", "warn", "error" (case-insensitive).
	// Defaults to "info" when empty or unrecognized.
	Level string

	// Console, when true, writes human-readable console output instead of
	// newline-delimited JSON. Server deployments should leave this false.
	Console bool
}

var (
	base     zerolog.Logger
	initOnce sync.Once
)

// Init configures the process-wide logger. Safe to call once at startup;
// subsequent calls are no-ops.
func Init(cfg Config) {
	initOnce.Do(func() {
		level := parseLevel(cfg.Level)
		zerolog.SetGlobalLevel(level)

		var w interface{ Write([]byte) (int, error) } = os.Stderr
		if cfg.Console {
			w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		}

		base = zerolog.New(w).With().Timestamp().Logger()
	})
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// WithComponent returns a logger tagged with the given component name.
// If Init has not been called yet, a sane default (info level, JSON output
// to stderr) is used so packages can log during early startup.
func WithComponent(name string) zerolog.Logger {
	initOnce.Do(func() {
		base = zerolog.New(os.Stderr).With().Timestamp().Logger()
	})
	return base.With().Str("component", name).Logger()
}
