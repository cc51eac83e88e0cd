// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	// stages log from many goroutines
	out = zerolog.SyncWriter(out)
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a LogLevel to a zerolog.Level. Unknown values map to info.
func ParseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithRunID tags the global logger with the id of the current harvest run so
// that dataset and sprite lines of one invocation can be correlated.
func WithRunID(runID string) zerolog.Logger {
	log.Logger = log.With().Str("run_id", runID).Logger()
	return log.Logger
}

// Log Level Guidelines:
//
// Debug: request flow (cache hits, conditional requests), scheduler slot
// acquisition, per-attempt asset state transitions.
//
// Info: stage start/finish with counts, 404 sprite skips, successful
// retries, dataset written.
//
// Warn: retry attempts, species or generation dropped from the dataset,
// failed asset jobs, cache errors (fallback to direct request).
//
// Error: fatal conditions only (dataset write failure, invalid config).
//
// Context Fields:
//   - component: package emitting the line
//   - run_id: harvest run identifier
//   - generation, species_id, slug: dataset stage keys
//   - category, url, path, attempt, outcome: asset stage keys
//   - status: HTTP status code
//   - error_class: client, not_found, server, network
