// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
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

	// Pretty forces human-readable console output. Output that is a
	// terminal is always pretty.
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// RunID, when set, is attached to every log line as run_id.
	RunID string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty || IsTerminal(output) {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.TimeOnly,
			NoColor:    !IsTerminal(output),
		}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.RunID != "" {
		ctx = ctx.Str("run_id", cfg.RunID)
	}
	logger := ctx.Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ParseLevel validates a configured level name.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return "", fmt.Errorf("unknown log level %q (want debug, info, warn or error)", s)
	}
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
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

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, key, TTL)
//   - Request flow (conditional requests, ETags)
//   - Multi-page walks and duplicate releases
//
// Info: Normal operation events
//   - Category fan-out finished
//   - Run summary (creators, releases, entries)
//   - Token saved after login
//
// Warn: Warning conditions that don't prevent operation
//   - Failed creator fetches (recorded as failures)
//   - Releases excluded for unparsable dates
//   - Retry attempts exhausted
//   - Cache errors (fallback to direct request)
//
// Error: Error conditions requiring attention
//   - Authentication failures
//   - Configuration errors
//   - Network failures
//
// Context Fields:
//   - component: Emitting package (catalog-client, fanout, aggregate, ...)
//   - run_id: Identifier of one radar run
//   - endpoint: Catalog endpoint path with ids collapsed
//   - status: HTTP status code
//   - error_class: Error classification (client, auth, server, rate_limit, network)
//   - creator_id, category: Fan-out chain identity
//   - etag, ttl: Cache details
