// Package logging configures the process-wide zerolog output.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Setup builds the root logger and sets the global level. Format
// "json" writes machine-readable lines; anything else gets a console
// writer. Both go to stderr so command output stays clean on stdout.
func Setup(level, format string) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(level))

	var out io.Writer = os.Stderr
	if format != "json" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// parseLevel maps a level name to its zerolog level, defaulting to
// info for anything unrecognized.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
