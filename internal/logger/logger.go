// Package logger provides logging for the fieldsync CLI.
//
// The package keeps a small verbose-flag API for human-facing progress
// (Debug, Info, Section) and exposes the underlying zerolog logger through L()
// for structured events. Without --verbose only warnings and errors are
// written. Output goes to stderr unless redirected with SetOutput.
package logger

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Format selects the output encoding.
type Format string

const (
	// FormatConsole writes human-readable lines.
	FormatConsole Format = "console"

	// FormatJSON writes one JSON object per line.
	FormatJSON Format = "json"
)

var (
	mu      sync.RWMutex
	verbose bool
	level             = zerolog.WarnLevel
	format            = FormatConsole
	output  io.Writer = os.Stderr
	log               = build()
)

// build creates the logger for the current settings (caller must hold lock).
func build() zerolog.Logger {
	lvl := level
	if verbose {
		lvl = zerolog.DebugLevel
	}

	w := output
	if format == FormatConsole {
		w = zerolog.ConsoleWriter{Out: output, NoColor: true, PartsExclude: []string{zerolog.TimestampFieldName}}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	log = build()
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	log = build()
}

// SetLevel sets the minimum level written when not verbose.
func SetLevel(name string) error {
	parsed, err := zerolog.ParseLevel(name)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	level = parsed
	log = build()
	return nil
}

// SetFormat switches between console and JSON output.
func SetFormat(f Format) {
	mu.Lock()
	defer mu.Unlock()
	if f != FormatJSON {
		f = FormatConsole
	}
	format = f
	log = build()
}

// L returns the structured logger.
func L() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := log
	return &l
}

// Debug prints a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	L().Debug().Msgf(format, args...)
}

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	L().Info().Msgf("=== %s ===", name)
}

// Info prints an informational message if verbose mode is enabled.
func Info(format string, args ...any) {
	L().Info().Msgf(format, args...)
}

// Warn prints a warning message.
func Warn(format string, args ...any) {
	L().Warn().Msgf(format, args...)
}

// Error prints an error message.
func Error(err error, format string, args ...any) {
	L().Error().Err(err).Msgf(format, args...)
}
