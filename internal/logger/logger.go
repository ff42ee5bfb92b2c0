// Package logger provides a thin wrapper around zerolog.Logger with the
// constructors used throughout clipvault. The Logger type embeds
// zerolog.Logger, so the full zerolog API is available directly.
package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger is a thin wrapper around zerolog.Logger.
type Logger struct {
	zerolog.Logger
}

// New constructs a *Logger for the given component label (e.g. "monitor",
// "store"). Output is JSON on stderr with a timestamp on every entry.
func New(component string) *Logger {
	l := zerolog.New(os.Stderr).With().
		Str("component", component).
		Timestamp().
		Logger()

	return &Logger{l}
}

// Nop returns a *Logger that discards all output. Intended for tests.
func Nop() *Logger {
	return &Logger{zerolog.Nop()}
}

// With returns a child logger carrying the given string field.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{l.Logger.With().Str(key, value).Logger()}
}
