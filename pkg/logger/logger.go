// Package logger holds the process-wide zerolog.Logger instance.
package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// Log is the package-level configured logger. It starts disabled so
// nothing is emitted before InitLogger runs.
var Log zerolog.Logger = zerolog.New(nil).Level(zerolog.Disabled)

// InitLogger initializes the global logger. Call once, from main().
// isDevelopment selects a human-friendly console writer at debug level;
// otherwise a plain writer at info level is used.
func InitLogger(isDevelopment bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro

	if isDevelopment {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05.000000"}
		Log = zerolog.New(out).With().Timestamp().Caller().Logger()
		return
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	Log = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// Get returns the global logger instance, for libraries that take a
// *zerolog.Logger directly.
func Get() *zerolog.Logger {
	return &Log
}
