package photom

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log is the package logger. Pipeline stages log progress at info,
// per-frame detail at debug.
var Log zerolog.Logger

func init() {
	Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger().
		Level(zerolog.InfoLevel)
}

// SetLogger replaces the package logger.
func SetLogger(l zerolog.Logger) { Log = l }

// SetVerbosity maps the config verbosity onto a log level.
func SetVerbosity(v int) {
	switch {
	case v >= 2:
		Log = Log.Level(zerolog.TraceLevel)
	case v == 1:
		Log = Log.Level(zerolog.DebugLevel)
	default:
		Log = Log.Level(zerolog.InfoLevel)
	}
}
