// Package logging builds the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New returns a JSON logger at the given level. Unknown levels fall back to
// info. When pretty is set the output is human readable instead.
func New(level string, w io.Writer, pretty bool) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// Setup builds the logger and installs it as the global default.
func Setup(level, env string) zerolog.Logger {
	logger := New(level, os.Stderr, strings.EqualFold(env, "dev"))
	log.Logger = logger
	zerolog.DefaultContextLogger = &log.Logger
	return logger
}

func ParseLevel(level string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}
