package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the root logger. JSON to stdout by default; LOG_PRETTY=1 switches
// to the console writer for local development.
func New(service string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	var out = zerolog.Logger{}
	if os.Getenv("LOG_PRETTY") == "1" {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	} else {
		out = zerolog.New(os.Stdout)
	}

	level := zerolog.InfoLevel
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if parsed, err := zerolog.ParseLevel(v); err == nil {
			level = parsed
		}
	}

	return out.Level(level).With().Timestamp().Str("service", service).Logger()
}
