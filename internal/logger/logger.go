// Package logger builds the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"stockledger-api/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New returns a logger configured from cfg writing to w.
func New(cfg *config.Config, w io.Writer) zerolog.Logger {
	if strings.EqualFold(cfg.Log.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if cfg.App.Debug {
		level = zerolog.DebugLevel
	}

	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.App.Name).
		Str("env", cfg.App.Environment).
		Str("version", cfg.App.Version).
		Logger()
}

// Setup installs the logger as the global zerolog logger and returns it.
func Setup(cfg *config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	l := New(cfg, os.Stdout)
	log.Logger = l
	zerolog.DefaultContextLogger = &log.Logger
	return l
}
