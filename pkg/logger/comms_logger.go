// Package logger configures the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config for logger initialization.
type Config struct {
	Level   string // debug, info, warn, error
	Service string
	Output  io.Writer
	Pretty  bool // console writer for local development
}

// New builds a zerolog.Logger from config.
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level := parseLevel(cfg.Level)

	service := cfg.Service
	if service == "" {
		service = "comms"
	}

	return zerolog.New(out).Level(level).
		With().Timestamp().Str("service", service).Logger()
}

// Init sets the returned logger as the package default and returns it.
func Init(cfg Config) zerolog.Logger {
	l := New(cfg)
	defaultLogger = l
	return l
}

var defaultLogger = New(Config{})

// Default returns the process-wide logger.
func Default() zerolog.Logger {
	return defaultLogger
}

// With returns the default logger tagged with a component name.
func With(component string) zerolog.Logger {
	return defaultLogger.With().Str("component", component).Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
