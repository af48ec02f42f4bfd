package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"smsdispatch/internal/config"
)

// New builds the process logger from configuration
func New(cfg config.LogConfig) zerolog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter builds a logger writing to w
func NewWithWriter(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
