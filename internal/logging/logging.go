package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where log output goes. The curses UI owns the terminal, so
// output goes to a rotating file unless File is "-".
type Config struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	JSON       bool
}

// New builds a zerolog logger and returns it with a closer for the underlying
// file. Every mirror also receives each entry as a plain console line.
func New(cfg Config, mirrors ...io.Writer) (*zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var (
		sink   io.Writer
		closer io.Closer = nopCloser{}
	)
	if cfg.File == "-" {
		sink = os.Stderr
	} else {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("could not create log directory: %w", err)
		}
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		sink = rotating
		closer = rotating
	}

	writers := []io.Writer{format(sink, cfg.JSON)}
	for _, m := range mirrors {
		writers = append(writers, format(m, false))
	}
	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp().Logger()
	return &logger, closer, nil
}

// NewWithWriter builds a logger over an arbitrary writer. Tests use it with a buffer.
func NewWithWriter(w io.Writer, level zerolog.Level, json bool) *zerolog.Logger {
	logger := zerolog.New(format(w, json)).Level(level).With().Timestamp().Logger()
	return &logger
}

func format(w io.Writer, json bool) io.Writer {
	if json {
		return w
	}
	return zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    true,
		TimeFormat: time.RFC3339,
	}
}

// Nop returns a disabled logger.
func Nop() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
