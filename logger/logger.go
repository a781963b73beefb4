// Package logger provides the structured logger shared by the cache and
// chunking packages.
package logger

import (
	"fmt"
	"io"

	charmlog "github.com/charmbracelet/log"
)

// Logger defines the interface for structured logging
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
	With(keyvals ...any) Logger
}

// Options selects the level and format of a logger built by New.
type Options struct {
	// Level is one of debug, info, warn, error or fatal. Empty means info.
	Level string `yaml:"level" env:"LEVEL"`
	// JSON switches from the text formatter to one JSON object per line.
	JSON bool `yaml:"json" env:"JSON"`
}

type charmLogger struct {
	l *charmlog.Logger
}

// New returns a charm-backed logger writing to out.
func New(out io.Writer, opts Options) (Logger, error) {
	level := charmlog.InfoLevel
	if opts.Level != "" {
		parsed, err := charmlog.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	l := charmlog.NewWithOptions(out, charmlog.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
	})
	if opts.JSON {
		l.SetFormatter(charmlog.JSONFormatter)
	}
	return &charmLogger{l: l}, nil
}

// Discard returns a logger that drops everything. Library components use it
// when no logger is injected.
func Discard() Logger {
	return &charmLogger{l: charmlog.NewWithOptions(io.Discard, charmlog.Options{Level: charmlog.FatalLevel + 1})}
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l Logger) Logger {
	if l == nil {
		return Discard()
	}
	return l
}

func (c *charmLogger) Debug(msg string, keyvals ...any) { c.l.Debug(msg, keyvals...) }
func (c *charmLogger) Info(msg string, keyvals ...any)  { c.l.Info(msg, keyvals...) }
func (c *charmLogger) Warn(msg string, keyvals ...any)  { c.l.Warn(msg, keyvals...) }
func (c *charmLogger) Error(msg string, keyvals ...any) { c.l.Error(msg, keyvals...) }

func (c *charmLogger) With(keyvals ...any) Logger {
	return &charmLogger{l: c.l.With(keyvals...)}
}
