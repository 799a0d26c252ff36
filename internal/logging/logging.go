// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging provides structured logging for the lockdown agent,
// built on log/slog with an optional syslog forwarder. Every subsystem
// gets a Logger scoped with its own component name.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Config controls how a Logger is constructed.
type Config struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "text" or "json"
	Output io.Writer
	Syslog SyslogConfig
}

// DefaultConfig returns the configuration used when the caller has no
// opinion: info level, text output to stderr, syslog disabled.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "text",
		Output: os.Stderr,
		Syslog: DefaultSyslogConfig(),
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger wraps a *slog.Logger with a fixed component attribute.
type Logger struct {
	base   *slog.Logger
	closer io.Closer
}

// New builds a Logger from cfg. If cfg.Syslog.Enabled, log records are
// additionally forwarded to the configured syslog endpoint.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	writers := []io.Writer{out}
	var closer io.Closer

	if cfg.Syslog.Enabled {
		if w, err := NewSyslogWriter(cfg.Syslog); err == nil {
			writers = append(writers, w)
			closer = w
		}
	}

	var dest io.Writer = out
	if len(writers) > 1 {
		dest = io.MultiWriter(writers...)
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(dest, opts)
	} else {
		handler = slog.NewTextHandler(dest, opts)
	}

	return &Logger{base: slog.New(handler), closer: closer}
}

// WithComponent returns a child Logger that tags every record with
// component=name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{base: l.base.With("component", name), closer: l.closer}
}

// With returns a child Logger with the given key/value pairs attached to
// every subsequent record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{base: l.base.With(args...), closer: l.closer}
}

func (l *Logger) Debug(msg string, args ...any) { l.base.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.base.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.base.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.base.Error(msg, args...) }

// Close releases any resources (e.g. a syslog connection) held by the
// Logger. Safe to call on a Logger with no such resources.
func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

var defaultLogger atomic.Pointer[Logger]
var defaultOnce sync.Once

// SetDefault installs l as the package-level default logger used by the
// Debug/Info/Warn/Error package functions.
func SetDefault(l *Logger) {
	defaultLogger.Store(l)
}

func ensureDefault() *Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	defaultOnce.Do(func() {
		if defaultLogger.Load() == nil {
			defaultLogger.Store(New(DefaultConfig()))
		}
	})
	return defaultLogger.Load()
}

func Debug(msg string, args ...any) { ensureDefault().Debug(msg, args...) }
func Info(msg string, args ...any)  { ensureDefault().Info(msg, args...) }
func Warn(msg string, args ...any)  { ensureDefault().Warn(msg, args...) }
func Error(msg string, args ...any) { ensureDefault().Error(msg, args...) }
