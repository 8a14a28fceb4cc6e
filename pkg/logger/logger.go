// Package logger provides the structured logger shared by every ConeDex
// component. It is a thin layer over logrus so call sites can use the familiar
// WithField/WithError chaining.
package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/conedex/conedex/internal/logging"
)

// Logger embeds a logrus logger and remembers the component it was built for.
type Logger struct {
	*logrus.Logger
	component string
}

// LoggingConfig controls logger construction.
type LoggingConfig struct {
	Level     string
	Format    string // "json" or "text"
	Output    io.Writer
	Component string
}

// New builds a logger from configuration.
func New(cfg LoggingConfig) *Logger {
	base := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "text":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		base.SetFormatter(&logrus.JSONFormatter{})
	}

	if cfg.Output != nil {
		base.SetOutput(cfg.Output)
	} else {
		base.SetOutput(os.Stdout)
	}

	return &Logger{Logger: base, component: cfg.Component}
}

// NewDefault returns an info-level JSON logger tagged with component.
func NewDefault(component string) *Logger {
	return New(LoggingConfig{Level: "info", Format: "json", Component: component})
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	return New(LoggingConfig{Level: "panic", Output: io.Discard})
}

// Named returns a logger sharing the same sink but tagged with a different
// component.
func (l *Logger) Named(component string) *Logger {
	return &Logger{Logger: l.Logger, component: component}
}

// Component reports the component name.
func (l *Logger) Component() string { return l.component }

func (l *Logger) base() *logrus.Entry {
	entry := logrus.NewEntry(l.Logger)
	if l.component != "" {
		entry = entry.WithField("component", l.component)
	}
	return entry
}

// WithField starts an entry with a single field.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.base().WithField(key, value)
}

// WithFields starts an entry with several fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.base().WithFields(logrus.Fields(fields))
}

// WithError starts an entry carrying err.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.base().WithError(err)
}

// WithContext adds request-scoped values (trace, user, role) from ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.base().WithContext(ctx)
	if traceID := logging.GetTraceID(ctx); traceID != "" {
		entry = entry.WithField("trace_id", traceID)
	}
	if userID := logging.GetUserID(ctx); userID != "" {
		entry = entry.WithField("user_id", userID)
	}
	if role := logging.GetRole(ctx); role != "" {
		entry = entry.WithField("role", role)
	}
	return entry
}

func (l *Logger) Info(args ...interface{})  { l.base().Info(args...) }
func (l *Logger) Warn(args ...interface{})  { l.base().Warn(args...) }
func (l *Logger) Error(args ...interface{}) { l.base().Error(args...) }
func (l *Logger) Debug(args ...interface{}) { l.base().Debug(args...) }

func (l *Logger) Infof(format string, args ...interface{})  { l.base().Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.base().Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.base().Errorf(format, args...) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.base().Debugf(format, args...) }
