// Package logger provides the structured logging facility shared by all
// application services. It wraps logrus so call sites depend on a small
// stable surface instead of a concrete logging backend.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LoggingConfig controls how a Logger is constructed.
type LoggingConfig struct {
	Level      string
	Format     string // "json" or "text"
	Output     string // "stdout", "stderr" or "file"
	FilePrefix string // directory/prefix for file output
}

// Logger is a structured logger scoped to a named service.
type Logger struct {
	entry *logrus.Entry
}

// New creates a logger from the supplied configuration.
func New(cfg LoggingConfig) *Logger {
	base := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	}

	base.SetOutput(resolveOutput(cfg))

	return &Logger{entry: logrus.NewEntry(base)}
}

// NewDefault creates an info-level text logger tagged with the service name.
func NewDefault(service string) *Logger {
	log := New(LoggingConfig{Level: "info", Format: "text", Output: "stdout"})
	return log.WithField("service", service)
}

func resolveOutput(cfg LoggingConfig) io.Writer {
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	case "file":
		prefix := cfg.FilePrefix
		if prefix == "" {
			prefix = "app"
		}
		if dir := filepath.Dir(prefix); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return os.Stdout
			}
		}
		name := prefix + "-" + time.Now().UTC().Format("20060102") + ".log"
		f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return os.Stdout
		}
		return f
	default:
		return os.Stdout
	}
}

// WithField returns a logger carrying an additional structured field.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithFields returns a logger carrying the supplied structured fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

// WithError returns a logger carrying the error as a structured field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

func (l *Logger) Debug(args ...any)                 { l.entry.Debug(args...) }
func (l *Logger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *Logger) Info(args ...any)                  { l.entry.Info(args...) }
func (l *Logger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *Logger) Warn(args ...any)                  { l.entry.Warn(args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *Logger) Error(args ...any)                 { l.entry.Error(args...) }
func (l *Logger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }
