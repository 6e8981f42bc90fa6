// Package logger provides context-scoped structured logging on top of logrus.
// Loaders, the merger and the compiler pull their logger from the context so
// callers can attach fields such as the source being loaded.
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// G is shorthand for GetLogger
	G = GetLogger
	// L is the process-wide fallback entry used when the context carries none
	L = logrus.NewEntry(newLogger())
)

type loggerKey struct{}

// WithLogger returns a context carrying the given entry
func WithLogger(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, loggerKey{}, entry.WithContext(ctx))
}

// WithFields returns a context whose logger has the extra fields attached
func WithFields(ctx context.Context, fields logrus.Fields) context.Context {
	return WithLogger(ctx, GetLogger(ctx).WithFields(fields))
}

// GetLogger returns the entry stored in ctx, or L when there is none
func GetLogger(ctx context.Context) *logrus.Entry {
	entry, ok := ctx.Value(loggerKey{}).(*logrus.Entry)
	if !ok {
		return L.WithContext(ctx)
	}
	return entry
}

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.Formatter = formatter("text")
	return l
}

func formatter(format string) logrus.Formatter {
	if format == "json" {
		return &logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "logLevel",
				logrus.FieldKeyMsg:   "message",
			},
			TimestampFormat: time.RFC3339Nano,
		}
	}
	return &logrus.TextFormatter{
		TimestampFormat: time.RFC3339Nano,
		FullTimestamp:   true,
	}
}

// Configure applies level and format ("text" or "json") to the given logger.
// A nil writer keeps the current output.
func Configure(l *logrus.Logger, level, format string, w io.Writer) error {
	if level != "" {
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return errors.Wrapf(err, "invalid log level %q", level)
		}
		l.SetLevel(lvl)
	}
	if format != "" {
		if format != "text" && format != "fmt" && format != "json" {
			return errors.Errorf("invalid log format %q (expected text or json)", format)
		}
		l.Formatter = formatter(format)
	}
	if w != nil {
		l.SetOutput(w)
	}
	return nil
}

// ConfigureGlobal applies Configure to the logger behind L
func ConfigureGlobal(level, format string, w io.Writer) error {
	return Configure(L.Logger, level, format, w)
}
