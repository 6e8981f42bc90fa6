package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	l := newLogger()

	formatter, ok := l.Formatter.(*logrus.TextFormatter)
	require.True(t, ok)
	assert.Equal(t, time.RFC3339Nano, formatter.TimestampFormat)
	assert.True(t, formatter.FullTimestamp)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}

func TestGetLogger(t *testing.T) {
	t.Run("falls back to global", func(t *testing.T) {
		assert.Equal(t, L.Logger, G(context.Background()).Logger)
	})

	t.Run("returns context logger", func(t *testing.T) {
		entry := logrus.NewEntry(logrus.New()).WithField("source", "local")
		ctx := WithLogger(context.Background(), entry)
		assert.Equal(t, "local", G(ctx).Data["source"])
	})

	t.Run("ignores foreign values", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), loggerKey{}, "not-a-logger")
		assert.Equal(t, L.Logger, G(ctx).Logger)
	})
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	require.NoError(t, Configure(l, "debug", "json", nil))

	ctx := WithLogger(context.Background(), logrus.NewEntry(l))
	ctx = WithFields(ctx, logrus.Fields{"source": "remote"})
	ctx = WithFields(ctx, logrus.Fields{"skill": "react"})
	G(ctx).Debug("loaded")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "remote", line["source"])
	assert.Equal(t, "react", line["skill"])
	assert.Equal(t, "debug", line["logLevel"])
	assert.Equal(t, "loaded", line["message"])

	ts, ok := line["timestamp"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339Nano, ts)
	assert.NoError(t, err)
}

func TestConfigure(t *testing.T) {
	l := logrus.New()

	require.NoError(t, Configure(l, "warn", "text", nil))
	assert.Equal(t, logrus.WarnLevel, l.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, l.Formatter)

	require.NoError(t, Configure(l, "", "json", nil))
	assert.Equal(t, logrus.WarnLevel, l.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)

	err := Configure(l, "loud", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")

	err = Configure(l, "", "xml", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log format")
}

func TestLevelsFilter(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	require.NoError(t, Configure(l, "warn", "json", &buf))

	entry := logrus.NewEntry(l)
	entry.Debug("hidden")
	entry.Info("hidden")
	entry.Warn("shown")
	entry.Error("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Contains(t, line, "shown")
	}
}
