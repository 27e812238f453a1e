package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/ragstore/pkg/config"
)

// newBufferLogger returns a logger writing JSON lines into a buffer.
func newBufferLogger(t *testing.T, mutate func(*Config)) (*Logger, *bytes.Buffer) {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Sampling.Enabled = false
	cfg.Level = TraceLevel
	if mutate != nil {
		mutate(cfg)
	}
	buf := &bytes.Buffer{}
	logger, err := NewLogger(cfg, nil, WithWriter(zapcore.AddSync(buf)))
	require.NoError(t, err)
	return logger, buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestNewLogger_JSONOutput(t *testing.T) {
	logger, buf := newBufferLogger(t, nil)
	ctx := context.Background()

	logger.Trace(ctx, "wire payload", zap.Int("bytes", 42))
	logger.Info(ctx, "store opened", zap.String("backend", "memory"))
	require.NoError(t, logger.Sync())

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)

	assert.Equal(t, "trace", lines[0]["level"])
	assert.Equal(t, "wire payload", lines[0]["msg"])
	assert.EqualValues(t, 42, lines[0]["bytes"])

	assert.Equal(t, "info", lines[1]["level"])
	assert.Equal(t, "memory", lines[1]["backend"])
	assert.Equal(t, "ragstore", lines[1]["service"])
	assert.Contains(t, lines[1]["caller"], "logger_test.go")
}

func TestNewLogger_LevelFilter(t *testing.T) {
	logger, buf := newBufferLogger(t, func(c *Config) { c.Level = zapcore.WarnLevel })
	ctx := context.Background()

	logger.Debug(ctx, "hidden")
	logger.Info(ctx, "hidden")
	logger.Warn(ctx, "shown")
	logger.Error(ctx, "shown too")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.False(t, logger.Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Enabled(zapcore.ErrorLevel))
}

func TestNewLogger_Redaction(t *testing.T) {
	logger, buf := newBufferLogger(t, nil)
	ctx := context.Background()

	logger.Info(ctx, "connecting",
		zap.String("api_key", "abc123"),
		zap.String("header", "Bearer xyz"),
		Secret("auth", config.Secret("hunter2")),
		zap.String("collection", "docs"),
	)
	logger.With(zap.String("token", "tok")).Info(ctx, "child")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)

	assert.Equal(t, "[REDACTED]", lines[0]["api_key"])
	assert.Equal(t, "[REDACTED:pattern]", lines[0]["header"])
	assert.Equal(t, "[REDACTED:7]", lines[0]["auth"])
	assert.Equal(t, "docs", lines[0]["collection"])
	assert.Equal(t, "[REDACTED]", lines[1]["token"])
	assert.NotContains(t, buf.String(), "hunter2")
	assert.NotContains(t, buf.String(), "abc123")
}

func TestLogger_ContextFields(t *testing.T) {
	logger, buf := newBufferLogger(t, nil)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))
	ctx, err := WithRequestID(ctx, "req-1")
	require.NoError(t, err)
	ctx, err = WithCollection(ctx, "handbook")
	require.NoError(t, err)

	logger.Info(ctx, "search complete")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, traceID.String(), lines[0]["trace_id"])
	assert.Equal(t, spanID.String(), lines[0]["span_id"])
	assert.Equal(t, true, lines[0]["trace_sampled"])
	assert.Equal(t, "req-1", lines[0]["request.id"])
	assert.Equal(t, "handbook", lines[0]["collection"])
}

func TestContext_InvalidIDs(t *testing.T) {
	ctx := context.Background()

	_, err := WithRequestID(ctx, "")
	assert.Error(t, err)
	_, err = WithRequestID(ctx, "has space")
	assert.Error(t, err)
	_, err = WithCollection(ctx, strings.Repeat("a", maxIDLen+1))
	assert.Error(t, err)

	assert.Empty(t, ContextFields(ctx))
	assert.NotNil(t, FromContext(ctx))

	tl := NewTestLogger()
	assert.Same(t, tl.Logger, FromContext(WithLogger(ctx, tl.Logger)))
}

func TestNewLogger_OTELOutput(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.Stdout = false
	cfg.Output.OTEL = true

	logger, err := NewLogger(cfg, noop.NewLoggerProvider())
	require.NoError(t, err)
	logger.Info(context.Background(), "bridged")

	_, err = NewLogger(cfg, nil)
	assert.ErrorContains(t, err, "at least one output")
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	_, err := NewLogger(cfg, nil)
	assert.ErrorContains(t, err, "format")
}

func TestFromSection(t *testing.T) {
	cfg, err := FromSection(config.LoggingConfig{
		Level:    "trace",
		Format:   "console",
		Sampling: false,
		Fields:   map[string]string{"env": "test"},
	})
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.False(t, cfg.Sampling.Enabled)
	assert.Equal(t, "test", cfg.Fields["env"])
	assert.Equal(t, "ragstore", cfg.Fields["service"])

	_, err = FromSection(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestLevelFromString(t *testing.T) {
	lvl, err := LevelFromString("TRACE")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, lvl)
	assert.Equal(t, "trace", LevelName(lvl))

	lvl, err = LevelFromString("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)

	_, err = LevelFromString("verbose")
	assert.Error(t, err)
}

func TestTestLogger(t *testing.T) {
	tl := NewTestLogger()
	ctx := context.Background()

	tl.Info(ctx, "search complete", zap.Int("results", 3))
	tl.AssertLogged(t, zapcore.InfoLevel, "search complete")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "search complete")
	tl.AssertField(t, "search complete", "results", int64(3))
	assert.Equal(t, 1, tl.FilterMessage("search complete").Len())

	tl.Reset()
	assert.Empty(t, tl.All())
}
