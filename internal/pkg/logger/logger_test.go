package logger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// observe swaps the global logger for an in-memory one for the duration of the test.
func observe(t *testing.T, level zapcore.Level) *observer.ObservedLogs {
	t.Helper()

	core, logs := observer.New(level)

	previous := baseLogger
	baseLogger = zap.New(core).Sugar()
	t.Cleanup(func() { baseLogger = previous })

	return logs
}

func fields(entry observer.LoggedEntry) map[string]any {
	return entry.ContextMap()
}

func TestInit(t *testing.T) {
	t.Run("should reject an unknown level", func(t *testing.T) {
		assert.Error(t, Init("verbose"))
	})

	t.Run("should configure the logger only once", func(t *testing.T) {
		previous := baseLogger
		t.Cleanup(func() {
			baseLogger = previous
			initBaseLoggerOnce = sync.Once{}
		})
		baseLogger = nil
		initBaseLoggerOnce = sync.Once{}

		require.NoError(t, Init("warn"))
		first := baseLogger
		require.NotNil(t, first)

		require.NoError(t, Init("debug"))
		assert.Same(t, first, baseLogger)
		assert.False(t, baseLogger.Desugar().Core().Enabled(zapcore.InfoLevel))
	})
}

func TestBeforeInit(t *testing.T) {
	t.Run("should log to the no-op logger", func(t *testing.T) {
		previous := baseLogger
		baseLogger = nil
		t.Cleanup(func() { baseLogger = previous })

		assert.Same(t, nopLogger, base())
		assert.NotPanics(t, func() {
			Info(context.Background(), "page fetched", "page", 1)
			_ = Sync()
		})
	})
}

func TestLevels(t *testing.T) {
	t.Run("should write each level with its key/value pairs", func(t *testing.T) {
		logs := observe(t, zapcore.DebugLevel)
		ctx := context.Background()

		Debug(ctx, "page fetched", "page", 1)
		Info(ctx, "fetch finished", "count", 3)
		Warn(ctx, "retrying page", "attempt", 2)
		Error(ctx, "giving up on page", "page", 4)

		entries := logs.All()
		require.Len(t, entries, 4)

		assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
		assert.Equal(t, "page fetched", entries[0].Message)
		assert.Equal(t, int64(1), fields(entries[0])["page"])

		assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
		assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
		assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	})

	t.Run("should drop entries below the configured level", func(t *testing.T) {
		logs := observe(t, zapcore.WarnLevel)

		Debug(context.Background(), "noise")
		Info(context.Background(), "noise")
		Warn(context.Background(), "kept")

		require.Equal(t, 1, logs.Len())
		assert.Equal(t, "kept", logs.All()[0].Message)
	})

	t.Run("should panic after logging", func(t *testing.T) {
		logs := observe(t, zapcore.DebugLevel)

		assert.Panics(t, func() { Panic(context.Background(), "unreachable state") })
		assert.Equal(t, 1, logs.FilterMessage("unreachable state").Len())
	})
}

func TestDerive(t *testing.T) {
	t.Run("should attach the derived fields to later entries", func(t *testing.T) {
		logs := observe(t, zapcore.DebugLevel)

		ctx := Derive(context.Background(), "chain", "Solana", "address", "Tokenkeg")
		Info(ctx, "fetch started")

		require.Equal(t, 1, logs.Len())
		f := fields(logs.All()[0])
		assert.Equal(t, "Solana", f["chain"])
		assert.Equal(t, "Tokenkeg", f["address"])
	})

	t.Run("should stack derivations", func(t *testing.T) {
		logs := observe(t, zapcore.DebugLevel)

		ctx := Derive(context.Background(), "chain", "Polygon")
		ctx = Derive(ctx, "page", 2)
		Warn(ctx, "retrying page")

		f := fields(logs.All()[0])
		assert.Equal(t, "Polygon", f["chain"])
		assert.Equal(t, int64(2), f["page"])
	})

	t.Run("should leave the parent context untouched", func(t *testing.T) {
		logs := observe(t, zapcore.DebugLevel)

		parent := context.Background()
		_ = Derive(parent, "chain", "Polygon")
		Info(parent, "plain")

		assert.NotContains(t, fields(logs.All()[0]), "chain")
	})
}

func TestTraceFields(t *testing.T) {
	traceID := trace.TraceID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
	spanID := trace.SpanID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

	t.Run("should add trace and span ids from the context", func(t *testing.T) {
		logs := observe(t, zapcore.DebugLevel)

		spanCtx := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
		ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

		Info(ctx, "traced")

		f := fields(logs.All()[0])
		assert.Equal(t, traceID.String(), f["trace_id"])
		assert.Equal(t, spanID.String(), f["span_id"])
	})

	t.Run("should omit ids the context does not carry", func(t *testing.T) {
		logs := observe(t, zapcore.DebugLevel)

		spanCtx := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID})
		ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

		Info(ctx, "trace only")

		f := fields(logs.All()[0])
		assert.Equal(t, traceID.String(), f["trace_id"])
		assert.NotContains(t, f, "span_id")
	})

	t.Run("should not add ids without a span", func(t *testing.T) {
		logs := observe(t, zapcore.DebugLevel)

		Info(context.Background(), "untraced")

		f := fields(logs.All()[0])
		assert.NotContains(t, f, "trace_id")
		assert.NotContains(t, f, "span_id")
	})
}
