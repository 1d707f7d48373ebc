//go:build unit

package zap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	logpkg "github.com/LerianStudio/lib-txplan/txplan/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, observed := observer.New(level)

	return NewWithCore(core), observed
}

func TestLoggerNilReceiverFallsBackToNop(t *testing.T) {
	var nilLogger *Logger

	assert.NotPanics(t, func() {
		nilLogger.Log(context.Background(), logpkg.LevelInfo, "message")
	})
	assert.False(t, nilLogger.Enabled(logpkg.LevelError))
}

func TestLogDispatchesLevels(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.DebugLevel)
	ctx := context.Background()

	logger.Log(ctx, logpkg.LevelDebug, "debug message")
	logger.Log(ctx, logpkg.LevelInfo, "info message", logpkg.String("plan_id", "p-1"))
	logger.Log(ctx, logpkg.LevelWarn, "warn message", logpkg.Int("step_index", 3))
	logger.Log(ctx, logpkg.LevelError, "error message", logpkg.Err(errors.New("boom")))

	entries := observed.All()
	require.Len(t, entries, 4)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, "p-1", entries[1].ContextMap()["plan_id"])
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.EqualValues(t, 3, entries[2].ContextMap()["step_index"])
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "boom", entries[3].ContextMap()["error"])
}

func TestLogAddsTraceCorrelation(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.InfoLevel)

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "txplan.plan.execute")
	defer span.End()

	logger.Log(ctx, logpkg.LevelInfo, "step executed")

	entries := observed.All()
	require.Len(t, entries, 1)
	assert.Equal(t, span.SpanContext().TraceID().String(), entries[0].ContextMap()["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), entries[0].ContextMap()["span_id"])
}

func TestWithAndWithGroup(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.InfoLevel)

	child := logger.With(logpkg.String("component", "executor"))
	child.Log(context.Background(), logpkg.LevelInfo, "hello")

	grouped := logger.WithGroup("step")
	grouped.Log(context.Background(), logpkg.LevelInfo, "grouped", logpkg.Int("index", 1))

	entries := observed.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "executor", entries[0].ContextMap()["component"])
	assert.Equal(t, map[string]any{"index": int64(1)}, entries[1].ContextMap()["step"])
}

func TestEnabled(t *testing.T) {
	logger, _ := newObservedLogger(zapcore.WarnLevel)

	assert.True(t, logger.Enabled(logpkg.LevelError))
	assert.True(t, logger.Enabled(logpkg.LevelWarn))
	assert.False(t, logger.Enabled(logpkg.LevelInfo))
	assert.False(t, logger.Enabled(logpkg.LevelDebug))
}

func TestSyncHonoursCancelledContext(t *testing.T) {
	logger, _ := newObservedLogger(zapcore.InfoLevel)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, logger.Sync(ctx), context.Canceled)
	assert.NoError(t, logger.Sync(context.Background()))
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Environment: EnvironmentLocal})
	require.Error(t, err)

	_, err = New(Config{Environment: "mars", OTelLibraryName: "txplan"})
	require.Error(t, err)

	_, err = New(Config{Environment: EnvironmentProduction, OTelLibraryName: "txplan", Level: "loud"})
	require.Error(t, err)

	logger, err := New(Config{Environment: EnvironmentLocal, OTelLibraryName: "txplan"})
	require.NoError(t, err)
	assert.True(t, logger.Enabled(logpkg.LevelDebug))

	logger, err = New(Config{Environment: EnvironmentProduction, OTelLibraryName: "txplan", Level: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Enabled(logpkg.LevelInfo))
	assert.Equal(t, zapcore.WarnLevel, logger.Level().Level())
}

func TestFieldConversion(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.InfoLevel)
	cause := errors.New("deadlock detected")

	logger.Log(context.Background(), logpkg.LevelWarn, "plan aborted",
		logpkg.Duration("elapsed", 1500*time.Millisecond),
		logpkg.Bool("nested", true),
		logpkg.Err(cause),
		logpkg.Any("cause", cause),
		logpkg.Any("params", map[string]any{"id": 7}),
	)

	entries := observed.All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, 1500*time.Millisecond, fields["elapsed"])
	assert.Equal(t, true, fields["nested"])
	assert.Equal(t, "deadlock detected", fields["error"])
	assert.Equal(t, "deadlock detected", fields["cause"])
	assert.Equal(t, map[string]any{"id": 7}, fields["params"])
}

func TestLogSkipsDisabledLevels(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.ErrorLevel)

	logger.Log(context.Background(), logpkg.LevelInfo, "dropped", logpkg.String("k", "v"))
	logger.Log(context.Background(), logpkg.Level(42), "unknown level maps to info")

	assert.Zero(t, observed.Len())
}

func TestNewWritesJSONToOutput(t *testing.T) {
	var buf bytes.Buffer

	logger, err := New(Config{Environment: EnvironmentProduction, OTelLibraryName: "txplan", Output: &buf})
	require.NoError(t, err)

	logger.Log(context.Background(), logpkg.LevelDebug, "suppressed")
	logger.Log(context.Background(), logpkg.LevelInfo, "transaction committed", logpkg.String("propagation", "REQUIRED"))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "transaction committed", entry["msg"])
	assert.Equal(t, "REQUIRED", entry["propagation"])
}

func TestParseEnvironment(t *testing.T) {
	tests := []struct {
		in      string
		want    Environment
		wantErr bool
	}{
		{in: "prod", want: EnvironmentProduction},
		{in: " Production ", want: EnvironmentProduction},
		{in: "stage", want: EnvironmentStaging},
		{in: "dev", want: EnvironmentDevelopment},
		{in: "", want: EnvironmentLocal},
		{in: "mars", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEnvironment(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfig)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
