package logging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(buf *bytes.Buffer, minLevel slog.Level) (*CapturingHandler, *LogCollector) {
	collector := NewLogCollector(10, minLevel)
	underlying := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	return NewCapturingHandler(underlying, collector, "poller"), collector
}

func TestCapturingHandler_Enabled(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		minLevel slog.Level
		level    slog.Level
		want     bool
	}{
		{"debug below both", slog.LevelWarn, slog.LevelDebug, false},
		{"info passes underlying", slog.LevelWarn, slog.LevelInfo, true},
		{"warn captured", slog.LevelWarn, slog.LevelWarn, true},
		{"debug captured", slog.LevelDebug, slog.LevelDebug, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _ := newTestHandler(&bytes.Buffer{}, tt.minLevel)
			assert.Equal(t, tt.want, handler.Enabled(ctx, tt.level))
		})
	}
}

func TestCapturingHandler_CapturesAtMinLevel(t *testing.T) {
	var buf bytes.Buffer
	handler, collector := newTestHandler(&buf, slog.LevelWarn)
	logger := slog.New(handler)

	logger.Info("activity started", "activity_id", "a1")
	logger.Warn("failed to fetch activity feed", "error", errors.New("connection refused"), "attempt", 3)

	logs := collector.GetLogs("poller")
	require.Len(t, logs, 1)
	assert.Equal(t, "warn", logs[0].Level)
	assert.Equal(t, "poller", logs[0].Component)
	assert.Equal(t, "failed to fetch activity feed", logs[0].Message)
	assert.Equal(t, "connection refused", logs[0].Attributes["error"])
	assert.Equal(t, int64(3), logs[0].Attributes["attempt"])

	// Both records reach the underlying handler.
	assert.Contains(t, buf.String(), "activity started")
	assert.Contains(t, buf.String(), "failed to fetch activity feed")
}

func TestCapturingHandler_CapturesBelowUnderlyingLevel(t *testing.T) {
	var buf bytes.Buffer
	handler, collector := newTestHandler(&buf, slog.LevelDebug)

	slog.New(handler).Debug("waiting for next scheduled run")

	assert.Len(t, collector.GetLogs("poller"), 1)
	assert.Empty(t, buf.String(), "underlying handler filters debug")
}

func TestCapturingHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	handler, collector := newTestHandler(&buf, slog.LevelWarn)

	logger := slog.New(handler).With("feed", "uploader").WithGroup("peak")
	logger.Warn("failed to update peak concurrency", "count", 4)

	logs := collector.GetLogs("poller")
	require.Len(t, logs, 1)
	assert.Equal(t, "uploader", logs[0].Attributes["feed"])
	assert.Equal(t, int64(4), logs[0].Attributes["peak.count"])

	_, ok := slog.New(handler).With("k", "v").Handler().(*CapturingHandler)
	assert.True(t, ok, "With must keep the capturing handler")
	_, ok = slog.New(handler).WithGroup("g").Handler().(*CapturingHandler)
	assert.True(t, ok, "WithGroup must keep the capturing handler")
}

func TestCapturingHandler_NoAttributes(t *testing.T) {
	handler, collector := newTestHandler(&bytes.Buffer{}, slog.LevelWarn)
	slog.New(handler).Error("shutdown")

	logs := collector.GetLogs("poller")
	require.Len(t, logs, 1)
	assert.Nil(t, logs[0].Attributes)
	assert.Equal(t, "error", logs[0].Level)
}

func TestCapturingHandler_ValueKinds(t *testing.T) {
	handler, collector := newTestHandler(&bytes.Buffer{}, slog.LevelWarn)
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	slog.New(handler).Warn("kinds",
		"duration", 1500*time.Millisecond,
		"time", ts,
		"ratio", 0.5,
		"ok", true,
		slog.Group("request", "status", 502),
	)

	attrs := collector.GetLogs("poller")[0].Attributes
	assert.Equal(t, "1.5s", attrs["duration"])
	got, ok := attrs["time"].(time.Time)
	require.True(t, ok)
	assert.True(t, ts.Equal(got))
	assert.Equal(t, 0.5, attrs["ratio"])
	assert.Equal(t, true, attrs["ok"])
	assert.Equal(t, map[string]any{"status": int64(502)}, attrs["request"])
}

func TestCapturingHandler_ConcurrentLogging(t *testing.T) {
	handler, _ := newTestHandler(&bytes.Buffer{}, slog.LevelWarn)
	collector := NewLogCollector(1000, slog.LevelWarn)
	handler.collector = collector
	logger := slog.New(handler)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				logger.Warn(fmt.Sprintf("message %d-%d", n, j))
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, collector.GetLogs("poller"), 100)
}
