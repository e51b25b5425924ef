package logging

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryAt(component string, sec int, msg string) LogEntry {
	return LogEntry{
		Time:      time.Date(2025, 3, 1, 12, 0, sec, 0, time.UTC),
		Component: component,
		Level:     "warn",
		Message:   msg,
	}
}

func TestNewLogCollector_DefaultCapacity(t *testing.T) {
	collector := NewLogCollector(0, slog.LevelWarn)
	assert.Equal(t, DefaultCapacity, collector.capacity)
}

func TestLogCollector_EvictsOldest(t *testing.T) {
	collector := NewLogCollector(3, slog.LevelWarn)
	for i := 0; i < 5; i++ {
		collector.AddLog(entryAt("poller", i, "m"))
	}
	collector.AddLog(entryAt("server", 9, "other"))

	logs := collector.GetLogs("poller")
	require.Len(t, logs, 3)
	assert.Equal(t, 2, logs[0].Time.Second())
	assert.Equal(t, 4, logs[2].Time.Second())
	assert.Len(t, collector.GetLogs("server"), 1)
}

func TestLogCollector_GetLogs_NonExistent(t *testing.T) {
	collector := NewLogCollector(3, slog.LevelWarn)
	assert.Nil(t, collector.GetLogs("missing"))
}

func TestLogCollector_GetLogs_ReturnsCopy(t *testing.T) {
	collector := NewLogCollector(3, slog.LevelWarn)
	collector.AddLog(entryAt("poller", 1, "original"))

	logs := collector.GetLogs("poller")
	logs[0].Message = "modified"

	assert.Equal(t, "original", collector.GetLogs("poller")[0].Message)
}

func TestLogCollector_Recent(t *testing.T) {
	collector := NewLogCollector(10, slog.LevelWarn)
	collector.AddLog(entryAt("poller", 1, "first"))
	collector.AddLog(entryAt("server", 3, "third"))
	collector.AddLog(entryAt("poller", 2, "second"))

	all := collector.Recent(0)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"third", "second", "first"}, []string{all[0].Message, all[1].Message, all[2].Message})

	limited := collector.Recent(2)
	require.Len(t, limited, 2)
	assert.Equal(t, "third", limited[0].Message)
}

func TestLogCollector_Clear(t *testing.T) {
	collector := NewLogCollector(10, slog.LevelWarn)
	collector.AddLog(entryAt("poller", 1, "m"))
	collector.Clear()
	assert.Empty(t, collector.Recent(0))
}

func TestLogCollector_Logger(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	collector := NewLogCollector(10, slog.LevelWarn)

	logger := collector.Logger(base, "feed")
	logger.Warn("skipping malformed feed record", "error", "record 2: missing id")

	logs := collector.GetLogs("feed")
	require.Len(t, logs, 1)
	assert.Equal(t, "record 2: missing id", logs[0].Attributes["error"])
	assert.Contains(t, buf.String(), "skipping malformed feed record")
}

func TestLogCollector_ConcurrentComponents(t *testing.T) {
	collector := NewLogCollector(50, slog.LevelWarn)
	components := []string{"poller", "server", "peak"}

	var wg sync.WaitGroup
	for _, c := range components {
		wg.Add(1)
		go func(component string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				collector.AddLog(entryAt(component, i, "m"))
			}
		}(c)
	}
	wg.Wait()

	for _, c := range components {
		assert.Len(t, collector.GetLogs(c), 20)
	}
	assert.Len(t, collector.Recent(0), 60)
}
