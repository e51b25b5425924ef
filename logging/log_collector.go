package logging

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultCapacity is the number of entries kept per component.
const DefaultCapacity = 100

// LogEntry represents a single log record with structured data.
type LogEntry struct {
	Time       time.Time      `json:"time"`
	Component  string         `json:"component"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// LogCollector keeps the most recent log entries of each component so they
// can be served over HTTP. Older entries are discarded once a component
// reaches its capacity.
type LogCollector struct {
	capacity int
	minLevel slog.Level

	mu   sync.RWMutex
	logs map[string][]LogEntry // component -> entries, oldest first
}

// NewLogCollector creates a LogCollector that keeps up to capacity entries per
// component, capturing records at minLevel and above.
func NewLogCollector(capacity int, minLevel slog.Level) *LogCollector {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &LogCollector{
		capacity: capacity,
		minLevel: minLevel,
		logs:     make(map[string][]LogEntry),
	}
}

// Logger wraps base so that records it emits are also captured under component.
func (c *LogCollector) Logger(base *slog.Logger, component string) *slog.Logger {
	return slog.New(NewCapturingHandler(base.Handler(), c, component))
}

// AddLog adds an entry, evicting the oldest entry of the component when full.
func (c *LogCollector) AddLog(entry LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	logs := append(c.logs[entry.Component], entry)
	if len(logs) > c.capacity {
		logs = append([]LogEntry(nil), logs[len(logs)-c.capacity:]...)
	}
	c.logs[entry.Component] = logs
}

// GetLogs returns the entries of one component, oldest first.
func (c *LogCollector) GetLogs(component string) []LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	logs, exists := c.logs[component]
	if !exists {
		return nil
	}
	result := make([]LogEntry, len(logs))
	copy(result, logs)
	return result
}

// Recent returns up to limit entries across all components, newest first.
// A non-positive limit returns everything.
func (c *LogCollector) Recent(limit int) []LogEntry {
	c.mu.RLock()
	var all []LogEntry
	for _, logs := range c.logs {
		all = append(all, logs...)
	}
	c.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Time.After(all[j].Time)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// Clear removes all stored entries.
func (c *LogCollector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logs = make(map[string][]LogEntry)
}
