package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// CronTriggerManager runs a set of named triggers, such as the poll loop and
// the peak reset, each on its own schedule.
type CronTriggerManager struct {
	logger *slog.Logger

	mu       sync.Mutex
	triggers map[string]*CronTrigger
	started  context.Context
}

// NewCronTriggerManager creates an empty manager.
func NewCronTriggerManager(logger *slog.Logger) *CronTriggerManager {
	return &CronTriggerManager{
		logger:   logger,
		triggers: make(map[string]*CronTrigger),
	}
}

// Add registers runnable under name with the given schedule. If the manager
// has already been started, the trigger starts immediately.
//
// Returns an error if the name is taken or the spec is invalid.
func (m *CronTriggerManager) Add(name, spec string, runnable Runnable) error {
	trigger, err := NewCronTrigger(spec, runnable, m.logger)
	if err != nil {
		return fmt.Errorf("creating trigger %q with schedule %q: %w", name, spec, err)
	}
	trigger.name = name

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.triggers[name]; exists {
		return fmt.Errorf("trigger %q already registered", name)
	}
	m.triggers[name] = trigger

	m.logger.Info("trigger registered",
		"job", name,
		"schedule", spec,
		"next_run", trigger.NextRun(),
	)

	if m.started != nil {
		trigger.Start(m.started)
	}
	return nil
}

// Start launches all triggers. Each trigger runs in its own goroutine.
// Returns immediately. All goroutines exit when ctx is cancelled.
func (m *CronTriggerManager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.started = ctx
	for _, trigger := range m.triggers {
		trigger.Start(ctx)
	}
}

// Jobs returns the registered trigger names in sorted order.
func (m *CronTriggerManager) Jobs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.triggers))
	for name := range m.triggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NextRunOf returns the next run time of the named trigger.
// Returns false if no trigger has that name.
func (m *CronTriggerManager) NextRunOf(name string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	trigger, ok := m.triggers[name]
	if !ok {
		return time.Time{}, false
	}
	return trigger.NextRun(), true
}

// NextRun returns the earliest scheduled run time across all triggers.
// Returns zero time if there are no triggers.
func (m *CronTriggerManager) NextRun() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	var earliest time.Time
	for _, trigger := range m.triggers {
		next := trigger.NextRun()
		if earliest.IsZero() || next.Before(earliest) {
			earliest = next
		}
	}
	return earliest
}
