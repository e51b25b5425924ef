// Package poller drives the activity tracker from a live feed.
//
// Each tick fetches the feed, folds the snapshots into the tracker state,
// persists the state when it changed or an earlier write failed, offers the
// concurrency count to the peak recorder and updates metrics. The Poller is
// the only writer of the tracker state; HTTP handlers read copies through
// Status.
//
// A failed fetch leaves the state untouched. Treating it as an empty feed
// would start the cancellation clock for every activity.
//
// # Example
//
//	p, err := poller.New(feed, kv, recorder, registry, logger)
//	if err != nil {
//	    return err
//	}
//	p.Load()
//
//	trigger, err := cron.NewCronTrigger("@every 5s", p, logger)
//	...
//	trigger.Start(ctx)
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nomis52/komandorr/clients/feedclient"
	"github.com/nomis52/komandorr/metrics"
	"github.com/nomis52/komandorr/peak"
	"github.com/nomis52/komandorr/store"
	"github.com/nomis52/komandorr/tracker"
)

// DefaultTickTimeout bounds a single tick started through Run.
const DefaultTickTimeout = 30 * time.Second

// Fetcher returns the current feed contents.
type Fetcher interface {
	Fetch(ctx context.Context) (feedclient.Result, error)
}

// Status is a point-in-time view of the poller for the HTTP API.
type Status struct {
	Active      []tracker.ActivityView    `json:"active"`
	Recent      []tracker.CompletedRecord `json:"recent"`
	ActiveCount int                       `json:"active_count"`
	Peak        int                       `json:"peak"`
	LastPoll    *time.Time                `json:"last_poll,omitempty"`
	LastError   string                    `json:"last_error,omitempty"`
	PollCount   int                       `json:"poll_count"`
}

// Poller owns the tracker state and runs ticks against a feed.
type Poller struct {
	fetcher  Fetcher
	kv       store.Store
	recorder *peak.Recorder
	metrics  *pollMetrics
	logger   *slog.Logger
	clock    func() time.Time
	timeout  time.Duration

	mu        sync.Mutex
	cfg       tracker.Config
	state     tracker.State
	count     int
	lastPoll  *time.Time
	lastError string
	polls     int
	dirty     bool
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock replaces time.Now as the source of tick timestamps.
func WithClock(clock func() time.Time) Option {
	return func(p *Poller) {
		p.clock = clock
	}
}

// WithTrackerConfig sets the tracker thresholds.
func WithTrackerConfig(cfg tracker.Config) Option {
	return func(p *Poller) {
		p.cfg = cfg
	}
}

// WithTickTimeout bounds ticks started through Run.
func WithTickTimeout(d time.Duration) Option {
	return func(p *Poller) {
		p.timeout = d
	}
}

// New creates a Poller. Metrics are registered with reg immediately.
func New(fetcher Fetcher, kv store.Store, recorder *peak.Recorder, reg metrics.Registry, logger *slog.Logger, opts ...Option) (*Poller, error) {
	m, err := newPollMetrics(reg)
	if err != nil {
		return nil, err
	}

	p := &Poller{
		fetcher:  fetcher,
		kv:       kv,
		recorder: recorder,
		metrics:  m,
		logger:   logger,
		clock:    time.Now,
		timeout:  DefaultTickTimeout,
		cfg:      tracker.DefaultConfig(),
		state:    tracker.NewState(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// SetTrackerConfig replaces the tracker thresholds used by later ticks.
func (p *Poller) SetTrackerConfig(cfg tracker.Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
}

// Load restores the tracker state from the key-value store. Read failures
// are logged and the affected map starts empty.
func (p *Poller) Load() {
	state := tracker.NewState()

	found, err := p.kv.Get(store.KeyTracked, &state.Tracked)
	if err != nil {
		p.logger.Warn("failed to load tracked activities", "error", err)
		state.Tracked = make(map[string]tracker.TrackedActivity)
	} else if found && state.Tracked == nil {
		state.Tracked = make(map[string]tracker.TrackedActivity)
	}

	found, err = p.kv.Get(store.KeyCompleted, &state.Completed)
	if err != nil {
		p.logger.Warn("failed to load completed activities", "error", err)
		state.Completed = make(map[string]tracker.CompletedRecord)
	} else if found && state.Completed == nil {
		state.Completed = make(map[string]tracker.CompletedRecord)
	}

	p.mu.Lock()
	p.state = state
	p.mu.Unlock()

	p.logger.Info("loaded tracker state",
		"tracked", len(state.Tracked),
		"completed", len(state.Completed),
	)
}

// Run performs one tick bounded by the tick timeout.
func (p *Poller) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.Tick(ctx)
}

// Tick fetches the feed once and folds it into the tracker state. The
// returned error describes a failed fetch; persistence and peak failures
// are logged and do not fail the tick.
func (p *Poller) Tick(ctx context.Context) error {
	p.metrics.polls.Inc()

	result, err := p.fetcher.Fetch(ctx)
	now := p.clock()
	if err != nil {
		p.metrics.pollErrors.Inc()
		p.logger.Warn("failed to fetch activity feed", "error", err)
		p.recordPoll(now, err)
		return fmt.Errorf("fetching activity feed: %w", err)
	}

	for _, recErr := range result.Errors {
		p.logger.Warn("skipping malformed feed record", "error", recErr)
	}
	p.metrics.skipped.Add(float64(len(result.Errors)))

	p.mu.Lock()
	prev := p.state
	cfg := p.cfg
	dirty := p.dirty
	p.mu.Unlock()

	next, changes := tracker.Reconcile(prev, result.Snapshots, now, cfg)
	p.logChanges(changes)

	if changes.Changed() || dirty {
		dirty = !p.persist(next)
	}

	p.mu.Lock()
	p.state = next
	p.dirty = dirty
	p.count = changes.Count
	p.mu.Unlock()
	p.recordPoll(now, nil)

	if _, err := p.recorder.Observe(ctx, changes.Count); err != nil {
		p.logger.Warn("failed to update peak concurrency", "count", changes.Count, "error", err)
	}

	p.metrics.active.Set(float64(changes.Count))
	p.metrics.peak.Set(float64(p.recorder.Peak()))
	p.metrics.skipped.Add(float64(len(changes.Skipped)))
	p.metrics.finished.With(map[string]string{"outcome": outcomeCompleted}).Add(float64(len(changes.Completed)))
	p.metrics.finished.With(map[string]string{"outcome": outcomeCancelled}).Add(float64(len(changes.Cancelled)))

	return nil
}

// Status returns a copy of the current view.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	asOf := p.clock()
	if p.lastPoll != nil {
		asOf = *p.lastPoll
	}

	var lastPoll *time.Time
	if p.lastPoll != nil {
		t := *p.lastPoll
		lastPoll = &t
	}

	return Status{
		Active:      p.state.Active(asOf),
		Recent:      p.state.Recent(),
		ActiveCount: p.count,
		Peak:        p.recorder.Peak(),
		LastPoll:    lastPoll,
		LastError:   p.lastError,
		PollCount:   p.polls,
	}
}

// Peak returns the recorded peak concurrency.
func (p *Poller) Peak() int {
	return p.recorder.Peak()
}

// OfferPeak raises the peak to candidate if it is higher.
func (p *Poller) OfferPeak(ctx context.Context, candidate int) (int, error) {
	acked, err := p.recorder.Offer(ctx, candidate)
	p.metrics.peak.Set(float64(acked))
	return acked, err
}

// ResetPeak resets the recorded peak.
func (p *Poller) ResetPeak(ctx context.Context) (int, error) {
	acked, err := p.recorder.Reset(ctx)
	if err != nil {
		return acked, err
	}
	p.metrics.peak.Set(float64(acked))
	return acked, nil
}

func (p *Poller) recordPoll(now time.Time, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.polls++
	p.lastPoll = &now
	if err != nil {
		p.lastError = err.Error()
	} else {
		p.lastError = ""
	}
}

// persist writes both maps and reports whether every write succeeded. A
// failed write is retried on the next tick even if nothing changes.
func (p *Poller) persist(s tracker.State) bool {
	ok := true
	if err := p.kv.Put(store.KeyTracked, s.Tracked); err != nil {
		p.logger.Warn("failed to persist tracked activities", "error", err)
		ok = false
	}
	if err := p.kv.Put(store.KeyCompleted, s.Completed); err != nil {
		p.logger.Warn("failed to persist completed activities", "error", err)
		ok = false
	}
	return ok
}

func (p *Poller) logChanges(ch tracker.Changes) {
	for _, err := range ch.Skipped {
		p.logger.Warn("skipping invalid snapshot", "error", err)
	}
	for _, id := range ch.Started {
		p.logger.Info("activity started", "activity_id", id)
	}
	for _, id := range ch.Completed {
		p.logger.Info("activity completed", "activity_id", id)
	}
	for _, id := range ch.Cancelled {
		p.logger.Info("activity cancelled", "activity_id", id)
	}
	for _, id := range ch.Expired {
		p.logger.Debug("completed record expired", "activity_id", id)
	}
}
