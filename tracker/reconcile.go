package tracker

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Changes summarizes what a single Reconcile call did.
type Changes struct {
	// Started lists ids whose start time was established this tick.
	Started []string
	// Completed lists ids that reached 100% this tick.
	Completed []string
	// Cancelled lists ids dropped after CancelAfter without completing.
	Cancelled []string
	// Dropped lists every id removed from the tracked set this tick.
	Dropped []string
	// Expired lists ids whose completed record aged out.
	Expired []string
	// Skipped holds one error per invalid snapshot. Each wraps ErrInvalidSnapshot.
	Skipped []error
	// Count is the number of valid, distinct activities in the snapshot list.
	Count int

	changed bool
}

// Changed reports whether the returned state differs from the previous one.
func (c Changes) Changed() bool {
	return c.changed
}

// Reconcile folds one tick's snapshots into prev and returns the new state.
//
// prev is not modified. Invalid snapshots are skipped individually and
// reported in Changes.Skipped; they never abort the pass.
func Reconcile(prev State, snapshots []Snapshot, now time.Time, cfg Config) (State, Changes) {
	cfg = cfg.WithDefaults()
	next := prev.Clone()
	var ch Changes

	seen := make(map[string]bool, len(snapshots))
	for i, snap := range snapshots {
		snap, err := normalize(snap)
		if err != nil {
			ch.Skipped = append(ch.Skipped, fmt.Errorf("snapshot %d: %w", i, err))
			continue
		}
		if seen[snap.ID] {
			ch.Skipped = append(ch.Skipped, fmt.Errorf("snapshot %d: %w: duplicate id %q", i, ErrInvalidSnapshot, snap.ID))
			continue
		}
		seen[snap.ID] = true
		ch.Count++

		observe(&next, &ch, snap, now, cfg)
	}

	sweepAbsent(&next, &ch, seen, now, cfg)
	expireCompleted(&next, &ch, now, cfg)

	return next, ch
}

// observe applies a single valid snapshot to the state.
func observe(s *State, ch *Changes, snap Snapshot, now time.Time, cfg Config) {
	p := snap.Progress
	a, exists := s.Tracked[snap.ID]

	if !exists {
		a = TrackedActivity{FirstSeen: now}
		if p < cfg.StartThreshold {
			a.StartedAt = timePtr(now)
			ch.Started = append(ch.Started, snap.ID)
		}
		ch.changed = true
	} else if a.StartedAt == nil && p >= a.LastProgress+cfg.ProgressStep {
		a.StartedAt = timePtr(now)
		ch.Started = append(ch.Started, snap.ID)
		ch.changed = true
	}

	// Comparisons above use the previous progress.
	if exists && (a.LastProgress != p || !a.LastSeen.Equal(now) ||
		a.Title != snap.Title || a.Subtitle != snap.Subtitle || a.Type != snap.Type) {
		ch.changed = true
	}
	a.LastProgress = p
	a.LastSeen = now
	a.Type = snap.Type
	a.Title = snap.Title
	a.Subtitle = snap.Subtitle

	if p >= CompleteProgress && !a.Completed {
		if _, done := s.Completed[snap.ID]; !done {
			s.Completed[snap.ID] = newRecord(snap.ID, a, a.Subtitle, false, now)
			ch.Completed = append(ch.Completed, snap.ID)
		}
		a.Completed = true
		ch.changed = true
	}

	s.Tracked[snap.ID] = a
}

// sweepAbsent drops tracked ids that have been missing for longer than
// CancelAfter, synthesizing a cancelled record for those that never finished.
func sweepAbsent(s *State, ch *Changes, seen map[string]bool, now time.Time, cfg Config) {
	for _, id := range sortedKeys(s.Tracked) {
		if seen[id] {
			continue
		}
		a := s.Tracked[id]
		if now.Sub(a.LastSeen) <= cfg.CancelAfter {
			continue
		}
		if _, done := s.Completed[id]; !done && !a.Completed {
			s.Completed[id] = newRecord(id, a, CancelledSubtitle, true, now)
			ch.Cancelled = append(ch.Cancelled, id)
		}
		delete(s.Tracked, id)
		ch.Dropped = append(ch.Dropped, id)
		ch.changed = true
	}
}

func expireCompleted(s *State, ch *Changes, now time.Time, cfg Config) {
	for _, id := range sortedKeys(s.Completed) {
		if now.Sub(s.Completed[id].CompletedAt) > cfg.CompletedRetention {
			delete(s.Completed, id)
			ch.Expired = append(ch.Expired, id)
			ch.changed = true
		}
	}
}

// newRecord builds a completion record. A missing start time is synthesized
// as now so the elapsed time is always defined.
func newRecord(id string, a TrackedActivity, subtitle string, cancelled bool, now time.Time) CompletedRecord {
	started := now
	if a.StartedAt != nil {
		started = *a.StartedAt
	}
	elapsed := now.Sub(started)
	if elapsed < 0 {
		elapsed = 0
	}
	return CompletedRecord{
		ID:          id,
		Type:        a.Type,
		Title:       a.Title,
		Subtitle:    subtitle,
		StartedAt:   started,
		CompletedAt: now,
		Elapsed:     elapsed,
		Cancelled:   cancelled,
	}
}

// normalize validates a snapshot and clamps near-range progress values.
func normalize(s Snapshot) (Snapshot, error) {
	s.ID = strings.TrimSpace(s.ID)
	if s.ID == "" {
		return s, fmt.Errorf("%w: missing id", ErrInvalidSnapshot)
	}
	p := s.Progress
	switch {
	case math.IsNaN(p) || math.IsInf(p, 0):
		return s, fmt.Errorf("%w: non-numeric progress for %q", ErrInvalidSnapshot, s.ID)
	case p <= -1 || p >= CompleteProgress+1:
		return s, fmt.Errorf("%w: progress %v out of range for %q", ErrInvalidSnapshot, p, s.ID)
	case p < 0:
		s.Progress = 0
	case p > CompleteProgress:
		s.Progress = CompleteProgress
	}
	return s, nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
