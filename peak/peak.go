// Package peak records the highest number of concurrent activities seen.
//
// The value itself lives in an external Store (a remote endpoint or the local
// key-value store). The Recorder keeps an in-memory copy, asks the store to
// raise it whenever a higher count is observed, and adopts whatever value the
// store acknowledges so that several observers sharing one store converge on
// the same peak.
//
// The peak only ever goes up, except through an explicit Reset.
package peak

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNegativeCount is returned when a negative concurrency count is observed.
var ErrNegativeCount = errors.New("concurrency count must not be negative")

// Store persists the peak concurrency value.
type Store interface {
	// Current returns the persisted peak.
	Current(ctx context.Context) (int, error)
	// UpdateIfGreater raises the persisted peak to candidate if it is higher
	// and returns the peak the store now holds.
	UpdateIfGreater(ctx context.Context, candidate int) (int, error)
	// Reset sets the persisted peak to zero and returns the stored value.
	Reset(ctx context.Context) (int, error)
}

// Recorder tracks the peak concurrency against a Store.
type Recorder struct {
	store  Store
	logger *slog.Logger

	// opMu serializes store round trips so a reset cannot interleave with
	// an update and leave the in-memory peak out of step with the store.
	opMu sync.Mutex

	mu   sync.Mutex
	peak int
}

// New creates a Recorder with an in-memory peak of zero. Call Load to adopt
// the persisted value.
func New(store Store, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		logger: logger,
	}
}

// Load adopts the store's current peak. On failure the in-memory peak is left
// unchanged and the error is returned.
func (r *Recorder) Load(ctx context.Context) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	current, err := r.store.Current(ctx)
	if err != nil {
		return fmt.Errorf("loading peak concurrency: %w", err)
	}

	r.mu.Lock()
	r.peak = current
	r.mu.Unlock()

	r.logger.Debug("loaded peak concurrency", "peak", current)
	return nil
}

// Peak returns the in-memory peak.
func (r *Recorder) Peak() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peak
}

// Observe records the current concurrency count. If it exceeds the known
// peak, the store is asked to raise its value and the acknowledged value is
// adopted. Returns whether an update was requested.
//
// A failed update leaves the in-memory peak untouched; the next higher
// observation will try again.
func (r *Recorder) Observe(ctx context.Context, count int) (bool, error) {
	if count < 0 {
		return false, fmt.Errorf("%w: %d", ErrNegativeCount, count)
	}

	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.Lock()
	current := r.peak
	r.mu.Unlock()

	if count <= current {
		return false, nil
	}

	acked, err := r.store.UpdateIfGreater(ctx, count)
	if err != nil {
		return true, fmt.Errorf("updating peak concurrency to %d: %w", count, err)
	}

	r.mu.Lock()
	r.peak = acked
	r.mu.Unlock()

	r.logger.Info("new peak concurrency", "count", count, "peak", acked, "previous", current)
	return true, nil
}

// Reset asks the store to reset the peak and adopts the acknowledged value.
func (r *Recorder) Reset(ctx context.Context) (int, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	acked, err := r.store.Reset(ctx)
	if err != nil {
		return r.Peak(), fmt.Errorf("resetting peak concurrency: %w", err)
	}

	r.mu.Lock()
	previous := r.peak
	r.peak = acked
	r.mu.Unlock()

	r.logger.Info("peak concurrency reset", "previous", previous, "peak", acked)
	return acked, nil
}

// Offer raises the peak to candidate if it is higher and returns the peak
// now held. Unlike Observe, it reports the resulting value, which is what
// the peak endpoint returns to remote observers.
func (r *Recorder) Offer(ctx context.Context, candidate int) (int, error) {
	if _, err := r.Observe(ctx, candidate); err != nil {
		return r.Peak(), err
	}
	return r.Peak(), nil
}
