package peak

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockStore is a Store that records the calls it receives.
type mockStore struct {
	value      int
	updates    []int
	resets     int
	currentErr error
	updateErr  error
	resetErr   error
	// ackOverride, when non-zero, is returned instead of the computed peak to
	// simulate another observer having raised the value.
	ackOverride int
}

func (m *mockStore) Current(ctx context.Context) (int, error) {
	if m.currentErr != nil {
		return 0, m.currentErr
	}
	return m.value, nil
}

func (m *mockStore) UpdateIfGreater(ctx context.Context, candidate int) (int, error) {
	m.updates = append(m.updates, candidate)
	if m.updateErr != nil {
		return 0, m.updateErr
	}
	if candidate > m.value {
		m.value = candidate
	}
	if m.ackOverride != 0 {
		m.value = m.ackOverride
	}
	return m.value, nil
}

func (m *mockStore) Reset(ctx context.Context) (int, error) {
	m.resets++
	if m.resetErr != nil {
		return 0, m.resetErr
	}
	m.value = 0
	return 0, nil
}

func newTestRecorder(t *testing.T, store *mockStore) *Recorder {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	r := New(store, logger)
	require.NoError(t, r.Load(context.Background()))
	return r
}

func TestRecorder_Load(t *testing.T) {
	r := newTestRecorder(t, &mockStore{value: 7})
	assert.Equal(t, 7, r.Peak())
}

func TestRecorder_LoadError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	r := New(&mockStore{currentErr: errors.New("connection refused")}, logger)

	err := r.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 0, r.Peak())
}

func TestRecorder_Observe(t *testing.T) {
	tests := []struct {
		name        string
		initial     int
		count       int
		wantUpdate  bool
		wantPeak    int
		wantUpdates []int
	}{
		{name: "higher count updates", initial: 3, count: 5, wantUpdate: true, wantPeak: 5, wantUpdates: []int{5}},
		{name: "lower count ignored", initial: 5, count: 2, wantUpdate: false, wantPeak: 5},
		{name: "equal count ignored", initial: 5, count: 5, wantUpdate: false, wantPeak: 5},
		{name: "first activity from zero", initial: 0, count: 1, wantUpdate: true, wantPeak: 1, wantUpdates: []int{1}},
		{name: "zero count from zero", initial: 0, count: 0, wantUpdate: false, wantPeak: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{value: tt.initial}
			r := newTestRecorder(t, store)

			updated, err := r.Observe(context.Background(), tt.count)
			require.NoError(t, err)
			assert.Equal(t, tt.wantUpdate, updated)
			assert.Equal(t, tt.wantPeak, r.Peak())
			assert.Equal(t, tt.wantUpdates, store.updates)
		})
	}
}

func TestRecorder_ObserveAdoptsAcknowledgedValue(t *testing.T) {
	store := &mockStore{value: 3, ackOverride: 9}
	r := newTestRecorder(t, store)

	updated, err := r.Observe(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, 9, r.Peak())

	// 7 is below the adopted peak, so no request is made.
	updated, err = r.Observe(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, []int{5}, store.updates)
}

func TestRecorder_ObserveFailureKeepsPeak(t *testing.T) {
	store := &mockStore{value: 3}
	r := newTestRecorder(t, store)
	store.updateErr = errors.New("503 service unavailable")

	updated, err := r.Observe(context.Background(), 8)
	require.Error(t, err)
	assert.True(t, updated)
	assert.Equal(t, 3, r.Peak())

	// A later successful observation retries.
	store.updateErr = nil
	updated, err = r.Observe(context.Background(), 8)
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, 8, r.Peak())
	assert.Equal(t, []int{8, 8}, store.updates)
}

func TestRecorder_ObserveNegative(t *testing.T) {
	store := &mockStore{}
	r := newTestRecorder(t, store)

	_, err := r.Observe(context.Background(), -1)
	assert.ErrorIs(t, err, ErrNegativeCount)
	assert.Empty(t, store.updates)
}

func TestRecorder_Reset(t *testing.T) {
	store := &mockStore{value: 12}
	r := newTestRecorder(t, store)

	peak, err := r.Reset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, peak)
	assert.Equal(t, 0, r.Peak())
	assert.Equal(t, 1, store.resets)

	// After a reset, any positive count is a new peak.
	updated, err := r.Observe(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, 1, r.Peak())
}

func TestRecorder_ResetFailure(t *testing.T) {
	store := &mockStore{value: 12}
	r := newTestRecorder(t, store)
	store.resetErr = errors.New("timeout")

	peak, err := r.Reset(context.Background())
	require.Error(t, err)
	assert.Equal(t, 12, peak)
	assert.Equal(t, 12, r.Peak())
}

func TestRecorder_Offer(t *testing.T) {
	store := &mockStore{value: 4}
	r := newTestRecorder(t, store)

	got, err := r.Offer(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 4, got)
	assert.Empty(t, store.updates)

	got, err = r.Offer(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, 9, got)
	assert.Equal(t, []int{9}, store.updates)

	store.updateErr = errors.New("timeout")
	got, err = r.Offer(context.Background(), 12)
	require.Error(t, err)
	assert.Equal(t, 9, got)

	_, err = r.Offer(context.Background(), -1)
	assert.ErrorIs(t, err, ErrNegativeCount)
}

// blockingStore holds UpdateIfGreater until release is closed and records
// the order in which store calls start and finish.
type blockingStore struct {
	entered chan struct{}
	release chan struct{}

	mu     sync.Mutex
	value  int
	events []string
}

func (b *blockingStore) record(event string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *blockingStore) Events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

func (b *blockingStore) Current(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value, nil
}

func (b *blockingStore) UpdateIfGreater(ctx context.Context, candidate int) (int, error) {
	b.record("update start")
	close(b.entered)
	<-b.release

	b.mu.Lock()
	if candidate > b.value {
		b.value = candidate
	}
	acked := b.value
	b.events = append(b.events, "update done")
	b.mu.Unlock()
	return acked, nil
}

func (b *blockingStore) Reset(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, "reset")
	b.value = 0
	return 0, nil
}

func TestRecorder_ResetWaitsForUpdate(t *testing.T) {
	store := &blockingStore{entered: make(chan struct{}), release: make(chan struct{})}
	r := New(store, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	ctx := context.Background()

	observed := make(chan error, 1)
	go func() {
		_, err := r.Observe(ctx, 5)
		observed <- err
	}()
	<-store.entered

	type resetResult struct {
		acked int
		err   error
	}
	reset := make(chan resetResult, 1)
	go func() {
		acked, err := r.Reset(ctx)
		reset <- resetResult{acked, err}
	}()

	assert.Never(t, func() bool { return len(store.Events()) > 1 }, 100*time.Millisecond, 10*time.Millisecond,
		"reset reached the store while an update was in flight")

	close(store.release)
	require.NoError(t, <-observed)
	res := <-reset
	require.NoError(t, res.err)

	assert.Equal(t, []string{"update start", "update done", "reset"}, store.Events())
	assert.Equal(t, 0, res.acked)
	assert.Equal(t, 0, r.Peak())
}
