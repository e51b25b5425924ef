package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	defaultStartThreshold     = 2.0
	defaultProgressStep       = 1.0
	defaultCancelAfter        = time.Hour
	defaultCompletedRetention = 24 * time.Hour

	// CompleteProgress is the progress at which an activity is finished.
	CompleteProgress = 100.0

	// CancelledSubtitle marks records synthesized for activities that left the
	// feed without reaching 100%.
	CancelledSubtitle = "cancelled or incomplete"
)

// ErrInvalidSnapshot is wrapped by the errors reported for skipped snapshots.
var ErrInvalidSnapshot = errors.New("invalid activity snapshot")

// ActivityType is the kind of work an activity represents.
type ActivityType string

const (
	TypeDownload  ActivityType = "download"
	TypeTranscode ActivityType = "transcode"
	TypeStream    ActivityType = "stream"
	TypePause     ActivityType = "pause"
	TypeUpload    ActivityType = "upload"
)

// Snapshot is one activity as reported by the feed on a single tick.
type Snapshot struct {
	ID       string       `json:"id"`
	Type     ActivityType `json:"type"`
	Title    string       `json:"title"`
	Subtitle string       `json:"subtitle"`
	// Progress is a percentage in [0, 100].
	Progress float64 `json:"progress"`
}

// TrackedActivity is the tracker's memory of an activity id.
type TrackedActivity struct {
	// StartedAt is nil while the progress-based start is not yet determined.
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	LastProgress float64      `json:"last_progress"`
	FirstSeen    time.Time    `json:"first_seen"`
	LastSeen     time.Time    `json:"last_seen"`
	Type         ActivityType `json:"type,omitempty"`
	Title        string       `json:"title,omitempty"`
	Subtitle     string       `json:"subtitle,omitempty"`
	// Completed is set once a CompletedRecord has been created for this id.
	Completed bool `json:"completed,omitempty"`
}

// CompletedRecord describes an activity that finished or was abandoned.
type CompletedRecord struct {
	ID          string        `json:"id"`
	Type        ActivityType  `json:"type,omitempty"`
	Title       string        `json:"title"`
	Subtitle    string        `json:"subtitle"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Elapsed     time.Duration `json:"-"`
	Cancelled   bool          `json:"cancelled,omitempty"`
}

type completedRecordJSON struct {
	ID          string       `json:"id"`
	Type        ActivityType `json:"type,omitempty"`
	Title       string       `json:"title"`
	Subtitle    string       `json:"subtitle"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt time.Time    `json:"completed_at"`
	ElapsedMs   int64        `json:"elapsed_ms"`
	Cancelled   bool         `json:"cancelled,omitempty"`
}

// MarshalJSON implements json.Marshaler, encoding Elapsed as elapsed_ms.
func (r CompletedRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(completedRecordJSON{
		ID:          r.ID,
		Type:        r.Type,
		Title:       r.Title,
		Subtitle:    r.Subtitle,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		ElapsedMs:   r.Elapsed.Milliseconds(),
		Cancelled:   r.Cancelled,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *CompletedRecord) UnmarshalJSON(data []byte) error {
	var raw completedRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = CompletedRecord{
		ID:          raw.ID,
		Type:        raw.Type,
		Title:       raw.Title,
		Subtitle:    raw.Subtitle,
		StartedAt:   raw.StartedAt,
		CompletedAt: raw.CompletedAt,
		Elapsed:     time.Duration(raw.ElapsedMs) * time.Millisecond,
		Cancelled:   raw.Cancelled,
	}
	return nil
}

// State is everything the tracker remembers between ticks.
type State struct {
	Tracked   map[string]TrackedActivity `json:"tracked"`
	Completed map[string]CompletedRecord `json:"completed"`
}

// NewState returns an empty State.
func NewState() State {
	return State{
		Tracked:   make(map[string]TrackedActivity),
		Completed: make(map[string]CompletedRecord),
	}
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := State{
		Tracked:   make(map[string]TrackedActivity, len(s.Tracked)),
		Completed: make(map[string]CompletedRecord, len(s.Completed)),
	}
	for id, a := range s.Tracked {
		if a.StartedAt != nil {
			started := *a.StartedAt
			a.StartedAt = &started
		}
		out.Tracked[id] = a
	}
	for id, r := range s.Completed {
		out.Completed[id] = r
	}
	return out
}

// Config holds the tracker's thresholds and retention windows.
type Config struct {
	// StartThreshold is the progress below which a newly seen activity is
	// considered to have just started.
	StartThreshold float64 `yaml:"start_threshold"`
	// ProgressStep is the forward progress that marks the proxy start of an
	// activity whose real start was missed.
	ProgressStep float64 `yaml:"progress_step"`
	// CancelAfter is how long an activity may be absent from the feed before
	// it is dropped.
	CancelAfter time.Duration `yaml:"cancel_after"`
	// CompletedRetention is how long completed records are kept.
	CompletedRetention time.Duration `yaml:"completed_retention"`
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		StartThreshold:     defaultStartThreshold,
		ProgressStep:       defaultProgressStep,
		CancelAfter:        defaultCancelAfter,
		CompletedRetention: defaultCompletedRetention,
	}
}

// WithDefaults returns a copy of c with zero fields replaced by defaults.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.StartThreshold == 0 {
		c.StartThreshold = d.StartThreshold
	}
	if c.ProgressStep == 0 {
		c.ProgressStep = d.ProgressStep
	}
	if c.CancelAfter == 0 {
		c.CancelAfter = d.CancelAfter
	}
	if c.CompletedRetention == 0 {
		c.CompletedRetention = d.CompletedRetention
	}
	return c
}

// Validate checks the thresholds are usable.
func (c Config) Validate() error {
	if c.StartThreshold <= 0 || c.StartThreshold > CompleteProgress {
		return fmt.Errorf("start threshold must be within (0, 100], got %v", c.StartThreshold)
	}
	if c.ProgressStep <= 0 {
		return fmt.Errorf("progress step must be positive, got %v", c.ProgressStep)
	}
	if c.CancelAfter <= 0 {
		return fmt.Errorf("cancel_after must be positive")
	}
	if c.CompletedRetention <= 0 {
		return fmt.Errorf("completed_retention must be positive")
	}
	return nil
}
