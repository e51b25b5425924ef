package tracker

import (
	"sort"
	"time"
)

// ActivityView is a tracked activity prepared for display.
type ActivityView struct {
	ID        string       `json:"id"`
	Type      ActivityType `json:"type,omitempty"`
	Title     string       `json:"title"`
	Subtitle  string       `json:"subtitle"`
	Progress  float64      `json:"progress"`
	StartedAt *time.Time   `json:"started_at,omitempty"`
	// ElapsedMs is nil while the start time is unknown.
	ElapsedMs *int64    `json:"elapsed_ms,omitempty"`
	LastSeen  time.Time `json:"last_seen"`
	// Present is false for activities missing from the latest tick that are
	// still inside the cancellation window.
	Present   bool `json:"present"`
	Completed bool `json:"completed"`
}

// Active returns the tracked activities, present ones first, each group
// ordered by title. asOf is the time of the latest tick.
func (s State) Active(asOf time.Time) []ActivityView {
	views := make([]ActivityView, 0, len(s.Tracked))
	for id, a := range s.Tracked {
		v := ActivityView{
			ID:        id,
			Type:      a.Type,
			Title:     a.Title,
			Subtitle:  a.Subtitle,
			Progress:  a.LastProgress,
			LastSeen:  a.LastSeen,
			Present:   a.LastSeen.Equal(asOf),
			Completed: a.Completed,
		}
		if a.StartedAt != nil {
			started := *a.StartedAt
			v.StartedAt = &started
			ms := asOf.Sub(started).Milliseconds()
			if ms < 0 {
				ms = 0
			}
			v.ElapsedMs = &ms
		}
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].Present != views[j].Present {
			return views[i].Present
		}
		if views[i].Title != views[j].Title {
			return views[i].Title < views[j].Title
		}
		return views[i].ID < views[j].ID
	})
	return views
}

// Recent returns the completed records, most recent first.
func (s State) Recent() []CompletedRecord {
	records := make([]CompletedRecord, 0, len(s.Completed))
	for _, r := range s.Completed {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CompletedAt.Equal(records[j].CompletedAt) {
			return records[i].CompletedAt.After(records[j].CompletedAt)
		}
		return records[i].ID < records[j].ID
	})
	return records
}
