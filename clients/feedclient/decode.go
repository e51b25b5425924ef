package feedclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nomis52/komandorr/tracker"
)

// record is the wire shape of a single activity.
type record struct {
	ID       json.RawMessage `json:"id"`
	UUID     json.RawMessage `json:"uuid"`
	Type     string          `json:"type"`
	Title    string          `json:"title"`
	Subtitle string          `json:"subtitle"`
	Progress json.RawMessage `json:"progress"`
}

// envelope covers feeds that wrap the list in an object.
type envelope struct {
	Activities []json.RawMessage `json:"activities"`
	Data       []json.RawMessage `json:"data"`
}

// Decode parses a feed body. The body may be a JSON array of activities or an
// object holding the array under "activities" or "data".
func Decode(body []byte) (Result, error) {
	items, err := splitItems(body)
	if err != nil {
		return Result{}, err
	}

	result := Result{Snapshots: make([]tracker.Snapshot, 0, len(items))}
	for i, item := range items {
		snap, err := decodeRecord(item)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		result.Snapshots = append(result.Snapshots, snap)
	}
	return result, nil
}

func splitItems(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("failed to unmarshal response: empty body")
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		return items, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if env.Activities != nil {
		return env.Activities, nil
	}
	return env.Data, nil
}

func decodeRecord(item json.RawMessage) (tracker.Snapshot, error) {
	var r record
	if err := json.Unmarshal(item, &r); err != nil {
		return tracker.Snapshot{}, fmt.Errorf("%w: %v", tracker.ErrInvalidSnapshot, err)
	}

	id, err := scalarString(r.ID)
	if err != nil {
		return tracker.Snapshot{}, fmt.Errorf("%w: id: %v", tracker.ErrInvalidSnapshot, err)
	}
	if id == "" {
		if id, err = scalarString(r.UUID); err != nil {
			return tracker.Snapshot{}, fmt.Errorf("%w: uuid: %v", tracker.ErrInvalidSnapshot, err)
		}
	}
	if id == "" {
		return tracker.Snapshot{}, fmt.Errorf("%w: missing id", tracker.ErrInvalidSnapshot)
	}

	progress, err := parseProgress(r.Progress)
	if err != nil {
		return tracker.Snapshot{}, fmt.Errorf("%w: %q: %v", tracker.ErrInvalidSnapshot, id, err)
	}

	return tracker.Snapshot{
		ID:       id,
		Type:     tracker.ActivityType(strings.ToLower(r.Type)),
		Title:    r.Title,
		Subtitle: r.Subtitle,
		Progress: progress,
	}, nil
}

// scalarString accepts a JSON string or number. Null and absent values yield "".
func scalarString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("expected string or number, got %s", string(raw))
}

// parseProgress accepts a number or a numeric string.
func parseProgress(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, errors.New("missing progress")
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("non-numeric progress %s", string(raw))
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
	if err != nil {
		return 0, fmt.Errorf("non-numeric progress %q", s)
	}
	return f, nil
}
