package handlers

import (
	"net/http"
	"time"

	"github.com/nomis52/komandorr/tracker"
)

// ActivitiesResponse is the response for /api/activities.
type ActivitiesResponse struct {
	AsOf       *time.Time             `json:"as_of,omitempty"`
	Count      int                    `json:"count"`
	Activities []tracker.ActivityView `json:"activities"`
}

// ActivitiesHandler serves the activities currently tracked.
type ActivitiesHandler struct {
	provider StatusProvider
}

// NewActivitiesHandler creates a new ActivitiesHandler.
func NewActivitiesHandler(provider StatusProvider) *ActivitiesHandler {
	return &ActivitiesHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler. With ?present=true only activities seen
// on the latest poll are returned.
func (h *ActivitiesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.provider.Status()

	activities := status.Active
	if r.URL.Query().Get("present") == "true" {
		present := make([]tracker.ActivityView, 0, len(activities))
		for _, a := range activities {
			if a.Present {
				present = append(present, a)
			}
		}
		activities = present
	}

	writeJSON(w, http.StatusOK, ActivitiesResponse{
		AsOf:       status.LastPoll,
		Count:      status.ActiveCount,
		Activities: activities,
	})
}
