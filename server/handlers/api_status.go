package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/nomis52/komandorr/server/types"
)

// PollInfo summarizes the most recent poll.
type PollInfo struct {
	LastPoll  *time.Time `json:"last_poll,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	PollCount int        `json:"poll_count"`
	Healthy   bool       `json:"healthy"`
}

// NextRunResponse is the JSON response for the next poll information.
type NextRunResponse struct {
	Scheduled bool       `json:"scheduled"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

// APIStatusResponse is the consolidated response for /api/status.
type APIStatusResponse struct {
	Server         types.ServerProperties `json:"server"`
	Poll           PollInfo               `json:"poll"`
	ActiveCount    int                    `json:"active_count"`
	TrackedCount   int                    `json:"tracked_count"`
	CompletedCount int                    `json:"completed_count"`
	Peak           int                    `json:"peak"`
	NextPoll       NextRunResponse        `json:"next_poll"`
}

// APIStatusProvider aggregates all the providers needed for the status endpoint.
type APIStatusProvider interface {
	StatusProvider
	ServerInfoProvider
}

// APIStatusHandler handles requests for the consolidated status endpoint.
type APIStatusHandler struct {
	logger   *slog.Logger
	provider APIStatusProvider
}

// NewAPIStatusHandler creates a new APIStatusHandler.
func NewAPIStatusHandler(logger *slog.Logger, provider APIStatusProvider) *APIStatusHandler {
	return &APIStatusHandler{
		logger:   logger,
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *APIStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.provider.Status()
	nextPoll := h.provider.NextPoll()

	resp := APIStatusResponse{
		Server: h.provider.Properties(),
		Poll: PollInfo{
			LastPoll:  status.LastPoll,
			LastError: status.LastError,
			PollCount: status.PollCount,
			Healthy:   status.LastPoll != nil && status.LastError == "",
		},
		ActiveCount:    status.ActiveCount,
		TrackedCount:   len(status.Active),
		CompletedCount: len(status.Recent),
		Peak:           status.Peak,
		NextPoll: NextRunResponse{
			Scheduled: nextPoll != nil,
			NextRun:   nextPoll,
		},
	}

	writeJSON(w, http.StatusOK, resp)
}
