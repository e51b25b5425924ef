package handlers

import (
	"net/http"

	"github.com/nomis52/komandorr/logging"
)

const defaultEventsLimit = 50

// EventsHandler serves recent warnings and errors, newest first.
type EventsHandler struct {
	provider EventsProvider
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(provider EventsProvider) *EventsHandler {
	return &EventsHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if limit == 0 {
		limit = defaultEventsLimit
	}

	events := h.provider.Recent(limit)
	if events == nil {
		events = []logging.LogEntry{}
	}
	writeJSON(w, http.StatusOK, events)
}
