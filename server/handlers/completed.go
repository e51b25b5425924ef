package handlers

import (
	"net/http"

	"github.com/nomis52/komandorr/tracker"
)

// CompletedHandler serves the recent completion records, newest first.
type CompletedHandler struct {
	provider StatusProvider
}

// NewCompletedHandler creates a new CompletedHandler.
func NewCompletedHandler(provider StatusProvider) *CompletedHandler {
	return &CompletedHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *CompletedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	records := h.provider.Status().Recent
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	if records == nil {
		records = []tracker.CompletedRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}
