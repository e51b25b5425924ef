package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nomis52/komandorr/clients/peakclient"
	"github.com/nomis52/komandorr/peak"
)

// maxPeakBody bounds the update request body.
const maxPeakBody = 1 << 10

// PeakHandler serves the peak endpoint: GET reads the peak, POST offers a
// candidate and returns the resulting peak.
type PeakHandler struct {
	logger   *slog.Logger
	provider PeakProvider
}

// NewPeakHandler creates a new PeakHandler.
func NewPeakHandler(logger *slog.Logger, provider PeakProvider) *PeakHandler {
	return &PeakHandler{
		logger:   logger,
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *PeakHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, peakclient.Response{Peak: h.provider.Peak()})
		return
	}

	var req peakclient.UpdateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPeakBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	acked, err := h.provider.OfferPeak(r.Context(), req.Candidate)
	if err != nil {
		if errors.Is(err, peak.ErrNegativeCount) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		h.logger.Error("failed to update peak concurrency", "candidate", req.Candidate, "error", err)
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "failed to update peak: " + err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, peakclient.Response{Peak: acked})
}

// PeakResetHandler resets the peak concurrency.
type PeakResetHandler struct {
	logger   *slog.Logger
	provider PeakProvider
}

// NewPeakResetHandler creates a new PeakResetHandler.
func NewPeakResetHandler(logger *slog.Logger, provider PeakProvider) *PeakResetHandler {
	return &PeakResetHandler{
		logger:   logger,
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *PeakResetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("resetting peak concurrency")

	acked, err := h.provider.ResetPeak(r.Context())
	if err != nil {
		h.logger.Error("failed to reset peak concurrency", "error", err)
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "failed to reset peak: " + err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, peakclient.Response{Peak: acked})
}
