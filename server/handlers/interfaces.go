// Package handlers provides HTTP handlers for the komandorr server.
//
// Each handler is in its own file and implements http.Handler.
// Handlers use interfaces to access server dependencies, avoiding
// circular imports.
package handlers

import (
	"context"
	"time"

	"github.com/nomis52/komandorr/config"
	"github.com/nomis52/komandorr/logging"
	"github.com/nomis52/komandorr/poller"
	"github.com/nomis52/komandorr/server/types"
)

// ConfigProvider provides access to the current configuration.
type ConfigProvider interface {
	Config() *config.Config
}

// Reloader can reload its configuration.
type Reloader interface {
	Reload() error
}

// StatusProvider provides the tracker view.
type StatusProvider interface {
	Status() poller.Status
}

// PeakProvider reads and changes the peak concurrency.
type PeakProvider interface {
	Peak() int
	OfferPeak(ctx context.Context, candidate int) (int, error)
	ResetPeak(ctx context.Context) (int, error)
}

// EventsProvider provides recently captured log entries.
type EventsProvider interface {
	Recent(limit int) []logging.LogEntry
}

// ServerInfoProvider describes the running server and its schedule.
type ServerInfoProvider interface {
	Properties() types.ServerProperties
	NextPoll() *time.Time
}
