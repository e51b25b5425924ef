// Package store provides the durable key-value store used to keep tracker
// state and the local peak concurrency across restarts.
//
// Values are JSON encoded. Three backends are available:
//   - DiskStore keeps one JSON file per key in a state directory
//   - SQLiteStore keeps a single kv table in a SQLite database
//   - MemoryStore keeps values in memory only
package store

import (
	"errors"
	"fmt"
	"log/slog"
)

// Fixed keys used by komandorr.
const (
	KeyTracked   = "activity_tracked"
	KeyCompleted = "activity_completed"
	KeyPeak      = "peak_concurrency"
)

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown state backend")

// Store is a small durable key-value store.
type Store interface {
	// Get decodes the value stored under key into v.
	// Returns false if the key does not exist.
	Get(key string, v any) (bool, error)
	// Put encodes v and stores it under key.
	Put(key string, v any) error
	// Close releases any resources held by the store.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendDisk   = "disk"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open creates the store for the given backend. path is the state directory
// for the disk backend and the database file for the sqlite backend.
func Open(backend, path string, logger *slog.Logger) (Store, error) {
	switch backend {
	case BackendDisk:
		return NewDiskStore(path, logger)
	case BackendSQLite:
		return NewSQLiteStore(path)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
