package outbox

import "errors"

// Store persists the queue snapshot for crash recovery.
// The store is owned exclusively by one Manager; no other component reads
// or writes it. Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the persisted snapshot. A store that has never been
	// written returns an empty snapshot, not an error.
	Load() (Snapshot, error)

	// Save fully rewrites the persisted snapshot. The write must be
	// atomic: a crash mid-save leaves the previous snapshot intact.
	Save(snap Snapshot) error

	// Close releases any resources (connections, files).
	Close() error
}

// Sentinel errors for store operations.
var (
	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("outbox store closed")
)
