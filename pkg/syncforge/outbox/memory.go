package outbox

import "sync"

// MemoryStore is an in-memory store for testing.
// Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	snap   Snapshot
	closed bool
}

// NewMemoryStore creates a new in-memory snapshot store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (m *MemoryStore) Load() (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Snapshot{}, ErrStoreClosed
	}

	// Copy records so callers can't mutate the stored snapshot.
	out := Snapshot{LastUpdated: m.snap.LastUpdated}
	out.Records = make([]Record, len(m.snap.Records))
	copy(out.Records, m.snap.Records)
	return out, nil
}

// Save implements Store.
func (m *MemoryStore) Save(snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	stored := Snapshot{LastUpdated: snap.LastUpdated}
	stored.Records = make([]Record, len(snap.Records))
	copy(stored.Records, snap.Records)
	m.snap = stored
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// Len returns the number of persisted records. Useful for testing.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snap.Records)
}
