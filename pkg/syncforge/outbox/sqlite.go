package outbox

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists the queue snapshot to SQLite.
// It is suitable for single-process production use where the JSON file
// store's full-document rewrite becomes too expensive.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// NewSQLiteStore creates a new SQLite queue store.
// The path should be a file path (e.g., "./sync_queue.db") or ":memory:"
// for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sync_records (
			id TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			record_type TEXT NOT NULL,
			payload BLOB NOT NULL,
			created_at TEXT NOT NULL,
			status TEXT NOT NULL,
			retry_count INTEGER NOT NULL,
			last_retry TEXT
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sync_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create meta table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Load implements Store.
func (s *SQLiteStore) Load() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Snapshot{}, ErrStoreClosed
	}

	var snap Snapshot

	var lastUpdated string
	err := s.db.QueryRow(`SELECT value FROM sync_meta WHERE key = 'last_updated'`).Scan(&lastUpdated)
	if err == nil {
		snap.LastUpdated, _ = time.Parse(time.RFC3339Nano, lastUpdated)
	} else if err != sql.ErrNoRows {
		return Snapshot{}, fmt.Errorf("load meta: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT id, record_type, payload, created_at, status, retry_count, last_retry
		FROM sync_records
		ORDER BY position
	`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load queue: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec       Record
			payload   []byte
			createdAt string
			lastRetry sql.NullString
			status    string
		)
		if err := rows.Scan(&rec.ID, &rec.Type, &payload, &createdAt, &status, &rec.RetryCount, &lastRetry); err != nil {
			return Snapshot{}, fmt.Errorf("scan record: %w", err)
		}
		if err := json.Unmarshal(payload, &rec.Payload); err != nil {
			return Snapshot{}, fmt.Errorf("decode payload for %s: %w", rec.ID, err)
		}
		rec.Status = Status(status)
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if lastRetry.Valid {
			t, err := time.Parse(time.RFC3339Nano, lastRetry.String)
			if err == nil {
				rec.LastRetryAt = &t
			}
		}
		snap.Records = append(snap.Records, rec)
	}

	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("iterate records: %w", err)
	}

	return snap, nil
}

// Save implements Store. The snapshot is replaced in one transaction, so a
// crash mid-save leaves the previous snapshot intact.
func (s *SQLiteStore) Save(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM sync_records`); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO sync_records (id, position, record_type, payload, created_at, status, retry_count, last_retry)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range snap.Records {
		payload, err := json.Marshal(rec.Payload)
		if err != nil {
			return fmt.Errorf("encode payload for %s: %w", rec.ID, err)
		}
		var lastRetry any
		if rec.LastRetryAt != nil {
			lastRetry = rec.LastRetryAt.UTC().Format(time.RFC3339Nano)
		}
		if _, err := stmt.Exec(
			rec.ID, i, rec.Type, payload,
			rec.CreatedAt.UTC().Format(time.RFC3339Nano),
			string(rec.Status), rec.RetryCount, lastRetry,
		); err != nil {
			return fmt.Errorf("insert record %s: %w", rec.ID, err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO sync_meta (key, value) VALUES ('last_updated', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, snap.LastUpdated.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("update meta: %w", err)
	}

	return tx.Commit()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
