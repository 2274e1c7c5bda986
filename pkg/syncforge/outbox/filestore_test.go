package outbox_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mticknor/syncforge/pkg/syncforge/outbox"
)

func sampleSnapshot(t *testing.T) outbox.Snapshot {
	t.Helper()
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	retried := created.Add(time.Minute)
	return outbox.Snapshot{
		LastUpdated: created.Add(2 * time.Minute),
		Records: []outbox.Record{
			{
				ID:        "rec-1",
				Type:      "practice_answer",
				Payload:   map[string]any{"question_id": "q-42", "answer": "x = 5"},
				CreatedAt: created,
				Status:    outbox.StatusPending,
			},
			{
				ID:          "rec-2",
				Type:        "topic_progress",
				Payload:     map[string]any{"completion": float64(75)},
				CreatedAt:   created.Add(time.Second),
				Status:      outbox.StatusPending,
				RetryCount:  2,
				LastRetryAt: &retried,
			},
		},
	}
}

func TestFileStore_SaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue", "sync_queue.json")
	store, err := outbox.NewFileStore(path)
	require.NoError(t, err)
	defer store.Close()

	want := sampleSnapshot(t)
	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	require.Len(t, got.Records, 2)
	assert.Equal(t, "rec-1", got.Records[0].ID)
	assert.Equal(t, "practice_answer", got.Records[0].Type)
	assert.Equal(t, "x = 5", got.Records[0].Payload["answer"])
	assert.Equal(t, 2, got.Records[1].RetryCount)
	require.NotNil(t, got.Records[1].LastRetryAt)
	assert.True(t, got.Records[1].LastRetryAt.Equal(*want.Records[1].LastRetryAt))
}

func TestFileStore_SurvivesReconstruction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync_queue.json")

	store, err := outbox.NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(sampleSnapshot(t)))
	require.NoError(t, store.Close())

	// A fresh store over the same path sees the same records.
	reopened, err := outbox.NewFileStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Load()
	require.NoError(t, err)
	assert.Len(t, got.Records, 2)
}

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	store, err := outbox.NewFileStore(filepath.Join(t.TempDir(), "never_written.json"))
	require.NoError(t, err)
	defer store.Close()

	snap, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, snap.Records)
}

func TestFileStore_CorruptFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync_queue.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store, err := outbox.NewFileStore(path)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse queue file")
}

func TestFileStore_NoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sync_queue.json")
	store, err := outbox.NewFileStore(path)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(sampleSnapshot(t)))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileStore_ClosedRejectsOperations(t *testing.T) {
	store, err := outbox.NewFileStore(filepath.Join(t.TempDir(), "sync_queue.json"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.Load()
	assert.ErrorIs(t, err, outbox.ErrStoreClosed)
	assert.ErrorIs(t, store.Save(outbox.Snapshot{}), outbox.ErrStoreClosed)
}
