package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_RecordAndList(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)
	exit := 1

	require.NoError(t, store.Record(&Run{
		ScheduleID:      "digest",
		ScheduleName:    "AI Digest",
		Status:          OutcomeRetryScheduled,
		ExitCode:        &exit,
		StartedAt:       base,
		FinishedAt:      base.Add(90 * time.Second),
		DurationSeconds: 90,
		LogFile:         "/logs/2026-10/19-digest.jsonl",
	}))
	require.NoError(t, store.Record(&Run{
		ScheduleID:   "digest",
		ScheduleName: "AI Digest",
		Attempt:      1,
		Retry:        true,
		Status:       OutcomeSuccess,
		StartedAt:    base.Add(15*time.Minute + 500*time.Millisecond),
		FinishedAt:   base.Add(16 * time.Minute),
	}))
	require.NoError(t, store.Record(&Run{
		ScheduleID:   "other",
		ScheduleName: "Other",
		Status:       OutcomeError,
		StartedAt:    base.Add(time.Hour),
		FinishedAt:   base.Add(time.Hour),
		Error:        "boom",
	}))

	all, err := store.ListRuns(ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "other", all[0].ScheduleID)
	assert.Equal(t, "boom", all[0].Error)
	assert.Nil(t, all[0].ExitCode)

	digest, err := store.ListRuns(ListOptions{ScheduleID: "digest"})
	require.NoError(t, err)
	require.Len(t, digest, 2)
	assert.Equal(t, OutcomeSuccess, digest[0].Status)
	assert.True(t, digest[0].Retry)
	assert.Equal(t, 1, digest[0].Attempt)
	assert.Equal(t, OutcomeRetryScheduled, digest[1].Status)
	require.NotNil(t, digest[1].ExitCode)
	assert.Equal(t, 1, *digest[1].ExitCode)
	assert.True(t, digest[1].StartedAt.Equal(base))
	assert.Equal(t, float64(90), digest[1].DurationSeconds)
	assert.NotEmpty(t, digest[1].ID)

	limited, err := store.ListRuns(ListOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStore_DeleteForSchedule(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	for _, id := range []string{"a", "a", "b"} {
		require.NoError(t, store.Record(&Run{ScheduleID: id, ScheduleName: id, Status: OutcomeFailed, StartedAt: now, FinishedAt: now}))
	}

	n, err := store.DeleteForSchedule("a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rest, err := store.ListRuns(ListOptions{})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "b", rest[0].ScheduleID)
}

func TestStore_FileBacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := New(path)
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, store.Record(&Run{ScheduleID: "a", ScheduleName: "A", Status: OutcomeSuccess, StartedAt: now, FinishedAt: now}))
	require.NoError(t, store.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()
	runs, err := reopened.ListRuns(ListOptions{ScheduleID: "a"})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestNew_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh", "data", "history.db")
	store, err := New(path)
	require.NoError(t, err)
	defer store.Close()

	now := time.Now()
	require.NoError(t, store.Record(&Run{ScheduleID: "a", ScheduleName: "A", Status: OutcomeSuccess, StartedAt: now, FinishedAt: now}))
	assert.FileExists(t, path)
}
