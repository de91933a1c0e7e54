package job

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethanbaker/meetingroom/pkg/apperr"
	"github.com/ethanbaker/meetingroom/pkg/reconciler"
	"github.com/ethanbaker/meetingroom/pkg/transcription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeContract runs the behaviour every reconciler.JobStore must share
func storeContract(t *testing.T, store reconciler.JobStore) {
	ctx := context.Background()
	created := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.Create(ctx, &reconciler.Job{
		ID:          "f1",
		MeetingID:   "m1",
		Source:      transcription.SourceUploadedFile,
		Status:      transcription.StatusSubmitted,
		Propagation: reconciler.PropagationPending,
		CreatedAt:   created,
	}))
	assert.Error(t, store.Create(ctx, &reconciler.Job{ID: "f1", Propagation: reconciler.PropagationPending, CreatedAt: created}))

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// Monotonic status
	job, err := store.RecordStatus(ctx, "f1", transcription.StatusCompleted, "hello", created)
	require.NoError(t, err)
	assert.Equal(t, transcription.StatusCompleted, job.Status)
	assert.Equal(t, "hello", job.Transcript)

	job, err = store.RecordStatus(ctx, "f1", transcription.StatusProcessing, "", created)
	require.NoError(t, err)
	assert.Equal(t, transcription.StatusCompleted, job.Status)

	job, err = store.Get(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "hello", job.Transcript)
	require.NotNil(t, job.CompletedAt)

	// Compare and swap
	ok, err := store.CompareAndSwapPropagation(ctx, "f1", reconciler.PropagationPending, reconciler.PropagationPropagated)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.CompareAndSwapPropagation(ctx, "f1", reconciler.PropagationPending, reconciler.PropagationPropagated)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.CompareAndSwapPropagation(ctx, "missing", reconciler.PropagationPending, reconciler.PropagationClosed)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	byMeeting, err := store.ListByMeeting(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, byMeeting, 1)

	pending, err := store.ListByPropagation(ctx, reconciler.PropagationPending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// A completion without text is not final
	require.NoError(t, store.Create(ctx, &reconciler.Job{
		ID:          "f2",
		Status:      transcription.StatusSubmitted,
		Propagation: reconciler.PropagationClosed,
		CreatedAt:   created.Add(-48 * time.Hour),
	}))
	job, err = store.RecordStatus(ctx, "f2", transcription.StatusCompleted, "", created)
	require.NoError(t, err)
	assert.Equal(t, transcription.StatusProcessing, job.Status)
	assert.Nil(t, job.CompletedAt)

	job, err = store.RecordStatus(ctx, "f2", transcription.StatusCompleted, "late text", created)
	require.NoError(t, err)
	assert.Equal(t, transcription.StatusCompleted, job.Status)
	assert.Equal(t, "late text", job.Transcript)

	// Retention counts from completion, not creation
	removed, err := store.DeleteFinishedBefore(ctx, created.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)

	removed, err = store.DeleteFinishedBefore(ctx, created.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
}

func TestInMemoryStore(t *testing.T) {
	storeContract(t, NewInMemoryStore())
}

func TestInMemoryStore_ConcurrentSwap(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	require.NoError(t, store.Create(ctx, &reconciler.Job{ID: "f1", Propagation: reconciler.PropagationPending}))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.CompareAndSwapPropagation(ctx, "f1", reconciler.PropagationPending, reconciler.PropagationPropagated)
			if assert.NoError(t, err) && ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}

func TestStore_MySQL(t *testing.T) {
	dsn := os.Getenv("MYSQL_TEST_DSN")
	if dsn == "" {
		t.Skip("MYSQL_TEST_DSN not set")
	}

	store, err := NewStore(dsn)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.db.Where("1 = 1").Delete(&JobModel{}).Error)
	storeContract(t, store)
}
