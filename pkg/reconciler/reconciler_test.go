package reconciler_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jobstore "github.com/ethanbaker/meetingroom/internal/stores/job"
	"github.com/ethanbaker/meetingroom/pkg/apperr"
	"github.com/ethanbaker/meetingroom/pkg/booking"
	"github.com/ethanbaker/meetingroom/pkg/reconciler"
	"github.com/ethanbaker/meetingroom/pkg/transcription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// mockProvider serves status snapshots per job id
type mockProvider struct {
	mu        sync.Mutex
	snapshots map[string]transcription.StatusSnapshot
	calls     int32
}

func newMockProvider() *mockProvider {
	return &mockProvider{snapshots: map[string]transcription.StatusSnapshot{}}
}

func (p *mockProvider) set(id string, status transcription.Status, transcript string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots[id] = transcription.StatusSnapshot{ID: id, Status: status, Transcript: transcript}
}

func (p *mockProvider) GetStatus(_ context.Context, id string) (*transcription.StatusSnapshot, error) {
	atomic.AddInt32(&p.calls, 1)

	p.mu.Lock()
	defer p.mu.Unlock()

	snap, ok := p.snapshots[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown id %s", apperr.ErrLookup, id)
	}
	return &snap, nil
}

type appended struct {
	externalID string
	text       string
}

// mockSink records appended transcripts, optionally failing the first calls
type mockSink struct {
	mu       sync.Mutex
	appends  []appended
	attempts int
	failures int
	delay    time.Duration
}

func (s *mockSink) AppendTranscript(_ context.Context, externalID, text string) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts++
	if s.attempts <= s.failures {
		return errors.New("notion unavailable")
	}
	s.appends = append(s.appends, appended{externalID, text})
	return nil
}

func (s *mockSink) snapshot() ([]appended, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]appended(nil), s.appends...), s.attempts
}

// mockMeetings resolves meetings from a map
type mockMeetings struct {
	mu       sync.Mutex
	meetings map[string]booking.Meeting
}

func newMockMeetings(ids ...string) *mockMeetings {
	m := &mockMeetings{meetings: map[string]booking.Meeting{}}
	for _, id := range ids {
		m.meetings[id] = booking.Meeting{ID: id, ExternalDocID: id, Title: "Meeting " + id}
	}
	return m
}

func (m *mockMeetings) GetBooking(_ context.Context, id string) (*booking.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	meeting, ok := m.meetings[id]
	if !ok {
		return nil, fmt.Errorf("%w: meeting '%s'", apperr.ErrNotFound, id)
	}
	return &meeting, nil
}

func (m *mockMeetings) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.meetings, id)
}

type fixture struct {
	store    *jobstore.InMemoryStore
	provider *mockProvider
	sink     *mockSink
	meetings *mockMeetings
	rec      *reconciler.Reconciler
}

func newFixture(t *testing.T, interval time.Duration, meetingIDs ...string) *fixture {
	t.Helper()

	f := &fixture{
		store:    jobstore.NewInMemoryStore(),
		provider: newMockProvider(),
		sink:     &mockSink{},
		meetings: newMockMeetings(meetingIDs...),
	}

	rec, err := reconciler.New(reconciler.Options{
		Store:        f.store,
		Provider:     f.provider,
		Sink:         f.sink,
		Meetings:     f.meetings,
		PollInterval: interval,
	})
	require.NoError(t, err)
	t.Cleanup(rec.Stop)

	f.rec = rec
	return f
}

func (f *fixture) register(t *testing.T, id, meetingID string) {
	t.Helper()
	_, err := f.rec.Register(context.Background(), &transcription.JobHandle{
		ID:     id,
		Source: transcription.SourceUploadedFile,
		Status: transcription.StatusSubmitted,
	}, meetingID)
	require.NoError(t, err)
}

func (f *fixture) propagation(id string) reconciler.Propagation {
	job, err := f.store.Get(context.Background(), id)
	if err != nil {
		return ""
	}
	return job.Propagation
}

func TestNew_Requirements(t *testing.T) {
	_, err := reconciler.New(reconciler.Options{})
	assert.Error(t, err)
}

func TestReconciler_PollPropagatesOnce(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond, "m1")
	f.provider.set("f1", transcription.StatusProcessing, "")
	f.register(t, "f1", "m1")

	assert.Eventually(t, func() bool {
		job, err := f.rec.Job(context.Background(), "f1")
		return err == nil && job.Status == transcription.StatusProcessing
	}, waitFor, tick)

	f.provider.set("f1", transcription.StatusCompleted, "hello")

	assert.Eventually(t, func() bool {
		return f.propagation("f1") == reconciler.PropagationPropagated
	}, waitFor, tick)
	assert.Eventually(t, func() bool { return !f.rec.Polling("f1") }, waitFor, tick)

	// Further ticks must not append again
	time.Sleep(50 * time.Millisecond)
	appends, _ := f.sink.snapshot()
	assert.Equal(t, []appended{{"m1", "hello"}}, appends)

	job, err := f.rec.Job(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, transcription.StatusCompleted, job.Status)
	assert.Equal(t, "hello", job.Transcript)
	assert.NotNil(t, job.CompletedAt)
}

func TestReconciler_RacingPollAndWebhooks(t *testing.T) {
	f := newFixture(t, time.Millisecond, "m1")
	f.sink.delay = 5 * time.Millisecond
	f.provider.set("f1", transcription.StatusCompleted, "final transcript")
	f.register(t, "f1", "m1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.rec.HandleWebhook(context.Background(), []byte(`{"id":"f1","status":"completed","transcript":"final transcript"}`))
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool {
		return f.propagation("f1") == reconciler.PropagationPropagated
	}, waitFor, tick)

	time.Sleep(50 * time.Millisecond)
	appends, _ := f.sink.snapshot()
	assert.Len(t, appends, 1)
}

func TestReconciler_FailedJobCloses(t *testing.T) {
	f := newFixture(t, 5*time.Millisecond, "m1")
	f.provider.set("f1", transcription.StatusFailed, "")
	f.register(t, "f1", "m1")

	assert.Eventually(t, func() bool {
		return f.propagation("f1") == reconciler.PropagationClosed
	}, waitFor, tick)
	assert.Eventually(t, func() bool { return !f.rec.Polling("f1") }, waitFor, tick)

	appends, _ := f.sink.snapshot()
	assert.Empty(t, appends)

	job, err := f.rec.Job(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, transcription.StatusFailed, job.Status)
	assert.Empty(t, job.Transcript)
}

func TestReconciler_SinkFailureRetries(t *testing.T) {
	f := newFixture(t, 5*time.Millisecond, "m1")
	f.sink.failures = 2
	f.provider.set("f1", transcription.StatusCompleted, "hello")
	f.register(t, "f1", "m1")

	assert.Eventually(t, func() bool {
		appends, _ := f.sink.snapshot()
		return len(appends) == 1
	}, waitFor, tick)

	_, attempts := f.sink.snapshot()
	assert.Equal(t, 3, attempts)
	assert.Equal(t, reconciler.PropagationPropagated, f.propagation("f1"))
}

func TestReconciler_CancelMeeting(t *testing.T) {
	f := newFixture(t, 5*time.Millisecond, "m1", "m2")
	f.provider.set("f1", transcription.StatusProcessing, "")
	f.provider.set("f2", transcription.StatusProcessing, "")
	f.register(t, "f1", "m1")
	f.register(t, "f2", "m2")

	f.meetings.remove("m1")
	f.rec.CancelMeeting("m1")

	assert.Equal(t, reconciler.PropagationClosed, f.propagation("f1"))
	assert.False(t, f.rec.Polling("f1"))

	// Other meetings are untouched
	assert.Equal(t, reconciler.PropagationPending, f.propagation("f2"))
	assert.True(t, f.rec.Polling("f2"))

	// A late completion of the cancelled job is never propagated
	f.provider.set("f1", transcription.StatusCompleted, "late")
	require.NoError(t, f.rec.HandleWebhook(context.Background(), []byte(`{"id":"f1","status":"completed","transcript":"late"}`)))

	appends, _ := f.sink.snapshot()
	assert.Empty(t, appends)
}

func TestReconciler_MissingMeetingClosesWithoutPropagation(t *testing.T) {
	tests := []struct {
		name      string
		meetingID string
	}{
		{"no meeting", ""},
		{"meeting removed", "gone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 5*time.Millisecond)
			f.provider.set("f1", transcription.StatusCompleted, "hello")
			f.register(t, "f1", tt.meetingID)

			assert.Eventually(t, func() bool {
				return f.propagation("f1") == reconciler.PropagationClosed
			}, waitFor, tick)

			appends, _ := f.sink.snapshot()
			assert.Empty(t, appends)
		})
	}
}

func TestReconciler_WebhookWithoutTranscriptLooksUp(t *testing.T) {
	f := newFixture(t, time.Hour, "m1")
	f.register(t, "f1", "m1")
	f.provider.set("f1", transcription.StatusCompleted, "fetched transcript")

	err := f.rec.HandleWebhook(context.Background(), []byte(`{"id":"f1","status":"done"}`))
	require.NoError(t, err)

	appends, _ := f.sink.snapshot()
	assert.Equal(t, []appended{{"m1", "fetched transcript"}}, appends)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.provider.calls))
}

func TestReconciler_EmptyCompletionWaitsForTranscript(t *testing.T) {
	f := newFixture(t, 5*time.Millisecond, "m1")
	f.provider.set("f1", transcription.StatusCompleted, "")
	f.register(t, "f1", "m1")

	// Several ticks see a completion without text
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&f.provider.calls) >= 3
	}, waitFor, tick)

	appends, attempts := f.sink.snapshot()
	assert.Empty(t, appends)
	assert.Zero(t, attempts)
	assert.True(t, f.rec.Polling("f1"))

	job, err := f.rec.Job(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, transcription.StatusProcessing, job.Status)
	assert.Equal(t, reconciler.PropagationPending, job.Propagation)

	require.NoError(t, f.rec.HandleWebhook(context.Background(), []byte(`{"id":"f1","status":"completed","transcript":"the real transcript"}`)))

	assert.Eventually(t, func() bool { return !f.rec.Polling("f1") }, waitFor, tick)
	appends, _ = f.sink.snapshot()
	assert.Equal(t, []appended{{"m1", "the real transcript"}}, appends)
	assert.Equal(t, reconciler.PropagationPropagated, f.propagation("f1"))

	job, err = f.rec.Job(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, transcription.StatusCompleted, job.Status)
	assert.Equal(t, "the real transcript", job.Transcript)
}

func TestReconciler_WebhookFirstThenTicksWriteNothing(t *testing.T) {
	f := newFixture(t, 5*time.Millisecond, "m1")
	f.provider.set("f1", transcription.StatusProcessing, "")
	f.register(t, "f1", "m1")

	require.NoError(t, f.rec.HandleWebhook(context.Background(), []byte(`{"id":"f1","status":"completed","transcript":"from webhook"}`)))

	// The provider now reports completion too, ticks must not deliver it again
	f.provider.set("f1", transcription.StatusCompleted, "from poll")
	assert.Eventually(t, func() bool { return !f.rec.Polling("f1") }, waitFor, tick)
	time.Sleep(50 * time.Millisecond)

	appends, attempts := f.sink.snapshot()
	assert.Equal(t, []appended{{"m1", "from webhook"}}, appends)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, reconciler.PropagationPropagated, f.propagation("f1"))
}

func TestReconciler_WebhookErrors(t *testing.T) {
	f := newFixture(t, time.Hour)

	err := f.rec.HandleWebhook(context.Background(), []byte(`{"id":"unknown","status":"completed","transcript":"x"}`))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	err = f.rec.HandleWebhook(context.Background(), []byte(`not json`))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestReconciler_RegisterValidation(t *testing.T) {
	f := newFixture(t, time.Hour)

	_, err := f.rec.Register(context.Background(), &transcription.JobHandle{}, "m1")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.rec.Register(context.Background(), nil, "m1")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestReconciler_RegisterTwiceKeepsFirst(t *testing.T) {
	f := newFixture(t, time.Hour, "m1")
	f.register(t, "f1", "m1")

	job, err := f.rec.Register(context.Background(), &transcription.JobHandle{ID: "f1"}, "other")
	require.NoError(t, err)
	assert.Equal(t, "m1", job.MeetingID)
}

func TestReconciler_Resume(t *testing.T) {
	f := newFixture(t, 5*time.Millisecond, "m1")

	require.NoError(t, f.store.Create(context.Background(), &reconciler.Job{
		ID:          "f1",
		MeetingID:   "m1",
		Source:      transcription.SourceLiveMeetingLink,
		Status:      transcription.StatusProcessing,
		Propagation: reconciler.PropagationPending,
		CreatedAt:   time.Now(),
	}))
	f.provider.set("f1", transcription.StatusCompleted, "resumed")

	require.NoError(t, f.rec.Resume(context.Background()))

	assert.Eventually(t, func() bool {
		return f.propagation("f1") == reconciler.PropagationPropagated
	}, waitFor, tick)
}

func TestReconciler_Prune(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()
	old := time.Now().Add(-60 * 24 * time.Hour)
	recent := time.Now()

	jobs := []reconciler.Job{
		{ID: "old-closed", Propagation: reconciler.PropagationClosed, CreatedAt: old},
		{ID: "old-propagated", Propagation: reconciler.PropagationPropagated, CreatedAt: old, CompletedAt: &old},
		{ID: "old-pending", Propagation: reconciler.PropagationPending, CreatedAt: old},
		{ID: "new-closed", Propagation: reconciler.PropagationClosed, CreatedAt: time.Now()},
		{ID: "long-running", Propagation: reconciler.PropagationPropagated, CreatedAt: old, CompletedAt: &recent},
	}
	for i := range jobs {
		require.NoError(t, f.store.Create(ctx, &jobs[i]))
	}

	removed, err := f.rec.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	_, err = f.rec.Job(ctx, "old-pending")
	assert.NoError(t, err)
	_, err = f.rec.Job(ctx, "new-closed")
	assert.NoError(t, err)
	_, err = f.rec.Job(ctx, "long-running")
	assert.NoError(t, err)
}

func TestReconciler_StartRejectsBadSchedule(t *testing.T) {
	rec, err := reconciler.New(reconciler.Options{
		Store:         jobstore.NewInMemoryStore(),
		Provider:      newMockProvider(),
		Sink:          &mockSink{},
		Meetings:      newMockMeetings(),
		PruneSchedule: "every now and then",
	})
	require.NoError(t, err)
	defer rec.Stop()

	assert.Error(t, rec.Start())
}

func TestReconciler_StopWaitsForPollers(t *testing.T) {
	f := newFixture(t, time.Millisecond, "m1")
	f.provider.set("f1", transcription.StatusProcessing, "")
	f.register(t, "f1", "m1")

	f.rec.Stop()
	assert.False(t, f.rec.Polling("f1"))

	// The job stays pending for a later Resume
	assert.Equal(t, reconciler.PropagationPending, f.propagation("f1"))
}
