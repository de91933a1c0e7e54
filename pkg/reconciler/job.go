package reconciler

import (
	"context"
	"strings"
	"time"

	"github.com/ethanbaker/meetingroom/pkg/transcription"
)

// Propagation tracks whether a job's transcript reached the meeting record
type Propagation string

const (
	PropagationPending    Propagation = "pending"    // still owned by the reconciler
	PropagationPropagated Propagation = "propagated" // transcript delivered
	PropagationClosed     Propagation = "closed"     // finished without delivery
)

// Job is a tracked transcription job
type Job struct {
	ID          string                   `json:"id"`
	MeetingID   string                   `json:"meetingId,omitempty"`
	Source      transcription.SourceKind `json:"source"`
	Status      transcription.Status     `json:"status"`
	Transcript  string                   `json:"transcript,omitempty"`
	Propagation Propagation              `json:"propagation"`
	CreatedAt   time.Time                `json:"createdAt"`
	CompletedAt *time.Time               `json:"completedAt,omitempty"`
}

// Advance applies an observed status. Status only moves forward and a job is
// Completed only once its transcript is known: a completion reported without
// text counts as Processing until an observation carries the transcript
func (j *Job) Advance(status transcription.Status, transcript string, at time.Time) bool {
	if status == transcription.StatusCompleted && strings.TrimSpace(transcript) == "" {
		status = transcription.StatusProcessing
	}

	// A completion stored without text takes the first transcript seen
	if j.Status == transcription.StatusCompleted && j.Transcript == "" && status == transcription.StatusCompleted {
		j.Transcript = transcript
		return true
	}

	if j.Status.Terminal() || status.Rank() <= j.Status.Rank() {
		return false
	}

	j.Status = status
	if status == transcription.StatusCompleted {
		j.Transcript = transcript
	}
	if status.Terminal() {
		completed := at.UTC()
		j.CompletedAt = &completed
	}

	return true
}

// JobStore persists jobs. Implementations return apperr.ErrNotFound for unknown ids
type JobStore interface {
	// Create inserts a new job
	Create(ctx context.Context, job *Job) error

	// Get returns a job by id
	Get(ctx context.Context, id string) (*Job, error)

	// RecordStatus atomically applies Job.Advance and returns the resulting job
	RecordStatus(ctx context.Context, id string, status transcription.Status, transcript string, at time.Time) (*Job, error)

	// CompareAndSwapPropagation sets the propagation state to `to` only if it is
	// currently `from`, reporting whether the swap happened
	CompareAndSwapPropagation(ctx context.Context, id string, from, to Propagation) (bool, error)

	// ListByPropagation returns jobs in the given propagation state
	ListByPropagation(ctx context.Context, state Propagation) ([]Job, error)

	// ListByMeeting returns the jobs tied to a meeting
	ListByMeeting(ctx context.Context, meetingID string) ([]Job, error)

	// DeleteFinishedBefore removes non-pending jobs that finished before t. Jobs
	// closed without a terminal status count as finished at creation
	DeleteFinishedBefore(ctx context.Context, t time.Time) (int64, error)
}
