package job

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethanbaker/meetingroom/pkg/apperr"
	"github.com/ethanbaker/meetingroom/pkg/reconciler"
	"github.com/ethanbaker/meetingroom/pkg/transcription"
)

// InMemoryStore provides an in-memory implementation of reconciler.JobStore
type InMemoryStore struct {
	jobs  map[string]*reconciler.Job
	mutex sync.Mutex
}

// NewInMemoryStore creates a new in-memory job store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		jobs: make(map[string]*reconciler.Job),
	}
}

// Create inserts a new job
func (s *InMemoryStore) Create(_ context.Context, job *reconciler.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job id cannot be empty")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job '%s' already exists", job.ID)
	}

	s.jobs[job.ID] = copyJob(job)
	return nil
}

// Get retrieves a job by id
func (s *InMemoryStore) Get(_ context.Context, id string) (*reconciler.Job, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job '%s'", apperr.ErrNotFound, id)
	}
	return copyJob(job), nil
}

// RecordStatus applies a status observation atomically
func (s *InMemoryStore) RecordStatus(_ context.Context, id string, status transcription.Status, transcript string, at time.Time) (*reconciler.Job, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job '%s'", apperr.ErrNotFound, id)
	}

	job.Advance(status, transcript, at)
	return copyJob(job), nil
}

// CompareAndSwapPropagation swaps the propagation state if it matches from
func (s *InMemoryStore) CompareAndSwapPropagation(_ context.Context, id string, from, to reconciler.Propagation) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false, fmt.Errorf("%w: job '%s'", apperr.ErrNotFound, id)
	}
	if job.Propagation != from {
		return false, nil
	}

	job.Propagation = to
	return true, nil
}

// ListByPropagation returns jobs in a propagation state, oldest first
func (s *InMemoryStore) ListByPropagation(_ context.Context, state reconciler.Propagation) ([]reconciler.Job, error) {
	return s.filter(func(j *reconciler.Job) bool { return j.Propagation == state }), nil
}

// ListByMeeting returns the jobs of a meeting, oldest first
func (s *InMemoryStore) ListByMeeting(_ context.Context, meetingID string) ([]reconciler.Job, error) {
	if meetingID == "" {
		return []reconciler.Job{}, nil
	}
	return s.filter(func(j *reconciler.Job) bool { return j.MeetingID == meetingID }), nil
}

// DeleteFinishedBefore removes non-pending jobs that finished before t
func (s *InMemoryStore) DeleteFinishedBefore(_ context.Context, t time.Time) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var removed int64
	for id, job := range s.jobs {
		finished := job.CreatedAt
		if job.CompletedAt != nil {
			finished = *job.CompletedAt
		}
		if job.Propagation != reconciler.PropagationPending && finished.Before(t) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed, nil
}

func (s *InMemoryStore) filter(keep func(*reconciler.Job) bool) []reconciler.Job {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	out := []reconciler.Job{}
	for _, job := range s.jobs {
		if keep(job) {
			out = append(out, *copyJob(job))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func copyJob(job *reconciler.Job) *reconciler.Job {
	c := *job
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
