package booking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethanbaker/meetingroom/pkg/apperr"
	"github.com/ethanbaker/meetingroom/pkg/booking"
)

// InMemoryStore provides an in-memory implementation of booking.Store
type InMemoryStore struct {
	meetings []booking.Meeting // creation order
	mutex    sync.RWMutex
}

// NewInMemoryStore creates a new in-memory booking store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		meetings: []booking.Meeting{},
		mutex:    sync.RWMutex{},
	}
}

// List returns copies of all meetings in creation order
func (s *InMemoryStore) List(_ context.Context) ([]booking.Meeting, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]booking.Meeting, len(s.meetings))
	for i, m := range s.meetings {
		out[i] = copyMeeting(m)
	}
	return out, nil
}

// Get retrieves a meeting by id
func (s *InMemoryStore) Get(_ context.Context, id string) (*booking.Meeting, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if i := s.indexOf(id); i >= 0 {
		m := copyMeeting(s.meetings[i])
		return &m, nil
	}
	return nil, fmt.Errorf("%w: meeting '%s'", apperr.ErrNotFound, id)
}

// FindOverlapping returns meetings overlapping [start, end)
func (s *InMemoryStore) FindOverlapping(_ context.Context, start, end time.Time) ([]booking.Meeting, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.overlapping(booking.Interval{Start: start, End: end}), nil
}

// Insert stores a new meeting, re-checking for overlaps under the write lock
func (s *InMemoryStore) Insert(_ context.Context, meeting *booking.Meeting) error {
	if meeting.ID == "" {
		return fmt.Errorf("meeting id cannot be empty")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.indexOf(meeting.ID) >= 0 {
		return fmt.Errorf("meeting '%s' already exists", meeting.ID)
	}
	if hits := s.overlapping(meeting.Interval()); len(hits) > 0 {
		return fmt.Errorf("%w: overlaps meeting '%s'", apperr.ErrConflict, hits[0].ID)
	}

	s.meetings = append(s.meetings, copyMeeting(*meeting))
	return nil
}

// Remove deletes a meeting by id
func (s *InMemoryStore) Remove(_ context.Context, id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: meeting '%s'", apperr.ErrNotFound, id)
	}

	s.meetings = append(s.meetings[:i], s.meetings[i+1:]...)
	return nil
}

// load replaces the contents of the store (called with no concurrent access)
func (s *InMemoryStore) load(meetings []booking.Meeting) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.meetings = meetings
}

// indexOf finds a meeting's position (called with mutex held)
func (s *InMemoryStore) indexOf(id string) int {
	for i := range s.meetings {
		if s.meetings[i].ID == id {
			return i
		}
	}
	return -1
}

// overlapping collects meetings overlapping interval (called with mutex held)
func (s *InMemoryStore) overlapping(interval booking.Interval) []booking.Meeting {
	var hits []booking.Meeting
	for _, m := range s.meetings {
		if m.Interval().Overlaps(interval) {
			hits = append(hits, copyMeeting(m))
		}
	}
	return hits
}

// copyMeeting avoids sharing the participants slice with callers
func copyMeeting(m booking.Meeting) booking.Meeting {
	m.Participants = append(booking.Participants{}, m.Participants...)
	return m
}
