package booking

import (
	"context"
	"time"
)

// Store defines the persistence operations for active meetings.
// Implementations return apperr.ErrNotFound for unknown ids
type Store interface {
	// List returns all active meetings in creation order
	List(ctx context.Context) ([]Meeting, error)

	// Get returns a single meeting by id
	Get(ctx context.Context, id string) (*Meeting, error)

	// FindOverlapping returns active meetings whose interval overlaps [start, end)
	FindOverlapping(ctx context.Context, start, end time.Time) ([]Meeting, error)

	// Insert persists a new meeting. It must fail with apperr.ErrConflict if an
	// overlapping meeting exists at insert time
	Insert(ctx context.Context, meeting *Meeting) error

	// Remove deletes a meeting by id
	Remove(ctx context.Context, id string) error
}

// Locker serializes the conflict-check-then-insert sequence. Lock acquires all keys
// (in the given order) and returns a function releasing them
type Locker interface {
	Lock(ctx context.Context, keys ...string) (func(), error)
}

// Mirror keeps the external document store in correspondence with local meetings
type Mirror interface {
	MirrorBooking(ctx context.Context, meeting *Meeting) (string, error)
	ArchiveBooking(ctx context.Context, externalID string) error
}

// CancelHook is notified after a meeting has been removed, used to stop work tied to it
type CancelHook func(meetingID string)
