package meeting

import (
	"context"
	"fmt"

	"github.com/ethanbaker/meetingroom/pkg/apperr"
	"github.com/ethanbaker/meetingroom/pkg/booking"
	"github.com/ethanbaker/meetingroom/pkg/sdk"
)

// Service adapts the booking service to the HTTP surface
type Service struct {
	bookings *booking.Service
}

// NewService creates a new meeting module service
func NewService(bookings *booking.Service) *Service {
	return &Service{bookings: bookings}
}

// List returns the active meetings, never nil
func (s *Service) List(ctx context.Context) ([]booking.Meeting, error) {
	meetings, err := s.bookings.ListBookings(ctx)
	if err != nil {
		return nil, err
	}
	if meetings == nil {
		meetings = []booking.Meeting{}
	}
	return meetings, nil
}

// Create books the room
func (s *Service) Create(ctx context.Context, draft *booking.Draft) (*booking.Meeting, error) {
	return s.bookings.CreateBooking(ctx, draft)
}

// CheckConflict parses the requested slot and checks it against active meetings
func (s *Service) CheckConflict(ctx context.Context, req *sdk.CheckConflictRequest) (bool, error) {
	start, err := booking.ParseStart(req.StartDateTime, s.bookings.Location())
	if err != nil {
		return false, err
	}
	if req.Duration <= 0 {
		return false, fmt.Errorf("%w: duration must be greater than zero", apperr.ErrValidation)
	}

	return s.bookings.CheckConflict(ctx, start, req.Duration)
}

// Cancel cancels a meeting on behalf of userEmail
func (s *Service) Cancel(ctx context.Context, id, userEmail string) error {
	return s.bookings.CancelBooking(ctx, id, userEmail)
}
