package booking

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethanbaker/meetingroom/pkg/apperr"
	"github.com/ethanbaker/meetingroom/pkg/logging"
	"github.com/ethanbaker/meetingroom/pkg/metrics"
	"github.com/rs/zerolog"
)

// Service validates, conflict-checks and persists bookings of the shared room
type Service struct {
	store      Store
	locker     Locker
	mirror     Mirror
	adminEmail string
	location   *time.Location
	metrics    *metrics.Metrics
	log        zerolog.Logger
	now        func() time.Time

	hooksMutex sync.RWMutex
	hooks      []CancelHook
}

// ServiceOptions contains the collaborators of the booking Service
type ServiceOptions struct {
	Store      Store          // Required persistence layer
	Mirror     Mirror         // Required external document store
	Locker     Locker         // Defaults to an in-process MemoryLocker
	AdminEmail string         // Identity allowed to cancel any meeting
	Location   *time.Location // Zone for zone-less start timestamps (defaults to UTC)
	Metrics    *metrics.Metrics
}

// NewService creates a new booking service
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("a valid store must be provided")
	}
	if opts.Mirror == nil {
		return nil, fmt.Errorf("a valid mirror must be provided")
	}
	if strings.TrimSpace(opts.AdminEmail) == "" {
		return nil, fmt.Errorf("admin email must be provided")
	}

	s := &Service{
		store:      opts.Store,
		locker:     opts.Locker,
		mirror:     opts.Mirror,
		adminEmail: strings.TrimSpace(opts.AdminEmail),
		location:   opts.Location,
		metrics:    opts.Metrics,
		log:        logging.For("BOOKING"),
		now:        time.Now,
	}

	if s.locker == nil {
		s.locker = NewMemoryLocker()
	}
	if s.location == nil {
		s.location = time.UTC
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop()
	}

	return s, nil
}

// OnCancel registers a hook run after a meeting is cancelled
func (s *Service) OnCancel(hook CancelHook) {
	s.hooksMutex.Lock()
	defer s.hooksMutex.Unlock()
	s.hooks = append(s.hooks, hook)
}

// Location returns the zone used for zone-less timestamps
func (s *Service) Location() *time.Location {
	return s.location
}

// CreateBooking validates the draft, rejects it on any overlap, mirrors it to the
// external store and persists it under the mirrored record's id
func (s *Service) CreateBooking(ctx context.Context, draft *Draft) (*Meeting, error) {
	meeting, err := draft.Validate(s.location)
	if err != nil {
		s.metrics.BookingsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, DayKeys(meeting.StartDateTime, meeting.End())...)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire booking lock: %w", err)
	}
	defer unlock()

	// Conflict check against all active meetings
	if err := s.checkConflict(ctx, meeting.Interval()); err != nil {
		if apperr.IsConflict(err) {
			s.metrics.BookingsTotal.WithLabelValues("conflict").Inc()
		}
		return nil, err
	}

	// Mirror first so the local id matches the external record
	externalID, err := s.mirror.MirrorBooking(ctx, meeting)
	if err != nil {
		s.metrics.BookingsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	meeting.ID = externalID
	meeting.ExternalDocID = externalID
	meeting.CreatedAt = s.now().UTC()

	if err := s.store.Insert(ctx, meeting); err != nil {
		s.metrics.BookingsTotal.WithLabelValues("error").Inc()

		// Compensate so the external store does not keep an orphaned record
		if archiveErr := s.mirror.ArchiveBooking(ctx, externalID); archiveErr != nil {
			s.log.Warn().Err(archiveErr).Str("meeting_id", externalID).Msg("failed to archive orphaned mirror")
		}
		return nil, fmt.Errorf("failed to persist meeting: %w", err)
	}

	s.metrics.BookingsTotal.WithLabelValues("created").Inc()
	s.log.Info().
		Str("meeting_id", meeting.ID).
		Time("start", meeting.StartDateTime).
		Int("duration", meeting.DurationMinutes).
		Msg("meeting booked")

	return meeting, nil
}

// CheckConflict reports whether a meeting at start lasting durationMinutes would overlap an active meeting
func (s *Service) CheckConflict(ctx context.Context, start time.Time, durationMinutes int) (bool, error) {
	if durationMinutes <= 0 {
		return false, fmt.Errorf("%w: duration must be greater than zero", apperr.ErrValidation)
	}

	interval := Interval{Start: start, End: start.Add(time.Duration(durationMinutes) * time.Minute)}
	err := s.checkConflict(ctx, interval)
	switch {
	case err == nil:
		return false, nil
	case apperr.IsConflict(err):
		return true, nil
	default:
		return false, err
	}
}

// checkConflict returns apperr.ErrConflict naming the first overlapping meeting
func (s *Service) checkConflict(ctx context.Context, interval Interval) error {
	existing, err := s.store.FindOverlapping(ctx, interval.Start, interval.End)
	if err != nil {
		return fmt.Errorf("failed to check conflicts: %w", err)
	}

	for _, m := range existing {
		if m.Interval().Overlaps(interval) {
			return fmt.Errorf("%w: overlaps %q (%s - %s)", apperr.ErrConflict, m.Title,
				m.StartDateTime.In(s.location).Format("2006-01-02 15:04"),
				m.End().In(s.location).Format("15:04"))
		}
	}

	return nil
}

// CancelBooking removes a meeting if the requester is its responsible person or the admin.
// Archiving the external mirror is best-effort
func (s *Service) CancelBooking(ctx context.Context, id, requesterEmail string) error {
	meeting, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if !s.canCancel(meeting, requesterEmail) {
		return fmt.Errorf("%w: only the responsible person or the admin can cancel this meeting", apperr.ErrForbidden)
	}

	// Archive the mirror (it may already be archived or deleted externally)
	if meeting.ExternalDocID != "" {
		if err := s.mirror.ArchiveBooking(ctx, meeting.ExternalDocID); err != nil {
			s.log.Warn().Err(err).Str("meeting_id", id).Msg("failed to archive mirrored meeting, continuing")
		}
	}

	if err := s.store.Remove(ctx, id); err != nil {
		return fmt.Errorf("failed to remove meeting: %w", err)
	}

	s.hooksMutex.RLock()
	hooks := append([]CancelHook(nil), s.hooks...)
	s.hooksMutex.RUnlock()
	for _, hook := range hooks {
		hook(id)
	}

	s.metrics.BookingsTotal.WithLabelValues("cancelled").Inc()
	s.log.Info().Str("meeting_id", id).Str("requester", requesterEmail).Msg("meeting cancelled")

	return nil
}

// canCancel is the single "owner or admin" authorization rule
func (s *Service) canCancel(meeting *Meeting, requesterEmail string) bool {
	requester := strings.TrimSpace(requesterEmail)
	if requester == "" {
		return false
	}
	return strings.EqualFold(requester, meeting.ResponsibleEmail) || strings.EqualFold(requester, s.adminEmail)
}

// ListBookings returns all active meetings in creation order
func (s *Service) ListBookings(ctx context.Context) ([]Meeting, error) {
	return s.store.List(ctx)
}

// GetBooking returns a single active meeting
func (s *Service) GetBooking(ctx context.Context, id string) (*Meeting, error) {
	return s.store.Get(ctx, id)
}
