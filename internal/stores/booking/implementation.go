package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethanbaker/meetingroom/pkg/apperr"
	"github.com/ethanbaker/meetingroom/pkg/booking"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store handles storage and retrieval of meetings using MySQL
type Store struct {
	db *gorm.DB
}

// NewStore creates a new meeting store with MySQL connection
func NewStore(databaseURL string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}

	// Auto-migrate tables
	if err := store.db.AutoMigrate(&MeetingModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate tables: %w", err)
	}

	return store, nil
}

// List returns all meetings in creation order
func (s *Store) List(ctx context.Context) ([]booking.Meeting, error) {
	var models []MeetingModel
	if err := s.db.WithContext(ctx).Order("created_at, id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list meetings: %w", err)
	}

	return toMeetings(models), nil
}

// Get retrieves a meeting by id
func (s *Store) Get(ctx context.Context, id string) (*booking.Meeting, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: meeting id cannot be empty", apperr.ErrNotFound)
	}

	var model MeetingModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: meeting '%s'", apperr.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get meeting: %w", err)
	}

	meeting := model.toMeeting()
	return &meeting, nil
}

// FindOverlapping returns meetings overlapping [start, end)
func (s *Store) FindOverlapping(ctx context.Context, start, end time.Time) ([]booking.Meeting, error) {
	var models []MeetingModel
	if err := overlapQuery(s.db.WithContext(ctx), start, end).Order("start_at").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to query overlapping meetings: %w", err)
	}

	return toMeetings(models), nil
}

// Insert stores a meeting, re-checking for overlaps inside a locking transaction
func (s *Store) Insert(ctx context.Context, meeting *booking.Meeting) error {
	if meeting.ID == "" {
		return fmt.Errorf("meeting id cannot be empty")
	}

	model := newMeetingModel(meeting)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var hits []MeetingModel
		err := overlapQuery(tx.Clauses(clause.Locking{Strength: "UPDATE"}), model.StartAt, model.EndAt).
			Limit(1).
			Find(&hits).Error
		if err != nil {
			return fmt.Errorf("failed to re-check overlap: %w", err)
		}
		if len(hits) > 0 {
			return fmt.Errorf("%w: overlaps meeting '%s'", apperr.ErrConflict, hits[0].ID)
		}

		if err := tx.Create(model).Error; err != nil {
			return fmt.Errorf("failed to create meeting: %w", err)
		}
		return nil
	})
}

// Remove deletes a meeting by id
func (s *Store) Remove(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&MeetingModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete meeting: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: meeting '%s'", apperr.ErrNotFound, id)
	}

	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from gorm.DB: %w", err)
	}
	return sqlDB.Close()
}

// overlapQuery applies the half-open overlap predicate
func overlapQuery(db *gorm.DB, start, end time.Time) *gorm.DB {
	return db.Model(&MeetingModel{}).Where("start_at < ? AND end_at > ?", end.UTC(), start.UTC())
}

func toMeetings(models []MeetingModel) []booking.Meeting {
	meetings := make([]booking.Meeting, len(models))
	for i := range models {
		meetings[i] = models[i].toMeeting()
	}
	return meetings
}
