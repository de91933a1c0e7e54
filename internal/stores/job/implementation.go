package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethanbaker/meetingroom/pkg/apperr"
	"github.com/ethanbaker/meetingroom/pkg/reconciler"
	"github.com/ethanbaker/meetingroom/pkg/transcription"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store handles storage and retrieval of transcription jobs using MySQL
type Store struct {
	db *gorm.DB
}

// NewStore creates a new job store with MySQL connection
func NewStore(databaseURL string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}

	// Auto-migrate tables
	if err := store.db.AutoMigrate(&JobModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate tables: %w", err)
	}

	return store, nil
}

// Create inserts a new job
func (s *Store) Create(ctx context.Context, job *reconciler.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job id cannot be empty")
	}

	if err := s.db.WithContext(ctx).Create(newJobModel(job)).Error; err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// Get retrieves a job by id
func (s *Store) Get(ctx context.Context, id string) (*reconciler.Job, error) {
	var model JobModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: job '%s'", apperr.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return model.toJob(), nil
}

// RecordStatus applies a status observation under a row lock
func (s *Store) RecordStatus(ctx context.Context, id string, status transcription.Status, transcript string, at time.Time) (*reconciler.Job, error) {
	var result *reconciler.Job

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model JobModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: job '%s'", apperr.ErrNotFound, id)
			}
			return fmt.Errorf("failed to lock job: %w", err)
		}

		job := model.toJob()
		if job.Advance(status, transcript, at) {
			err := tx.Model(&JobModel{}).Where("id = ?", id).Updates(map[string]any{
				"status":       string(job.Status),
				"transcript":   job.Transcript,
				"completed_at": job.CompletedAt,
			}).Error
			if err != nil {
				return fmt.Errorf("failed to update job status: %w", err)
			}
		}

		result = job
		return nil
	})

	return result, err
}

// CompareAndSwapPropagation runs a conditional update and reports whether it matched
func (s *Store) CompareAndSwapPropagation(ctx context.Context, id string, from, to reconciler.Propagation) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&JobModel{}).
		Where("id = ? AND propagation = ?", id, string(from)).
		Update("propagation", string(to))
	if result.Error != nil {
		return false, fmt.Errorf("failed to swap propagation: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		// Distinguish a lost race from an unknown job
		if _, err := s.Get(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// ListByPropagation returns jobs in a propagation state, oldest first
func (s *Store) ListByPropagation(ctx context.Context, state reconciler.Propagation) ([]reconciler.Job, error) {
	return s.list(s.db.WithContext(ctx).Where("propagation = ?", string(state)))
}

// ListByMeeting returns the jobs of a meeting, oldest first
func (s *Store) ListByMeeting(ctx context.Context, meetingID string) ([]reconciler.Job, error) {
	if meetingID == "" {
		return []reconciler.Job{}, nil
	}
	return s.list(s.db.WithContext(ctx).Where("meeting_id = ?", meetingID))
}

// DeleteFinishedBefore removes non-pending jobs that finished before t
func (s *Store) DeleteFinishedBefore(ctx context.Context, t time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("propagation <> ? AND COALESCE(completed_at, created_at) < ?", string(reconciler.PropagationPending), t.UTC()).
		Delete(&JobModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from gorm.DB: %w", err)
	}
	return sqlDB.Close()
}

func (s *Store) list(query *gorm.DB) ([]reconciler.Job, error) {
	var models []JobModel
	if err := query.Order("created_at, id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]reconciler.Job, len(models))
	for i := range models {
		jobs[i] = *models[i].toJob()
	}
	return jobs, nil
}
