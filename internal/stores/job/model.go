package job

import (
	"time"

	"github.com/ethanbaker/meetingroom/pkg/reconciler"
	"github.com/ethanbaker/meetingroom/pkg/transcription"
)

// JobModel represents the database model for transcription jobs
type JobModel struct {
	ID        string    `json:"id" gorm:"column:id;primaryKey;size:128"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;index"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`

	MeetingID   string     `json:"meeting_id" gorm:"column:meeting_id;size:64;index"`
	Source      string     `json:"source" gorm:"column:source;size:32"`
	Status      string     `json:"status" gorm:"column:status;size:32;not null"`
	Transcript  string     `json:"transcript" gorm:"column:transcript;type:longtext"`
	Propagation string     `json:"propagation" gorm:"column:propagation;size:32;not null;index"`
	CompletedAt *time.Time `json:"completed_at" gorm:"column:completed_at"`
}

// TableName sets the table name for GORM
func (JobModel) TableName() string {
	return "transcription_jobs"
}

func newJobModel(job *reconciler.Job) *JobModel {
	return &JobModel{
		ID:          job.ID,
		CreatedAt:   job.CreatedAt.UTC(),
		MeetingID:   job.MeetingID,
		Source:      string(job.Source),
		Status:      string(job.Status),
		Transcript:  job.Transcript,
		Propagation: string(job.Propagation),
		CompletedAt: job.CompletedAt,
	}
}

func (m *JobModel) toJob() *reconciler.Job {
	job := &reconciler.Job{
		ID:          m.ID,
		MeetingID:   m.MeetingID,
		Source:      transcription.SourceKind(m.Source),
		Status:      transcription.Status(m.Status),
		Transcript:  m.Transcript,
		Propagation: reconciler.Propagation(m.Propagation),
		CreatedAt:   m.CreatedAt.UTC(),
	}
	if m.CompletedAt != nil {
		t := m.CompletedAt.UTC()
		job.CompletedAt = &t
	}
	return job
}
