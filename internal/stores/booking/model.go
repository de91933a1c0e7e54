package booking

import (
	"time"

	"github.com/ethanbaker/meetingroom/pkg/booking"
)

// MeetingModel represents the database model for active meetings
type MeetingModel struct {
	ID        string    `json:"id" gorm:"column:id;primaryKey;size:64"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;precision:6;index"`

	Title            string    `json:"title" gorm:"column:title;not null;size:255"`
	Description      string    `json:"description" gorm:"column:description;type:text"`
	StartAt          time.Time `json:"start_at" gorm:"column:start_at;not null;index"`
	EndAt            time.Time `json:"end_at" gorm:"column:end_at;not null;index"`
	DurationMinutes  int       `json:"duration" gorm:"column:duration_minutes;not null"`
	MeetingLink      string    `json:"meeting_link" gorm:"column:meeting_link;size:500"`
	Participants     []string  `json:"participants" gorm:"column:participants;serializer:json"`
	Type             string    `json:"type" gorm:"column:type;size:100"`
	ResponsibleName  string    `json:"responsible_name" gorm:"column:responsible_name;size:255"`
	ResponsibleEmail string    `json:"responsible_email" gorm:"column:responsible_email;size:255"`
	ExternalDocID    string    `json:"external_doc_id" gorm:"column:external_doc_id;size:64"`
}

// TableName sets the table name for GORM
func (MeetingModel) TableName() string {
	return "meetings"
}

// newMeetingModel converts a domain meeting, storing the end so overlaps are indexable
func newMeetingModel(m *booking.Meeting) *MeetingModel {
	return &MeetingModel{
		ID:               m.ID,
		CreatedAt:        m.CreatedAt.UTC(),
		Title:            m.Title,
		Description:      m.Description,
		StartAt:          m.StartDateTime.UTC(),
		EndAt:            m.End().UTC(),
		DurationMinutes:  m.DurationMinutes,
		MeetingLink:      m.MeetingLink,
		Participants:     append([]string{}, m.Participants...),
		Type:             m.Type,
		ResponsibleName:  m.ResponsibleName,
		ResponsibleEmail: m.ResponsibleEmail,
		ExternalDocID:    m.ExternalDocID,
	}
}

// toMeeting converts back to the domain type
func (m *MeetingModel) toMeeting() booking.Meeting {
	return booking.Meeting{
		ID:               m.ID,
		Title:            m.Title,
		Description:      m.Description,
		StartDateTime:    m.StartAt.UTC(),
		DurationMinutes:  m.DurationMinutes,
		MeetingLink:      m.MeetingLink,
		Participants:     append(booking.Participants{}, m.Participants...),
		Type:             m.Type,
		ResponsibleName:  m.ResponsibleName,
		ResponsibleEmail: m.ResponsibleEmail,
		ExternalDocID:    m.ExternalDocID,
		CreatedAt:        m.CreatedAt.UTC(),
	}
}
