package sdk

import (
	"github.com/ethanbaker/meetingroom/pkg/apperr"
	"github.com/ethanbaker/meetingroom/pkg/transcription"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error  string `json:"error"`  // Machine-readable kind (validation_error, conflict_error, ...)
	Detail string `json:"detail"` // Human-readable message
}

// NewErrorResponse maps err onto a status code and failure body
func NewErrorResponse(err error) (int, ErrorResponse) {
	return apperr.HTTPStatus(err), ErrorResponse{
		Error:  apperr.Kind(err),
		Detail: err.Error(),
	}
}

// OKResponse acknowledges a request without data
type OKResponse struct {
	OK bool `json:"ok"`
}

/** Meeting module DTOs */

// CancelMeetingRequest identifies who is cancelling a meeting
type CancelMeetingRequest struct {
	UserEmail string `json:"userEmail"`
}

// CheckConflictRequest asks whether a slot is free
type CheckConflictRequest struct {
	StartDateTime string `json:"startDateTime"`
	Duration      int    `json:"duration"`
}

// CheckConflictResponse reports whether a slot overlaps an active meeting
type CheckConflictResponse struct {
	HasConflict bool `json:"hasConflict"`
}

/** Transcription module DTOs */

// UploadResponse is returned after a recording was submitted for transcription
type UploadResponse struct {
	FileID           string               `json:"fileId"`
	Status           transcription.Status `json:"status"`
	ArchiveLocation  string               `json:"archiveLocation,omitempty"`
	TranskriptorData any                  `json:"transkriptorData"`
}

// LiveTranscriptionRequest starts a transcription of a live meeting link
type LiveTranscriptionRequest struct {
	MeetingURL string `json:"meetingUrl"`
	MeetingID  string `json:"meetingId,omitempty"`
	transcription.LiveOptions
}

// SendToNotionRequest attaches a transcript to a meeting page manually
type SendToNotionRequest struct {
	MeetingID  string `json:"meetingId"`
	Transcript string `json:"transcript"`
}

/** Recording agent DTOs */

// AgentMessage is the success body of a recording command
type AgentMessage struct {
	Message string `json:"message"`
}

// AgentStatus reports the reachability of the recording software
type AgentStatus struct {
	Status    string `json:"status"`
	LastError string `json:"lastError,omitempty"`
}
