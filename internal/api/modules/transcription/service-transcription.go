package transcription_module

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/ethanbaker/meetingroom/pkg/apperr"
	"github.com/ethanbaker/meetingroom/pkg/logging"
	"github.com/ethanbaker/meetingroom/pkg/mediastore"
	"github.com/ethanbaker/meetingroom/pkg/reconciler"
	"github.com/ethanbaker/meetingroom/pkg/sdk"
	"github.com/ethanbaker/meetingroom/pkg/transcription"
	"github.com/rs/zerolog"
)

// Provider is the transcription service as seen by the HTTP surface
type Provider interface {
	SubmitFile(ctx context.Context, r io.Reader, fileName string) (*transcription.JobHandle, error)
	SubmitLiveLink(ctx context.Context, meetingURL string, opts transcription.LiveOptions) (*transcription.JobHandle, error)
	GetStatus(ctx context.Context, id string) (*transcription.StatusSnapshot, error)
	ListFiles(ctx context.Context) (json.RawMessage, error)
}

// Jobs tracks submitted jobs until their transcript is delivered
type Jobs interface {
	Register(ctx context.Context, handle *transcription.JobHandle, meetingID string) (*reconciler.Job, error)
	HandleWebhook(ctx context.Context, body []byte) error
	Job(ctx context.Context, id string) (*reconciler.Job, error)
}

// ServiceOptions contains the collaborators of the transcription module
type ServiceOptions struct {
	Provider Provider
	Jobs     Jobs
	Sink     reconciler.TranscriptSink
	Meetings reconciler.MeetingLookup
	Archive  mediastore.Archive // Optional copy of uploaded recordings
}

// Service submits recordings and routes provider notifications to the job reconciler
type Service struct {
	provider Provider
	jobs     Jobs
	sink     reconciler.TranscriptSink
	meetings reconciler.MeetingLookup
	archive  mediastore.Archive
	log      zerolog.Logger
}

// NewService creates a new transcription module service
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Provider == nil || opts.Jobs == nil || opts.Sink == nil || opts.Meetings == nil {
		return nil, fmt.Errorf("transcription module requires a provider, job tracker, sink and meeting lookup")
	}

	return &Service{
		provider: opts.Provider,
		jobs:     opts.Jobs,
		sink:     opts.Sink,
		meetings: opts.Meetings,
		archive:  opts.Archive,
		log:      logging.For("TRANSCRIPTION-API"),
	}, nil
}

// Upload submits an uploaded recording and hands the job to the reconciler
func (s *Service) Upload(ctx context.Context, header *multipart.FileHeader, meetingID string) (*sdk.UploadResponse, error) {
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: could not read uploaded file: %s", apperr.ErrValidation, err.Error())
	}
	defer file.Close()

	handle, err := s.provider.SubmitFile(ctx, file, header.Filename)
	if err != nil {
		return nil, err
	}

	if _, err := s.jobs.Register(ctx, handle, meetingID); err != nil {
		return nil, fmt.Errorf("failed to track job %s: %w", handle.ID, err)
	}

	resp := &sdk.UploadResponse{
		FileID:           handle.ID,
		Status:           handle.Status,
		TranskriptorData: rawOrEmpty(handle.Raw),
	}

	// Archiving is a convenience copy, the transcription already started
	if s.archive != nil {
		location, err := s.archiveRecording(ctx, header, meetingID, handle.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("job_id", handle.ID).Msg("failed to archive recording")
		} else {
			resp.ArchiveLocation = location
		}
	}

	return resp, nil
}

func (s *Service) archiveRecording(ctx context.Context, header *multipart.FileHeader, meetingID, jobID string) (string, error) {
	file, err := header.Open()
	if err != nil {
		return "", err
	}
	defer file.Close()

	return s.archive.Store(ctx, mediastore.RecordingKey(meetingID, jobID, header.Filename), file)
}

// Live submits a live meeting link. The job is only tracked when the provider returns an id
func (s *Service) Live(ctx context.Context, req *sdk.LiveTranscriptionRequest) (json.RawMessage, error) {
	handle, err := s.provider.SubmitLiveLink(ctx, req.MeetingURL, req.LiveOptions)
	if err != nil {
		return nil, err
	}

	if handle.ID == "" {
		s.log.Warn().Str("meeting_url", req.MeetingURL).Msg("provider returned no job id, live transcription is not tracked")
	} else if _, err := s.jobs.Register(ctx, handle, req.MeetingID); err != nil {
		return nil, fmt.Errorf("failed to track job %s: %w", handle.ID, err)
	}

	return rawOrEmpty(handle.Raw), nil
}

// Status returns the provider's view of a job as-is
func (s *Service) Status(ctx context.Context, fileID string) (json.RawMessage, error) {
	snap, err := s.provider.GetStatus(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return rawOrEmpty(snap.Raw), nil
}

// ListFiles returns the provider's file listing as-is
func (s *Service) ListFiles(ctx context.Context) (json.RawMessage, error) {
	return s.provider.ListFiles(ctx)
}

// Job returns a tracked job
func (s *Service) Job(ctx context.Context, id string) (*reconciler.Job, error) {
	return s.jobs.Job(ctx, id)
}

// SendToNotion attaches a transcript to a meeting page. A meeting id that is not
// a local booking is used as the page id directly
func (s *Service) SendToNotion(ctx context.Context, req *sdk.SendToNotionRequest) error {
	meetingID := strings.TrimSpace(req.MeetingID)
	if meetingID == "" {
		return fmt.Errorf("%w: meetingId is required", apperr.ErrValidation)
	}
	if strings.TrimSpace(req.Transcript) == "" {
		return fmt.Errorf("%w: transcript is required", apperr.ErrValidation)
	}

	pageID := meetingID
	meeting, err := s.meetings.GetBooking(ctx, meetingID)
	switch {
	case err == nil && meeting.ExternalDocID != "":
		pageID = meeting.ExternalDocID
	case err != nil && !apperr.IsNotFound(err):
		return err
	}

	return s.sink.AppendTranscript(ctx, pageID, req.Transcript)
}

// Webhook applies a provider notification. Notifications for unknown jobs are
// acknowledged so the provider stops retrying them
func (s *Service) Webhook(ctx context.Context, body []byte) error {
	err := s.jobs.HandleWebhook(ctx, body)
	if apperr.IsNotFound(err) {
		s.log.Warn().Err(err).Msg("webhook for unknown job acknowledged")
		return nil
	}
	return err
}

func rawOrEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	return raw
}
