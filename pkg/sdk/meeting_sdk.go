package sdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ethanbaker/meetingroom/pkg/booking"
	"github.com/ethanbaker/meetingroom/pkg/reconciler"
)

// ListMeetings returns every active meeting in creation order
func (c *Client) ListMeetings(ctx context.Context) ([]booking.Meeting, error) {
	var out []booking.Meeting
	if err := c.doJSON(ctx, http.MethodGet, "/api/meetings", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateMeeting books the room
func (c *Client) CreateMeeting(ctx context.Context, draft *booking.Draft) (*booking.Meeting, error) {
	var out booking.Meeting
	if err := c.doJSON(ctx, http.MethodPost, "/api/meetings", draft, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelMeeting cancels a meeting on behalf of userEmail
func (c *Client) CancelMeeting(ctx context.Context, id, userEmail string) error {
	path := fmt.Sprintf("/api/meetings/%s", url.PathEscape(id))
	return c.doJSON(ctx, http.MethodDelete, path, &CancelMeetingRequest{UserEmail: userEmail}, nil)
}

// CheckConflict reports whether the slot overlaps an active meeting
func (c *Client) CheckConflict(ctx context.Context, startDateTime string, duration int) (bool, error) {
	var out CheckConflictResponse
	req := &CheckConflictRequest{StartDateTime: startDateTime, Duration: duration}
	if err := c.doJSON(ctx, http.MethodPost, "/api/meetings/check-conflict", req, &out); err != nil {
		return false, err
	}
	return out.HasConflict, nil
}

// GetJob returns a tracked transcription job
func (c *Client) GetJob(ctx context.Context, id string) (*reconciler.Job, error) {
	var out reconciler.Job
	path := fmt.Sprintf("/api/transcription/jobs/%s", url.PathEscape(id))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
