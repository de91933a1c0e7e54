package sdk

import (
	"context"
	"errors"
	"net/http"
)

// StartRecording asks the recording agent to start recording
func (c *Client) StartRecording(ctx context.Context) (string, error) {
	var out AgentMessage
	if err := c.doJSON(ctx, http.MethodPost, "/start-recording", nil, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// StopRecording asks the recording agent to stop recording
func (c *Client) StopRecording(ctx context.Context) (string, error) {
	var out AgentMessage
	if err := c.doJSON(ctx, http.MethodPost, "/stop-recording", nil, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// RecordingStatus returns the agent's view of the recording software. A
// disconnected agent answers 503, which is reported as a status, not an error
func (c *Client) RecordingStatus(ctx context.Context) (string, error) {
	var out AgentStatus
	err := c.doJSON(ctx, http.MethodGet, "/status", nil, &out)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable {
		return "disconnected", nil
	}
	if err != nil {
		return "", err
	}
	return out.Status, nil
}
