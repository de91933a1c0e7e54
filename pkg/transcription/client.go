package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethanbaker/meetingroom/pkg/apperr"
	"github.com/ethanbaker/meetingroom/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// Default provider settings
const (
	DefaultBaseURL = "https://api.tor.app/developer"
	DefaultTimeout = 30 * time.Second
)

// maxErrorBody bounds how much of a failed response is kept in errors
const maxErrorBody = 1024

// Options configures a transcription Client
type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration // bounds every call
	HTTPClient *http.Client
}

// Client talks to the transcription provider
type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a new provider client
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, fmt.Errorf("transcription token must be provided")
	}

	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		timeout:    opts.Timeout,
		httpClient: opts.HTTPClient,
		log:        logging.For("TRANSCRIPTION"),
	}

	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}

	return c, nil
}

// SubmitFile streams r to the provider as a multipart upload
func (c *Client) SubmitFile(ctx context.Context, r io.Reader, fileName string) (*JobHandle, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: file is required", apperr.ErrValidation)
	}
	if fileName == "" {
		fileName = "recording"
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// Stream the body instead of buffering the whole file
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", fileName)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("%w: %s", apperr.ErrSubmission, err.Error())
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: upload %s: %s", apperr.ErrSubmission, fileName, err.Error())
	}

	snap := snapshotFrom(body)
	if snap.ID == "" {
		return nil, fmt.Errorf("%w: provider response has no file id", apperr.ErrSubmission)
	}

	c.log.Info().Str("file_id", snap.ID).Str("file", fileName).Msg("file submitted for transcription")

	return &JobHandle{ID: snap.ID, Source: SourceUploadedFile, Status: snap.Status, Raw: snap.Raw}, nil
}

// SubmitLiveLink asks the provider to join and transcribe a live meeting. The
// returned handle may have an empty ID if the provider does not report one
func (c *Client) SubmitLiveLink(ctx context.Context, meetingURL string, opts LiveOptions) (*JobHandle, error) {
	meetingURL = strings.TrimSpace(meetingURL)
	if meetingURL == "" {
		return nil, fmt.Errorf("%w: meetingUrl is required", apperr.ErrValidation)
	}

	payload := struct {
		MeetingURL string `json:"meetingUrl"`
		LiveOptions
	}{MeetingURL: meetingURL, LiveOptions: opts}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperr.ErrSubmission, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcription/meeting", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", apperr.ErrSubmission, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: live transcription: %s", apperr.ErrSubmission, err.Error())
	}

	snap := snapshotFrom(body)
	c.log.Info().Str("job_id", snap.ID).Str("meeting_url", meetingURL).Msg("live transcription requested")

	return &JobHandle{ID: snap.ID, Source: SourceLiveMeetingLink, Status: snap.Status, Raw: snap.Raw}, nil
}

// GetStatus fetches the current state of a job
func (c *Client) GetStatus(ctx context.Context, id string) (*StatusSnapshot, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: job id is required", apperr.ErrValidation)
	}

	body, err := c.get(ctx, "/files/"+url.PathEscape(id))
	if err != nil {
		return nil, fmt.Errorf("%w: status of %s: %s", apperr.ErrLookup, id, err.Error())
	}

	snap := snapshotFrom(body)
	if snap.ID == "" {
		snap.ID = id
	}
	return snap, nil
}

// ListFiles returns the provider's file listing as-is
func (c *Client) ListFiles(ctx context.Context) (json.RawMessage, error) {
	body, err := c.get(ctx, "/files")
	if err != nil {
		return nil, fmt.Errorf("%w: list files: %s", apperr.ErrLookup, err.Error())
	}
	return json.RawMessage(body), nil
}

// ParseWebhook extracts a status observation from an inbound notification
func ParseWebhook(body []byte) (*StatusSnapshot, error) {
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return nil, fmt.Errorf("%w: webhook body is not a JSON object", apperr.ErrValidation)
	}

	snap := snapshotFrom(body)
	if snap.ID == "" {
		return nil, fmt.Errorf("%w: webhook body has no job id", apperr.ErrValidation)
	}
	return snap, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// do authenticates the request and returns the body of a 2xx response
func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := strings.TrimSpace(string(body))
		if len(detail) > maxErrorBody {
			detail = detail[:maxErrorBody]
		}
		c.log.Warn().Int("status", resp.StatusCode).Str("url", req.URL.String()).Str("body", detail).Msg("provider request failed")
		return nil, fmt.Errorf("provider returned %d: %s", resp.StatusCode, detail)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}
	return body, nil
}
