package transcription

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethanbaker/meetingroom/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Options{BaseURL: server.URL, Token: "secret-token", Timeout: 2 * time.Second})
	require.NoError(t, err)
	return client
}

func TestNewClient_RequiresToken(t *testing.T) {
	_, err := NewClient(Options{})
	assert.Error(t, err)
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{"Completed", StatusCompleted},
		{"done", StatusCompleted},
		{"FAILED", StatusFailed},
		{"error", StatusFailed},
		{"in_progress", StatusProcessing},
		{"Processing", StatusProcessing},
		{"queued", StatusSubmitted},
		{"", StatusSubmitted},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStatus(tt.raw))
		})
	}

	assert.Less(t, StatusSubmitted.Rank(), StatusProcessing.Rank())
	assert.Less(t, StatusProcessing.Rank(), StatusCompleted.Rank())
	assert.Equal(t, StatusCompleted.Rank(), StatusFailed.Rank())
}

func TestSubmitFile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/files", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "meeting.mp3", header.Filename)
		assert.Equal(t, "audio-bytes", string(data))

		w.Write([]byte(`{"id":"file-123","status":"Processing","extra":{"pages":1}}`))
	})

	handle, err := client.SubmitFile(context.Background(), strings.NewReader("audio-bytes"), "meeting.mp3")
	require.NoError(t, err)
	assert.Equal(t, "file-123", handle.ID)
	assert.Equal(t, SourceUploadedFile, handle.Source)
	assert.Equal(t, StatusProcessing, handle.Status)
	assert.JSONEq(t, `{"id":"file-123","status":"Processing","extra":{"pages":1}}`, string(handle.Raw))
}

func TestSubmitFile_Failures(t *testing.T) {
	t.Run("provider error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.Copy(io.Discard, r.Body)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"bad token"}`))
		})

		_, err := client.SubmitFile(context.Background(), strings.NewReader("x"), "a.mp3")
		assert.ErrorIs(t, err, apperr.ErrSubmission)
		assert.Contains(t, err.Error(), "401")
	})

	t.Run("missing id", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.Copy(io.Discard, r.Body)
			w.Write([]byte(`{"status":"queued"}`))
		})

		_, err := client.SubmitFile(context.Background(), strings.NewReader("x"), "a.mp3")
		assert.ErrorIs(t, err, apperr.ErrSubmission)
	})

	t.Run("nil reader", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
		_, err := client.SubmitFile(context.Background(), nil, "a.mp3")
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}

func TestSubmitLiveLink_OmitsEmptyOptions(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transcription/meeting", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{"order_id":"ord-9","message":"bot joining"}`))
	})

	handle, err := client.SubmitLiveLink(context.Background(), "https://meet.example.com/abc", LiveOptions{Language: "pt-BR"})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"meetingUrl":       "https://meet.example.com/abc",
		"meeting_language": "pt-BR",
	}, body)
	assert.Equal(t, "ord-9", handle.ID)
	assert.Equal(t, SourceLiveMeetingLink, handle.Source)
	assert.JSONEq(t, `{"order_id":"ord-9","message":"bot joining"}`, string(handle.Raw))
}

func TestSubmitLiveLink_ValidationBeforeIO(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, err := client.SubmitLiveLink(context.Background(), "   ", LiveOptions{BotName: "bot"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestGetStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files/done":
			w.Write([]byte(`{"id":"done","status":"Completed","content":"hello world"}`))
		case "/files/busy":
			w.Write([]byte(`{"status":"transcribing","content":"partial"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ctx := context.Background()

	snap, err := client.GetStatus(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, "hello world", snap.Transcript)

	snap, err = client.GetStatus(ctx, "busy")
	require.NoError(t, err)
	assert.Equal(t, "busy", snap.ID)
	assert.Equal(t, StatusProcessing, snap.Status)
	assert.Empty(t, snap.Transcript, "transcript only set once completed")

	_, err = client.GetStatus(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrLookup)
}

func TestGetStatus_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client, err := NewClient(Options{BaseURL: server.URL, Token: "t", Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = client.GetStatus(context.Background(), "slow")
	assert.ErrorIs(t, err, apperr.ErrLookup)
}

func TestListFiles(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files", r.URL.Path)
		w.Write([]byte(`[{"id":"a"},{"id":"b"}]`))
	})

	raw, err := client.ListFiles(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"a"},{"id":"b"}]`, string(raw))
}

func TestParseWebhook(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantErr    bool
		wantID     string
		wantStatus Status
		wantText   string
	}{
		{"completed", `{"file_id":"f1","status":"completed","transcript":"text"}`, false, "f1", StatusCompleted, "text"},
		{"nested", `{"event":"done","data":{"id":"f2","status":"failed"}}`, false, "f2", StatusFailed, ""},
		{"completed without transcript", `{"id":"f3","status":"done"}`, false, "f3", StatusCompleted, ""},
		{"not json", `hello`, true, "", "", ""},
		{"array", `[1,2]`, true, "", "", ""},
		{"no id", `{"status":"completed"}`, true, "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := ParseWebhook([]byte(tt.body))
			if tt.wantErr {
				assert.ErrorIs(t, err, apperr.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, snap.ID)
			assert.Equal(t, tt.wantStatus, snap.Status)
			assert.Equal(t, tt.wantText, snap.Transcript)
		})
	}
}
