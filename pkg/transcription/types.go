package transcription

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// SourceKind is how audio reached the provider
type SourceKind string

const (
	SourceUploadedFile    SourceKind = "uploaded_file"
	SourceLiveMeetingLink SourceKind = "live_meeting_link"
)

// Status of a transcription job. Order matters: a job only moves forward
type Status string

const (
	StatusSubmitted  Status = "submitted"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Rank orders statuses for monotonic updates
func (s Status) Rank() int {
	switch s {
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return 0
	}
}

// Terminal reports whether no further transition is possible
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus maps a provider status string onto Status
func ParseStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "completed", "complete", "done", "finished", "success", "succeeded":
		return StatusCompleted
	case "failed", "error", "errored", "cancelled", "canceled":
		return StatusFailed
	case "processing", "in_progress", "in-progress", "transcribing", "running":
		return StatusProcessing
	default:
		return StatusSubmitted
	}
}

// JobHandle identifies a submitted job. Raw is the provider response, untouched
type JobHandle struct {
	ID     string          `json:"id"`
	Source SourceKind      `json:"source"`
	Status Status          `json:"status"`
	Raw    json.RawMessage `json:"raw,omitempty"`
}

// StatusSnapshot is one observation of a job's state
type StatusSnapshot struct {
	ID         string          `json:"id"`
	Status     Status          `json:"status"`
	Transcript string          `json:"transcript,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// LiveOptions are the optional parameters of a live meeting transcription
type LiveOptions struct {
	Language          string `json:"meeting_language,omitempty"`
	BotName           string `json:"meeting_bot_name,omitempty"`
	SummaryTemplateID string `json:"summary_template_id,omitempty"`
}

// Provider field paths, first non-empty wins
var (
	idPaths         = []string{"id", "file_id", "order_id", "data.id", "data.file_id", "data.order_id"}
	statusPaths     = []string{"status", "data.status"}
	transcriptPaths = []string{"transcript", "content", "text", "data.transcript", "data.content", "data.text"}
)

func firstString(doc gjson.Result, paths []string) string {
	for _, path := range paths {
		if v := doc.Get(path); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// snapshotFrom extracts the common fields of a provider document
func snapshotFrom(raw []byte) *StatusSnapshot {
	doc := gjson.ParseBytes(raw)
	snap := &StatusSnapshot{
		ID:     firstString(doc, idPaths),
		Status: ParseStatus(firstString(doc, statusPaths)),
		Raw:    json.RawMessage(append([]byte(nil), raw...)),
	}

	// Transcript is only meaningful once completed
	if snap.Status == StatusCompleted {
		snap.Transcript = firstString(doc, transcriptPaths)
	}

	return snap
}
