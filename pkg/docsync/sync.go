package docsync

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	notionapi "github.com/dstotijn/go-notion"
	"github.com/ethanbaker/meetingroom/pkg/apperr"
	"github.com/ethanbaker/meetingroom/pkg/booking"
	"github.com/ethanbaker/meetingroom/pkg/logging"
	"github.com/rs/zerolog"
)

// Notion limits
const (
	MaxRichTextLength   = 2000 // characters in one rich text object
	MaxRichTextElements = 100  // rich text objects in one comment
)

// NotionClient is the subset of the Notion API the syncer uses
type NotionClient interface {
	CreatePage(ctx context.Context, params notionapi.CreatePageParams) (notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, params notionapi.UpdatePageParams) (notionapi.Page, error)
	CreateComment(ctx context.Context, params notionapi.CreateCommentParams) (notionapi.Comment, error)
}

// NewNotionClient creates an API client with a bounded request timeout
func NewNotionClient(token string, timeout time.Duration) *notionapi.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return notionapi.NewClient(token, notionapi.WithHTTPClient(&http.Client{
		Timeout: timeout,
	}))
}

// Syncer mirrors meetings into a Notion database and attaches transcripts
type Syncer struct {
	client     NotionClient
	databaseID string
	schema     Schema
	log        zerolog.Logger
}

// NewSyncer creates a new document syncer
func NewSyncer(client NotionClient, databaseID string, schema Schema) (*Syncer, error) {
	if client == nil {
		return nil, fmt.Errorf("a valid notion client must be provided")
	}
	if databaseID == "" {
		return nil, fmt.Errorf("notion database id must be provided")
	}

	return &Syncer{
		client:     client,
		databaseID: databaseID,
		schema:     schema,
		log:        logging.For("DOCSYNC"),
	}, nil
}

// MirrorBooking creates the meeting page and returns its id
func (s *Syncer) MirrorBooking(ctx context.Context, meeting *booking.Meeting) (string, error) {
	properties := s.properties(meeting)

	page, err := s.client.CreatePage(ctx, notionapi.CreatePageParams{
		ParentType:             notionapi.ParentTypeDatabase,
		ParentID:               s.databaseID,
		DatabasePageProperties: &properties,
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to create meeting page: %s", apperr.ErrSync, err.Error())
	}
	if page.ID == "" {
		return "", fmt.Errorf("%w: notion returned a page without id", apperr.ErrSync)
	}

	s.log.Info().Str("page_id", page.ID).Str("title", meeting.Title).Msg("meeting page created")
	return page.ID, nil
}

// ArchiveBooking archives the meeting page
func (s *Syncer) ArchiveBooking(ctx context.Context, externalID string) error {
	archived := true
	if _, err := s.client.UpdatePage(ctx, externalID, notionapi.UpdatePageParams{Archived: &archived}); err != nil {
		return fmt.Errorf("%w: failed to archive page %s: %s", apperr.ErrSync, externalID, err.Error())
	}

	s.log.Info().Str("page_id", externalID).Msg("meeting page archived")
	return nil
}

// AppendTranscript adds the transcript as a comment on the meeting page
func (s *Syncer) AppendTranscript(ctx context.Context, externalID, text string) error {
	if strings.TrimSpace(externalID) == "" {
		return fmt.Errorf("%w: page id is required", apperr.ErrValidation)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: transcript is empty", apperr.ErrValidation)
	}

	// Long transcripts span several comments. A retry after a partial failure
	// repeats the comments already written
	segments := richText(text)
	comments := 0
	for start := 0; start < len(segments); start += MaxRichTextElements {
		end := min(start+MaxRichTextElements, len(segments))

		_, err := s.client.CreateComment(ctx, notionapi.CreateCommentParams{
			ParentPageID: externalID,
			RichText:     segments[start:end],
		})
		if err != nil {
			return fmt.Errorf("%w: failed to comment on page %s: %s", apperr.ErrSync, externalID, err.Error())
		}
		comments++
	}

	s.log.Info().Str("page_id", externalID).Int("length", len(text)).Int("comments", comments).Msg("transcript appended")
	return nil
}

// properties builds the database page for a meeting
func (s *Syncer) properties(m *booking.Meeting) notionapi.DatabasePageProperties {
	leader := m.ResponsibleName
	if leader == "" {
		leader = m.ResponsibleEmail
	}
	if leader == "" {
		leader = s.schema.UnknownLeader
	}

	end := notionapi.NewDateTime(m.End(), true)
	properties := notionapi.DatabasePageProperties{
		s.schema.Title: notionapi.DatabasePageProperty{
			Title: richText(m.Title),
		},
	}

	set := func(name string, prop notionapi.DatabasePageProperty) {
		if name != "" {
			properties[name] = prop
		}
	}

	set(s.schema.Leader, notionapi.DatabasePageProperty{RichText: richText(leader)})
	set(s.schema.Date, notionapi.DatabasePageProperty{
		Date: &notionapi.Date{Start: notionapi.NewDateTime(m.StartDateTime, true), End: &end},
	})
	set(s.schema.Participants, notionapi.DatabasePageProperty{RichText: richText(m.Participants.String())})
	if m.Type != "" {
		set(s.schema.Type, notionapi.DatabasePageProperty{Select: &notionapi.SelectOptions{Name: m.Type}})
	}
	if m.Description != "" {
		set(s.schema.Description, notionapi.DatabasePageProperty{RichText: richText(m.Description)})
	}
	if m.MeetingLink != "" {
		link := m.MeetingLink
		set(s.schema.MeetingLink, notionapi.DatabasePageProperty{URL: &link})
	}
	if m.ResponsibleEmail != "" {
		email := m.ResponsibleEmail
		set(s.schema.Email, notionapi.DatabasePageProperty{Email: &email})
	}

	return properties
}

// richText splits text into segments within the Notion length limit
func richText(text string) []notionapi.RichText {
	var out []notionapi.RichText
	for _, chunk := range Chunk(text, MaxRichTextLength) {
		out = append(out, notionapi.RichText{
			Type: notionapi.RichTextTypeText,
			Text: &notionapi.Text{Content: chunk},
		})
	}
	if out == nil {
		out = []notionapi.RichText{}
	}
	return out
}

// Chunk splits text into pieces of at most size runes, never splitting a rune
func Chunk(text string, size int) []string {
	if text == "" || size <= 0 {
		return nil
	}

	var chunks []string
	for len(text) > 0 {
		if utf8.RuneCountInString(text) <= size {
			chunks = append(chunks, text)
			break
		}

		// Byte offset of the size-th rune
		cut, n := 0, 0
		for i := range text {
			if n == size {
				cut = i
				break
			}
			n++
		}

		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	return chunks
}
