package booking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethanbaker/meetingroom/pkg/apperr"
)

/** Booking data model */

// Meeting is an active booking of the shared room
type Meeting struct {
	ID               string       `json:"id"`
	Title            string       `json:"title"`
	Description      string       `json:"description"`
	StartDateTime    time.Time    `json:"startDateTime"`
	DurationMinutes  int          `json:"duration"`
	MeetingLink      string       `json:"meetingLink,omitempty"`
	Participants     Participants `json:"participants"`
	Type             string       `json:"type"`
	ResponsibleName  string       `json:"responsibleName"`
	ResponsibleEmail string       `json:"responsibleEmail"`
	ExternalDocID    string       `json:"notionPageId,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
}

// End returns the exclusive end of the meeting's interval
func (m *Meeting) End() time.Time {
	return m.StartDateTime.Add(time.Duration(m.DurationMinutes) * time.Minute)
}

// Interval returns the meeting's half-open time interval
func (m *Meeting) Interval() Interval {
	return Interval{Start: m.StartDateTime, End: m.End()}
}

// Interval is a half-open time range [Start, End)
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals share any instant.
// Back-to-back intervals (one ends exactly when the other starts) do not overlap
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// Draft is the client-supplied request to book the room
type Draft struct {
	Title            string       `json:"title"`
	Description      string       `json:"description"`
	StartDateTime    string       `json:"startDateTime"`
	DurationMinutes  int          `json:"duration"`
	MeetingLink      string       `json:"meetingLink"`
	Participants     Participants `json:"participants"`
	Type             string       `json:"type"`
	ResponsibleName  string       `json:"responsibleName"`
	ResponsibleEmail string       `json:"responsibleEmail"`
}

// startLayouts are tried in order when parsing Draft.StartDateTime. The last two
// are what an HTML datetime-local input produces and carry no zone
var startLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseStart parses a start timestamp, interpreting zone-less values in loc
func ParseStart(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: startDateTime is required", apperr.ErrValidation)
	}
	if loc == nil {
		loc = time.UTC
	}

	for _, layout := range startLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: startDateTime %q is not a valid timestamp", apperr.ErrValidation, value)
}

// Validate checks the required fields and builds the candidate meeting (without ids)
func (d *Draft) Validate(loc *time.Location) (*Meeting, error) {
	var problems []string
	if strings.TrimSpace(d.Title) == "" {
		problems = append(problems, "title is required")
	}
	if strings.TrimSpace(d.Type) == "" {
		problems = append(problems, "type is required")
	}
	if d.DurationMinutes <= 0 {
		problems = append(problems, "duration must be greater than zero")
	}

	start, err := ParseStart(d.StartDateTime, loc)
	if err != nil {
		problems = append(problems, strings.TrimPrefix(err.Error(), apperr.ErrValidation.Error()+": "))
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", apperr.ErrValidation, strings.Join(problems, "; "))
	}

	return &Meeting{
		Title:            strings.TrimSpace(d.Title),
		Description:      d.Description,
		StartDateTime:    start,
		DurationMinutes:  d.DurationMinutes,
		MeetingLink:      strings.TrimSpace(d.MeetingLink),
		Participants:     d.Participants,
		Type:             strings.TrimSpace(d.Type),
		ResponsibleName:  strings.TrimSpace(d.ResponsibleName),
		ResponsibleEmail: strings.TrimSpace(d.ResponsibleEmail),
	}, nil
}

// Participants is an ordered list of names. It decodes from either a JSON array
// or a single comma separated string
type Participants []string

// UnmarshalJSON implements json.Unmarshaler
func (p *Participants) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*p = Participants{}
		return nil
	}

	var raw []string
	if data[0] == '"' {
		var joined string
		if err := json.Unmarshal(data, &joined); err != nil {
			return err
		}
		raw = strings.Split(joined, ",")
	} else if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	names := make(Participants, 0, len(raw))
	for _, name := range raw {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}

	*p = names
	return nil
}

// MarshalJSON always encodes an array, never null
func (p Participants) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(p))
}

// String joins the names for flat text representations
func (p Participants) String() string {
	return strings.Join(p, ", ")
}
