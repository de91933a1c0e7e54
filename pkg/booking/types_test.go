package booking

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ethanbaker/meetingroom/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) time.Time {
	return time.Date(2025, 1, 10, hour, minute, 0, 0, time.UTC)
}

func TestInterval_Overlaps(t *testing.T) {
	tests := []struct {
		name string
		a    Interval
		b    Interval
		want bool
	}{
		{"identical", Interval{at(9, 0), at(10, 0)}, Interval{at(9, 0), at(10, 0)}, true},
		{"contained", Interval{at(9, 0), at(10, 0)}, Interval{at(9, 15), at(9, 45)}, true},
		{"partial", Interval{at(9, 0), at(10, 0)}, Interval{at(9, 30), at(10, 30)}, true},
		{"back to back", Interval{at(9, 0), at(10, 0)}, Interval{at(10, 0), at(11, 0)}, false},
		{"back to back reversed", Interval{at(10, 0), at(11, 0)}, Interval{at(9, 0), at(10, 0)}, false},
		{"disjoint", Interval{at(9, 0), at(10, 0)}, Interval{at(14, 0), at(15, 0)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Overlaps(tt.b))
			assert.Equal(t, tt.want, tt.b.Overlaps(tt.a), "overlap must be symmetric")
		})
	}
}

func TestParseStart(t *testing.T) {
	saoPaulo := time.FixedZone("BRT", -3*60*60)

	tests := []struct {
		name    string
		value   string
		loc     *time.Location
		want    time.Time
		wantErr bool
	}{
		{"rfc3339 utc", "2025-01-10T09:00:00Z", time.UTC, at(9, 0), false},
		{"rfc3339 offset", "2025-01-10T06:00:00-03:00", time.UTC, at(9, 0), false},
		{"zone-less seconds", "2025-01-10T09:00:00", time.UTC, at(9, 0), false},
		{"zone-less minutes", "2025-01-10T09:00", time.UTC, at(9, 0), false},
		{"zone-less in configured zone", "2025-01-10T06:00", saoPaulo, at(9, 0), false},
		{"empty", "  ", time.UTC, time.Time{}, true},
		{"garbage", "tomorrow morning", time.UTC, time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStart(tt.value, tt.loc)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperr.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s, want %s", got, tt.want)
		})
	}
}

func TestDraft_Validate(t *testing.T) {
	t.Run("valid draft", func(t *testing.T) {
		draft := &Draft{
			Title:            "  Sync ",
			StartDateTime:    "2025-01-10T09:00",
			DurationMinutes:  60,
			Type:             "Reunião",
			ResponsibleEmail: " ana@example.com ",
			Participants:     Participants{"Ana", "Bruno"},
		}

		meeting, err := draft.Validate(time.UTC)
		require.NoError(t, err)
		assert.Equal(t, "Sync", meeting.Title)
		assert.Equal(t, "ana@example.com", meeting.ResponsibleEmail)
		assert.True(t, at(10, 0).Equal(meeting.End()))
		assert.Empty(t, meeting.ID)
	})

	t.Run("all problems reported together", func(t *testing.T) {
		draft := &Draft{StartDateTime: "nope"}

		_, err := draft.Validate(time.UTC)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperr.ErrValidation)
		assert.Contains(t, err.Error(), "title is required")
		assert.Contains(t, err.Error(), "type is required")
		assert.Contains(t, err.Error(), "duration must be greater than zero")
		assert.Contains(t, err.Error(), "not a valid timestamp")
	})

	t.Run("negative duration", func(t *testing.T) {
		draft := &Draft{Title: "x", Type: "y", StartDateTime: "2025-01-10T09:00", DurationMinutes: -5}
		_, err := draft.Validate(time.UTC)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}

func TestParticipants_JSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Participants
	}{
		{"array", `["Ana", " Bruno "]`, Participants{"Ana", "Bruno"}},
		{"comma string", `"Ana, Bruno,, Carla "`, Participants{"Ana", "Bruno", "Carla"}},
		{"empty string", `""`, Participants{}},
		{"null", `null`, Participants{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Participants
			require.NoError(t, json.Unmarshal([]byte(tt.input), &got))
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("nil marshals as empty array", func(t *testing.T) {
		data, err := json.Marshal(Participants(nil))
		require.NoError(t, err)
		assert.JSONEq(t, `[]`, string(data))
	})

	t.Run("string form", func(t *testing.T) {
		assert.Equal(t, "Ana, Bruno", Participants{"Ana", "Bruno"}.String())
	})
}
