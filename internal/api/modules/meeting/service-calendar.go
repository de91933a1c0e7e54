package meeting

import (
	"context"

	ics "github.com/arran4/golang-ical"
	"github.com/ethanbaker/meetingroom/pkg/booking"
)

// Calendar renders the active meetings as an iCalendar feed
func (s *Service) Calendar(ctx context.Context) (string, error) {
	meetings, err := s.bookings.ListBookings(ctx)
	if err != nil {
		return "", err
	}

	return buildCalendar(meetings), nil
}

func buildCalendar(meetings []booking.Meeting) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//meetingroom//bookings//EN")
	cal.SetName("Meeting room")

	for _, m := range meetings {
		event := cal.AddEvent(m.ID + "@meetingroom")
		event.SetCreatedTime(m.CreatedAt)
		event.SetDtStampTime(m.CreatedAt)
		event.SetStartAt(m.StartDateTime)
		event.SetEndAt(m.End())
		event.SetSummary(m.Title)

		if m.Description != "" {
			event.SetDescription(m.Description)
		}
		if m.MeetingLink != "" {
			event.SetURL(m.MeetingLink)
		}
		if m.ResponsibleEmail != "" {
			if m.ResponsibleName != "" {
				event.SetOrganizer(m.ResponsibleEmail, ics.WithCN(m.ResponsibleName))
			} else {
				event.SetOrganizer(m.ResponsibleEmail)
			}
		}
	}

	return cal.Serialize()
}
