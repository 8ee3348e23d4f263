package google

import (
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/guilherme-santos/notifcal/internal"
)

func newGoogleEvent(event *internal.Event, loc *time.Location) *calendar.Event {
	span := event.Span(loc)
	gevent := &calendar.Event{
		Summary:     event.Title,
		Description: event.Description,
		Status:      "confirmed",
		Reminders: &calendar.EventReminders{
			UseDefault: true,
		},
	}
	if span.AllDay {
		gevent.Start = &calendar.EventDateTime{Date: span.Start.Format(internal.DateFormat)}
		gevent.End = &calendar.EventDateTime{Date: span.End.Format(internal.DateFormat)}
		return gevent
	}
	gevent.Start = &calendar.EventDateTime{
		DateTime: span.Start.Format(time.RFC3339),
		TimeZone: span.Start.Location().String(),
	}
	gevent.End = &calendar.EventDateTime{
		DateTime: span.End.Format(time.RFC3339),
		TimeZone: span.End.Location().String(),
	}
	return gevent
}
