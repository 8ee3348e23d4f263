package caldav

import (
	"time"

	"github.com/emersion/go-ical"

	"github.com/guilherme-santos/notifcal/internal"
)

const icalDateFormat = "20060102"

func newCalendar(event *internal.Event, loc *time.Location, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Children = append(cal.Children, newVEvent(event, loc, now))
	return cal
}

func newVEvent(event *internal.Event, loc *time.Location, now time.Time) *ical.Component {
	span := event.Span(loc)

	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, event.ID)
	ve.Props.SetText(ical.PropSummary, event.Title)
	ve.Props.SetText(ical.PropStatus, "CONFIRMED")
	ve.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	if event.Description != "" {
		ve.Props.SetText(ical.PropDescription, event.Description)
	}

	if span.AllDay {
		ve.Props.Set(dateProp(ical.PropDateTimeStart, span.Start))
		ve.Props.Set(dateProp(ical.PropDateTimeEnd, span.End))
		return ve
	}
	ve.Props.SetDateTime(ical.PropDateTimeStart, span.Start)
	ve.Props.SetDateTime(ical.PropDateTimeEnd, span.End)
	return ve
}

func dateProp(name string, t time.Time) *ical.Prop {
	p := ical.NewProp(name)
	p.SetValueType(ical.ValueDate)
	p.Value = t.Format(icalDateFormat)
	return p
}
