package internal

import "time"

// Event is a candidate calendar event extracted from a notification. Its ID
// is the notification ID and is reused as the remote event ID on every
// linked calendar.
type Event struct {
	ID          string      `json:"id"`
	Source      string      `json:"source,omitempty"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	AllDay      bool        `json:"allDay"`
	StartDate   Date        `json:"startDate"`
	StartTime   Clock       `json:"startTime"`
	EndDate     Date        `json:"endDate"`
	EndTime     Clock       `json:"endTime"`
	Status      Status      `json:"status"`
	SyncState   SyncState   `json:"syncState"`
	Revision    int64       `json:"revision"`
	LastSync    *SyncResult `json:"lastSyncResult,omitempty"`
	Seq         int64       `json:"-"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

type Status string

func (s Status) String() string {
	return string(s)
}

var (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusDiscarded Status = "DISCARDED"
)

// SyncState tells whether the remote calendars reflect the event's status.
type SyncState string

func (s SyncState) String() string {
	return string(s)
}

var (
	SyncNone      SyncState = "none"
	SyncPending   SyncState = "pending"
	SyncInSync    SyncState = "in_sync"
	SyncOutOfSync SyncState = "out_of_sync"
)

// Intent returns the remote action that makes linked calendars match the
// event's status. Pending events have no remote representation.
func (e *Event) Intent() (Action, bool) {
	switch e.Status {
	case StatusConfirmed:
		return ActionUpsert, true
	case StatusDiscarded:
		return ActionDelete, true
	}
	return "", false
}

// SameContent reports whether both events would render identically on a
// remote calendar.
func (e *Event) SameContent(o *Event) bool {
	return e.Title == o.Title &&
		e.Description == o.Description &&
		e.AllDay == o.AllDay &&
		e.StartDate == o.StartDate &&
		e.StartTime == o.StartTime &&
		e.EndDate == o.EndDate &&
		e.EndTime == o.EndTime
}

// Draft is what the extractor produces from free text. Fields not stated in
// the text hold the unknown sentinel.
type Draft struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	AllDay      bool   `json:"allDay"`
	StartDate   Date   `json:"startDate"`
	StartTime   Clock  `json:"startTime"`
	EndDate     Date   `json:"endDate"`
	EndTime     Clock  `json:"endTime"`
}

// Normalize enforces that all-day drafts carry no time of day.
func (d *Draft) Normalize() {
	if d.AllDay {
		d.StartTime = Clock{}
		d.EndTime = Clock{}
	}
}

// Edits are user changes merged on confirm. Nil fields are left untouched,
// an empty string clears a date or time back to unknown.
type Edits struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	AllDay      *bool   `json:"allDay,omitempty"`
	StartDate   *string `json:"startDate,omitempty"`
	StartTime   *string `json:"startTime,omitempty"`
	EndDate     *string `json:"endDate,omitempty"`
	EndTime     *string `json:"endTime,omitempty"`
}

// Apply merges the edits into ev.
func (ed Edits) Apply(ev *Event) error {
	if ed.Title != nil {
		ev.Title = *ed.Title
	}
	if ed.Description != nil {
		ev.Description = *ed.Description
	}
	if ed.AllDay != nil {
		ev.AllDay = *ed.AllDay
	}
	var err error
	if ed.StartDate != nil {
		if ev.StartDate, err = ParseDate(*ed.StartDate); err != nil {
			return err
		}
	}
	if ed.EndDate != nil {
		if ev.EndDate, err = ParseDate(*ed.EndDate); err != nil {
			return err
		}
	}
	if ed.StartTime != nil {
		if ev.StartTime, err = ParseClock(*ed.StartTime); err != nil {
			return err
		}
	}
	if ed.EndTime != nil {
		if ev.EndTime, err = ParseClock(*ed.EndTime); err != nil {
			return err
		}
	}
	if ev.AllDay {
		ev.StartTime = Clock{}
		ev.EndTime = Clock{}
	}
	return nil
}

// NewEvent builds a pending event from a draft.
func NewEvent(id string, d Draft) *Event {
	d.Normalize()
	return &Event{
		ID:          id,
		Title:       d.Title,
		Description: d.Description,
		AllDay:      d.AllDay,
		StartDate:   d.StartDate,
		StartTime:   d.StartTime,
		EndDate:     d.EndDate,
		EndTime:     d.EndTime,
		Status:      StatusPending,
		SyncState:   SyncNone,
	}
}

// DefaultDuration is the length given to timed events without an end when
// a remote calendar requires one.
const DefaultDuration = time.Hour

// Span is the concrete range a remote calendar is given for an event. For
// all-day spans End is the exclusive day after the last day.
type Span struct {
	AllDay bool
	Start  time.Time
	End    time.Time
}

// Span resolves unknown end fields to provider defaults. Events without a
// start time are written as all-day. The event itself is not changed.
func (e *Event) Span(loc *time.Location) Span {
	if loc == nil {
		loc = time.UTC
	}
	if e.AllDay || e.StartTime.IsZero() {
		last := e.StartDate
		if !e.EndDate.IsZero() && e.EndDate.After(e.StartDate.Time) {
			last = e.EndDate
		}
		return Span{
			AllDay: true,
			Start:  e.StartDate.Time,
			End:    last.AddDate(0, 0, 1).Time,
		}
	}

	start := e.StartTime.On(e.StartDate, loc)
	end := start.Add(DefaultDuration)
	if !e.EndTime.IsZero() {
		day := e.StartDate
		if !e.EndDate.IsZero() {
			day = e.EndDate
		}
		if t := e.EndTime.On(day, loc); t.After(start) {
			end = t
		}
	}
	return Span{Start: start, End: end}
}
