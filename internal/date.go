package internal

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	DateFormat  = "2006-01-02"
	ClockFormat = "15:04"
)

// Date is a calendar day without time of day. The zero value means the day
// is unknown and is rendered as an empty string.
type Date struct {
	time.Time
}

func NewDateFromTime(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses YYYY-MM-DD. An empty value yields the unknown date.
func ParseDate(v string) (Date, error) {
	if v == "" {
		return Date{}, nil
	}
	t, err := time.Parse(DateFormat, v)
	if err != nil {
		return Date{}, fmt.Errorf("%w: date %q", ErrInvalidInput, v)
	}
	return NewDateFromTime(t), nil
}

func (d Date) AddDate(years, months, days int) Date {
	return NewDateFromTime(d.Time.AddDate(years, months, days))
}

// Set implements flag.Value.
func (d *Date) Set(v string) error {
	parsed, err := ParseDate(v)
	if err == nil {
		*d = parsed
	}
	return err
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateFormat)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return d.Set(s)
}

// Clock is a wall-clock time of day with minute precision. The zero value
// means the time is unknown, which is distinct from midnight.
type Clock struct {
	minutes int
	known   bool
}

func NewClock(hour, minute int) Clock {
	return Clock{minutes: hour*60 + minute, known: true}
}

// ParseClock parses HH:MM. An empty value yields the unknown clock.
func ParseClock(v string) (Clock, error) {
	if v == "" {
		return Clock{}, nil
	}
	t, err := time.Parse(ClockFormat, v)
	if err != nil {
		return Clock{}, fmt.Errorf("%w: time %q", ErrInvalidInput, v)
	}
	return NewClock(t.Hour(), t.Minute()), nil
}

func (c Clock) IsZero() bool {
	return !c.known
}

func (c Clock) Hour() int {
	return c.minutes / 60
}

func (c Clock) Minute() int {
	return c.minutes % 60
}

func (c Clock) String() string {
	if !c.known {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// On combines the clock with a day in the given location.
func (c Clock) On(d Date, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), 0, 0, loc)
}
