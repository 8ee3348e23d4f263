package sqlstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/guilherme-santos/notifcal/internal"
)

type Account struct {
	ID           string `db:"id"`
	Platform     string `db:"platform"`
	Name         string `db:"name"`
	CalendarID   string `db:"calendar_id"`
	Endpoint     string `db:"endpoint"`
	AccessToken  string `db:"access_token"`
	RefreshToken string `db:"refresh_token"`
	Expiry       int64  `db:"expiry"`
	LastError    string `db:"last_error"`
	CreatedAt    int64  `db:"created_at"`
}

func (a Account) Convert() *internal.Account {
	return &internal.Account{
		Platform:     a.Platform,
		Name:         a.Name,
		CalendarID:   a.CalendarID,
		Endpoint:     a.Endpoint,
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
		Expiry:       fromMillis(a.Expiry),
		LastError:    a.LastError,
		CreatedAt:    fromMillis(a.CreatedAt),
	}
}

func newAccount(acc *internal.Account) Account {
	return Account{
		ID:           acc.ID(),
		Platform:     acc.Platform,
		Name:         acc.Name,
		CalendarID:   acc.CalendarID,
		Endpoint:     acc.Endpoint,
		AccessToken:  acc.AccessToken,
		RefreshToken: acc.RefreshToken,
		Expiry:       toMillis(acc.Expiry),
		LastError:    acc.LastError,
		CreatedAt:    toMillis(acc.CreatedAt),
	}
}

type Event struct {
	Seq         int64  `db:"seq"`
	ID          string `db:"id"`
	Fingerprint string `db:"fingerprint"`
	Source      string `db:"source"`
	Title       string `db:"title"`
	Description string `db:"description"`
	AllDay      bool   `db:"all_day"`
	StartDate   string `db:"start_date"`
	StartTime   string `db:"start_time"`
	EndDate     string `db:"end_date"`
	EndTime     string `db:"end_time"`
	Status      string `db:"status"`
	SyncState   string `db:"sync_state"`
	Revision    int64  `db:"revision"`
	LastSync    string `db:"last_sync"`
	CreatedAt   int64  `db:"created_at"`
	UpdatedAt   int64  `db:"updated_at"`
}

func (e Event) Convert() (*internal.Event, error) {
	ev := &internal.Event{
		ID:          e.ID,
		Source:      e.Source,
		Title:       e.Title,
		Description: e.Description,
		AllDay:      e.AllDay,
		Status:      internal.Status(e.Status),
		SyncState:   internal.SyncState(e.SyncState),
		Revision:    e.Revision,
		Seq:         e.Seq,
		CreatedAt:   fromMillis(e.CreatedAt),
		UpdatedAt:   fromMillis(e.UpdatedAt),
	}
	var err error
	if ev.StartDate, err = internal.ParseDate(e.StartDate); err != nil {
		return nil, fmt.Errorf("event %s: %w", e.ID, err)
	}
	if ev.EndDate, err = internal.ParseDate(e.EndDate); err != nil {
		return nil, fmt.Errorf("event %s: %w", e.ID, err)
	}
	if ev.StartTime, err = internal.ParseClock(e.StartTime); err != nil {
		return nil, fmt.Errorf("event %s: %w", e.ID, err)
	}
	if ev.EndTime, err = internal.ParseClock(e.EndTime); err != nil {
		return nil, fmt.Errorf("event %s: %w", e.ID, err)
	}
	if e.LastSync != "" {
		ev.LastSync = new(internal.SyncResult)
		if err := json.Unmarshal([]byte(e.LastSync), ev.LastSync); err != nil {
			return nil, fmt.Errorf("event %s: last sync: %w", e.ID, err)
		}
	}
	return ev, nil
}

func newEvent(ev *internal.Event, fingerprint string) (Event, error) {
	var lastSync string
	if ev.LastSync != nil {
		v, err := json.Marshal(ev.LastSync)
		if err != nil {
			return Event{}, err
		}
		lastSync = string(v)
	}
	return Event{
		Seq:         ev.Seq,
		ID:          ev.ID,
		Fingerprint: fingerprint,
		Source:      ev.Source,
		Title:       ev.Title,
		Description: ev.Description,
		AllDay:      ev.AllDay,
		StartDate:   ev.StartDate.String(),
		StartTime:   ev.StartTime.String(),
		EndDate:     ev.EndDate.String(),
		EndTime:     ev.EndTime.String(),
		Status:      ev.Status.String(),
		SyncState:   ev.SyncState.String(),
		Revision:    ev.Revision,
		LastSync:    lastSync,
		CreatedAt:   toMillis(ev.CreatedAt),
		UpdatedAt:   toMillis(ev.UpdatedAt),
	}, nil
}

type Notification struct {
	Seq        int64  `db:"seq"`
	ID         string `db:"id"`
	Source     string `db:"source"`
	Title      string `db:"title"`
	PostedAt   int64  `db:"posted_at"`
	ReceivedAt int64  `db:"received_at"`
	Outcome    string `db:"outcome"`
	Error      string `db:"error"`
}

func (n Notification) Convert() *internal.NotificationRecord {
	return &internal.NotificationRecord{
		ID:         n.ID,
		Source:     n.Source,
		Title:      n.Title,
		PostedAt:   n.PostedAt,
		ReceivedAt: fromMillis(n.ReceivedAt),
		Outcome:    internal.NotificationOutcome(n.Outcome),
		Error:      n.Error,
		Seq:        n.Seq,
	}
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v).UTC()
}
