package caldav

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-ical"

	"github.com/guilherme-santos/notifcal/internal"
)

// fakeServer stores calendar objects by path and honours conditional
// requests.
type fakeServer struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (s *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, pass, ok := r.BasicAuth()
	if !ok || user != "alice" || pass != "app-password" {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, "bad credentials")
		return
	}
	_, exists := s.objects[r.URL.Path]
	switch r.Method {
	case http.MethodPut:
		if r.Header.Get("If-Match") == "*" && !exists {
			w.WriteHeader(http.StatusPreconditionFailed)
			io.WriteString(w, "no such object")
			return
		}
		if r.Header.Get("If-None-Match") == "*" && exists {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		body, _ := io.ReadAll(r.Body)
		s.objects[r.URL.Path] = body
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(s.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	fs := &fakeServer{objects: make(map[string][]byte)}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)
	return fs, srv
}

func testAccount(srv *httptest.Server, password string) *internal.Account {
	return &internal.Account{
		Platform:    internal.PlatformCalDAV,
		Name:        "alice",
		Endpoint:    srv.URL + "/dav/",
		CalendarID:  "/dav/calendars/alice/home",
		AccessToken: password,
	}
}

func dentist() *internal.Event {
	start, _ := internal.ParseDate("2025-03-10")
	at, _ := internal.ParseClock("09:00")
	return internal.NewEvent("0a1b2c3d4e5f6789", internal.Draft{Title: "Dentist", StartDate: start, StartTime: at})
}

func TestUpsertLifecycle(t *testing.T) {
	fs, srv := newTestServer(t)
	c := NewClient(Options{HTTPClient: srv.Client()})
	ctx := context.Background()
	acc := testAccount(srv, "app-password")
	ev := dentist()

	err := c.UpdateEvent(ctx, acc, ev)
	if !errors.Is(err, internal.ErrRemoteNotFound) {
		t.Fatalf("expected ErrRemoteNotFound, got %v", err)
	}
	if err := c.InsertEvent(ctx, acc, ev); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := c.InsertEvent(ctx, acc, ev); !errors.Is(err, internal.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists on a second insert, got %v", err)
	}
	ev.Title = "Dentist (moved)"
	if err := c.UpdateEvent(ctx, acc, ev); err != nil {
		t.Fatalf("update: %v", err)
	}

	fs.mu.Lock()
	body, ok := fs.objects["/dav/calendars/alice/home/0a1b2c3d4e5f6789.ics"]
	fs.mu.Unlock()
	if !ok {
		t.Fatalf("expected the object to be named after the event id")
	}
	cal, err := ical.NewDecoder(bytes.NewReader(body)).Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	events := cal.Events()
	if len(events) != 1 {
		t.Fatalf("expected one VEVENT, got %d", len(events))
	}
	if uid, _ := events[0].Props.Text(ical.PropUID); uid != ev.ID {
		t.Fatalf("unexpected uid %q", uid)
	}
	if summary, _ := events[0].Props.Text(ical.PropSummary); summary != "Dentist (moved)" {
		t.Fatalf("unexpected summary %q", summary)
	}
	start, err := events[0].DateTimeStart(time.UTC)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	end, err := events[0].DateTimeEnd(time.UTC)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if end.Sub(start) != time.Hour {
		t.Fatalf("expected a one hour default, got %s - %s", start, end)
	}
}

func TestDeleteMissingObject(t *testing.T) {
	_, srv := newTestServer(t)
	c := NewClient(Options{HTTPClient: srv.Client()})
	ctx := context.Background()
	acc := testAccount(srv, "app-password")
	ev := dentist()

	if err := c.InsertEvent(ctx, acc, ev); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := c.DeleteEvent(ctx, acc, ev.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := c.DeleteEvent(ctx, acc, ev.ID); !errors.Is(err, internal.ErrRemoteNotFound) {
		t.Fatalf("expected ErrRemoteNotFound, got %v", err)
	}
}

func TestUnauthorizedKeepsBody(t *testing.T) {
	_, srv := newTestServer(t)
	c := NewClient(Options{HTTPClient: srv.Client()})

	err := c.InsertEvent(context.Background(), testAccount(srv, "wrong"), dentist())
	if !errors.Is(err, internal.ErrAuthExpired) {
		t.Fatalf("expected ErrAuthExpired, got %v", err)
	}
	var remote *internal.RemoteError
	if !errors.As(err, &remote) || remote.StatusCode != http.StatusUnauthorized || remote.Body != "bad credentials" {
		t.Fatalf("unexpected remote error %#v", err)
	}
}

func TestAllDayObject(t *testing.T) {
	start, _ := internal.ParseDate("2025-12-24")
	ev := internal.NewEvent("e1", internal.Draft{Title: "Holiday", AllDay: true, StartDate: start})
	ve := newVEvent(ev, time.UTC, time.Now())

	dtstart := ve.Props.Get(ical.PropDateTimeStart)
	dtend := ve.Props.Get(ical.PropDateTimeEnd)
	if dtstart.Value != "20251224" || dtend.Value != "20251225" {
		t.Fatalf("unexpected dates %s %s", dtstart.Value, dtend.Value)
	}
	if dtstart.ValueType() != ical.ValueDate {
		t.Fatalf("expected a DATE value, got %s", dtstart.ValueType())
	}
	if !strings.Contains(ve.Props.Get(ical.PropSummary).Value, "Holiday") {
		t.Fatalf("unexpected summary")
	}
}
