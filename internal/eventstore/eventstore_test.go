package eventstore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/guilherme-santos/notifcal/internal"
	"github.com/guilherme-santos/notifcal/internal/sqlstore"
)

type recordingScheduler struct {
	mu   sync.Mutex
	jobs []internal.SyncJob
}

func (r *recordingScheduler) Enqueue(job internal.SyncJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
}

func (r *recordingScheduler) actions() []internal.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]internal.Action, len(r.jobs))
	for i, j := range r.jobs {
		res[i] = j.Action
	}
	return res
}

func newTestStore(t *testing.T) (*Store, *recordingScheduler) {
	t.Helper()
	storage, err := sqlstore.Open(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { storage.Close() })
	sched := &recordingScheduler{}
	return New(storage, sched, nil), sched
}

func dentistDraft() internal.Draft {
	start, _ := internal.ParseDate("2025-03-10")
	at, _ := internal.ParseClock("09:00")
	return internal.Draft{Title: "Dentist", StartDate: start, StartTime: at}
}

func strPtr(v string) *string { return &v }

func TestCreateIsIdempotentPerID(t *testing.T) {
	store, sched := newTestStore(t)
	ctx := context.Background()
	n := internal.Notification{RawKey: "com.clinic|42", Source: "com.clinic", Title: "Reminder", PostedAt: 1741500000000}

	ev, err := store.CreateFromNotification(ctx, n, dentistDraft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ev.ID != n.ID() || ev.Status != internal.StatusPending || ev.Source != "com.clinic" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if _, err := store.CreateFromNotification(ctx, n, dentistDraft()); !errors.Is(err, internal.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if len(sched.actions()) != 0 {
		t.Fatalf("creating must not schedule remote work, got %v", sched.actions())
	}
}

func TestConfirmRequiresStartDate(t *testing.T) {
	store, sched := newTestStore(t)
	ctx := context.Background()
	if _, err := store.Create(ctx, "e1", internal.Draft{Title: "Call back"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := store.Confirm(ctx, "e1", internal.Edits{})
	if !errors.Is(err, internal.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	ev, _ := store.Get(ctx, "e1")
	if ev.Status != internal.StatusPending {
		t.Fatalf("expected event to stay pending, got %s", ev.Status)
	}

	ev, err = store.Confirm(ctx, "e1", internal.Edits{StartDate: strPtr("2025-04-01")})
	if err != nil {
		t.Fatalf("confirm with date: %v", err)
	}
	if ev.Status != internal.StatusConfirmed || ev.SyncState != internal.SyncPending {
		t.Fatalf("unexpected event %+v", ev)
	}
	if got := sched.actions(); len(got) != 1 || got[0] != internal.ActionUpsert {
		t.Fatalf("expected one upsert, got %v", got)
	}
}

func TestConfirmUnknownID(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.Confirm(context.Background(), "missing", internal.Edits{}); !errors.Is(err, internal.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransitions(t *testing.T) {
	store, sched := newTestStore(t)
	ctx := context.Background()
	if _, err := store.Create(ctx, "e1", dentistDraft()); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.Confirm(ctx, "e1", internal.Edits{}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	// Same content: nothing to sync.
	if _, err := store.Confirm(ctx, "e1", internal.Edits{Title: strPtr("Dentist")}); err != nil {
		t.Fatalf("confirm again: %v", err)
	}
	if _, err := store.Confirm(ctx, "e1", internal.Edits{StartTime: strPtr("10:30")}); err != nil {
		t.Fatalf("confirm with edit: %v", err)
	}
	ev, err := store.Discard(ctx, "e1")
	if err != nil {
		t.Fatalf("discard: %v", err)
	}
	if ev.Status != internal.StatusDiscarded {
		t.Fatalf("expected discarded, got %s", ev.Status)
	}
	if _, err := store.Discard(ctx, "e1"); err != nil {
		t.Fatalf("discard again: %v", err)
	}
	ev, err = store.Confirm(ctx, "e1", internal.Edits{})
	if err != nil {
		t.Fatalf("reconfirm: %v", err)
	}
	if ev.StartTime.String() != "10:30" {
		t.Fatalf("expected edited start time, got %s", ev.StartTime)
	}

	want := []internal.Action{internal.ActionUpsert, internal.ActionUpsert, internal.ActionDelete, internal.ActionUpsert}
	got := sched.actions()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	sched.mu.Lock()
	last := sched.jobs[len(sched.jobs)-1]
	sched.mu.Unlock()
	if last.Revision != ev.Revision || last.Event.ID != "e1" {
		t.Fatalf("job does not match stored revision: %+v vs %d", last, ev.Revision)
	}
}

func TestDiscardPendingIsLocal(t *testing.T) {
	store, sched := newTestStore(t)
	ctx := context.Background()
	if _, err := store.Create(ctx, "e1", dentistDraft()); err != nil {
		t.Fatalf("create: %v", err)
	}
	ev, err := store.Discard(ctx, "e1")
	if err != nil {
		t.Fatalf("discard: %v", err)
	}
	if ev.Status != internal.StatusDiscarded || ev.SyncState != internal.SyncNone || ev.LastSync != nil {
		t.Fatalf("unexpected event %+v", ev)
	}
	if len(sched.actions()) != 0 {
		t.Fatalf("expected no remote work, got %v", sched.actions())
	}
	if _, err := store.Resync(ctx, "e1"); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if len(sched.actions()) != 0 {
		t.Fatalf("expected resync of a local discard to be a no-op, got %v", sched.actions())
	}
}

func TestResync(t *testing.T) {
	store, sched := newTestStore(t)
	ctx := context.Background()
	if _, err := store.Create(ctx, "e1", dentistDraft()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Resync(ctx, "e1"); !errors.Is(err, internal.ErrInvalidInput) {
		t.Fatalf("expected pending resync to fail, got %v", err)
	}
	if _, err := store.Confirm(ctx, "e1", internal.Edits{}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := store.Resync(ctx, "e1"); err != nil {
		t.Fatalf("resync: %v", err)
	}
	got := sched.actions()
	if len(got) != 2 || got[1] != internal.ActionUpsert {
		t.Fatalf("expected a second upsert, got %v", got)
	}
}

func TestListPage(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"e1", "e2", "e3"} {
		if _, err := store.Create(ctx, id, dentistDraft()); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	page, err := store.ListPage(ctx, 2, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == nil {
		t.Fatalf("unexpected first page %+v", page)
	}
	page, err = store.ListPage(ctx, 2, *page.NextCursor)
	if err != nil {
		t.Fatalf("list next: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "e3" || page.NextCursor != nil {
		t.Fatalf("unexpected last page %+v", page)
	}
	if _, err := store.ListPage(ctx, 2, "not-a-cursor"); !errors.Is(err, internal.ErrInvalidCursor) {
		t.Fatalf("expected ErrInvalidCursor, got %v", err)
	}
}
