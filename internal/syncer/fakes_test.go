package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/guilherme-santos/notifcal/internal"
)

// fakeRemote keeps one calendar per account name.
type fakeRemote struct {
	mu        sync.Mutex
	calendars map[string]map[string]internal.Event
	// reject answers 401 to the given access tokens.
	reject map[string]bool
	// block makes calls for the given account wait for the context.
	block map[string]bool

	inflight    atomic.Int32
	maxInflight atomic.Int32
	delay       time.Duration
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		calendars: make(map[string]map[string]internal.Event),
		reject:    make(map[string]bool),
		block:     make(map[string]bool),
	}
}

func (r *fakeRemote) enter(ctx context.Context, acc *internal.Account) (func(), error) {
	n := r.inflight.Add(1)
	for {
		peak := r.maxInflight.Load()
		if n <= peak || r.maxInflight.CompareAndSwap(peak, n) {
			break
		}
	}
	leave := func() { r.inflight.Add(-1) }
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	blocked := r.block[acc.Name]
	rejected := r.reject[acc.AccessToken]
	r.mu.Unlock()
	if blocked {
		<-ctx.Done()
		leave()
		return nil, ctx.Err()
	}
	if rejected {
		leave()
		return nil, &internal.RemoteError{StatusCode: 401, Body: `{"error":"invalid_token"}`, Err: internal.ErrAuthExpired}
	}
	return leave, nil
}

func (r *fakeRemote) UpdateEvent(ctx context.Context, acc *internal.Account, ev *internal.Event) error {
	leave, err := r.enter(ctx, acc)
	if err != nil {
		return err
	}
	defer leave()
	r.mu.Lock()
	defer r.mu.Unlock()
	cal := r.calendars[acc.Name]
	if _, ok := cal[ev.ID]; !ok {
		return &internal.RemoteError{StatusCode: 404, Err: internal.ErrRemoteNotFound}
	}
	cal[ev.ID] = *ev
	return nil
}

func (r *fakeRemote) InsertEvent(ctx context.Context, acc *internal.Account, ev *internal.Event) error {
	leave, err := r.enter(ctx, acc)
	if err != nil {
		return err
	}
	defer leave()
	r.mu.Lock()
	defer r.mu.Unlock()
	cal, ok := r.calendars[acc.Name]
	if !ok {
		cal = make(map[string]internal.Event)
		r.calendars[acc.Name] = cal
	}
	if _, ok := cal[ev.ID]; ok {
		return &internal.RemoteError{StatusCode: 409, Body: "duplicate", Err: internal.ErrAlreadyExists}
	}
	cal[ev.ID] = *ev
	return nil
}

func (r *fakeRemote) DeleteEvent(ctx context.Context, acc *internal.Account, id string) error {
	leave, err := r.enter(ctx, acc)
	if err != nil {
		return err
	}
	defer leave()
	r.mu.Lock()
	defer r.mu.Unlock()
	cal := r.calendars[acc.Name]
	if _, ok := cal[id]; !ok {
		return &internal.RemoteError{StatusCode: 404, Err: internal.ErrRemoteNotFound}
	}
	delete(cal, id)
	return nil
}

func (r *fakeRemote) count(account string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calendars[account])
}

func (r *fakeRemote) Get(string) (internal.Provider, error) {
	return r, nil
}

// fakeAccounts refreshes by appending "+" to the access token, unless the
// account is listed in broken.
type fakeAccounts struct {
	mu       sync.Mutex
	accounts []*internal.Account
	broken   map[string]bool
	forced   map[string]int
	// hang makes refreshes of the given accounts wait for the context.
	hang map[string]bool
}

func newFakeAccounts(names ...string) *fakeAccounts {
	f := &fakeAccounts{broken: make(map[string]bool), forced: make(map[string]int), hang: make(map[string]bool)}
	for _, n := range names {
		f.accounts = append(f.accounts, &internal.Account{
			Platform:    internal.PlatformGoogle,
			Name:        n,
			AccessToken: n + "-token",
		})
	}
	return f
}

func (f *fakeAccounts) List(context.Context) ([]*internal.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := make([]*internal.Account, len(f.accounts))
	for i, a := range f.accounts {
		cp := *a
		res[i] = &cp
	}
	return res, nil
}

func (f *fakeAccounts) RefreshIfExpired(ctx context.Context, acc *internal.Account) (*internal.Account, error) {
	if !acc.Expired(time.Now()) {
		return acc, nil
	}
	return f.refresh(ctx, acc)
}

func (f *fakeAccounts) ForceRefresh(ctx context.Context, acc *internal.Account) (*internal.Account, error) {
	f.mu.Lock()
	f.forced[acc.Name]++
	f.mu.Unlock()
	return f.refresh(ctx, acc)
}

func (f *fakeAccounts) refresh(ctx context.Context, acc *internal.Account) (*internal.Account, error) {
	f.mu.Lock()
	hang := f.hang[acc.Name]
	f.mu.Unlock()
	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken[acc.Name] {
		return nil, fmt.Errorf("account %s: %w: %v", acc.ID(), internal.ErrAuthExpired, errors.New("invalid_grant"))
	}
	updated := *acc
	updated.AccessToken += "+"
	updated.Expiry = time.Time{}
	return &updated, nil
}

type fakeResults struct {
	mu       sync.Mutex
	revision map[string]int64
	results  map[string][]*internal.SyncResult
}

func newFakeResults() *fakeResults {
	return &fakeResults{revision: make(map[string]int64), results: make(map[string][]*internal.SyncResult)}
}

func (f *fakeResults) RecordSyncResult(_ context.Context, id string, revision int64, res *internal.SyncResult) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.revision[id]; ok && cur != revision {
		return false, nil
	}
	f.results[id] = append(f.results[id], res)
	return true, nil
}

func (f *fakeResults) recorded(id string) []*internal.SyncResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*internal.SyncResult(nil), f.results[id]...)
}

func testEvent(id string, revision int64) *internal.Event {
	start, _ := internal.ParseDate("2025-03-10")
	at, _ := internal.ParseClock("09:00")
	ev := internal.NewEvent(id, internal.Draft{Title: "Dentist", StartDate: start, StartTime: at})
	ev.Status = internal.StatusConfirmed
	ev.Revision = revision
	return ev
}
