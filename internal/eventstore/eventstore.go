package eventstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/guilherme-santos/notifcal/internal"
)

type Storage interface {
	CreateEvent(_ context.Context, _ *internal.Event, fingerprint string) error
	Event(_ context.Context, id string) (*internal.Event, error)
	UpdateEvent(_ context.Context, id string, fn func(*internal.Event) (bool, error)) (*internal.Event, bool, error)
	Events(_ context.Context, after int64, limit int) ([]*internal.Event, error)
}

// Scheduler receives the remote work produced by status transitions.
type Scheduler interface {
	Enqueue(internal.SyncJob)
}

// Store owns the lifecycle of candidate events. Every transition that
// changes what remote calendars should show hands exactly one job to the
// scheduler, after the new state is stored.
type Store struct {
	storage   Storage
	scheduler Scheduler
	logger    *slog.Logger
}

func New(storage Storage, scheduler Scheduler, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		storage:   storage,
		scheduler: scheduler,
		logger:    logger,
	}
}

// Create stores a pending event under id. A second call for the same id
// returns ErrAlreadyExists and leaves the stored event untouched.
func (s *Store) Create(ctx context.Context, id string, draft internal.Draft) (*internal.Event, error) {
	return s.create(ctx, id, "", "", draft)
}

// CreateFromNotification stores the event extracted from n, keyed by the
// notification id.
func (s *Store) CreateFromNotification(ctx context.Context, n internal.Notification, draft internal.Draft) (*internal.Event, error) {
	return s.create(ctx, n.ID(), n.Fingerprint(), n.Source, draft)
}

func (s *Store) create(ctx context.Context, id, fingerprint, source string, draft internal.Draft) (*internal.Event, error) {
	if id == "" {
		return nil, fmt.Errorf("event id: %w", internal.ErrInvalidInput)
	}
	ev := internal.NewEvent(id, draft)
	ev.Source = source
	if err := s.storage.CreateEvent(ctx, ev, fingerprint); err != nil {
		return nil, err
	}
	s.logger.Info("event created", "event_id", id, "title", ev.Title)
	return ev, nil
}

func (s *Store) Get(ctx context.Context, id string) (*internal.Event, error) {
	return s.storage.Event(ctx, id)
}

// ListPage returns events in creation order.
func (s *Store) ListPage(ctx context.Context, limit int, cursor string) (internal.Page[*internal.Event], error) {
	after, err := internal.DecodeCursor(cursor)
	if err != nil {
		return internal.Page[*internal.Event]{}, err
	}
	limit = internal.ClampLimit(limit)
	events, err := s.storage.Events(ctx, after, limit+1)
	if err != nil {
		return internal.Page[*internal.Event]{}, err
	}
	return internal.NewPage(events, limit, func(ev *internal.Event) int64 { return ev.Seq }), nil
}

// Confirm merges edits into the event and marks it confirmed. Confirming
// an already confirmed event only syncs again when the content changed.
func (s *Store) Confirm(ctx context.Context, id string, edits internal.Edits) (*internal.Event, error) {
	ev, changed, err := s.storage.UpdateEvent(ctx, id, func(ev *internal.Event) (bool, error) {
		before := *ev
		if err := edits.Apply(ev); err != nil {
			return false, err
		}
		if ev.StartDate.IsZero() {
			return false, fmt.Errorf("event %s has no start date: %w", id, internal.ErrInvalidInput)
		}
		if before.Status == internal.StatusConfirmed && ev.SameContent(&before) {
			return false, nil
		}
		ev.Status = internal.StatusConfirmed
		ev.SyncState = internal.SyncPending
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.Info("event confirmed", "event_id", id, "revision", ev.Revision)
		s.schedule(ev, internal.ActionUpsert)
	}
	return ev, nil
}

// Discard marks the event discarded. Events that were never confirmed
// have nothing remote to remove.
func (s *Store) Discard(ctx context.Context, id string) (*internal.Event, error) {
	var wasPending bool
	ev, changed, err := s.storage.UpdateEvent(ctx, id, func(ev *internal.Event) (bool, error) {
		switch ev.Status {
		case internal.StatusDiscarded:
			return false, nil
		case internal.StatusPending:
			wasPending = true
			ev.SyncState = internal.SyncNone
		default:
			ev.SyncState = internal.SyncPending
		}
		ev.Status = internal.StatusDiscarded
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.Info("event discarded", "event_id", id, "revision", ev.Revision)
		if !wasPending {
			s.schedule(ev, internal.ActionDelete)
		}
	}
	return ev, nil
}

// Resync schedules the remote action matching the event's current status
// again. Pending events and events discarded before any sync have nothing
// to do.
func (s *Store) Resync(ctx context.Context, id string) (*internal.Event, error) {
	ev, err := s.storage.Event(ctx, id)
	if err != nil {
		return nil, err
	}
	action, ok := ev.Intent()
	if !ok {
		return nil, fmt.Errorf("event %s is %s: %w", id, ev.Status, internal.ErrInvalidInput)
	}
	if ev.SyncState == internal.SyncNone {
		return ev, nil
	}
	s.schedule(ev, action)
	return ev, nil
}

func (s *Store) schedule(ev *internal.Event, action internal.Action) {
	if s.scheduler == nil {
		return
	}
	snapshot := *ev
	s.scheduler.Enqueue(internal.SyncJob{
		Event:    &snapshot,
		Action:   action,
		Revision: ev.Revision,
	})
}
