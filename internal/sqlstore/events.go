package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/guilherme-santos/notifcal/internal"
)

const eventColumns = `seq, id, fingerprint, source, title, description, all_day,
	start_date, start_time, end_date, end_time, status, sync_state, revision,
	last_sync, created_at, updated_at`

// CreateEvent inserts ev unless an event with the same id exists. The
// fingerprint tells a re-delivered notification apart from a different one
// whose truncated id collides.
func (s *Storage) CreateEvent(ctx context.Context, ev *internal.Event, fingerprint string) error {
	now := time.Now().UTC()
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = now
	}
	ev.UpdatedAt = ev.CreatedAt
	if ev.Revision == 0 {
		ev.Revision = 1
	}
	row, err := newEvent(ev, fingerprint)
	if err != nil {
		return err
	}

	var seq int64
	err = s.appendOrdered(ctx, eventsSeqLock, func(q sqlx.QueryerContext) error {
		return q.QueryRowxContext(ctx, s.rebind(`
		INSERT INTO events (id, fingerprint, source, title, description, all_day,
			start_date, start_time, end_date, end_time, status, sync_state, revision,
			last_sync, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
		RETURNING seq
	`), row.ID, row.Fingerprint, row.Source, row.Title, row.Description, row.AllDay,
			row.StartDate, row.StartTime, row.EndDate, row.EndTime, row.Status, row.SyncState,
			row.Revision, row.LastSync, row.CreatedAt, row.UpdatedAt).Scan(&seq)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return s.conflict(ctx, ev.ID, fingerprint)
	}
	if err != nil {
		return err
	}
	ev.Seq = seq
	return nil
}

func (s *Storage) conflict(ctx context.Context, id, fingerprint string) error {
	var existing string
	err := s.db.GetContext(ctx, &existing, s.rebind(`SELECT fingerprint FROM events WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("event %s: %w", id, internal.ErrAlreadyExists)
	}
	if fingerprint != "" && existing != "" && existing != fingerprint {
		return fmt.Errorf("event %s: %w", id, internal.ErrIDCollision)
	}
	return fmt.Errorf("event %s: %w", id, internal.ErrAlreadyExists)
}

func (s *Storage) Event(ctx context.Context, id string) (*internal.Event, error) {
	var row Event
	err := s.db.GetContext(ctx, &row, s.rebind(`SELECT `+eventColumns+` FROM events WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, internal.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return row.Convert()
}

// UpdateEvent loads the event, lets fn mutate it and stores it with a new
// revision, all in one transaction. When fn reports no change nothing is
// written and the loaded event is returned.
func (s *Storage) UpdateEvent(ctx context.Context, id string, fn func(*internal.Event) (bool, error)) (*internal.Event, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	var row Event
	err = tx.GetContext(ctx, &row, tx.Rebind(`SELECT `+eventColumns+` FROM events WHERE id = ?`+s.forUpdate()), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("event %s: %w", id, internal.ErrNotFound)
	}
	if err != nil {
		return nil, false, err
	}
	ev, err := row.Convert()
	if err != nil {
		return nil, false, err
	}
	changed, err := fn(ev)
	if err != nil || !changed {
		return ev, false, err
	}

	ev.Revision = row.Revision + 1
	ev.UpdatedAt = time.Now().UTC()
	updated, err := newEvent(ev, row.Fingerprint)
	if err != nil {
		return nil, false, err
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`
		UPDATE events SET title = ?, description = ?, all_day = ?,
			start_date = ?, start_time = ?, end_date = ?, end_time = ?,
			status = ?, sync_state = ?, revision = ?, last_sync = ?, updated_at = ?
		WHERE id = ?
	`), updated.Title, updated.Description, updated.AllDay,
		updated.StartDate, updated.StartTime, updated.EndDate, updated.EndTime,
		updated.Status, updated.SyncState, updated.Revision, updated.LastSync, updated.UpdatedAt,
		id)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return ev, true, nil
}

// Events lists events in creation order, starting after seq.
func (s *Storage) Events(ctx context.Context, after int64, limit int) ([]*internal.Event, error) {
	var rows []Event
	err := s.db.SelectContext(ctx, &rows, s.rebind(`
		SELECT `+eventColumns+`
		FROM events
		WHERE seq > ?
		ORDER BY seq
		LIMIT ?
	`), after, limit)
	if err != nil {
		return nil, err
	}
	return convertEvents(rows)
}

// EventsToResync returns actioned events whose remote calendars were not
// confirmed to match.
func (s *Storage) EventsToResync(ctx context.Context) ([]*internal.Event, error) {
	var rows []Event
	err := s.db.SelectContext(ctx, &rows, s.rebind(`
		SELECT `+eventColumns+`
		FROM events
		WHERE status <> ? AND sync_state <> ? AND sync_state <> ?
		ORDER BY seq
	`), internal.StatusPending.String(), internal.SyncInSync.String(), internal.SyncNone.String())
	if err != nil {
		return nil, err
	}
	return convertEvents(rows)
}

// RecordSyncResult stores res as the event's last sync result, unless the
// event changed since the job was created. It reports whether it was stored.
func (s *Storage) RecordSyncResult(ctx context.Context, id string, revision int64, res *internal.SyncResult) (bool, error) {
	payload, err := json.Marshal(res)
	if err != nil {
		return false, err
	}
	state := internal.SyncInSync
	if !res.Success {
		state = internal.SyncOutOfSync
	}
	result, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE events SET last_sync = ?, sync_state = ?
		WHERE id = ? AND revision = ?
	`), string(payload), state.String(), id, revision)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func convertEvents(rows []Event) ([]*internal.Event, error) {
	res := make([]*internal.Event, len(rows))
	for i, r := range rows {
		ev, err := r.Convert()
		if err != nil {
			return nil, err
		}
		res[i] = ev
	}
	return res, nil
}
