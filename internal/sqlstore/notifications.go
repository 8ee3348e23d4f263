package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/guilherme-santos/notifcal/internal"
)

const notificationColumns = `seq, id, source, title, posted_at, received_at, outcome, error`

// LogNotification records how a notification was handled. A re-processed
// notification keeps its position in the log.
func (s *Storage) LogNotification(ctx context.Context, rec *internal.NotificationRecord) error {
	return s.appendOrdered(ctx, notificationsSeqLock, func(q sqlx.QueryerContext) error {
		return q.QueryRowxContext(ctx, s.rebind(`
		INSERT INTO notifications (id, source, title, posted_at, received_at, outcome, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			received_at = excluded.received_at,
			outcome = excluded.outcome,
			error = excluded.error
		RETURNING seq
	`), rec.ID, rec.Source, rec.Title, rec.PostedAt, toMillis(rec.ReceivedAt),
			rec.Outcome.String(), rec.Error).Scan(&rec.Seq)
	})
}

func (s *Storage) NotificationRecord(ctx context.Context, id string) (*internal.NotificationRecord, error) {
	var row Notification
	err := s.db.GetContext(ctx, &row, s.rebind(`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("notification %s: %w", id, internal.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return row.Convert(), nil
}

// Notifications lists the notification log in arrival order, starting after
// seq.
func (s *Storage) Notifications(ctx context.Context, after int64, limit int) ([]*internal.NotificationRecord, error) {
	var rows []Notification
	err := s.db.SelectContext(ctx, &rows, s.rebind(`
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE seq > ?
		ORDER BY seq
		LIMIT ?
	`), after, limit)
	if err != nil {
		return nil, err
	}
	res := make([]*internal.NotificationRecord, len(rows))
	for i, r := range rows {
		res[i] = r.Convert()
	}
	return res, nil
}
