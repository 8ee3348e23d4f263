package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/guilherme-santos/notifcal/internal"
)

const accountColumns = `id, platform, name, calendar_id, endpoint, access_token,
	refresh_token, expiry, last_error, created_at`

// SaveAccount inserts the account or replaces its settings and token
// material.
func (s *Storage) SaveAccount(ctx context.Context, acc *internal.Account) error {
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = time.Now().UTC()
	}
	row := newAccount(acc)
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			calendar_id = excluded.calendar_id,
			endpoint = excluded.endpoint,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expiry = excluded.expiry,
			last_error = excluded.last_error
	`), row.ID, row.Platform, row.Name, row.CalendarID, row.Endpoint, row.AccessToken,
		row.RefreshToken, row.Expiry, row.LastError, row.CreatedAt)
	return err
}

func (s *Storage) Account(ctx context.Context, id string) (*internal.Account, error) {
	var row Account
	err := s.db.GetContext(ctx, &row, s.rebind(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, internal.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return row.Convert(), nil
}

func (s *Storage) Accounts(ctx context.Context) ([]*internal.Account, error) {
	var rows []Account
	err := s.db.SelectContext(ctx, &rows, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	res := make([]*internal.Account, len(rows))
	for i, r := range rows {
		res[i] = r.Convert()
	}
	return res, nil
}

func (s *Storage) DeleteAccount(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM accounts WHERE id = ?`), id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", id, internal.ErrNotFound)
	}
	return nil
}

func (s *Storage) SetAccountError(ctx context.Context, id, msg string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`UPDATE accounts SET last_error = ? WHERE id = ?`), msg, id)
	return err
}
