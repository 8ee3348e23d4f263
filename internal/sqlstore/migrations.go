package sqlstore

import "strings"

func (s Storage) RunMigrations() error {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == DriverPostgres {
		serial = "BIGSERIAL PRIMARY KEY"
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(strings.ReplaceAll(m, "{{serial}}", serial)); err != nil {
			return err
		}
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id VARCHAR NOT NULL PRIMARY KEY,
		platform VARCHAR NOT NULL,
		name VARCHAR NOT NULL,
		calendar_id VARCHAR NOT NULL DEFAULT '',
		endpoint VARCHAR NOT NULL DEFAULT '',
		access_token TEXT NOT NULL DEFAULT '',
		refresh_token TEXT NOT NULL DEFAULT '',
		expiry BIGINT NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		seq {{serial}},
		id VARCHAR NOT NULL UNIQUE,
		fingerprint VARCHAR NOT NULL DEFAULT '',
		source VARCHAR NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		all_day BOOLEAN NOT NULL DEFAULT FALSE,
		start_date VARCHAR NOT NULL DEFAULT '',
		start_time VARCHAR NOT NULL DEFAULT '',
		end_date VARCHAR NOT NULL DEFAULT '',
		end_time VARCHAR NOT NULL DEFAULT '',
		status VARCHAR NOT NULL,
		sync_state VARCHAR NOT NULL,
		revision BIGINT NOT NULL DEFAULT 1,
		last_sync TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS events_sync_state ON events (sync_state)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		seq {{serial}},
		id VARCHAR NOT NULL UNIQUE,
		source VARCHAR NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		posted_at BIGINT NOT NULL,
		received_at BIGINT NOT NULL,
		outcome VARCHAR NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	)`,
}
