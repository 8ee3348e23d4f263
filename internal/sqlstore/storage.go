package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

type Storage struct {
	db     *sqlx.DB
	driver string
}

// Open connects to the database named by dsn. Supported forms are
// sqlite3://path, a bare file path (sqlite) and postgres:// URLs.
func Open(dsn string) (*Storage, error) {
	driver, source, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: opening %s: %w", driver, err)
	}
	s, err := NewStorage(db, driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func NewStorage(db *sql.DB, driver string) (*Storage, error) {
	if driver == DriverSQLite {
		// sqlite allows a single writer; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	s := &Storage{
		db:     sqlx.NewDb(db, driver),
		driver: driver,
	}
	if err := s.RunMigrations(); err != nil {
		return nil, fmt.Errorf("sqlstore: running migrations: %w", err)
	}
	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) rebind(query string) string {
	return s.db.Rebind(query)
}

// Advisory lock keys serializing inserts into tables listed by seq.
const (
	eventsSeqLock        int64 = 0x6e63_0001
	notificationsSeqLock int64 = 0x6e63_0002
)

// appendOrdered runs an insert that assigns a seq. On postgres a sequence
// value is taken at insert time but becomes visible at commit, so inserts
// take a transaction-scoped lock to keep seq order equal to commit order.
// SQLite uses a single connection and needs no lock.
func (s *Storage) appendOrdered(ctx context.Context, lockKey int64, fn func(sqlx.QueryerContext) error) error {
	lock := s.seqLockQuery()
	if lock == "" {
		return fn(s.db)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, lock, lockKey); err != nil {
		return fmt.Errorf("locking seq: %w", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Storage) seqLockQuery() string {
	if s.driver == DriverPostgres {
		return "SELECT pg_advisory_xact_lock($1)"
	}
	return ""
}

// forUpdate locks the selected row on databases that support it.
func (s *Storage) forUpdate() string {
	if s.driver == DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

func parseDSN(dsn string) (driver, source string, err error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", "", fmt.Errorf("sqlstore: empty dsn")
	}
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return DriverSQLite, dsn, nil
	}
	switch strings.ToLower(scheme) {
	case "sqlite", "sqlite3", "file":
		if rest == "" {
			return "", "", fmt.Errorf("sqlstore: missing sqlite path in %q", dsn)
		}
		return DriverSQLite, rest, nil
	case "postgres", "postgresql":
		if _, err := url.Parse(dsn); err != nil {
			return "", "", fmt.Errorf("sqlstore: parsing dsn: %w", err)
		}
		return DriverPostgres, dsn, nil
	default:
		return "", "", fmt.Errorf("sqlstore: unsupported scheme %q", scheme)
	}
}
