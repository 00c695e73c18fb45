// Package sqlite is the embedded Record Store. It is the default driver for a single
// station deployment and the store the engine tests run against.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sto-booking/stobot/libs/db"
	otelx "github.com/sto-booking/stobot/libs/otel"
	"github.com/sto-booking/stobot/services/booking-service/internal/storage"
	"github.com/sto-booking/stobot/services/booking-service/internal/storage/sqlite/migrations"
)

const fileName = "booking.db"

type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open creates or opens booking.db inside dataDir and applies pending migrations.
// Write transactions begin IMMEDIATE so a read-then-write booking never deadlocks on lock upgrade.
func Open(dataDir string) (*Store, error) {
	if dataDir == "" {
		dataDir = "data"
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	path := filepath.Join(dataDir, fileName)

	dsn := "file:" + path +
		"?_pragma=foreign_keys(1)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_txlock=immediate"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: conn, path: path, now: time.Now}
	if err := s.migrate(context.Background(), migrations.FS); err != nil {
		conn.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context, fsys fs.FS) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if err := s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(content)); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
				version, formatTime(s.now()))
			return err
		}); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}
	return nil
}

// retry runs fn once more when the first attempt hits a dropped connection or a busy database.
func (s *Store) retry(ctx context.Context, fn func(context.Context) error) error {
	return db.Retry(ctx, isTransient, fn)
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func isTransient(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		primary := se.Code() & 0xff
		return primary == sqlite3.SQLITE_BUSY || primary == sqlite3.SQLITE_LOCKED
	}
	return db.IsTransient(err)
}

type constraintKind int

const (
	noConstraint constraintKind = iota
	uniqueConstraint
	foreignKeyConstraint
	otherConstraint
)

func classifyConstraint(err error) constraintKind {
	var se *sqlite.Error
	if !errors.As(err, &se) || se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return noConstraint
	}
	switch {
	case se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE, se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
		strings.Contains(se.Error(), "UNIQUE constraint failed"):
		return uniqueConstraint
	case se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, strings.Contains(se.Error(), "FOREIGN KEY constraint failed"):
		return foreignKeyConstraint
	default:
		return otherConstraint
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(storage.TimeLayout)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(storage.TimeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed stored time %q: %w", raw, err)
	}
	return t, nil
}

func traceContext(ctx context.Context, traceparent, tracestate string) (string, string) {
	if traceparent != "" || tracestate != "" {
		return traceparent, tracestate
	}
	return otelx.TraceContextStrings(ctx)
}
