// Package store persists locally created events and the AI settings record
// in a single SQLite database.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	sqlite3migrate "github.com/golang-migrate/migrate/v4/database/sqlite3"

	appLog "promptcal/internal/log"
	"promptcal/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// ErrNotFound is returned when a key or row does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the database at path and applies
// migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating database dir: %w", err)
	}

	db, err := sqlx.Open("sqlite3", fmt.Sprintf("file:%s?mode=rwc&_journal_mode=WAL&_busy_timeout=5000", path))
	if err != nil {
		return nil, err
	}
	db.DB.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}

	if err := migrateUp(db.DB); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("opening migrations: %w", err)
	}
	drv, err := sqlite3migrate.WithInstance(db, &sqlite3migrate.Config{})
	if err != nil {
		return fmt.Errorf("making migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", drv)
	if err != nil {
		return fmt.Errorf("making migration: %w", err)
	}

	before, dirty, err := version(m)
	if err != nil {
		return fmt.Errorf("cannot get current migration version: %w", err)
	}
	if dirty {
		return errors.New("migrate up: database is dirty")
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrating: %w", err)
	}
	after, _, err := version(m)
	if err != nil {
		return fmt.Errorf("cannot get new migration version: %w", err)
	}
	if after != before {
		appLog.Info("database migrated", "from", before, "to", after)
	}
	return nil
}

func version(m *migrate.Migrate) (uint, bool, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM kv WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading key %q: %w", key, err)
	}
	return value, nil
}

// Put replaces the value stored under key.
func (s *Store) Put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("writing key %q: %w", key, err)
	}
	return nil
}

type eventRow struct {
	ID          string `db:"id"`
	Title       string `db:"title"`
	StartTs     int64  `db:"start_ts"`
	EndTs       int64  `db:"end_ts"`
	AllDay      bool   `db:"all_day"`
	Description string `db:"description"`
	Location    string `db:"location"`
	CreatedAt   int64  `db:"created_at"`
}

func (r eventRow) toEvent(loc *time.Location) model.CalendarEvent {
	return model.CalendarEvent{
		ID:          r.ID,
		Title:       r.Title,
		StartTime:   time.UnixMilli(r.StartTs).In(loc),
		EndTime:     time.UnixMilli(r.EndTs).In(loc),
		AllDay:      r.AllDay,
		Description: r.Description,
		Location:    r.Location,
	}
}

// InsertEvent stores a new local event. The caller assigns the ID.
func (s *Store) InsertEvent(ctx context.Context, ev model.CalendarEvent) error {
	if ev.ID == "" {
		return errors.New("event id is empty")
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO events (id, title, start_ts, end_ts, all_day, description, location, created_at)
		 VALUES (:id, :title, :start_ts, :end_ts, :all_day, :description, :location, :created_at)`,
		eventRow{
			ID:          ev.ID,
			Title:       ev.Title,
			StartTs:     ev.StartTime.UnixMilli(),
			EndTs:       ev.EndTime.UnixMilli(),
			AllDay:      ev.AllDay,
			Description: ev.Description,
			Location:    ev.Location,
			CreatedAt:   time.Now().UnixMilli(),
		})
	if err != nil {
		return fmt.Errorf("inserting event %s: %w", ev.ID, err)
	}
	return nil
}

// ListEvents returns local events overlapping [from, to), converted into loc
// and ordered by start time then insertion order.
func (s *Store) ListEvents(ctx context.Context, from, to time.Time, loc *time.Location) ([]model.CalendarEvent, error) {
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, title, start_ts, end_ts, all_day, description, location, created_at
		 FROM events WHERE start_ts < ? AND end_ts >= ?
		 ORDER BY start_ts, rowid`,
		to.UnixMilli(), from.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return toEvents(rows, loc), nil
}

// AllEvents returns every local event, ordered by start time.
func (s *Store) AllEvents(ctx context.Context, loc *time.Location) ([]model.CalendarEvent, error) {
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, title, start_ts, end_ts, all_day, description, location, created_at
		 FROM events ORDER BY start_ts, rowid`)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return toEvents(rows, loc), nil
}

func toEvents(rows []eventRow, loc *time.Location) []model.CalendarEvent {
	if loc == nil {
		loc = time.Local
	}
	out := make([]model.CalendarEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toEvent(loc))
	}
	return out
}
