// Package store persists ledgers in a SQLite database.
//
// A ledger is saved as a whole: Save replaces every record of a portfolio
// inside one SQL transaction, so a failed save leaves the previous state in
// place. Schema changes are applied by embedded migrations when the
// database is opened.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a SQLite ledger database.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens, creating it if needed, the database at path and migrates it
// to the latest schema.
func Open(ctx context.Context, path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	// One connection: SQLite has a single writer.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database %s: %w", path, err)
	}
	s := New(db, log)
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	log.Debug("database opened", "path", path)
	return s, nil
}

// New wraps an open database without migrating it.
func New(db *sql.DB, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, log: log}
}

// Migrate applies every pending migration.
func (s *Store) Migrate() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migration: %w", err)
	}
	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		s.log.Debug("database schema up to date")
	case err != nil:
		return fmt.Errorf("apply migrations: %w", err)
	default:
		s.log.Info("database migrations applied")
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }
