package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"formledger/internal/logger"
)

// SQLiteConfig holds the database file and table.
type SQLiteConfig struct {
	// Path is a file path or ":memory:".
	Path  string
	Table string
}

// SQLiteStore writes records to a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	table  string
	insert string
	log    zerolog.Logger
}

// OpenSQLite opens the database and makes sure the table exists.
func OpenSQLite(ctx context.Context, cfg SQLiteConfig) (*SQLiteStore, error) {
	const op = "OpenSQLite"

	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if err := checkTable(op, cfg.Table); err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, NewStoreError(op, ErrConnectivity, "empty database path")
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, WrapStoreError(op, ErrConnectivity, err.Error())
	}
	// Every connection to ":memory:" is a different database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, WrapStoreError(op, ErrConnectivity, err.Error())
	}

	s := &SQLiteStore{
		db:     db,
		table:  cfg.Table,
		insert: fmt.Sprintf(`INSERT INTO "%s" (id, document_number, time, status) VALUES (?, ?, ?, ?)`, cfg.Table),
		log:    logger.WithComponent("sqlite"),
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (
	id              TEXT NOT NULL,
	document_number TEXT NOT NULL,
	time            TEXT NOT NULL,
	status          TEXT NOT NULL,
	created_at      TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (document_number, time)
)`, cfg.Table)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, WrapStoreError(op, classifySQLiteError(err), fmt.Sprintf("create table %s", cfg.Table))
	}

	s.log.Info().Str("path", cfg.Path).Str("table", cfg.Table).Msg("Opened SQLite store")
	return s, nil
}

// Insert writes one record. Empty fields are sent as NULL.
func (s *SQLiteStore) Insert(ctx context.Context, rec Record) error {
	const op = "Insert"

	_, err := s.db.ExecContext(ctx, s.insert,
		nullable(rec.ID), nullable(rec.DocumentNumber), nullable(rec.Time), nullable(rec.Status))
	if err != nil {
		s.log.Warn().
			Err(err).
			Str("document_number", rec.DocumentNumber).
			Str("time", rec.Time).
			Msg("Insert rejected")
		return WrapStoreError(op, classifySQLiteError(err), rec.Label())
	}
	return nil
}

// Records returns every stored record ordered by insertion.
func (s *SQLiteStore) Records(ctx context.Context) ([]Record, error) {
	const op = "Records"

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, document_number, time, status FROM "%s" ORDER BY rowid`, s.table))
	if err != nil {
		return nil, WrapStoreError(op, classifySQLiteError(err), "")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.DocumentNumber, &rec.Time, &rec.Status); err != nil {
			return nil, WrapStoreError(op, err, "scan")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// classifySQLiteError maps a driver error to the package sentinels. The
// driver reports extended result codes.
func classifySQLiteError(err error) error {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, sql.ErrConnDone) {
			return fmt.Errorf("%w: %v", ErrConnectivity, err)
		}
		return fmt.Errorf("%w: %v", ErrInsertFailed, err)
	}

	switch code := sqliteErr.Code(); code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("%w: %s", ErrDuplicate, sqliteErr.Error())
	case sqlite3.SQLITE_CONSTRAINT_NOTNULL:
		return fmt.Errorf("%w: %s", ErrNullConstraint, sqliteErr.Error())
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR:
		return fmt.Errorf("%w: %s", ErrConnectivity, sqliteErr.Error())
	default:
		// primary code only, when extended codes are off
		msg := sqliteErr.Error()
		if code&0xff == sqlite3.SQLITE_CONSTRAINT {
			switch {
			case strings.Contains(msg, "UNIQUE"):
				return fmt.Errorf("%w: %s", ErrDuplicate, msg)
			case strings.Contains(msg, "NOT NULL"):
				return fmt.Errorf("%w: %s", ErrNullConstraint, msg)
			}
		}
		return fmt.Errorf("%w: %s", ErrInsertFailed, msg)
	}
}
