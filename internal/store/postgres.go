package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"formledger/internal/logger"
)

// PostgreSQL error codes the store distinguishes.
const (
	pgUniqueViolation  = "23505"
	pgNotNullViolation = "23502"
)

// PostgresConfig holds the connection settings.
type PostgresConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// DefaultPostgresConfig returns pool settings suitable for the CLI.
func DefaultPostgresConfig(dsn string) PostgresConfig {
	return PostgresConfig{
		DSN:             dsn,
		Table:           DefaultTable,
		MaxConns:        4,
		MinConns:        0,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
		DialTimeout:     5 * time.Second,
	}
}

// PostgresStore writes records to a PostgreSQL table through a pgx pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	table  string
	insert string
	log    zerolog.Logger
}

// OpenPostgres connects, pings and makes sure the table exists.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	const op = "OpenPostgres"

	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if err := checkTable(op, cfg.Table); err != nil {
		return nil, err
	}

	log := logger.WithComponent("postgres")

	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, WrapStoreError(op, err, "invalid DATABASE_URL")
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "formledger"

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, WrapStoreError(op, ErrConnectivity, err.Error())
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, WrapStoreError(op, ErrConnectivity, err.Error())
	}

	table := pgx.Identifier{cfg.Table}.Sanitize()
	s := &PostgresStore{
		pool:   pool,
		table:  cfg.Table,
		insert: fmt.Sprintf("INSERT INTO %s (id, document_number, time, status) VALUES ($1, $2, $3, $4)", table),
		log:    log,
	}

	if err := s.ensureTable(ctx, table); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().Str("table", cfg.Table).Msg("Connected to PostgreSQL")
	return s, nil
}

func (s *PostgresStore) ensureTable(ctx context.Context, table string) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id              TEXT NOT NULL,
	document_number TEXT NOT NULL,
	time            TEXT NOT NULL,
	status          TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (document_number, time)
)`, table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return WrapStoreError("ensureTable", classifyPostgresError(err), fmt.Sprintf("create table %s", s.table))
	}
	return nil
}

// Insert writes one record. Empty fields are sent as NULL.
func (s *PostgresStore) Insert(ctx context.Context, rec Record) error {
	const op = "Insert"

	_, err := s.pool.Exec(ctx, s.insert,
		nullable(rec.ID), nullable(rec.DocumentNumber), nullable(rec.Time), nullable(rec.Status))
	if err != nil {
		classified := classifyPostgresError(err)
		s.log.Warn().
			Err(err).
			Str("document_number", rec.DocumentNumber).
			Str("time", rec.Time).
			Msg("Insert rejected")
		return WrapStoreError(op, classified, rec.Label())
	}

	s.log.Debug().
		Str("document_number", rec.DocumentNumber).
		Str("time", rec.Time).
		Msg("Record inserted")
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// classifyPostgresError maps a pgx error to the package sentinels.
func classifyPostgresError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		case pgNotNullViolation:
			return fmt.Errorf("%w: %s", ErrNullConstraint, pgErr.ColumnName)
		}
		return fmt.Errorf("%w: %s (%s)", ErrInsertFailed, pgErr.Message, pgErr.Code)
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.Timeout(err) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrConnectivity, err)
	}
	return fmt.Errorf("%w: %v", ErrInsertFailed, err)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
