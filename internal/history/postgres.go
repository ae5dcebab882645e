package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkoosis/runledger/pkg/run"
)

const (
	defaultMaxConns = 4
	defaultMinConns = 0
)

// Schema is the Postgres DDL for run records.
const Schema = `CREATE TABLE IF NOT EXISTS run_records (
	id BIGSERIAL PRIMARY KEY,
	execution_time TIMESTAMPTZ NOT NULL,
	modules TEXT[] NOT NULL,
	total INTEGER NOT NULL,
	passed INTEGER NOT NULL,
	failed INTEGER NOT NULL,
	skipped INTEGER NOT NULL,
	duration DOUBLE PRECISION NOT NULL,
	pass_rate DOUBLE PRECISION NOT NULL,
	report_path TEXT,
	flaky INTEGER NOT NULL DEFAULT 0,
	partial BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_run_records_execution_time ON run_records(execution_time);`

// PostgresStore keeps run records in a shared Postgres database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL and applies Schema.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	config.MaxConns = defaultMaxConns
	config.MinConns = defaultMinConns

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreFromPool wraps an existing pool. Schema must already exist.
func NewPostgresStoreFromPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Append inserts rec.
func (s *PostgresStore) Append(ctx context.Context, rec run.RunRecord) error {
	modules := rec.Modules
	if modules == nil {
		modules = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_records
			(execution_time, modules, total, passed, failed, skipped, duration, pass_rate, report_path, flaky, partial)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.Timestamp, modules, rec.Total, rec.Passed, rec.Failed, rec.Skipped,
		rec.DurationSeconds, rec.PassRate, rec.ReportPath, rec.Flaky, rec.Partial,
	)
	if err != nil {
		return fmt.Errorf("insert run record: %w", err)
	}
	return nil
}

// List returns the newest limit records, oldest first.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]run.RunRecord, error) {
	query := `SELECT execution_time, modules, total, passed, failed, skipped, duration, pass_rate,
			COALESCE(report_path, ''), flaky, partial
		FROM run_records ORDER BY execution_time DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query run records: %w", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (run.RunRecord, error) {
		var rec run.RunRecord
		err := row.Scan(&rec.Timestamp, &rec.Modules, &rec.Total, &rec.Passed, &rec.Failed, &rec.Skipped,
			&rec.DurationSeconds, &rec.PassRate, &rec.ReportPath, &rec.Flaky, &rec.Partial)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan run records: %w", err)
	}
	return newestOldestFirst(recs, 0), nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
