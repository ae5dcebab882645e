package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure Go driver

	"github.com/dkoosis/runledger/pkg/run"
)

// sqliteTimeLayout is fixed width so text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore keeps run records in an embedded SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite history needs a database path")
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPerms); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS run_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			execution_time TEXT NOT NULL,
			modules TEXT NOT NULL,
			total INTEGER NOT NULL,
			passed INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			duration REAL NOT NULL,
			pass_rate REAL NOT NULL,
			report_path TEXT,
			flaky INTEGER NOT NULL DEFAULT 0,
			partial INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_records_execution_time ON run_records(execution_time)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("history migration failed: %w", err)
		}
	}
	return nil
}

// Append inserts rec in a single statement.
func (s *SQLiteStore) Append(ctx context.Context, rec run.RunRecord) error {
	modules, err := json.Marshal(rec.Modules)
	if err != nil {
		return fmt.Errorf("encoding modules: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO run_records
			(execution_time, modules, total, passed, failed, skipped, duration, pass_rate, report_path, flaky, partial)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.UTC().Format(sqliteTimeLayout), string(modules),
		rec.Total, rec.Passed, rec.Failed, rec.Skipped,
		rec.DurationSeconds, rec.PassRate, rec.ReportPath, rec.Flaky, rec.Partial,
	)
	if err != nil {
		return fmt.Errorf("inserting run record: %w", err)
	}
	return nil
}

// List returns the newest limit records, oldest first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]run.RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT execution_time, modules, total, passed, failed, skipped, duration, pass_rate,
			COALESCE(report_path, ''), flaky, partial
		FROM run_records ORDER BY execution_time DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying run records: %w", err)
	}
	defer rows.Close()

	var recs []run.RunRecord
	for rows.Next() {
		var (
			rec     run.RunRecord
			ts      string
			modules string
		)
		if err := rows.Scan(&ts, &modules, &rec.Total, &rec.Passed, &rec.Failed, &rec.Skipped,
			&rec.DurationSeconds, &rec.PassRate, &rec.ReportPath, &rec.Flaky, &rec.Partial); err != nil {
			return nil, fmt.Errorf("scanning run record: %w", err)
		}
		if rec.Timestamp, err = time.Parse(sqliteTimeLayout, ts); err != nil {
			return nil, fmt.Errorf("parsing execution_time %q: %w", ts, err)
		}
		if err := json.Unmarshal([]byte(modules), &rec.Modules); err != nil {
			return nil, fmt.Errorf("decoding modules: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run records: %w", err)
	}
	return newestOldestFirst(recs, 0), nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
