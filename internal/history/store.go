// Package history persists RunRecords and serves the trend window. The
// primary store is a directory of JSON files, SQLite, or Postgres; when it is
// empty the window is rebuilt from previously rendered report documents.
package history

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/dkoosis/runledger/pkg/run"
)

// ErrNoHistory is returned when neither the store nor recovery yields a run.
var ErrNoHistory = errors.New("no run history")

// Store is append-only RunRecord persistence. Append is atomic per call: a
// concurrent List never observes a partially written record.
type Store interface {
	Append(ctx context.Context, rec run.RunRecord) error
	// List returns up to limit of the newest records, oldest first.
	// limit <= 0 returns everything.
	List(ctx context.Context, limit int) ([]run.RunRecord, error)
	Close() error
}

// Backend names a Store implementation.
type Backend string

const (
	BackendFile     Backend = "file"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// Options selects and configures a Store.
type Options struct {
	Backend Backend
	// Dir is the results directory for the file backend.
	Dir string
	// DSN is the SQLite path or Postgres connection URL.
	DSN    string
	Logger *log.Logger
}

// Open returns the Store named by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendFile, "":
		return NewFileStore(opts.Dir, opts.Logger), nil
	case BackendSQLite:
		return NewSQLiteStore(opts.DSN)
	case BackendPostgres:
		return NewPostgresStore(ctx, opts.DSN)
	default:
		return nil, fmt.Errorf("unknown history backend %q", opts.Backend)
	}
}

// newestOldestFirst sorts by timestamp and keeps the newest limit entries.
func newestOldestFirst(recs []run.RunRecord, limit int) []run.RunRecord {
	slices.SortStableFunc(recs, func(a, b run.RunRecord) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	return recs
}
