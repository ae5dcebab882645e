package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"

	"github.com/dkoosis/runledger/pkg/run"
)

const (
	// TimestampLayout names history files and report documents.
	TimestampLayout = "20060102_150405"

	recordPrefix   = "result_"
	recordExt      = ".json"
	lockFile       = ".history.lock"
	lockRetryDelay = 50 * time.Millisecond
	dirPerms       = 0o755
	filePerms      = 0o644
)

// FileStore keeps one JSON document per run in a directory.
type FileStore struct {
	dir    string
	logger *log.Logger
}

// NewFileStore returns a store rooted at dir. The directory is created on
// first Append.
func NewFileStore(dir string, logger *log.Logger) *FileStore {
	if logger == nil {
		logger = log.Default()
	}
	return &FileStore{dir: dir, logger: logger}
}

// Dir returns the store's directory.
func (s *FileStore) Dir() string { return s.dir }

// Append writes rec to result_<timestamp>.json, adding _N on collision.
// Writes go through a temp file and rename so readers see whole records.
func (s *FileStore) Append(ctx context.Context, rec run.RunRecord) error {
	if err := os.MkdirAll(s.dir, dirPerms); err != nil {
		return fmt.Errorf("creating results dir: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding run record: %w", err)
	}

	lock := flock.New(filepath.Join(s.dir, lockFile))
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("locking results dir: %w", err)
	}
	if !locked {
		return fmt.Errorf("locking results dir: %w", ctx.Err())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Debug("unlocking results dir", "error", err)
		}
	}()

	path, err := s.freeName(rec.Timestamp)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(path, data, filePerms); err != nil {
		return fmt.Errorf("writing run record: %w", err)
	}
	return nil
}

func (s *FileStore) freeName(ts time.Time) (string, error) {
	base := recordPrefix + ts.Format(TimestampLayout)
	for n := 0; n < 1000; n++ {
		name := base
		if n > 0 {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		path := filepath.Join(s.dir, name+recordExt)
		_, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("checking %s: %w", path, err)
		}
	}
	return "", fmt.Errorf("no free record name for %s", base)
}

// List decodes every record file; unreadable files are skipped with a warning.
func (s *FileStore) List(_ context.Context, limit int) ([]run.RunRecord, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, recordPrefix+"*"+recordExt))
	if err != nil {
		return nil, fmt.Errorf("listing run records: %w", err)
	}
	recs := make([]run.RunRecord, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable run record", "path", path, "error", err)
			continue
		}
		var rec run.RunRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			s.logger.Warn("skipping malformed run record", "path", path, "error", err)
			continue
		}
		if rec.Timestamp.IsZero() {
			rec.Timestamp = timestampFromName(filepath.Base(path), recordPrefix)
		}
		recs = append(recs, rec)
	}
	return newestOldestFirst(recs, limit), nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

// timestampFromName parses "<prefix><YYYYMMDD_HHMMSS>[_N].<ext>".
func timestampFromName(name, prefix string) time.Time {
	name = strings.TrimPrefix(name, prefix)
	if len(name) < len(TimestampLayout) {
		return time.Time{}
	}
	ts, err := time.ParseInLocation(TimestampLayout, name[:len(TimestampLayout)], time.Local)
	if err != nil {
		return time.Time{}
	}
	return ts
}
