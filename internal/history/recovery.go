package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkoosis/runledger/pkg/run"
)

// RunRecordElementID is the id of the script element a rendered report
// embeds its RunRecord in.
const RunRecordElementID = "run-record"

// ReplayMetaName names the meta element marking a report rebuilt from saved
// artifacts. Its run was already recorded by the original report.
const ReplayMetaName = "runledger-replay"

var errReplay = errors.New("report is a replay")

const (
	defaultRecoveryFiles   = 30
	defaultRecoveryWorkers = 4
)

var summaryFieldRes = map[string]*regexp.Regexp{
	"total":    regexp.MustCompile(`(?i)total(?:\s+tests)?\s*[:：]?\s*(\d+)`),
	"passed":   regexp.MustCompile(`(?i)passed\s*[:：]?\s*(\d+)`),
	"failed":   regexp.MustCompile(`(?i)failed\s*[:：]?\s*(\d+)`),
	"skipped":  regexp.MustCompile(`(?i)skipped\s*[:：]?\s*(\d+)`),
	"duration": regexp.MustCompile(`(?i)duration\s*[:：]?\s*([\d.]+)\s*s`),
}

// Recovery rebuilds approximate RunRecords from report documents left in a
// directory. It is best effort: unreadable documents are skipped.
type Recovery struct {
	Dir    string
	Prefix string
	// MaxFiles bounds how many of the newest documents are read.
	MaxFiles int
	Workers  int
	Logger   *log.Logger
}

type reportFile struct {
	path string
	ts   time.Time
}

// Recover returns the recovered records, oldest first.
func (r Recovery) Recover(ctx context.Context) ([]run.RunRecord, error) {
	logger := r.Logger
	if logger == nil {
		logger = log.Default()
	}
	files, err := r.candidates()
	if err != nil {
		return nil, err
	}

	results := make([]*run.RunRecord, len(files))
	g, gctx := errgroup.WithContext(ctx)
	workers := r.Workers
	if workers <= 0 {
		workers = defaultRecoveryWorkers
	}
	g.SetLimit(workers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := recoverOne(f)
			if err != nil {
				logger.Debug("skipping report during recovery", "path", f.path, "error", err)
				return nil
			}
			results[i] = &rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("recovering history: %w", err)
	}

	var recs []run.RunRecord
	for _, rec := range results {
		if rec != nil {
			recs = append(recs, *rec)
		}
	}
	return newestOldestFirst(recs, 0), nil
}

func (r Recovery) candidates() ([]reportFile, error) {
	if r.Dir == "" {
		return nil, nil
	}
	pattern, namePrefix := "*.html", ""
	if r.Prefix != "" {
		pattern, namePrefix = r.Prefix+"_*.html", r.Prefix+"_"
	}
	matches, err := filepath.Glob(filepath.Join(r.Dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}

	files := make([]reportFile, 0, len(matches))
	for _, path := range matches {
		ts := timestampFromName(filepath.Base(path), namePrefix)
		if ts.IsZero() {
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			ts = info.ModTime()
		}
		files = append(files, reportFile{path: path, ts: ts})
	}
	slices.SortFunc(files, func(a, b reportFile) int { return b.ts.Compare(a.ts) })

	limit := r.MaxFiles
	if limit <= 0 {
		limit = defaultRecoveryFiles
	}
	if len(files) > limit {
		files = files[:limit]
	}
	return files, nil
}

// recoverOne prefers the embedded record and falls back to scraping the
// summary text.
func recoverOne(f reportFile) (run.RunRecord, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return run.RunRecord{}, err
	}
	defer fh.Close()

	doc, err := goquery.NewDocumentFromReader(fh)
	if err != nil {
		return run.RunRecord{}, err
	}

	if doc.Find(`meta[name="` + ReplayMetaName + `"]`).Length() > 0 {
		return run.RunRecord{}, errReplay
	}

	if raw := strings.TrimSpace(doc.Find(`script#` + RunRecordElementID).First().Text()); raw != "" {
		var rec run.RunRecord
		if err := json.Unmarshal([]byte(raw), &rec); err == nil {
			if rec.Timestamp.IsZero() {
				rec.Timestamp = f.ts
			}
			rec.ReportPath = f.path
			return rec, nil
		}
	}

	text := doc.Find("body").Text()
	counts := map[string]float64{}
	for field, re := range summaryFieldRes {
		if m := re.FindStringSubmatch(text); m != nil {
			v, err := strconv.ParseFloat(m[1], 64)
			if err == nil {
				counts[field] = v
			}
		}
	}
	total, ok := counts["total"]
	if !ok {
		return run.RunRecord{}, fmt.Errorf("no summary found")
	}
	rec := run.RunRecord{
		Timestamp:       f.ts,
		Modules:         []string{},
		Total:           int(total),
		Passed:          int(counts["passed"]),
		Failed:          int(counts["failed"]),
		Skipped:         int(counts["skipped"]),
		DurationSeconds: counts["duration"],
		ReportPath:      f.path,
	}
	rec.PassRate = run.PassRate(rec.Passed, rec.Total)
	return rec, nil
}
