package extract

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/samber/lo"

	"github.com/dkoosis/runledger/internal/logging"
	"github.com/dkoosis/runledger/pkg/result"
)

// Extraction is the merged view of both passes for one run.
type Extraction struct {
	// Records holds one record per table row, or per console observation for
	// ids the table never mentions, ordered by first appearance.
	Records []result.TestCaseRecord
	// Resolutions holds exactly one verdict per distinct id, in the same order.
	Resolutions []result.Resolution
	Summary     Summary
	Ambiguities int
	Table       TableStats
}

// Reconcile merges the line pass and the table rows. rc supplies the
// execution order; ids only the table knows are appended after it in row
// order and registered in rc.
func Reconcile(lines LineResult, rows []result.TestCaseRecord, rc *RunContext) Extraction {
	if rc == nil {
		rc = NewRunContext()
	}
	for _, ob := range lines.Observations {
		rc.Observe(ob.ID)
	}
	for _, row := range rows {
		rc.Observe(row.ID)
	}

	lineByID := lo.GroupBy(lines.Observations, func(ob Observation) string { return ob.ID })
	rowsByID := lo.GroupBy(rows, func(r result.TestCaseRecord) string { return r.ID })

	out := Extraction{
		Summary:     lines.Summary,
		Ambiguities: lines.Ambiguities,
	}
	for _, id := range rc.Order() {
		lineSeq := lo.Map(lineByID[id], func(ob Observation, _ int) result.TestCaseRecord {
			return result.TestCaseRecord{ID: id, Outcome: ob.Outcome, ErrorText: ob.ErrorText}
		})
		tableSeq := rowsByID[id]
		if len(lineSeq) == 0 && len(tableSeq) == 0 {
			continue
		}

		var recs []result.TestCaseRecord
		if len(tableSeq) > 0 {
			recs = append(recs, tableSeq...)
			fillErrorText(recs, lineSeq)
		} else {
			recs = append(recs, lineSeq...)
			if d, ok := lines.Durations[id]; ok {
				recs[len(recs)-1].Duration = d
			}
		}
		for i := range recs {
			if !recs[i].Outcome.IsFailure() {
				recs[i].ErrorText = ""
			}
		}

		out.Records = append(out.Records, recs...)
		out.Resolutions = append(out.Resolutions, result.Resolve(id, lineSeq, tableSeq))
	}
	return out
}

// fillErrorText copies the console's error block onto failed table rows
// that carry none. Console text wins over the table's detail log.
func fillErrorText(recs, lineSeq []result.TestCaseRecord) {
	var text string
	for _, ob := range lineSeq {
		if ob.Outcome.IsFailure() && ob.ErrorText != "" {
			text = ob.ErrorText
		}
	}
	if text == "" {
		return
	}
	for i := range recs {
		if recs[i].Outcome.IsFailure() {
			recs[i].ErrorText = text
		}
	}
}

// Extract runs both passes over finished artifacts. table may be nil when no
// results document was produced.
func Extract(lines []string, table io.Reader, logger *log.Logger) (Extraction, error) {
	if logger == nil {
		logger = log.Default()
	}
	rc := NewRunContext()
	scanner := NewLineScanner(WithRunContext(rc), WithLogger(logger))
	for _, l := range lines {
		scanner.Feed(l)
	}

	var rows []result.TestCaseRecord
	var stats TableStats
	if table != nil {
		var err error
		rows, stats, err = ParseTable(table, logger)
		switch {
		case errors.Is(err, ErrNoTable):
			logger.Warn("results document has no table, using console stream only", "kind", logging.KindExtractionAmbiguity)
		case err != nil:
			return Extraction{}, fmt.Errorf("table pass: %w", err)
		}
	}

	ex := Reconcile(scanner.Result(), rows, rc)
	ex.Table = stats
	ex.Ambiguities += stats.Unknown + stats.BadDurations
	return ex, nil
}

// SplitLines is a helper for callers holding the raw stream as one string.
func SplitLines(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	return strings.Split(strings.TrimRight(raw, "\n"), "\n")
}
