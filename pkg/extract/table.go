package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"
	"github.com/samber/lo"

	"github.com/dkoosis/runledger/internal/logging"
	"github.com/dkoosis/runledger/pkg/result"
)

// ErrNoTable is returned when the document holds neither a static results
// table nor an embedded results blob.
var ErrNoTable = errors.New("no results table found")

// RowKind classifies a results-table row before any field is read.
type RowKind int

const (
	RowUnknown RowKind = iota
	RowResult
	RowDetail
)

func (k RowKind) String() string {
	switch k {
	case RowResult:
		return "result"
	case RowDetail:
		return "detail"
	default:
		return "unknown"
	}
}

// TableStats counts what the table pass saw.
type TableStats struct {
	Rows         int
	Results      int
	Details      int
	Unknown      int
	BadDurations int
}

// ParseTable reads the rendered results document and returns one record per
// primary result row, in row order. Duplicate rows for one id (a rerun
// followed by the final attempt) are all kept.
func ParseTable(r io.Reader, logger *log.Logger) ([]result.TestCaseRecord, TableStats, error) {
	if logger == nil {
		logger = log.Default()
	}
	var stats TableStats

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, stats, fmt.Errorf("parsing results document: %w", err)
	}

	table := doc.Find("table#results-table").First()
	if table.Length() == 0 {
		table = doc.Find("table.results").First()
	}
	if table.Length() == 0 {
		if blob, ok := doc.Find("#data-container").Attr("data-jsonblob"); ok {
			return parseJSONBlob(blob, logger)
		}
		return nil, stats, ErrNoTable
	}

	var records []result.TestCaseRecord
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		if row.ChildrenFiltered("td").Length() == 0 {
			return
		}
		stats.Rows++
		switch kind := classifyRow(row); kind {
		case RowResult:
			rec, ok := readResultRow(row, logger, &stats)
			if !ok {
				stats.Unknown++
				return
			}
			stats.Results++
			records = append(records, rec)
		case RowDetail:
			stats.Details++
			attachDetail(records, row.Find(".log").First().Text())
		default:
			stats.Unknown++
			logger.Debug("skipping unrecognized table row",
				"kind", logging.KindExtractionAmbiguity, "row", stats.Rows, "text", truncate(row.Text(), 80))
		}
	})
	return records, stats, nil
}

// classifyRow decides the row variant from markup alone.
func classifyRow(row *goquery.Selection) RowKind {
	cells := row.ChildrenFiltered("td")
	if row.HasClass("extras-row") || row.HasClass("extra") || cells.Filter(".extra").Length() > 0 {
		return RowDetail
	}
	if cells.Length() == 1 {
		if span, _ := strconv.Atoi(cells.AttrOr("colspan", "1")); span > 1 {
			return RowDetail
		}
	}
	if cells.Filter(".col-result").Length() > 0 {
		return RowResult
	}
	if cells.Length() >= 3 {
		if _, ok := result.ParseOutcome(cells.Eq(0).Text()); ok {
			return RowResult
		}
	}
	return RowUnknown
}

func readResultRow(row *goquery.Selection, logger *log.Logger, stats *TableStats) (result.TestCaseRecord, bool) {
	cells := row.ChildrenFiltered("td")
	pick := func(selector string, pos int) string {
		if c := cells.Filter(selector).First(); c.Length() > 0 {
			return strings.TrimSpace(c.Text())
		}
		return strings.TrimSpace(cells.Eq(pos).Text())
	}

	outcome, ok := result.ParseOutcome(pick(".col-result", 0))
	if !ok {
		logger.Debug("unparsable result cell", "kind", logging.KindExtractionAmbiguity, "row", stats.Rows)
		return result.TestCaseRecord{}, false
	}
	id := result.Normalize(pick(".col-name, .col-testId", 1))
	if !result.LooksLikeID(id) {
		logger.Debug("unparsable name cell", "kind", logging.KindExtractionAmbiguity, "row", stats.Rows, "name", id)
		return result.TestCaseRecord{}, false
	}
	rec := result.TestCaseRecord{ID: id, Outcome: outcome}
	rec.Duration = readDuration(pick(".col-duration", 2), id, logger, stats)
	return rec, true
}

func readDuration(cell, id string, logger *log.Logger, stats *TableStats) float64 {
	if strings.TrimSpace(cell) == "" {
		return 0
	}
	d, ok := ParseDuration(cell)
	if !ok {
		stats.BadDurations++
		logger.Debug("unparsable duration, using 0",
			"kind", logging.KindExtractionAmbiguity, "id", id, "duration", cell)
		return 0
	}
	return d
}

// attachDetail gives a failed row the log text of the detail row under it.
func attachDetail(records []result.TestCaseRecord, text string) {
	if len(records) == 0 || strings.TrimSpace(text) == "" {
		return
	}
	last := &records[len(records)-1]
	if last.Outcome.IsFailure() && last.ErrorText == "" {
		last.ErrorText = capText(strings.Split(strings.TrimSpace(text), "\n"))
	}
}

// jsonBlob is the results payload newer report versions embed instead of
// static rows.
type jsonBlob struct {
	Tests map[string][]jsonTest `json:"tests"`
}

type jsonTest struct {
	TestID          string   `json:"testId"`
	Result          string   `json:"result"`
	Duration        string   `json:"duration"`
	Log             string   `json:"log"`
	ResultsTableRow []string `json:"resultsTableRow"`
}

func parseJSONBlob(blob string, logger *log.Logger) ([]result.TestCaseRecord, TableStats, error) {
	var stats TableStats
	var payload jsonBlob
	if err := json.Unmarshal([]byte(blob), &payload); err != nil {
		return nil, stats, fmt.Errorf("decoding results blob: %w", err)
	}

	keys := lo.Keys(payload.Tests)
	slices.Sort(keys)

	var records []result.TestCaseRecord
	for _, key := range keys {
		for _, t := range payload.Tests[key] {
			stats.Rows++
			outcome, ok := result.ParseOutcome(t.Result)
			id := result.Normalize(lo.Ternary(t.TestID != "", t.TestID, key))
			if !ok || !result.LooksLikeID(id) {
				stats.Unknown++
				logger.Debug("skipping unrecognized blob entry", "kind", logging.KindExtractionAmbiguity, "key", key)
				continue
			}
			dur := t.Duration
			if dur == "" {
				dur = durationFromRowHTML(t.ResultsTableRow)
			}
			rec := result.TestCaseRecord{ID: id, Outcome: outcome}
			rec.Duration = readDuration(dur, id, logger, &stats)
			if outcome.IsFailure() && strings.TrimSpace(t.Log) != "" {
				rec.ErrorText = capText(strings.Split(strings.TrimSpace(t.Log), "\n"))
			}
			stats.Results++
			records = append(records, rec)
		}
	}
	return records, stats, nil
}

func durationFromRowHTML(cells []string) string {
	if len(cells) == 0 {
		return ""
	}
	frag := "<table><tr>" + strings.Join(cells, "") + "</tr></table>"
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(frag))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("td.col-duration").First().Text())
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
