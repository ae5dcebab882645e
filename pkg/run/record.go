// Package run builds the per-run summary record and the bounded trend window
// used for historical charting.
package run

import (
	"math"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/dkoosis/runledger/pkg/result"
)

// RunRecord is the immutable summary of one completed run.
type RunRecord struct {
	Timestamp       time.Time `json:"timestamp"`
	Modules         []string  `json:"modules"`
	Total           int       `json:"total"`
	Passed          int       `json:"passed"`
	Failed          int       `json:"failed"`
	Skipped         int       `json:"skipped"`
	DurationSeconds float64   `json:"duration"`
	ReportPath      string    `json:"report_path,omitempty"`
	PassRate        float64   `json:"pass_rate"`
	Flaky           int       `json:"flaky,omitempty"`
	Partial         bool      `json:"partial,omitempty"`
}

// PassRate returns passed/total as a percentage, 0 when total is 0.
func PassRate(passed, total int) float64 {
	if total <= 0 {
		return 0
	}
	rate := float64(passed) / float64(total) * 100
	return math.Min(math.Max(rate, 0), 100)
}

// Aggregator turns reconciled results into a RunRecord.
type Aggregator struct {
	// Now stamps the record. Defaults to time.Now.
	Now func() time.Time
}

// Aggregate resolves records per id and counts each id once.
func (a Aggregator) Aggregate(records []result.TestCaseRecord, elapsed time.Duration, modules []string) RunRecord {
	order := lo.Uniq(lo.Map(records, func(r result.TestCaseRecord, _ int) string { return r.ID }))
	byID := lo.GroupBy(records, func(r result.TestCaseRecord) string { return r.ID })
	resolutions := make([]result.Resolution, 0, len(order))
	for _, id := range order {
		resolutions = append(resolutions, result.Resolve(id, byID[id]))
	}
	return a.AggregateResolved(resolutions, elapsed, modules)
}

// AggregateResolved counts already-resolved ids. Error counts as failed.
func (a Aggregator) AggregateResolved(resolutions []result.Resolution, elapsed time.Duration, modules []string) RunRecord {
	now := a.Now
	if now == nil {
		now = time.Now
	}
	rec := RunRecord{
		Timestamp:       now(),
		Modules:         slices.Clone(modules),
		DurationSeconds: elapsed.Seconds(),
	}
	if rec.Modules == nil {
		rec.Modules = []string{}
	}

	seen := make(map[string]struct{}, len(resolutions))
	for _, res := range resolutions {
		if _, dup := seen[res.ID]; dup {
			continue
		}
		seen[res.ID] = struct{}{}
		rec.Total++
		switch {
		case res.Final.IsFailure():
			rec.Failed++
		case res.Final == result.Skipped:
			rec.Skipped++
		case res.Final == result.Passed:
			rec.Passed++
		}
		if res.Flaky() {
			rec.Flaky++
		}
	}
	rec.PassRate = PassRate(rec.Passed, rec.Total)
	return rec
}

// WithCounts overrides the tallies, used when a partial run produced no
// per-case records but the framework printed its own totals.
func (r RunRecord) WithCounts(passed, failed, skipped int) RunRecord {
	r.Passed, r.Failed, r.Skipped = passed, failed, skipped
	r.Total = passed + failed + skipped
	r.PassRate = PassRate(r.Passed, r.Total)
	return r
}
