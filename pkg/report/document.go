// Package report turns a reconciled run into a report document. Render is
// pure; WriteHTML and Save draw the document once from the full data model.
package report

import (
	"cmp"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dkoosis/runledger/pkg/result"
	"github.com/dkoosis/runledger/pkg/run"
)

const (
	// UnclassifiedGroup collects ids no group mapping matches.
	UnclassifiedGroup = "unclassified"

	// DefaultDurationBars caps the duration chart.
	DefaultDurationBars = 25
)

// Document is the rendered view model of one run.
type Document struct {
	Title       string
	GeneratedAt time.Time
	Record      run.RunRecord
	// NoData marks a run without any test cases; renderers show a
	// placeholder instead of empty charts.
	NoData    bool
	Outcomes  []OutcomeSlice
	Trend     []TrendPoint
	Stats     run.TrendStats
	Durations []DurationBar
	Groups    []GroupRollup
	Failures  []Failure
	// Previous is the run before this one in the window, if any.
	Previous *run.RunRecord
	// Replay marks a document rebuilt from saved artifacts. History
	// recovery ignores replays so a run is never counted twice.
	Replay bool
}

// OutcomeSlice is one band of the outcome distribution.
type OutcomeSlice struct {
	Outcome result.Outcome
	Count   int
	Percent float64
}

// TrendPoint is one run in the trend chart.
type TrendPoint struct {
	Timestamp time.Time
	PassRate  float64
	Duration  float64
	Total     int
	Current   bool
}

// DurationBar is one attempt in the duration chart. Rerun attempts keep
// their own bar.
type DurationBar struct {
	ID      string
	Outcome result.Outcome
	Seconds float64
	// Percent is relative to the slowest attempt shown.
	Percent float64
}

// GroupRollup is the pass rate of one logical group of ids.
type GroupRollup struct {
	Key      string
	Label    string
	Total    int
	Passed   int
	Failed   int
	Skipped  int
	PassRate float64
}

// Failure is one id whose final outcome counts against the run.
type Failure struct {
	ID         string
	Outcome    result.Outcome
	ErrorText  string
	Screenshot string
}

type options struct {
	title        string
	groups       map[string]string
	artifacts    map[string]string
	durationBars int
	resolutions  []result.Resolution
	replay       bool
}

// Option tunes Render.
type Option func(*options)

// WithTitle sets the document title.
func WithTitle(title string) Option {
	return func(o *options) { o.title = title }
}

// WithGroups maps path segments to display group names.
func WithGroups(groups map[string]string) Option {
	return func(o *options) { o.groups = groups }
}

// WithArtifacts attaches failure screenshots by id.
func WithArtifacts(artifacts map[string]string) Option {
	return func(o *options) { o.artifacts = artifacts }
}

// WithResolutions supplies the per-id verdicts the run totals were built
// from. Without it, verdicts are derived from records alone, which misses
// outcomes only the console stream saw.
func WithResolutions(resolutions []result.Resolution) Option {
	return func(o *options) { o.resolutions = resolutions }
}

// WithReplay marks the document as rebuilt from saved artifacts.
func WithReplay() Option {
	return func(o *options) { o.replay = true }
}

// WithDurationBars caps the duration chart at n attempts.
func WithDurationBars(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.durationBars = n
		}
	}
}

// Render builds the document. It performs no I/O.
func Render(rec run.RunRecord, win run.TrendWindow, records []result.TestCaseRecord, opts ...Option) Document {
	o := options{title: "Test run report", durationBars: DefaultDurationBars}
	for _, opt := range opts {
		opt(&o)
	}

	doc := Document{
		Title:       o.title,
		GeneratedAt: rec.Timestamp,
		Record:      rec,
		NoData:      rec.Total == 0 && len(records) == 0 && len(o.resolutions) == 0,
		Stats:       win.Stats(),
		Replay:      o.replay,
	}
	if doc.NoData {
		doc.Trend = trendPoints(win, rec)
		return doc
	}

	resolutions := o.resolutions
	if resolutions == nil {
		resolutions = resolveAll(records)
	}
	doc.Outcomes = outcomeSlices(rec)
	doc.Trend = trendPoints(win, rec)
	doc.Durations = durationBars(records, o.durationBars)
	doc.Groups = groupRollups(resolutions, o.groups)
	doc.Failures = failures(resolutions, records, o.artifacts)
	if n := len(win.Runs); n >= 2 && win.Runs[n-1].Timestamp.Equal(rec.Timestamp) {
		prev := win.Runs[n-2]
		doc.Previous = &prev
	}
	return doc
}

func resolveAll(records []result.TestCaseRecord) []result.Resolution {
	order := lo.Uniq(lo.Map(records, func(r result.TestCaseRecord, _ int) string { return r.ID }))
	byID := lo.GroupBy(records, func(r result.TestCaseRecord) string { return r.ID })
	return lo.Map(order, func(id string, _ int) result.Resolution {
		return result.Resolve(id, byID[id])
	})
}

func outcomeSlices(rec run.RunRecord) []OutcomeSlice {
	bands := []OutcomeSlice{
		{Outcome: result.Passed, Count: rec.Passed},
		{Outcome: result.Failed, Count: rec.Failed},
		{Outcome: result.Skipped, Count: rec.Skipped},
	}
	for i := range bands {
		bands[i].Percent = run.PassRate(bands[i].Count, rec.Total)
	}
	return bands
}

func trendPoints(win run.TrendWindow, rec run.RunRecord) []TrendPoint {
	return lo.Map(win.Runs, func(r run.RunRecord, _ int) TrendPoint {
		return TrendPoint{
			Timestamp: r.Timestamp,
			PassRate:  r.PassRate,
			Duration:  r.DurationSeconds,
			Total:     r.Total,
			Current:   r.Timestamp.Equal(rec.Timestamp),
		}
	})
}

func durationBars(records []result.TestCaseRecord, limit int) []DurationBar {
	bars := lo.Map(records, func(r result.TestCaseRecord, _ int) DurationBar {
		return DurationBar{ID: r.ID, Outcome: r.Outcome, Seconds: r.Duration}
	})
	slices.SortStableFunc(bars, func(a, b DurationBar) int {
		return cmp.Compare(b.Seconds, a.Seconds)
	})
	if len(bars) > limit {
		bars = bars[:limit]
	}
	if len(bars) > 0 && bars[0].Seconds > 0 {
		slowest := bars[0].Seconds
		for i := range bars {
			bars[i].Percent = bars[i].Seconds / slowest * 100
		}
	}
	return bars
}

func groupRollups(resolutions []result.Resolution, groups map[string]string) []GroupRollup {
	byKey := make(map[string]*GroupRollup)
	for _, res := range resolutions {
		key, label := GroupOf(res.ID, groups)
		g, ok := byKey[key]
		if !ok {
			g = &GroupRollup{Key: key, Label: label}
			byKey[key] = g
		}
		g.Total++
		switch {
		case res.Final.IsFailure():
			g.Failed++
		case res.Final == result.Skipped:
			g.Skipped++
		default:
			g.Passed++
		}
	}
	rollups := make([]GroupRollup, 0, len(byKey))
	for _, g := range byKey {
		g.PassRate = run.PassRate(g.Passed, g.Total)
		rollups = append(rollups, *g)
	}
	slices.SortFunc(rollups, func(a, b GroupRollup) int {
		if (a.Key == UnclassifiedGroup) != (b.Key == UnclassifiedGroup) {
			if a.Key == UnclassifiedGroup {
				return 1
			}
			return -1
		}
		return cmp.Compare(a.Label, b.Label)
	})
	return rollups
}

// GroupOf derives an id's group from its file path. With a mapping, the
// first directory segment or file stem found in it wins. Without one, the
// parent directory names the group. Anything else is unclassified.
func GroupOf(id string, groups map[string]string) (key, label string) {
	parsed := result.ParseID(id)
	segments := parsed.Dir()
	if len(groups) > 0 {
		stem := strings.TrimSuffix(path.Base(parsed.File), path.Ext(parsed.File))
		candidates := append(slices.Clone(segments), stem, strings.TrimPrefix(stem, "test_"))
		for _, seg := range candidates {
			if name, ok := groups[seg]; ok {
				return seg, name
			}
		}
		return UnclassifiedGroup, UnclassifiedGroup
	}
	if len(segments) == 0 {
		return UnclassifiedGroup, UnclassifiedGroup
	}
	seg := segments[len(segments)-1]
	return seg, cases.Title(language.Und).String(strings.NewReplacer("_", " ", "-", " ").Replace(seg))
}

func failures(resolutions []result.Resolution, records []result.TestCaseRecord, artifacts map[string]string) []Failure {
	errText := make(map[string]string)
	for _, r := range records {
		if r.Outcome.IsFailure() && r.ErrorText != "" {
			errText[r.ID] = r.ErrorText
		}
	}
	var out []Failure
	for _, res := range resolutions {
		if !res.Final.IsFailure() {
			continue
		}
		out = append(out, Failure{
			ID:         res.ID,
			Outcome:    res.Final,
			ErrorText:  cmp.Or(res.ErrorText, errText[res.ID]),
			Screenshot: artifacts[res.ID],
		})
	}
	return out
}
