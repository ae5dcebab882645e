package run

import (
	"math"
	"slices"
)

// DefaultWindow is the default number of runs in a TrendWindow, current
// run included.
const DefaultWindow = 10

// TrendWindow is the bounded, oldest-first view over recent runs.
type TrendWindow struct {
	Runs []RunRecord
}

// NewWindow keeps the newest persisted runs and appends current last. A
// persisted entry with current's timestamp is treated as current and not
// repeated. current may be nil. limit <= 0 selects DefaultWindow.
func NewWindow(persisted []RunRecord, current *RunRecord, limit int) TrendWindow {
	if limit <= 0 {
		limit = DefaultWindow
	}
	runs := slices.Clone(persisted)
	if current != nil {
		runs = slices.DeleteFunc(runs, func(r RunRecord) bool {
			return r.Timestamp.Equal(current.Timestamp)
		})
	}
	slices.SortStableFunc(runs, func(a, b RunRecord) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	keep := limit
	if current != nil {
		keep--
	}
	if len(runs) > keep {
		runs = runs[len(runs)-keep:]
	}
	if current != nil {
		runs = append(runs, *current)
	}
	return TrendWindow{Runs: runs}
}

// Len returns the number of runs in the window.
func (w TrendWindow) Len() int { return len(w.Runs) }

// Empty reports whether the window holds no runs.
func (w TrendWindow) Empty() bool { return len(w.Runs) == 0 }

// Latest returns the newest run.
func (w TrendWindow) Latest() (RunRecord, bool) {
	if len(w.Runs) == 0 {
		return RunRecord{}, false
	}
	return w.Runs[len(w.Runs)-1], true
}

// PassRates returns the pass rate series, oldest first.
func (w TrendWindow) PassRates() []float64 {
	out := make([]float64, len(w.Runs))
	for i, r := range w.Runs {
		out[i] = r.PassRate
	}
	return out
}

// Durations returns the duration series in seconds, oldest first.
func (w TrendWindow) Durations() []float64 {
	out := make([]float64, len(w.Runs))
	for i, r := range w.Runs {
		out[i] = r.DurationSeconds
	}
	return out
}

// TrendStats summarizes a window. Rates and averages are rounded to two
// decimals.
type TrendStats struct {
	TotalExecutions int     `json:"total_executions"`
	AvgPassRate     float64 `json:"avg_pass_rate"`
	AvgDuration     float64 `json:"avg_duration"`
	OverallPassRate float64 `json:"overall_pass_rate"`
	TotalTests      int     `json:"total_tests"`
	TotalPassed     int     `json:"total_passed"`
	TotalFailed     int     `json:"total_failed"`
	TotalSkipped    int     `json:"total_skipped"`
}

// Stats derives the window statistics.
func (w TrendWindow) Stats() TrendStats {
	var s TrendStats
	if len(w.Runs) == 0 {
		return s
	}
	var rateSum, durSum float64
	for _, r := range w.Runs {
		rateSum += r.PassRate
		durSum += r.DurationSeconds
		s.TotalTests += r.Total
		s.TotalPassed += r.Passed
		s.TotalFailed += r.Failed
		s.TotalSkipped += r.Skipped
	}
	s.TotalExecutions = len(w.Runs)
	s.AvgPassRate = round2(rateSum / float64(len(w.Runs)))
	s.AvgDuration = round2(durSum / float64(len(w.Runs)))
	s.OverallPassRate = round2(PassRate(s.TotalPassed, s.TotalTests))
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
