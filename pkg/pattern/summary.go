package pattern

// SummaryKind tells renderers which headline a summary carries.
type SummaryKind string

const (
	SummaryKindRun   SummaryKind = "run"
	SummaryKindTrend SummaryKind = "trend"
)

// Summary is a headline with a few labelled counts.
type Summary struct {
	Label   string
	Kind    SummaryKind
	Metrics []SummaryItem
}

// SummaryItem is a single metric in a summary.
type SummaryItem struct {
	Label string
	Value string
	Kind  string // "success", "error", "warning", "info"; drives coloring
}

func (s *Summary) Type() PatternType { return PatternTypeSummary }
