package pattern

// Leaderboard ranks items by one metric, e.g. the slowest attempts of a run.
type Leaderboard struct {
	Label      string
	MetricName string
	Items      []LeaderboardItem
	TotalCount int // items before the top-N cut
	ShowRank   bool
}

// LeaderboardItem is a single ranked entry.
type LeaderboardItem struct {
	Name    string
	Metric  string  // formatted value, e.g. "2.3s"
	Value   float64 // raw value the ranking used
	Rank    int
	Context string
}

func (l *Leaderboard) Type() PatternType { return PatternTypeLeaderboard }
