package pattern

// Comparison contrasts the current run with the previous one.
type Comparison struct {
	Label   string
	Changes []ComparisonItem
}

// ComparisonItem is a single before/after delta.
type ComparisonItem struct {
	Label  string
	Before string
	After  string
	Change float64
	Unit   string
	// HigherIsBetter flips the coloring, e.g. for pass rate.
	HigherIsBetter bool
}

func (c *Comparison) Type() PatternType { return PatternTypeComparison }
