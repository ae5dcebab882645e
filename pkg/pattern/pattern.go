// Package pattern defines the semantic views of a run that renderers draw.
// Patterns are pure data; renderers decide presentation.
package pattern

// PatternType identifies the kind of visualization pattern.
type PatternType string

const (
	PatternTypeSummary     PatternType = "summary"
	PatternTypeLeaderboard PatternType = "leaderboard"
	PatternTypeTestTable   PatternType = "test-table"
	PatternTypeSparkline   PatternType = "sparkline"
	PatternTypeComparison  PatternType = "comparison"
	PatternTypeHeatmap     PatternType = "heatmap"
)

// Pattern is the interface all visualization patterns implement.
type Pattern interface {
	Type() PatternType
}
