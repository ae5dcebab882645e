package pattern

// Sparkline is a word-sized trend over the run window, oldest first.
type Sparkline struct {
	Label  string
	Values []float64
	Min    float64 // Min and Max both 0 means auto-detect
	Max    float64
	Unit   string
}

func (s *Sparkline) Type() PatternType { return PatternTypeSparkline }
