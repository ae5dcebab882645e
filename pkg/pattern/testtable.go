package pattern

// TestTable lists test cases with status and timing.
type TestTable struct {
	Label   string
	Results []TestTableItem
}

// TestTableItem is a single case row.
type TestTableItem struct {
	Name     string
	Status   string // "pass", "fail", "skip", "rerun"
	Duration string
	Details  string // error text or artifact path
}

func (t *TestTable) Type() PatternType { return PatternTypeTestTable }
