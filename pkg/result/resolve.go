package result

// Resolution is the per-id verdict derived from every attempt observed for
// that id within one run.
type Resolution struct {
	ID string
	// Final is the classification used for run totals.
	Final Outcome
	// Worst is the most severe outcome observed, used for diagnostic display.
	Worst Outcome
	// Attempts is the number of observations contributing to the verdict.
	Attempts int
	// Retried is set when at least one Rerun was observed.
	Retried bool
	// Dangling is set when a Rerun was never followed by a terminal outcome.
	Dangling bool
	// Duration sums the durations of every attempt.
	Duration float64
	// ErrorText is the first failure text found, earlier sources first.
	ErrorText string
}

// Flaky reports whether the case needed a retry and then passed.
func (r Resolution) Flaky() bool {
	return r.Retried && r.Final == Passed
}

// Resolve classifies one id from its attempt sequences. Each sequence is the
// ordered observations of one data source; the table sequence, when present,
// is authoritative for the terminal outcome since it has one row per attempt.
//
// Any Failed/Error observation wins. Otherwise the terminal outcome that
// follows the last Rerun is used, and a Rerun with no terminal after it is
// classified as Failed.
func Resolve(id string, sequences ...[]TestCaseRecord) Resolution {
	res := Resolution{ID: id}

	var failure Outcome
	for _, seq := range sequences {
		for _, rec := range seq {
			if rec.Outcome.Severity() >= res.Worst.Severity() {
				res.Worst = rec.Outcome
			}
			if rec.Outcome.IsFailure() {
				failure = rec.Outcome
				if res.ErrorText == "" {
					res.ErrorText = rec.ErrorText
				}
			}
			if rec.Outcome == Rerun {
				res.Retried = true
			}
		}
	}
	for _, seq := range sequences {
		if len(seq) > 0 {
			res.Attempts = len(seq)
			res.Duration = sumDuration(seq)
		}
	}

	if failure != "" {
		res.Final = failure
		return res
	}

	var terminal Outcome
	for _, seq := range sequences {
		if t := terminalAfterLastRerun(seq); t != "" {
			terminal = t
		}
	}
	switch {
	case terminal != "":
		res.Final = terminal
	case res.Retried:
		res.Final = Failed
		res.Dangling = true
	default:
		res.Final = res.Worst
	}
	return res
}

// terminalAfterLastRerun returns the last terminal outcome in seq provided it
// is not followed by a Rerun.
func terminalAfterLastRerun(seq []TestCaseRecord) Outcome {
	var terminal Outcome
	for _, rec := range seq {
		if rec.Outcome == Rerun {
			terminal = ""
			continue
		}
		if rec.Outcome.Terminal() {
			terminal = rec.Outcome
		}
	}
	return terminal
}

func sumDuration(seq []TestCaseRecord) float64 {
	var total float64
	for _, rec := range seq {
		total += rec.Duration
	}
	return total
}
