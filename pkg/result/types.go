// Package result defines the canonical per-test-case record shared by the
// extractor, the aggregator and the report renderer.
package result

import (
	"strings"
)

// Outcome is the observed result of a single test case attempt.
type Outcome string

const (
	Passed  Outcome = "passed"
	Failed  Outcome = "failed"
	Skipped Outcome = "skipped"
	Error   Outcome = "error"
	Rerun   Outcome = "rerun"
)

// ParseOutcome maps a status token from either data source to an Outcome.
// Matching is case-insensitive and accepts the xfail/xpass variants pytest
// prints, folding them onto Skipped and Passed.
func ParseOutcome(s string) (Outcome, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "passed", "pass", "xpassed", "xpass":
		return Passed, true
	case "failed", "fail":
		return Failed, true
	case "skipped", "skip", "xfailed", "xfail":
		return Skipped, true
	case "error", "errors":
		return Error, true
	case "rerun", "reruns":
		return Rerun, true
	default:
		return "", false
	}
}

// Terminal reports whether o ends an attempt sequence. Rerun is the only
// non-terminal outcome.
func (o Outcome) Terminal() bool {
	return o != Rerun && o != ""
}

// IsFailure reports whether o counts against the run.
func (o Outcome) IsFailure() bool {
	return o == Failed || o == Error
}

// Severity orders outcomes by precedence: Failed/Error > Rerun > Passed/Skipped.
func (o Outcome) Severity() int {
	switch o {
	case Failed, Error:
		return 2
	case Rerun:
		return 1
	default:
		return 0
	}
}

// TestCaseRecord is one attempt of one test case within a run.
type TestCaseRecord struct {
	ID        string  `json:"id"`
	Outcome   Outcome `json:"outcome"`
	Duration  float64 `json:"duration"`
	ErrorText string  `json:"error_text,omitempty"`
}

// Group returns the group segment of the record's canonical id.
func (r TestCaseRecord) Group() string {
	return ParseID(r.ID).Group
}
