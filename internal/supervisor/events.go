package supervisor

import (
	"time"

	"github.com/dkoosis/runledger/pkg/result"
)

// CaseStart is published when the stream opens an attempt for a test case.
type CaseStart struct {
	ID   string
	Line int
}

// CaseEnd is published when an attempt's status is seen in the stream.
type CaseEnd struct {
	ID      string
	Outcome result.Outcome
	Line    int
}

// RunEnd is published once, after the child exits and output is drained.
type RunEnd struct {
	Result Result
}

// Subscriber receives lifecycle events. Calls are made synchronously, in
// registration order, from the supervisor's reader goroutine; a slow
// subscriber delays reading but never loses lines.
type Subscriber interface {
	OnCaseStart(CaseStart)
	OnCaseEnd(CaseEnd)
	OnRunEnd(RunEnd)
}

// Hooks adapts plain functions to Subscriber. Nil fields are skipped.
type Hooks struct {
	CaseStart func(CaseStart)
	CaseEnd   func(CaseEnd)
	RunEnd    func(RunEnd)
}

func (h Hooks) OnCaseStart(e CaseStart) {
	if h.CaseStart != nil {
		h.CaseStart(e)
	}
}

func (h Hooks) OnCaseEnd(e CaseEnd) {
	if h.CaseEnd != nil {
		h.CaseEnd(e)
	}
}

func (h Hooks) OnRunEnd(e RunEnd) {
	if h.RunEnd != nil {
		h.RunEnd(e)
	}
}

// Result is the supervisor's view of a finished run.
type Result struct {
	ExitCode int
	Elapsed  time.Duration
	// Cancelled is set when Cancel ran before the child exited.
	Cancelled bool
	// StreamErr is the output stream failure, if any. The run still
	// completes, flagged as partial.
	StreamErr error
}

// Partial reports whether the output was cut short.
func (r Result) Partial() bool {
	return r.StreamErr != nil || r.Cancelled
}
