package supervisor

import (
	"maps"
	"sync"

	"github.com/dkoosis/runledger/pkg/capture"
)

// FailureCapture takes a screenshot whenever a case ends in failure.
type FailureCapture struct {
	bridge *capture.Bridge

	mu        sync.Mutex
	artifacts map[string]string
}

// NewFailureCapture returns a subscriber that captures through bridge.
func NewFailureCapture(bridge *capture.Bridge) *FailureCapture {
	return &FailureCapture{bridge: bridge, artifacts: make(map[string]string)}
}

func (f *FailureCapture) OnCaseStart(CaseStart) {}

func (f *FailureCapture) OnCaseEnd(e CaseEnd) {
	if !e.Outcome.IsFailure() {
		return
	}
	path, ok := f.bridge.Capture(capture.KindFailure, e.ID)
	if !ok {
		return
	}
	f.mu.Lock()
	f.artifacts[e.ID] = path
	f.mu.Unlock()
}

func (f *FailureCapture) OnRunEnd(RunEnd) {}

// Artifacts maps case ids to their latest failure screenshot.
func (f *FailureCapture) Artifacts() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.artifacts)
}
