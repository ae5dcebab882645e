package extract

import (
	"sync"

	"github.com/google/uuid"
)

// RunContext carries the per-run ordering of observed test ids. It replaces
// any process-wide registry: each run creates its own and threads it through
// the scanner and Reconcile.
type RunContext struct {
	RunID uuid.UUID

	mu    sync.Mutex
	order []string
	index map[string]int
}

// NewRunContext returns an empty context with a fresh run id.
func NewRunContext() *RunContext {
	return &RunContext{
		RunID: uuid.New(),
		index: make(map[string]int),
	}
}

// Observe registers id and reports whether this is its first appearance.
func (c *RunContext) Observe(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.index[id]; ok {
		return false
	}
	c.index[id] = len(c.order)
	c.order = append(c.order, id)
	return true
}

// Seen reports whether id has been observed.
func (c *RunContext) Seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.index[id]
	return ok
}

// Order returns a copy of the ids in first-appearance order.
func (c *RunContext) Order() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// Len returns the number of distinct ids observed.
func (c *RunContext) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}
