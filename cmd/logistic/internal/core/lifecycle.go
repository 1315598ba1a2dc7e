package core

import "sync/atomic"

// RunningFlag is the shutdown signal shared between the orchestrator (single
// writer) and the accept loop (single reader). It only moves from true to false.
type RunningFlag struct {
	stopped atomic.Bool
}

// NewRunningFlag returns a flag in the running state.
func NewRunningFlag() *RunningFlag {
	return &RunningFlag{}
}

// Running reports whether the accept loop should keep accepting.
func (f *RunningFlag) Running() bool {
	return !f.stopped.Load()
}

// Stop clears the flag. Calling it more than once has no further effect.
func (f *RunningFlag) Stop() {
	f.stopped.Store(true)
}

// ClientIDs hands out client identifiers for diagnostic attribution.
// Values start at 1, only increase, and are never reused.
type ClientIDs struct {
	last atomic.Uint64
}

func NewClientIDs() *ClientIDs {
	return &ClientIDs{}
}

// Next returns the next identifier.
func (c *ClientIDs) Next() uint64 {
	return c.last.Add(1)
}
