package mutation

import (
	"context"
	"sync/atomic"
)

// Handle is a single-flight wrapper around a coordinator for one UI action.
// A run requested while another is pending is rejected, not queued.
type Handle struct {
	c       *Coordinator
	pending atomic.Bool
	err     atomic.Value
}

type errBox struct{ err error }

// NewHandle returns a handle running mutations on c.
func NewHandle(c *Coordinator) *Handle {
	return &Handle{c: c}
}

// Run runs m unless a previous run is still pending, in which case it returns
// ErrPending without touching the cache or the remote.
func (h *Handle) Run(ctx context.Context, m Mutation) (interface{}, error) {
	if !h.pending.CompareAndSwap(false, true) {
		return nil, ErrPending
	}
	defer h.pending.Store(false)
	result, err := h.c.Run(ctx, m)
	h.err.Store(errBox{err})
	return result, err
}

// Pending reports whether a run is in flight.
func (h *Handle) Pending() bool {
	return h.pending.Load()
}

// Err returns the error of the last completed run.
func (h *Handle) Err() error {
	if b, ok := h.err.Load().(errBox); ok {
		return b.err
	}
	return nil
}
