package core

import "sync"

// ContextHandle is the engine-agnostic half of a Worker Context: the
// active-timer count and the pending-free latch. Each engine backend
// embeds one inside its own context type alongside
// the engine-specific evaluation handle.
//
// pending_free is one-way (false -> true). A context is eligible for
// destruction exactly when active_timers == 0 && pending_free.
type ContextHandle struct {
	mu           sync.Mutex
	activeTimers int
	pendingFree  bool
	freed        bool
}

// IncTimers records a newly registered timer against this context.
func (c *ContextHandle) IncTimers() {
	c.mu.Lock()
	c.activeTimers++
	c.mu.Unlock()
}

// DecTimers records a timer's final close-finalisation. Returns true if
// this decrement makes the context immediately freeable (active_timers
// reached 0 and pending_free was already set).
func (c *ContextHandle) DecTimers() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeTimers > 0 {
		c.activeTimers--
	}
	return c.activeTimers == 0 && c.pendingFree && !c.freed
}

// MarkPendingFree sets the one-way latch. Returns true if the context is
// immediately freeable (no active timers at the moment the latch is set).
func (c *ContextHandle) MarkPendingFree() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingFree = true
	return c.activeTimers == 0 && !c.freed
}

// MarkFreed records that destruction has happened, so a racing timer
// close-finalisation never double-frees the context.
func (c *ContextHandle) MarkFreed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.freed {
		return false
	}
	c.freed = true
	return true
}

// ResetTimers forces the active-timer count to zero. Used only by
// runtime teardown, where every timer is being cancelled
// unconditionally rather than one at a time.
func (c *ContextHandle) ResetTimers() {
	c.mu.Lock()
	c.activeTimers = 0
	c.mu.Unlock()
}

// ActiveTimers returns the current active-timer count.
func (c *ContextHandle) ActiveTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeTimers
}

// PendingFree reports whether the latch has been set.
func (c *ContextHandle) PendingFree() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingFree
}
