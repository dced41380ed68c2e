// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package winloop

// RedrawCoalescer is the set of windows with a pending redraw. Drain order
// is first-insert order.
//
// Thread Safety: NOT thread-safe. It is owned by [LifecycleStateMachine],
// which only lets it be mutated before ProcessingRedraws.
type RedrawCoalescer struct {
	set   map[WindowID]struct{}
	order []WindowID
}

// Insert marks window as needing a redraw. It is idempotent.
func (c *RedrawCoalescer) Insert(window WindowID) {
	if _, ok := c.set[window]; ok {
		return
	}
	if c.set == nil {
		c.set = make(map[WindowID]struct{})
	}
	c.set[window] = struct{}{}
	c.order = append(c.order, window)
}

// Len returns the number of pending windows.
func (c *RedrawCoalescer) Len() int { return len(c.order) }

// Contains reports whether window is pending.
func (c *RedrawCoalescer) Contains(window WindowID) bool {
	_, ok := c.set[window]
	return ok
}

// Drain returns the pending windows and empties the set.
func (c *RedrawCoalescer) Drain() []WindowID {
	out := c.order
	c.order = nil
	clear(c.set)
	return out
}
