// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package winloop

import (
	"sync/atomic"
)

// wakeSource is the coalesced, thread-safe wake primitive shared by every
// [Proxy] and [Window] of a loop.
//
// Proxy wakes share a single atomic flag. Only the caller that flips it
// false→true pokes the platform, so any number of concurrent wakes made
// before the loop observes them cost one OS wake, and one callback.
type wakeSource struct {
	poke    func() error
	metrics *Metrics
	diag    *diagnostics

	userEvents  ingress[any]
	redrawInbox ingress[WindowID]

	// wakePending is the proxy wake flag, swapped back by the loop.
	wakePending atomic.Bool
	closed      atomic.Bool
}

// wakeUp raises the proxy wake flag.
func (s *wakeSource) wakeUp() {
	if s.closed.Load() {
		return
	}
	if !s.wakePending.CompareAndSwap(false, true) {
		s.metrics.recordWake(true)
		return
	}
	s.metrics.recordWake(false)
	s.signal()
}

// sendEvent queues a user event.
func (s *wakeSource) sendEvent(v any) error {
	if s.closed.Load() {
		return ErrLoopTerminated
	}
	// only the push into an empty queue pokes
	if s.userEvents.Push(v) == 1 {
		s.signal()
	}
	return nil
}

// requestRedraw queues window for the redraw coalescer. Callers coalesce
// per window before calling this.
func (s *wakeSource) requestRedraw(window WindowID) {
	if s.closed.Load() {
		return
	}
	if s.redrawInbox.Push(window) == 1 {
		s.signal()
	}
}

// signal performs the platform-level poke.
func (s *wakeSource) signal() {
	if err := s.poke(); err != nil && !s.closed.Load() {
		s.diag.warning(diagWakeFailed).
			Err(err).
			Log("failed to wake the event loop")
	}
}

// takeWake swaps the proxy wake flag back, reporting whether it was set.
func (s *wakeSource) takeWake() bool {
	return s.wakePending.Swap(false)
}

// takeUserEvents drains the user events, in send order.
func (s *wakeSource) takeUserEvents() []any {
	return s.userEvents.Drain()
}

// pending reports whether any application-level work is waiting.
func (s *wakeSource) pending() bool {
	return s.wakePending.Load() || s.userEvents.Len() != 0 || s.redrawInbox.Len() != 0
}

// close makes every subsequent request a no-op.
func (s *wakeSource) close() {
	s.closed.Store(true)
}

// Proxy wakes the loop, and sends it user events. It is safe to use from any
// goroutine, at any time, including after the loop has exited.
type Proxy struct {
	src *wakeSource
}

// WakeUp requests a ProxyWakeUp callback. Calls made before the loop
// observes the first are coalesced into a single callback. It is a no-op
// after the loop has exited.
func (p *Proxy) WakeUp() {
	p.src.wakeUp()
}

// SendEvent queues v for delivery through UserEvent, in send order. It
// returns [ErrLoopTerminated] after the loop has exited.
func (p *Proxy) SendEvent(v any) error {
	return p.src.sendEvent(v)
}
