// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package winloop

import (
	"sync/atomic"
)

// Window is the loop's handle for a native surface. Creating the surface
// itself is the platform's concern; the handle provides the identity that
// events are routed by, and redraw scheduling.
//
// Windows are created with [ActiveEventLoop.NewWindow].
type Window struct {
	src *wakeSource
	reg *registry
	id  WindowID

	// redrawPending is set from the first RequestRedraw until the loop moves
	// the request into the coalescer.
	redrawPending atomic.Bool
	closed        atomic.Bool
}

// ID returns the window's ID.
func (w *Window) ID() WindowID { return w.id }

// RequestRedraw schedules a RedrawRequested for this window. It is safe to
// call from any goroutine. Any number of requests made before the next
// redraw phase produce exactly one RedrawRequested; a request made during
// the redraw phase is delivered in the following iteration.
func (w *Window) RequestRedraw() {
	if w.closed.Load() {
		return
	}
	if !w.redrawPending.CompareAndSwap(false, true) {
		return
	}
	w.src.requestRedraw(w.id)
}

// Close unregisters the window. Events for it are no longer delivered to
// the loop's window list, and redraw requests are ignored. Destruction of
// the native surface is reported by the platform as a Destroyed event.
func (w *Window) Close() {
	if w.closed.Swap(true) {
		return
	}
	w.reg.remove(w.id)
}

// Closed reports whether Close has been called.
func (w *Window) Closed() bool { return w.closed.Load() }
