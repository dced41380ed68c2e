// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package winloop

// ActiveEventLoop is passed to every application callback. Its methods must
// only be called from the loop goroutine, except where noted.
type ActiveEventLoop struct {
	r *runner
}

// SetControlFlow sets the scheduling policy, read when the current
// iteration ends.
func (el *ActiveEventLoop) SetControlFlow(flow ControlFlow) {
	el.r.policy.Set(flow)
}

// ControlFlow returns the last value passed to SetControlFlow, or the
// initial policy.
func (el *ActiveEventLoop) ControlFlow() ControlFlow {
	return el.r.policy.Get()
}

// Exit requests that the loop exit at the next iteration boundary. It is
// cooperative: the current iteration runs to completion first.
//
// On hosts that own the run loop, exit cannot be honored, and this logs a
// warning and does nothing.
func (el *ActiveEventLoop) Exit() {
	el.r.exit(0)
}

// ExitWithCode is Exit, with a process exit code. A non-zero code makes
// [EventLoop.RunApp] return an [*ExitFailureError].
func (el *ActiveEventLoop) ExitWithCode(code int) {
	el.r.exit(code)
}

// Exiting reports whether exit has been requested.
func (el *ActiveEventLoop) Exiting() bool {
	return el.r.exitRequested
}

// CreateProxy returns a wake handle, usable from any goroutine.
func (el *ActiveEventLoop) CreateProxy() *Proxy {
	return &Proxy{src: el.r.src}
}

// NewWindow registers a new window handle, allocating its ID.
func (el *ActiveEventLoop) NewWindow() *Window {
	return el.r.newWindow()
}

// Window returns the open window with the given ID, or nil.
func (el *ActiveEventLoop) Window(id WindowID) *Window {
	return el.r.windows.get(id)
}

// Windows returns the open windows, in creation order.
func (el *ActiveEventLoop) Windows() []*Window {
	return el.r.windows.live()
}

// Metrics returns the loop metrics, or nil if not enabled. Safe to call from
// any goroutine.
func (el *ActiveEventLoop) Metrics() *Metrics {
	return el.r.metrics
}

func (r *runner) newWindow() *Window {
	w := &Window{src: r.src, reg: r.windows}
	r.windows.add(w)
	r.logger.Debug().
		Uint64("window", uint64(w.id)).
		Log("window registered")
	return w
}
