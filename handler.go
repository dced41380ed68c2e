// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package winloop

// ApplicationHandler receives the loop's callbacks, in order, on the loop
// goroutine.
//
// Resumed and WindowEvent are required. The remaining callbacks are opt-in,
// by also implementing [NewEventsHandler], [UserEventHandler],
// [ProxyWakeUpHandler], [DeviceEventHandler], [AboutToWaitHandler],
// [SuspendedHandler], [ExitingHandler] or [MemoryWarningHandler]. Embedding
// [BaseHandler] provides no-op defaults for all of them.
type ApplicationHandler interface {
	// Resumed is called at least once, after NewEvents(Init) and before any
	// WindowEvent, and again each time the platform resumes the
	// application.
	Resumed(el *ActiveEventLoop)
	WindowEvent(el *ActiveEventLoop, window WindowID, event WindowEvent)
}

// Optional callbacks, detected on the application by type assertion.
type (
	// NewEventsHandler receives NewEvents, first in every iteration.
	NewEventsHandler interface {
		NewEvents(el *ActiveEventLoop, cause StartCause)
	}
	// UserEventHandler receives values sent by [Proxy.SendEvent], in send order.
	UserEventHandler interface {
		UserEvent(el *ActiveEventLoop, event any)
	}
	// ProxyWakeUpHandler receives at most one ProxyWakeUp per iteration,
	// however many wakes were requested.
	ProxyWakeUpHandler interface {
		ProxyWakeUp(el *ActiveEventLoop)
	}
	// DeviceEventHandler receives input not bound to a window.
	DeviceEventHandler interface {
		DeviceEvent(el *ActiveEventLoop, device DeviceID, event DeviceEvent)
	}
	// AboutToWaitHandler receives AboutToWait, last in every iteration.
	AboutToWaitHandler interface {
		AboutToWait(el *ActiveEventLoop)
	}
	// SuspendedHandler receives Suspended when the platform suspends the
	// application.
	SuspendedHandler interface {
		Suspended(el *ActiveEventLoop)
	}
	// ExitingHandler receives Exiting, the final callback.
	ExitingHandler interface {
		Exiting(el *ActiveEventLoop)
	}
	// MemoryWarningHandler receives MemoryWarning when the platform is low on
	// memory.
	MemoryWarningHandler interface {
		MemoryWarning(el *ActiveEventLoop)
	}
)

// BaseHandler implements every optional callback as a no-op.
type BaseHandler struct{}

func (BaseHandler) NewEvents(*ActiveEventLoop, StartCause)              {}
func (BaseHandler) UserEvent(*ActiveEventLoop, any)                     {}
func (BaseHandler) ProxyWakeUp(*ActiveEventLoop)                        {}
func (BaseHandler) DeviceEvent(*ActiveEventLoop, DeviceID, DeviceEvent) {}
func (BaseHandler) AboutToWait(*ActiveEventLoop)                        {}
func (BaseHandler) Suspended(*ActiveEventLoop)                          {}
func (BaseHandler) Exiting(*ActiveEventLoop)                            {}
func (BaseHandler) MemoryWarning(*ActiveEventLoop)                      {}

// handlerSlot holds the installed application. It is the reentrancy guard's
// notion of readiness: events can only be delivered while an application is
// installed and no callback is in progress.
type handlerSlot struct {
	app   ApplicationHandler
	inUse bool
}

// ready reports whether an event may be delivered now.
func (h *handlerSlot) ready() bool {
	return h.app != nil && !h.inUse
}

// handle runs fn against the installed application, marking the slot in use
// for its duration. The slot is released even if fn panics.
func (h *handlerSlot) handle(fn func(app ApplicationHandler)) {
	if h.app == nil {
		return
	}
	h.inUse = true
	defer func() { h.inUse = false }()
	fn(h.app)
}

// dispatch delivers a single event to app, via the matching callback.
func dispatch(app ApplicationHandler, el *ActiveEventLoop, ev Event) {
	switch ev.Kind {
	case EventNewEvents:
		if h, ok := app.(NewEventsHandler); ok {
			h.NewEvents(el, ev.Cause)
		}
	case EventResumed:
		app.Resumed(el)
	case EventSuspended:
		if h, ok := app.(SuspendedHandler); ok {
			h.Suspended(el)
		}
	case EventWindow:
		app.WindowEvent(el, ev.Window, ev.WindowEvent)
	case EventDevice:
		if h, ok := app.(DeviceEventHandler); ok {
			h.DeviceEvent(el, ev.Device, ev.DeviceEvent)
		}
	case EventAboutToWait:
		if h, ok := app.(AboutToWaitHandler); ok {
			h.AboutToWait(el)
		}
	case EventMemoryWarning:
		if h, ok := app.(MemoryWarningHandler); ok {
			h.MemoryWarning(el)
		}
	}
}
