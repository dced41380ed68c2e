// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package winloop

import (
	"errors"
	"fmt"
)

// WindowID identifies a surface. It is unique per live surface and stable
// for its lifetime. Zero is never a valid ID.
type WindowID uint64

// DeviceID identifies an input device.
type DeviceID uint64

// PhysicalSize is a size in physical pixels.
type PhysicalSize struct {
	Width  uint32
	Height uint32
}

func (s PhysicalSize) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// WindowEvent is a payload routed to a single window. Concrete payloads are
// defined by this package; platform specific payloads travel as [Opaque].
type WindowEvent interface {
	windowEvent()
	fmt.Stringer
}

type (
	// RedrawRequested is delivered once per window per iteration, after all
	// other events, for windows that requested a redraw.
	RedrawRequested struct{}

	// CloseRequested is delivered when the user asked to close the window.
	CloseRequested struct{}

	// Destroyed is delivered when the window has been destroyed.
	Destroyed struct{}

	// Resized is delivered when the surface size changed.
	Resized struct {
		Size PhysicalSize
	}

	// Focused is delivered when the window gained or lost focus.
	Focused struct {
		Focused bool
	}

	// Occluded is delivered when the window became hidden or visible.
	Occluded struct {
		Occluded bool
	}

	// ScaleFactorChanged is delivered when the scale factor of the window
	// changed. The handler may request a different surface size through
	// SizeWriter, which is only valid for the duration of the callback.
	ScaleFactorChanged struct {
		SizeWriter  *SurfaceSizeWriter
		ScaleFactor float64
	}

	// Opaque carries a platform input payload. Its semantics are not
	// interpreted by the loop.
	Opaque struct {
		Payload any
		Name    string
	}
)

func (RedrawRequested) windowEvent()    {}
func (CloseRequested) windowEvent()     {}
func (Destroyed) windowEvent()          {}
func (Resized) windowEvent()            {}
func (Focused) windowEvent()            {}
func (Occluded) windowEvent()           {}
func (ScaleFactorChanged) windowEvent() {}
func (Opaque) windowEvent()             {}

func (RedrawRequested) String() string { return "RedrawRequested" }
func (CloseRequested) String() string  { return "CloseRequested" }
func (Destroyed) String() string       { return "Destroyed" }
func (e Resized) String() string       { return "Resized(" + e.Size.String() + ")" }
func (e Focused) String() string       { return fmt.Sprintf("Focused(%t)", e.Focused) }
func (e Occluded) String() string      { return fmt.Sprintf("Occluded(%t)", e.Occluded) }
func (e ScaleFactorChanged) String() string {
	return fmt.Sprintf("ScaleFactorChanged(%g)", e.ScaleFactor)
}
func (e Opaque) String() string { return "Opaque(" + e.Name + ")" }

// DeviceEvent is a raw device payload. Its semantics are not interpreted by
// the loop.
type DeviceEvent struct {
	Payload any
	Name    string
}

func (e DeviceEvent) String() string { return "Device(" + e.Name + ")" }

// ErrSizeWriterExpired is returned by [SurfaceSizeWriter.RequestSize] after
// the callback it was passed to has returned.
var ErrSizeWriterExpired = errors.New("winloop: surface size writer used after its callback returned")

// SurfaceSizeWriter lets a ScaleFactorChanged handler override the
// suggested surface size.
type SurfaceSizeWriter struct {
	size    PhysicalSize
	expired bool
}

// Size returns the size that will be applied.
func (w *SurfaceSizeWriter) Size() PhysicalSize { return w.size }

// RequestSize replaces the size that will be applied.
func (w *SurfaceSizeWriter) RequestSize(size PhysicalSize) error {
	if w.expired {
		return ErrSizeWriterExpired
	}
	w.size = size
	return nil
}

// EventKind discriminates [Event] values.
type EventKind uint8

const (
	// EventNewEvents starts an iteration, carrying its [StartCause].
	EventNewEvents EventKind = iota
	// EventResumed indicates the application may create windows and render.
	EventResumed
	// EventSuspended indicates the application should release render surfaces.
	EventSuspended
	// EventWindow carries a [WindowEvent] for one window.
	EventWindow
	// EventDevice carries a [DeviceEvent] not bound to a window.
	EventDevice
	// EventAboutToWait ends an iteration.
	EventAboutToWait
	// EventMemoryWarning indicates the platform is low on memory.
	EventMemoryWarning
)

// String returns a human-readable representation of the kind.
func (k EventKind) String() string {
	switch k {
	case EventNewEvents:
		return "NewEvents"
	case EventResumed:
		return "Resumed"
	case EventSuspended:
		return "Suspended"
	case EventWindow:
		return "WindowEvent"
	case EventDevice:
		return "DeviceEvent"
	case EventAboutToWait:
		return "AboutToWait"
	case EventMemoryWarning:
		return "MemoryWarning"
	default:
		return "Unknown"
	}
}

// Event is a non-user event, as translated from a native source.
type Event struct {
	WindowEvent WindowEvent
	DeviceEvent DeviceEvent
	Cause       StartCause
	Window      WindowID
	Device      DeviceID
	Kind        EventKind
}

// NewWindowEvent returns an event routed to window.
func NewWindowEvent(window WindowID, ev WindowEvent) Event {
	return Event{Kind: EventWindow, Window: window, WindowEvent: ev}
}

// NewDeviceEvent returns an event routed to device.
func NewDeviceEvent(device DeviceID, ev DeviceEvent) Event {
	return Event{Kind: EventDevice, Device: device, DeviceEvent: ev}
}

// NewLifecycleEvent returns a payload-free event: Resumed, Suspended,
// AboutToWait or MemoryWarning.
func NewLifecycleEvent(kind EventKind) Event {
	return Event{Kind: kind}
}

func newEventsEvent(cause StartCause) Event {
	return Event{Kind: EventNewEvents, Cause: cause}
}

func (e Event) isRedraw() bool {
	if e.Kind != EventWindow {
		return false
	}
	_, ok := e.WindowEvent.(RedrawRequested)
	return ok
}

func (e Event) String() string {
	switch e.Kind {
	case EventNewEvents:
		return "NewEvents(" + e.Cause.String() + ")"
	case EventWindow:
		return fmt.Sprintf("WindowEvent(%d, %s)", e.Window, e.WindowEvent)
	case EventDevice:
		return fmt.Sprintf("DeviceEvent(%d, %s)", e.Device, e.DeviceEvent)
	default:
		return e.Kind.String()
	}
}

// ScaleFactorChange describes a scale factor change that must be resolved
// with the handler before the new size is applied to the platform surface.
type ScaleFactorChange struct {
	// Apply is called with the final size after the handler returns.
	Apply         func(window WindowID, size PhysicalSize)
	Window        WindowID
	ScaleFactor   float64
	SuggestedSize PhysicalSize
}

// EventWrapper is the unit pushed through the event queue: either a plain
// [Event], or a [ScaleFactorChange] that needs a writable size.
type EventWrapper struct {
	scale *ScaleFactorChange
	event Event
}

// StaticEvent wraps a plain event.
func StaticEvent(e Event) EventWrapper { return EventWrapper{event: e} }

// ScaleFactorEvent wraps a scale factor change.
func ScaleFactorEvent(c ScaleFactorChange) EventWrapper { return EventWrapper{scale: &c} }

// Event returns the plain event. The bool is false for scale factor changes.
func (w EventWrapper) Event() (Event, bool) {
	if w.scale != nil {
		return Event{}, false
	}
	return w.event, true
}

// ScaleFactorChange returns the scale factor change, if that is what w holds.
func (w EventWrapper) ScaleFactorChange() (ScaleFactorChange, bool) {
	if w.scale == nil {
		return ScaleFactorChange{}, false
	}
	return *w.scale, true
}

func (w EventWrapper) isRedraw() bool {
	return w.scale == nil && w.event.isRedraw()
}

func (w EventWrapper) String() string {
	if w.scale != nil {
		return fmt.Sprintf("WindowEvent(%d, ScaleFactorChanged(%g))", w.scale.Window, w.scale.ScaleFactor)
	}
	return w.event.String()
}
