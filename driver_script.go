// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package winloop

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Script is a recorded sequence of platform activity, replayed by a
// [ScriptDriver]. It is normally loaded from YAML:
//
//	name: resize-then-close
//	windows: [main]
//	steps:
//	  - event: resized
//	    window: main
//	    width: 800
//	    height: 600
//	  - after: 10ms
//	    event: close_requested
//	    window: main
type Script struct {
	Name string `yaml:"name"`
	// Windows are created, in order, when the driver is attached to a loop.
	Windows []string     `yaml:"windows"`
	Steps   []ScriptStep `yaml:"steps"`
}

// ScriptStep is a single step of a [Script]. Fields other than After and
// Event apply only to the events that use them.
type ScriptStep struct {
	Event       string        `yaml:"event"`
	Window      string        `yaml:"window,omitempty"`
	Name        string        `yaml:"name,omitempty"`
	Payload     string        `yaml:"payload,omitempty"`
	After       time.Duration `yaml:"after,omitempty"`
	Device      uint64        `yaml:"device,omitempty"`
	ScaleFactor float64       `yaml:"scale_factor,omitempty"`
	Width       uint32        `yaml:"width,omitempty"`
	Height      uint32        `yaml:"height,omitempty"`
	Focused     bool          `yaml:"focused,omitempty"`
	Occluded    bool          `yaml:"occluded,omitempty"`
}

// Script step events. The first group are native events, delivered through
// Wait; the rest act on the loop as another goroutine would.
const (
	StepCloseRequested     = "close_requested"
	StepDestroyed          = "destroyed"
	StepResized            = "resized"
	StepFocused            = "focused"
	StepOccluded           = "occluded"
	StepScaleFactorChanged = "scale_factor_changed"
	StepOpaque             = "opaque"
	StepDevice             = "device"
	StepSuspended          = "suspended"
	StepResumed            = "resumed"
	StepMemoryWarning      = "memory_warning"

	StepWakeUp        = "wake_up"
	StepRequestRedraw = "request_redraw"
	StepUserEvent     = "user_event"
)

// ParseScript decodes a YAML script, rejecting unknown fields.
func ParseScript(data []byte) (*Script, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Script
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("winloop: parse script: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadScript reads and decodes a YAML script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ParseScript(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func (s *Script) validate() error {
	windows := make(map[string]struct{}, len(s.Windows))
	for _, name := range s.Windows {
		if _, ok := windows[name]; ok {
			return fmt.Errorf("winloop: script %q: duplicate window %q", s.Name, name)
		}
		windows[name] = struct{}{}
	}
	for i, step := range s.Steps {
		if step.After < 0 {
			return fmt.Errorf("winloop: script %q: step %d: negative delay", s.Name, i)
		}
		switch step.Event {
		case StepCloseRequested, StepDestroyed, StepResized, StepFocused,
			StepOccluded, StepScaleFactorChanged, StepOpaque, StepRequestRedraw:
			if _, ok := windows[step.Window]; !ok {
				return fmt.Errorf("winloop: script %q: step %d: unknown window %q", s.Name, i, step.Window)
			}
		case StepDevice, StepSuspended, StepResumed, StepMemoryWarning,
			StepWakeUp, StepUserEvent:
		default:
			return fmt.Errorf("winloop: script %q: step %d: unknown event %q", s.Name, i, step.Event)
		}
	}
	return nil
}

// ScriptDriver is a [PlatformDriver] that replays a [Script]. Each Wait
// consumes at most one step, once its delay has elapsed; a timeout shorter
// than the remaining delay times out without consuming it. Once the steps
// are exhausted, a wait without a timeout fails with [ErrScriptExhausted].
type ScriptDriver struct {
	script  *Script
	r       *runner
	windows map[string]*Window
	sizes   map[WindowID]PhysicalSize
	signal  chan struct{}
	// since is when the current step became current.
	since   time.Time
	buf     eventBuffer
	next    int
	waiting atomic.Bool
	closed  atomic.Bool
}

// NewScriptDriver returns a driver for s, which must not be modified
// afterwards.
func NewScriptDriver(s *Script) (*ScriptDriver, error) {
	if s == nil {
		return nil, errors.New("winloop: nil script")
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &ScriptDriver{
		script:  s,
		windows: make(map[string]*Window, len(s.Windows)),
		sizes:   make(map[WindowID]PhysicalSize),
		signal:  make(chan struct{}, 1),
	}, nil
}

// Window returns the window created for a named script window, or nil
// before the driver is attached.
func (d *ScriptDriver) Window(name string) *Window {
	return d.windows[name]
}

// SurfaceSize returns the last size applied to a window, by a resized step
// or a resolved scale factor change.
func (d *ScriptDriver) SurfaceSize(id WindowID) (PhysicalSize, bool) {
	size, ok := d.sizes[id]
	return size, ok
}

// Remaining returns the number of steps not yet consumed.
func (d *ScriptDriver) Remaining() int {
	return len(d.script.Steps) - d.next
}

func (d *ScriptDriver) attach(r *runner) {
	d.r = r
	for _, name := range d.script.Windows {
		d.windows[name] = r.newWindow()
	}
}

func (d *ScriptDriver) Wait(timeout time.Duration) (WakeResult, error) {
	if d.closed.Load() {
		return WakeResult{}, ErrDriverClosed
	}
	if !d.waiting.CompareAndSwap(false, true) {
		reentrantWait()
	}
	defer d.waiting.Store(false)

	if ev, ok := d.buf.Poll(); ok {
		return WakeResult{Reason: WakeNativeEvent, Event: ev}, nil
	}
	select {
	case <-d.signal:
		return WakeResult{Reason: WakeWoken}, nil
	default:
	}

	now := time.Now()
	if d.since.IsZero() {
		d.since = now
	}

	if d.next >= len(d.script.Steps) {
		if timeout < 0 {
			return WakeResult{}, ErrScriptExhausted
		}
		return d.block(timeout)
	}

	delay := max(d.script.Steps[d.next].After-now.Sub(d.since), 0)
	if timeout >= 0 && timeout < delay {
		return d.block(timeout)
	}
	if delay > 0 {
		res, err := d.block(delay)
		if err != nil || res.Reason != WakeTimedOut {
			return res, err
		}
	}

	return d.step(), nil
}

// block waits for a wake signal, or timeout.
func (d *ScriptDriver) block(timeout time.Duration) (WakeResult, error) {
	if timeout == 0 {
		return WakeResult{Reason: WakeTimedOut}, nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-d.signal:
		return WakeResult{Reason: WakeWoken}, nil
	case <-t.C:
		return WakeResult{Reason: WakeTimedOut}, nil
	}
}

// step consumes the current step.
func (d *ScriptDriver) step() WakeResult {
	s := d.script.Steps[d.next]
	d.next++
	d.since = time.Now()

	var window WindowID
	if w := d.windows[s.Window]; w != nil {
		window = w.ID()
	}

	switch s.Event {
	case StepCloseRequested:
		d.buf.emit(StaticEvent(NewWindowEvent(window, CloseRequested{})))
	case StepDestroyed:
		d.buf.emit(StaticEvent(NewWindowEvent(window, Destroyed{})))
	case StepResized:
		size := PhysicalSize{Width: s.Width, Height: s.Height}
		d.sizes[window] = size
		d.buf.emit(StaticEvent(NewWindowEvent(window, Resized{Size: size})))
	case StepFocused:
		d.buf.emit(StaticEvent(NewWindowEvent(window, Focused{Focused: s.Focused})))
	case StepOccluded:
		d.buf.emit(StaticEvent(NewWindowEvent(window, Occluded{Occluded: s.Occluded})))
	case StepScaleFactorChanged:
		d.buf.emit(ScaleFactorEvent(ScaleFactorChange{
			Window:        window,
			ScaleFactor:   s.ScaleFactor,
			SuggestedSize: PhysicalSize{Width: s.Width, Height: s.Height},
			Apply: func(id WindowID, size PhysicalSize) {
				d.sizes[id] = size
			},
		}))
	case StepOpaque:
		d.buf.emit(StaticEvent(NewWindowEvent(window, Opaque{Name: s.Name, Payload: s.Payload})))
	case StepDevice:
		d.buf.emit(StaticEvent(NewDeviceEvent(DeviceID(s.Device), DeviceEvent{Name: s.Name, Payload: s.Payload})))
	case StepSuspended:
		d.buf.emit(StaticEvent(NewLifecycleEvent(EventSuspended)))
	case StepResumed:
		d.buf.emit(StaticEvent(NewLifecycleEvent(EventResumed)))
	case StepMemoryWarning:
		d.buf.emit(StaticEvent(NewLifecycleEvent(EventMemoryWarning)))

	case StepWakeUp:
		d.r.src.wakeUp()
	case StepRequestRedraw:
		d.windows[s.Window].RequestRedraw()
	case StepUserEvent:
		_ = d.r.src.sendEvent(s.Payload)
	}

	if ev, ok := d.buf.Poll(); ok {
		return WakeResult{Reason: WakeNativeEvent, Event: ev}
	}
	// the step has already signalled, and this wait is returning anyway
	select {
	case <-d.signal:
	default:
	}
	return WakeResult{Reason: WakeWoken}
}

func (d *ScriptDriver) Poll() (EventWrapper, bool) { return d.buf.Poll() }

func (d *ScriptDriver) Pending() bool { return d.buf.Pending() }

// Wake is safe to call from any goroutine.
func (d *ScriptDriver) Wake() error {
	if d.closed.Load() {
		return ErrDriverClosed
	}
	select {
	case d.signal <- struct{}{}:
	default:
	}
	return nil
}

func (d *ScriptDriver) Close() error {
	d.closed.Store(true)
	return nil
}

func (d *ScriptDriver) Backend() Backend { return BackendScript }
