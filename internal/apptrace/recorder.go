// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package apptrace provides an application handler that records every
// callback it receives as a line of text, for golden tests and the
// winloop command.
package apptrace

import (
	"fmt"
	"io"
	"strings"

	"github.com/joeycumines/go-winloop"
)

// QuitEvent is the user event payload that makes a [Recorder] exit.
const QuitEvent = "quit"

// Options configures how a [Recorder] reacts to the events it records.
type Options struct {
	// Out, if set, receives each line as it is recorded.
	Out io.Writer
	// ExitCode is passed to ExitWithCode when the recorder exits.
	ExitCode int
	// ExitOnClose closes a window on CloseRequested, exiting once none
	// remain.
	ExitOnClose bool
	// RedrawOnResize requests a redraw on Resized.
	RedrawOnResize bool
	// ExitInResumed exits from the first Resumed.
	ExitInResumed bool
	// ScaleSize, if non-zero, multiplies the suggested size on
	// ScaleFactorChanged.
	ScaleSize uint32
}

// Recorder is a [winloop.ApplicationHandler] implementing every optional
// callback. Lines hold no timestamps, so traces of scripted runs are
// deterministic.
type Recorder struct {
	opts    Options
	lines   []string
	resumed int
}

// New returns a recorder.
func New(opts Options) *Recorder {
	return &Recorder{opts: opts}
}

// Lines returns the recorded lines.
func (x *Recorder) Lines() []string {
	return x.lines
}

// String returns the recorded lines, newline terminated.
func (x *Recorder) String() string {
	var b strings.Builder
	for _, line := range x.lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// Count returns how many lines start with prefix.
func (x *Recorder) Count(prefix string) int {
	var n int
	for _, line := range x.lines {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}

func (x *Recorder) record(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	x.lines = append(x.lines, line)
	if x.opts.Out != nil {
		_, _ = fmt.Fprintln(x.opts.Out, line)
	}
}

func (x *Recorder) exit(el *winloop.ActiveEventLoop) {
	el.ExitWithCode(x.opts.ExitCode)
}

func (x *Recorder) NewEvents(_ *winloop.ActiveEventLoop, cause winloop.StartCause) {
	if cause.HasRequestedResume() {
		x.record("NewEvents %s requested_resume", cause.Kind)
		return
	}
	x.record("NewEvents %s", cause.Kind)
}

func (x *Recorder) Resumed(el *winloop.ActiveEventLoop) {
	x.resumed++
	x.record("Resumed")
	if x.opts.ExitInResumed && x.resumed == 1 {
		x.exit(el)
	}
}

func (x *Recorder) Suspended(*winloop.ActiveEventLoop) {
	x.record("Suspended")
}

func (x *Recorder) WindowEvent(el *winloop.ActiveEventLoop, id winloop.WindowID, event winloop.WindowEvent) {
	switch ev := event.(type) {
	case winloop.ScaleFactorChanged:
		size := ev.SizeWriter.Size()
		if x.opts.ScaleSize != 0 {
			size.Width *= x.opts.ScaleSize
			size.Height *= x.opts.ScaleSize
			_ = ev.SizeWriter.RequestSize(size)
		}
		x.record("WindowEvent %d ScaleFactorChanged(%g) size=%s", id, ev.ScaleFactor, size)
		return
	default:
		x.record("WindowEvent %d %s", id, event)
	}

	switch event.(type) {
	case winloop.CloseRequested:
		if !x.opts.ExitOnClose {
			return
		}
		if w := el.Window(id); w != nil {
			w.Close()
		}
		if len(el.Windows()) == 0 {
			x.exit(el)
		}
	case winloop.Resized:
		if !x.opts.RedrawOnResize {
			return
		}
		if w := el.Window(id); w != nil {
			w.RequestRedraw()
		}
	}
}

func (x *Recorder) DeviceEvent(_ *winloop.ActiveEventLoop, device winloop.DeviceID, event winloop.DeviceEvent) {
	x.record("DeviceEvent %d %s", device, event)
}

func (x *Recorder) UserEvent(el *winloop.ActiveEventLoop, event any) {
	x.record("UserEvent %v", event)
	if event == QuitEvent {
		x.exit(el)
	}
}

func (x *Recorder) ProxyWakeUp(*winloop.ActiveEventLoop) {
	x.record("ProxyWakeUp")
}

func (x *Recorder) AboutToWait(*winloop.ActiveEventLoop) {
	x.record("AboutToWait")
}

func (x *Recorder) MemoryWarning(*winloop.ActiveEventLoop) {
	x.record("MemoryWarning")
}

func (x *Recorder) Exiting(el *winloop.ActiveEventLoop) {
	x.record("Exiting exiting=%t", el.Exiting())
}
