// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package winloop

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

// WaitForever is the timeout for a wait with no deadline.
const WaitForever time.Duration = -1

// WakeReason is why [PlatformDriver.Wait] returned.
type WakeReason uint8

const (
	// WakeWoken means Wake was called, or the wait was interrupted.
	WakeWoken WakeReason = iota
	// WakeTimedOut means the timeout elapsed.
	WakeTimedOut
	// WakeNativeEvent means a native event arrived; it is carried by the
	// result, and any further events are available from Poll.
	WakeNativeEvent
)

// String returns a human-readable representation of the reason.
func (r WakeReason) String() string {
	switch r {
	case WakeWoken:
		return "Woken"
	case WakeTimedOut:
		return "TimedOut"
	case WakeNativeEvent:
		return "NativeEvent"
	default:
		return "Unknown"
	}
}

// WakeResult is returned by [PlatformDriver.Wait].
type WakeResult struct {
	// Event is set for WakeNativeEvent.
	Event  EventWrapper
	Reason WakeReason
}

// Backend identifies a [PlatformDriver] implementation.
type Backend uint8

const (
	// BackendEpoll is the Linux native driver.
	BackendEpoll Backend = iota + 1
	// BackendKqueue is the darwin and BSD native driver.
	BackendKqueue
	// BackendHeadless has no native event source, only injected events.
	BackendHeadless
	// BackendScript replays a [Script].
	BackendScript
)

// String returns a human-readable representation of the backend.
func (b Backend) String() string {
	switch b {
	case BackendEpoll:
		return "epoll"
	case BackendKqueue:
		return "kqueue"
	case BackendHeadless:
		return "headless"
	case BackendScript:
		return "script"
	default:
		return "unknown"
	}
}

// PlatformDriver blocks on native event sources, and translates what they
// deliver into events. All OS specific ordering and priority concerns live
// behind this interface; the loop core is OS agnostic.
//
// The set of implementations is closed: [EpollDriver] (linux),
// [KqueueDriver] (darwin), [HeadlessDriver] and [ScriptDriver].
//
// Wait, Poll, Pending and Close are called only from the loop goroutine, and
// Wait is never called reentrantly. Wake may be called from any goroutine.
type PlatformDriver interface {
	// Wait blocks until a native event arrives, Wake is called, or timeout
	// elapses. A timeout of zero never blocks; [WaitForever] means no
	// timeout.
	Wait(timeout time.Duration) (WakeResult, error)

	// Poll returns the next buffered native event, without blocking.
	Poll() (EventWrapper, bool)

	// Pending reports whether Poll would return an event.
	Pending() bool

	// Wake interrupts a Wait in progress, or makes the next one return
	// immediately.
	Wake() error

	// Close releases native resources.
	Close() error

	// Backend identifies the implementation.
	Backend() Backend

	// attach is called once, when the driver is given to a loop.
	attach(r *runner)
}

// IOEvents is a set of readiness conditions on a native event source.
type IOEvents uint32

const (
	// EventRead indicates the source is readable.
	EventRead IOEvents = 1 << iota
	// EventWrite indicates the source is writable.
	EventWrite
	// EventError indicates an error condition on the source.
	EventError
	// EventHangup indicates the peer closed the source.
	EventHangup
)

// SourceFunc translates readiness of a native event source (e.g. a display
// server connection) into events, by calling emit. It runs on the loop
// goroutine, inside Wait.
type SourceFunc func(events IOEvents, emit func(EventWrapper))

var (
	ErrFDOutOfRange        = errors.New("winloop: fd out of range")
	ErrFDAlreadyRegistered = errors.New("winloop: fd already registered")
	ErrFDNotRegistered     = errors.New("winloop: fd not registered")
)

// reentrantWait reports a Wait made while another is in progress.
func reentrantWait() {
	panic(&BugError{Transition: "driver_wait", Phase: phaseTransitioning, Detail: "platform driver waited reentrantly"})
}

// nativeLoopClaimed is set while a native loop exists in the process.
var nativeLoopClaimed atomic.Bool

// claimNativeLoop marks the process as having a native loop, failing with
// [ErrRecreationAttempt] if it already has one.
func claimNativeLoop() error {
	if !nativeLoopClaimed.CompareAndSwap(false, true) {
		return ErrRecreationAttempt
	}
	return nil
}

func releaseNativeLoop() {
	nativeLoopClaimed.Store(false)
}

// detectDriver creates the native driver for this platform.
func detectDriver() (PlatformDriver, error) {
	d, err := newNativeDriver()
	if err == nil {
		return d, nil
	}
	if errors.Is(err, ErrPlatformUnsupported) {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %w", ErrPlatformUnsupported, err)
}

// isNative reports whether d owns native resources subject to the
// recreation guard.
func isNative(d PlatformDriver) bool {
	switch d.Backend() {
	case BackendEpoll, BackendKqueue:
		return true
	default:
		return false
	}
}

// waitMillis converts a wait timeout to the milliseconds accepted by
// epoll_wait and similar, rounding up so a short positive timeout never
// busy-loops.
func waitMillis(timeout time.Duration) int {
	switch {
	case timeout < 0:
		return -1
	case timeout == 0:
		return 0
	case timeout < time.Millisecond:
		return 1
	}
	ms := timeout / time.Millisecond
	if timeout%time.Millisecond != 0 {
		ms++
	}
	return int(min(ms, math.MaxInt32))
}

// sourceTable is the fd→SourceFunc registry shared by the native drivers.
type sourceTable struct {
	fds map[int]sourceInfo
}

type sourceInfo struct {
	fn     SourceFunc
	events IOEvents
}

func (t *sourceTable) add(fd int, events IOEvents, fn SourceFunc) error {
	if fd < 0 {
		return ErrFDOutOfRange
	}
	if _, ok := t.fds[fd]; ok {
		return ErrFDAlreadyRegistered
	}
	if t.fds == nil {
		t.fds = make(map[int]sourceInfo)
	}
	t.fds[fd] = sourceInfo{fn: fn, events: events}
	return nil
}

func (t *sourceTable) remove(fd int) (sourceInfo, error) {
	info, ok := t.fds[fd]
	if !ok {
		return sourceInfo{}, ErrFDNotRegistered
	}
	delete(t.fds, fd)
	return info, nil
}

func (t *sourceTable) get(fd int) (sourceInfo, bool) {
	info, ok := t.fds[fd]
	return info, ok
}

// eventBuffer holds translated native events between Wait and Poll.
type eventBuffer struct {
	q chunkedQueue[EventWrapper]
}

func (b *eventBuffer) emit(ev EventWrapper) { b.q.Push(ev) }

func (b *eventBuffer) Poll() (EventWrapper, bool) { return b.q.Pop() }

func (b *eventBuffer) Pending() bool { return b.q.Len() != 0 }
