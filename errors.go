// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package winloop

import (
	"errors"
	"fmt"
	"syscall"
)

var (
	// ErrRecreationAttempt is returned when a second native event loop is
	// created in a process that already has one.
	ErrRecreationAttempt = errors.New("winloop: event loop can't be recreated")

	// ErrPlatformUnsupported is returned when no usable native event source
	// could be detected.
	ErrPlatformUnsupported = errors.New("winloop: platform not supported")

	// ErrLoopAlreadyRunning is returned by [EventLoop.Close] once the loop has
	// started, and by [HostLoop.Launch] when an application is already
	// installed.
	ErrLoopAlreadyRunning = errors.New("winloop: loop is already running")

	// ErrLoopTerminated is returned when the loop has already exited.
	ErrLoopTerminated = errors.New("winloop: loop has been terminated")

	// ErrReentrantRun is returned when RunApp or PumpAppEvents is called from
	// within an application callback.
	ErrReentrantRun = errors.New("winloop: cannot run the loop from within a callback")

	// ErrNotOwnerGoroutine is returned when the loop is driven from a
	// goroutine other than the one that constructed it.
	ErrNotOwnerGoroutine = errors.New("winloop: loop must be driven from the goroutine that created it")

	// ErrDriverClosed is returned by drivers after Close.
	ErrDriverClosed = errors.New("winloop: driver closed")

	// ErrScriptExhausted is returned by [ScriptDriver] when asked to wait
	// indefinitely with no steps remaining.
	ErrScriptExhausted = errors.New("winloop: script exhausted")
)

// ExitFailureError is returned by [EventLoop.RunApp] when the application
// exited with a non-zero code.
type ExitFailureError struct {
	Code int
}

func (e *ExitFailureError) Error() string {
	return fmt.Sprintf("winloop: exit failure: %d", e.Code)
}

// OSError wraps an error returned by a platform call.
type OSError struct {
	Op  string
	Err error
}

func (e *OSError) Error() string {
	return "winloop: " + e.Op + ": " + e.Err.Error()
}

func (e *OSError) Unwrap() error {
	return e.Err
}

// exitCodeFor maps a driver failure to a process exit code, preferring the
// OS error number where there is one.
func exitCodeFor(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) && errno != 0 {
		return int(errno)
	}
	return 1
}

// BugError is the panic value raised when the lifecycle state machine is
// asked to perform a transition from a state that does not permit it.
//
// It indicates the engine and the platform's notification stream have
// diverged. It is never recovered by this package.
type BugError struct {
	Transition string
	Phase      Phase
	Detail     string
}

func (e *BugError) Error() string {
	msg := fmt.Sprintf("winloop bug: %s from %s", e.Transition, e.Phase)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}
