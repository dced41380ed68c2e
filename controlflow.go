// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package winloop

import (
	"time"
)

// ControlFlowKind discriminates [ControlFlow] values.
type ControlFlowKind uint8

const (
	// FlowWait suspends the loop until an event arrives. It is the default.
	FlowWait ControlFlowKind = iota
	// FlowPoll starts a new iteration immediately after the previous one.
	FlowPoll
	// FlowWaitUntil suspends the loop until an event arrives or a deadline
	// passes, whichever comes first.
	FlowWaitUntil
)

// String returns a human-readable representation of the kind.
func (k ControlFlowKind) String() string {
	switch k {
	case FlowWait:
		return "Wait"
	case FlowPoll:
		return "Poll"
	case FlowWaitUntil:
		return "WaitUntil"
	default:
		return "Unknown"
	}
}

// ControlFlow is the scheduling policy controlling how long the loop may
// sleep between iterations. The zero value is Wait.
//
// A WaitUntil deadline in the past is legal, and results in an immediate
// iteration.
type ControlFlow struct {
	deadline time.Time
	kind     ControlFlowKind
}

// Poll returns the Poll control flow.
func Poll() ControlFlow { return ControlFlow{kind: FlowPoll} }

// Wait returns the Wait control flow.
func Wait() ControlFlow { return ControlFlow{kind: FlowWait} }

// WaitUntil returns a control flow that resumes no later than deadline.
func WaitUntil(deadline time.Time) ControlFlow {
	return ControlFlow{kind: FlowWaitUntil, deadline: deadline}
}

// WaitDuration returns WaitUntil(now+d). Negative durations are treated as
// zero.
func WaitDuration(now time.Time, d time.Duration) ControlFlow {
	if d < 0 {
		d = 0
	}
	return WaitUntil(now.Add(d))
}

// Kind returns the variant.
func (c ControlFlow) Kind() ControlFlowKind { return c.kind }

// Deadline returns the WaitUntil deadline. The bool is false for other
// variants.
func (c ControlFlow) Deadline() (time.Time, bool) {
	if c.kind != FlowWaitUntil {
		return time.Time{}, false
	}
	return c.deadline, true
}

// Equal reports whether c and o are the same policy. Deadlines are compared
// as instants.
func (c ControlFlow) Equal(o ControlFlow) bool {
	if c.kind != o.kind {
		return false
	}
	return c.kind != FlowWaitUntil || c.deadline.Equal(o.deadline)
}

// String returns a human-readable representation of the policy.
func (c ControlFlow) String() string {
	if c.kind == FlowWaitUntil {
		return "WaitUntil(" + c.deadline.Format(time.RFC3339Nano) + ")"
	}
	return c.kind.String()
}

// timeout converts the policy into a driver wait timeout. [WaitForever]
// means no timeout.
func (c ControlFlow) timeout(now time.Time) time.Duration {
	switch c.kind {
	case FlowPoll:
		return 0
	case FlowWaitUntil:
		if d := c.deadline.Sub(now); d > 0 {
			return d
		}
		return 0
	default:
		return WaitForever
	}
}

// ControlFlowPolicy is the policy slot. It performs no validation, and is
// read lazily when the next wait timeout is computed.
//
// Not thread-safe: it belongs to the loop goroutine.
type ControlFlowPolicy struct {
	flow ControlFlow
}

// Set stores flow.
func (p *ControlFlowPolicy) Set(flow ControlFlow) { p.flow = flow }

// Get returns the last value passed to Set, or Wait.
func (p *ControlFlowPolicy) Get() ControlFlow { return p.flow }

// minTimeout combines two driver timeouts, treating [WaitForever] as
// infinity.
func minTimeout(a, b time.Duration) time.Duration {
	switch {
	case a < 0:
		return b
	case b < 0:
		return a
	case a < b:
		return a
	default:
		return b
	}
}
