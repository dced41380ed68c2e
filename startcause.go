// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package winloop

import (
	"time"
)

// CauseKind discriminates [StartCause] values.
type CauseKind uint8

const (
	// CauseInit is the cause of the first iteration.
	CauseInit CauseKind = iota
	// CausePoll is the cause of an iteration that followed a Poll iteration.
	CausePoll
	// CauseWaitCancelled is the cause of an iteration that began before the
	// wait it followed was over: an event arrived, or the wait was unbounded.
	CauseWaitCancelled
	// CauseResumeTimeReached is the cause of an iteration that began because
	// a WaitUntil deadline passed.
	CauseResumeTimeReached
)

// String returns a human-readable representation of the kind.
func (k CauseKind) String() string {
	switch k {
	case CauseInit:
		return "Init"
	case CausePoll:
		return "Poll"
	case CauseWaitCancelled:
		return "WaitCancelled"
	case CauseResumeTimeReached:
		return "ResumeTimeReached"
	default:
		return "Unknown"
	}
}

// StartCause classifies why an iteration began. It is always computed from
// real elapsed time, never assumed from a requested deadline.
type StartCause struct {
	// Start is when the preceding wait began. Zero for Init and Poll.
	Start time.Time
	// RequestedResume is the WaitUntil deadline in effect during the wait.
	// It is always set for ResumeTimeReached, and is zero for a
	// WaitCancelled that interrupted a plain Wait.
	RequestedResume time.Time
	Kind            CauseKind
}

// HasRequestedResume reports whether RequestedResume is set.
func (c StartCause) HasRequestedResume() bool {
	return c.Kind == CauseResumeTimeReached || (c.Kind == CauseWaitCancelled && !c.RequestedResume.IsZero())
}

func (c StartCause) String() string {
	if c.HasRequestedResume() {
		return c.Kind.String() + "(" + c.RequestedResume.Format(time.RFC3339Nano) + ")"
	}
	return c.Kind.String()
}
