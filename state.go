// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package winloop

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

// Phase is the iteration phase held by [LifecycleStateMachine].
//
// State Machine:
//
//	Initial           → ProcessingEvents   [DidFinishLaunching]
//	Waiting           → ProcessingEvents   [Wakeup]
//	PollFinished      → ProcessingEvents   [Wakeup]
//	ProcessingEvents  → ProcessingRedraws  [MainEventsCleared]
//	ProcessingRedraws → Waiting            [EventsCleared, flow Wait/WaitUntil]
//	ProcessingRedraws → PollFinished       [EventsCleared, flow Poll]
//	ProcessingEvents  → Terminated         [Terminated]
//	Terminated        → (terminal)
//
// Any other transition is a bug, reported by panicking with a [*BugError].
type Phase uint8

const (
	// PhaseInitial holds until the platform finishes launching.
	PhaseInitial Phase = iota
	// PhaseProcessingEvents is the first part of an iteration, delivering
	// NewEvents, native events and user events.
	PhaseProcessingEvents
	// PhaseProcessingRedraws delivers RedrawRequested, then AboutToWait.
	PhaseProcessingRedraws
	// PhaseWaiting is between iterations, blocked until a wake or deadline.
	PhaseWaiting
	// PhasePollFinished is between iterations, with the next one due at once.
	PhasePollFinished
	// PhaseTerminated is final.
	PhaseTerminated
	// phaseTransitioning is observed only if a previous transition panicked
	// half way.
	phaseTransitioning
)

// String returns a human-readable representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseInitial:
		return "Initial"
	case PhaseProcessingEvents:
		return "ProcessingEvents"
	case PhaseProcessingRedraws:
		return "ProcessingRedraws"
	case PhaseWaiting:
		return "Waiting"
	case PhasePollFinished:
		return "PollFinished"
	case PhaseTerminated:
		return "Terminated"
	case phaseTransitioning:
		return "Transitioning"
	default:
		return "Unknown"
	}
}

// Waker is the platform timer armed at the end of each iteration.
type Waker interface {
	// Start arms an immediate wake.
	Start()
	// StartAt arms a wake at t.
	StartAt(t time.Time)
	// Stop disarms the timer.
	Stop()
}

// lifecycleState is exactly one phase plus the data that phase carries.
type lifecycleState struct {
	// redraws is set for Initial and ProcessingEvents.
	redraws *RedrawCoalescer
	// start is set for Waiting.
	start time.Time
	// activeFlow is set for ProcessingEvents and ProcessingRedraws.
	activeFlow ControlFlow
	phase      Phase
}

// LifecycleStateMachine tracks the iteration phase, validating the ordering
// of native notifications.
//
// Transitions take the current state out of the machine, and put a new one
// back, so that a half-finished transition can never be observed as a valid
// state.
//
// Thread Safety: NOT thread-safe. Every method must be called from the loop
// goroutine.
type LifecycleStateMachine struct {
	state  *lifecycleState
	policy *ControlFlowPolicy
	waker  Waker
	now    func() time.Time
	logger *logiface.Logger[logiface.Event]
}

// NewLifecycleStateMachine returns a machine in the Initial phase. The
// policy is read lazily by Wakeup and EventsCleared, and waker is armed by
// EventsCleared.
//
// Only the WithClock and WithLogger options are consulted.
func NewLifecycleStateMachine(policy *ControlFlowPolicy, waker Waker, opts ...LoopOption) (*LifecycleStateMachine, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}
	return newLifecycleStateMachine(policy, waker, cfg), nil
}

func newLifecycleStateMachine(policy *ControlFlowPolicy, waker Waker, cfg *loopOptions) *LifecycleStateMachine {
	if policy == nil {
		policy = new(ControlFlowPolicy)
	}
	return &LifecycleStateMachine{
		state: &lifecycleState{
			phase:   PhaseInitial,
			redraws: new(RedrawCoalescer),
		},
		policy: policy,
		waker:  waker,
		now:    cfg.now,
		logger: cfg.logger,
	}
}

// Phase returns the current phase.
func (m *LifecycleStateMachine) Phase() Phase {
	if m.state == nil {
		return phaseTransitioning
	}
	return m.state.phase
}

// HasLaunched reports whether DidFinishLaunching has happened.
func (m *LifecycleStateMachine) HasLaunched() bool {
	p := m.Phase()
	return p != PhaseInitial
}

// HasTerminated reports whether the machine is Terminated.
func (m *LifecycleStateMachine) HasTerminated() bool {
	return m.Phase() == PhaseTerminated
}

// PendingRedraws returns the number of windows queued for redraw.
func (m *LifecycleStateMachine) PendingRedraws() int {
	if m.state == nil || m.state.redraws == nil {
		return 0
	}
	return m.state.redraws.Len()
}

func (m *LifecycleStateMachine) take(transition string) *lifecycleState {
	s := m.state
	if s == nil {
		m.bug(transition, phaseTransitioning, "a previous transition did not complete")
	}
	m.state = nil
	return s
}

func (m *LifecycleStateMachine) set(transition string, s *lifecycleState) {
	if m.state != nil {
		m.bug(transition, m.state.phase, "state set twice")
	}
	m.state = s
}

// bug reports an illegal transition, and panics. The machine is left in
// whatever state it was in.
func (m *LifecycleStateMachine) bug(transition string, phase Phase, detail string) {
	err := &BugError{Transition: transition, Phase: phase, Detail: detail}
	m.logger.Crit().
		Str("transition", transition).
		Stringer("phase", phase).
		Log(err.Error())
	panic(err)
}

// illegal restores s and reports the transition as a bug.
func (m *LifecycleStateMachine) illegal(transition string, s *lifecycleState, detail string) {
	m.state = s
	m.bug(transition, s.phase, detail)
}

// QueueRedraw marks window for redraw in this iteration. Legal only from
// Initial and ProcessingEvents.
func (m *LifecycleStateMachine) QueueRedraw(window WindowID) {
	s := m.Phase()
	switch s {
	case PhaseInitial, PhaseProcessingEvents:
		m.state.redraws.Insert(window)
	default:
		m.bug("queue_redraw", s, fmt.Sprintf("window %d", window))
	}
}

// DidFinishLaunching moves Initial to ProcessingEvents. Exactly once.
func (m *LifecycleStateMachine) DidFinishLaunching() {
	const transition = "did_finish_launching"
	s := m.take(transition)
	if s.phase != PhaseInitial {
		m.illegal(transition, s, "")
	}
	m.set(transition, &lifecycleState{
		phase:      PhaseProcessingEvents,
		redraws:    s.redraws,
		activeFlow: m.policy.Get(),
	})
}

// Wakeup begins an iteration, moving Waiting or PollFinished to
// ProcessingEvents, and returns its cause. It is a no-op, returning false,
// before launch and after termination.
func (m *LifecycleStateMachine) Wakeup() (StartCause, bool) {
	const transition = "wakeup"
	switch m.Phase() {
	case PhaseInitial, PhaseTerminated:
		return StartCause{}, false
	}

	s := m.take(transition)
	flow := m.policy.Get()

	var cause StartCause
	switch {
	case flow.kind == FlowPoll && s.phase == PhasePollFinished:
		cause = StartCause{Kind: CausePoll}
	case flow.kind == FlowWait && s.phase == PhaseWaiting:
		cause = StartCause{Kind: CauseWaitCancelled, Start: s.start}
	case flow.kind == FlowWaitUntil && s.phase == PhaseWaiting:
		if !m.now().Before(flow.deadline) {
			cause = StartCause{Kind: CauseResumeTimeReached, Start: s.start, RequestedResume: flow.deadline}
		} else {
			cause = StartCause{Kind: CauseWaitCancelled, Start: s.start, RequestedResume: flow.deadline}
		}
	default:
		m.illegal(transition, s, "control flow "+flow.String())
	}

	m.set(transition, &lifecycleState{
		phase:      PhaseProcessingEvents,
		redraws:    new(RedrawCoalescer),
		activeFlow: flow,
	})
	return cause, true
}

// MainEventsCleared moves ProcessingEvents to ProcessingRedraws, returning
// the drained pending redraws.
func (m *LifecycleStateMachine) MainEventsCleared() []WindowID {
	const transition = "main_events_cleared"
	s := m.take(transition)
	if s.phase != PhaseProcessingEvents {
		m.illegal(transition, s, "")
	}
	m.set(transition, &lifecycleState{
		phase:      PhaseProcessingRedraws,
		activeFlow: s.activeFlow,
	})
	return s.redraws.Drain()
}

// EventsCleared ends an iteration, moving ProcessingRedraws to Waiting or
// PollFinished, and arming the waker for the policy's current flow.
func (m *LifecycleStateMachine) EventsCleared() {
	const transition = "events_cleared"
	s := m.take(transition)
	if s.phase != PhaseProcessingRedraws {
		m.illegal(transition, s, "")
	}

	old, flow := s.activeFlow, m.policy.Get()
	next := &lifecycleState{phase: PhaseWaiting, start: m.now()}

	switch {
	case flow.kind == FlowPoll:
		next = &lifecycleState{phase: PhasePollFinished}
		m.waker.Start()
	case old.kind == FlowWait && flow.kind == FlowWait:
	case old.kind == FlowWaitUntil && flow.kind == FlowWaitUntil && old.deadline.Equal(flow.deadline):
	case flow.kind == FlowWait:
		m.waker.Stop()
	default:
		m.waker.StartAt(flow.deadline)
	}

	m.set(transition, next)
}

// Terminated moves ProcessingEvents to Terminated. Legal only from
// ProcessingEvents.
func (m *LifecycleStateMachine) Terminated() {
	const transition = "terminated"
	s := m.take(transition)
	if s.phase != PhaseProcessingEvents {
		m.illegal(transition, s, "")
	}
	m.set(transition, &lifecycleState{phase: PhaseTerminated})
}

// RunState is the dispatcher state of an [EventLoop].
//
//	NotRunning → Running   [first PumpAppEvents]
//	Running    → Exited    [exit observed at an iteration boundary]
//	Exited     → (terminal)
type RunState uint32

const (
	// StateNotRunning indicates the loop has been created but not pumped.
	StateNotRunning RunState = iota
	// StateRunning indicates the Init iteration has run.
	StateRunning
	// StateExited indicates the loop has terminated, or was closed unused.
	StateExited
)

// String returns a human-readable representation of the state.
func (s RunState) String() string {
	switch s {
	case StateNotRunning:
		return "NotRunning"
	case StateRunning:
		return "Running"
	case StateExited:
		return "Exited"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free RunState holder, readable from any goroutine.
type fastState struct { // betteralign:ignore
	_ [64]byte      // Cache line padding //nolint:unused
	v atomic.Uint32 // State value
	_ [60]byte      // Pad to complete cache line //nolint:unused
}

// Load returns the current state atomically.
func (s *fastState) Load() RunState {
	return RunState(s.v.Load())
}

// Store atomically stores a new state. Only for the terminal state.
func (s *fastState) Store(state RunState) {
	s.v.Store(uint32(state))
}

// TryTransition attempts to atomically transition from one state to another.
func (s *fastState) TryTransition(from, to RunState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
