// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package winloop

import (
	"errors"
	"runtime"
	"time"

	"github.com/joeycumines/logiface"
)

// PumpStatus is the result of [EventLoop.PumpAppEvents].
type PumpStatus struct {
	// Code is the exit code, set if Exit is.
	Code int
	// Exit is set once the loop has exited. It will not run again.
	Exit bool
}

// EventLoop is a loop driven by the application: [EventLoop.RunApp] runs it
// to completion, and [EventLoop.PumpAppEvents] runs it in bounded steps for
// embedding in another loop.
//
// The loop must be driven from the goroutine that created it, and every
// application callback runs on that goroutine, with the OS thread locked.
type EventLoop struct {
	r      *runner
	driver PlatformDriver
	timer  *deadlineTimer
	logger *logiface.Logger[logiface.Event]
	now    func() time.Time
	owner  ownerToken
	state  fastState
	native bool
}

// New creates an event loop, bound to the calling goroutine.
//
// Unless [WithDriver] is given, the native driver for the platform is
// created, failing with [ErrPlatformUnsupported] if there is none. At most
// one loop with a native driver may exist at a time; creating another fails
// with [ErrRecreationAttempt].
func New(opts ...LoopOption) (*EventLoop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	driver := cfg.driver
	native := driver == nil || isNative(driver)
	if native {
		if err := claimNativeLoop(); err != nil {
			return nil, err
		}
	}
	if driver == nil {
		if driver, err = detectDriver(); err != nil {
			releaseNativeLoop()
			return nil, err
		}
	}

	l := &EventLoop{
		driver: driver,
		timer:  new(deadlineTimer),
		logger: cfg.logger,
		now:    cfg.now,
		owner:  newOwnerToken(),
		native: native,
	}
	l.timer.arm(cfg.controlFlow)
	l.r = newRunner(cfg, l.timer, driver.Wake, false)
	driver.attach(l.r)

	l.logger.Debug().
		Stringer("backend", driver.Backend()).
		Log("event loop created")

	return l, nil
}

// RunApp runs the loop until the application exits. It returns nil for a
// zero exit code, and an [*ExitFailureError] otherwise.
func (l *EventLoop) RunApp(app ApplicationHandler) error {
	for {
		status, err := l.PumpAppEvents(WaitForever, app)
		if err != nil {
			return err
		}
		if status.Exit {
			if status.Code == 0 {
				return nil
			}
			return &ExitFailureError{Code: status.Code}
		}
	}
}

// PumpAppEvents runs at most one wait, bounded by timeout ([WaitForever]
// for none), and the iteration it triggers. The first call also runs the
// Init iteration. Once it reports Exit, the loop is terminated.
//
// app is installed for the duration of the call.
func (l *EventLoop) PumpAppEvents(timeout time.Duration, app ApplicationHandler) (status PumpStatus, err error) {
	if app == nil {
		return PumpStatus{}, errors.New("winloop: nil application")
	}
	if !l.owner.held() {
		return PumpStatus{}, ErrNotOwnerGoroutine
	}
	if l.r.handler.inUse {
		return PumpStatus{}, ErrReentrantRun
	}
	if l.state.Load() == StateExited {
		return PumpStatus{}, ErrLoopTerminated
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	l.r.install(app)
	completed := false
	defer func() {
		l.r.handler.app = nil
		if !completed {
			// a callback panicked, the state machine is mid-iteration
			l.shutdown()
		}
	}()

	if l.state.TryTransition(StateNotRunning, StateRunning) {
		l.initIteration()
	}

	if !l.r.exitRequested {
		l.pollEvents(timeout)
	}

	if l.r.exitRequested {
		if phase := l.r.sm.Phase(); phase == PhaseWaiting || phase == PhasePollFinished {
			// exit is observed at the iteration boundary
			l.r.sm.Wakeup()
		}
		l.r.terminate(false)
		l.shutdown()
		completed = true
		return PumpStatus{Exit: true, Code: l.r.exitCode}, nil
	}

	completed = true
	return PumpStatus{}, nil
}

// initIteration runs the first iteration: NewEvents(Init), Resumed, events
// queued before launch, then the rest of a normal iteration.
func (l *EventLoop) initIteration() {
	start := l.now()
	l.r.launch()
	l.finishIteration()
	l.r.metrics.recordIteration(l.now().Sub(start))
}

// pollEvents waits for the next wake, and runs the iteration it triggers.
func (l *EventLoop) pollEvents(timeout time.Duration) {
	now := l.now()
	wait := minTimeout(l.timer.timeout(now), timeout)
	if l.r.pending() || l.driver.Pending() {
		wait = 0
	}

	res, err := l.driver.Wait(wait)
	if err != nil {
		code := exitCodeFor(err)
		l.logger.Err().
			Err(err).
			Int("code", code).
			Log("platform driver wait failed, exiting")
		l.r.exitRequested = true
		l.r.exitCode = code
		return
	}

	start := l.now()
	if timeout == WaitForever && l.spurious(res, start) {
		l.r.metrics.recordSpuriousWake()
		return
	}

	l.r.wakeup()
	if res.Reason == WakeNativeEvent {
		l.r.handleNonUserEvents(res.Event)
	}
	l.finishIteration()
	l.r.metrics.recordIteration(l.now().Sub(start))
}

// finishIteration delivers buffered native events, user events, redraws
// and AboutToWait, then ends the iteration.
func (l *EventLoop) finishIteration() {
	for {
		ev, ok := l.driver.Poll()
		if !ok {
			break
		}
		l.r.handleNonUserEvents(ev)
	}
	l.r.handleUserEvents()
	l.r.mainEventsCleared()
	l.r.eventsCleared()
}

// spurious reports whether a wake would begin a WaitCancelled iteration
// with nothing to deliver, in which case it is skipped.
func (l *EventLoop) spurious(res WakeResult, now time.Time) bool {
	if res.Reason == WakeNativeEvent || l.r.pending() || l.driver.Pending() {
		return false
	}
	flow := l.r.policy.Get()
	switch flow.kind {
	case FlowPoll:
		return false
	case FlowWaitUntil:
		return now.Before(flow.deadline)
	default:
		return true
	}
}

// shutdown marks the loop exited, and releases the driver.
func (l *EventLoop) shutdown() {
	l.state.Store(StateExited)
	l.r.src.close()
	if err := l.driver.Close(); err != nil {
		l.logger.Warning().
			Err(err).
			Log("failed to close platform driver")
	}
	if l.native {
		l.native = false
		releaseNativeLoop()
	}
}

// Close releases a loop that will not be run. It returns
// [ErrLoopAlreadyRunning] if the loop has started.
func (l *EventLoop) Close() error {
	if !l.state.TryTransition(StateNotRunning, StateExited) {
		if l.state.Load() == StateExited {
			return nil
		}
		return ErrLoopAlreadyRunning
	}
	l.shutdown()
	return nil
}

// CreateProxy returns a wake handle, usable from any goroutine.
func (l *EventLoop) CreateProxy() *Proxy {
	return &Proxy{src: l.r.src}
}

// State returns the dispatcher state. Safe to call from any goroutine.
func (l *EventLoop) State() RunState {
	return l.state.Load()
}

// Backend identifies the platform driver.
func (l *EventLoop) Backend() Backend {
	return l.driver.Backend()
}

// Metrics returns the loop metrics, or nil if not enabled by [WithMetrics].
func (l *EventLoop) Metrics() *Metrics {
	return l.r.metrics
}

type timerMode uint8

const (
	timerStopped timerMode = iota
	timerImmediate
	timerAt
)

// deadlineTimer is the [Waker] of a pump driven loop. The state machine
// arms it at the end of each iteration; the next wait timeout is read from
// it.
type deadlineTimer struct {
	at   time.Time
	mode timerMode
}

func (t *deadlineTimer) Start() { t.mode = timerImmediate }

func (t *deadlineTimer) StartAt(at time.Time) { t.mode, t.at = timerAt, at }

func (t *deadlineTimer) Stop() { t.mode = timerStopped }

// arm sets the timer for flow, as the state machine would have at the end
// of a previous iteration.
func (t *deadlineTimer) arm(flow ControlFlow) {
	switch flow.kind {
	case FlowPoll:
		t.Start()
	case FlowWaitUntil:
		t.StartAt(flow.deadline)
	default:
		t.Stop()
	}
}

// timeout returns the wait timeout the timer implies at now.
func (t *deadlineTimer) timeout(now time.Time) time.Duration {
	switch t.mode {
	case timerImmediate:
		return 0
	case timerAt:
		return WaitUntil(t.at).timeout(now)
	default:
		return WaitForever
	}
}
