// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package winloop

import (
	"errors"
)

// HostRunLoop is a run loop owned by the host platform, which calls back
// into a [HostLoop] as it runs.
type HostRunLoop interface {
	// Waker is the host's timer. It is armed at the end of each iteration,
	// and when the timer fires the host calls [HostLoop.HandleWakeup].
	Waker

	// Signal makes the host begin an iteration soon. It is called from any
	// goroutine, by proxies and redraw requests.
	Signal() error
}

// HostLoop adapts the loop core to a host that owns the run loop, and
// reports its progress as a sequence of notifications. The host calls, in
// order:
//
//	DidFinishLaunching                       (once)
//	HandleWakeup                             (each iteration, after the first)
//	HandleNonUserEvents...                   (any number)
//	HandleMainEventsCleared
//	HandleEventsCleared
//	Terminated                               (once, while processing events)
//
// Misordered notifications are bugs, and panic with a [*BugError].
//
// Since the host owns the run loop, [ActiveEventLoop.Exit] cannot be
// honored, and only logs a warning.
type HostLoop struct {
	r       *runner
	runLoop HostRunLoop
	owner   ownerToken
	claimed bool
}

// NewHostLoop returns a loop driven by runLoop, bound to the calling
// goroutine, which must be the one the host calls back on. It fails with
// [ErrRecreationAttempt] if a native loop already exists in the process.
//
// The [WithDriver] option is not consulted.
func NewHostLoop(runLoop HostRunLoop, opts ...LoopOption) (*HostLoop, error) {
	if runLoop == nil {
		return nil, errors.New("winloop: nil host run loop")
	}
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}
	if err := claimNativeLoop(); err != nil {
		return nil, err
	}
	l := &HostLoop{
		runLoop: runLoop,
		owner:   newOwnerToken(),
		claimed: true,
	}
	l.r = newRunner(cfg, runLoop, runLoop.Signal, true)
	return l, nil
}

func (l *HostLoop) checkOwner(transition string) {
	if !l.owner.held() {
		l.r.sm.bug(transition, l.r.sm.Phase(), "called off the owner goroutine")
	}
}

// Launch installs the application. Events delivered before
// DidFinishLaunching are queued until then.
func (l *HostLoop) Launch(app ApplicationHandler) error {
	if app == nil {
		return errors.New("winloop: nil application")
	}
	if !l.owner.held() {
		return ErrNotOwnerGoroutine
	}
	if l.r.sm.HasTerminated() {
		return ErrLoopTerminated
	}
	if l.r.handler.app != nil || l.r.handler.inUse {
		return ErrLoopAlreadyRunning
	}
	l.r.install(app)
	return nil
}

// DidFinishLaunching runs the start of the Init iteration: NewEvents(Init),
// Resumed, then anything queued before launch.
func (l *HostLoop) DidFinishLaunching() {
	l.checkOwner("did_finish_launching")
	l.runLoop.Start()
	l.r.launch()
}

// HandleWakeup begins an iteration, delivering NewEvents. It is ignored
// before launch and after termination.
func (l *HostLoop) HandleWakeup() {
	l.checkOwner("wakeup")
	l.r.wakeup()
}

// HandleNonUserEvents delivers native events, in order.
func (l *HostLoop) HandleNonUserEvents(events ...EventWrapper) {
	l.checkOwner("handle_nonuser_events")
	l.r.handleNonUserEvents(events...)
}

// HandleMainEventsCleared delivers user events and wakes, then
// RedrawRequested for each window that requested it, then AboutToWait.
func (l *HostLoop) HandleMainEventsCleared() {
	l.checkOwner("main_events_cleared")
	if !l.r.sm.HasLaunched() || l.r.sm.HasTerminated() {
		return
	}
	l.r.handleUserEvents()
	l.r.mainEventsCleared()
}

// HandleEventsCleared ends the iteration, arming the host timer.
func (l *HostLoop) HandleEventsCleared() {
	l.checkOwner("events_cleared")
	if !l.r.sm.HasLaunched() || l.r.sm.HasTerminated() {
		return
	}
	l.r.eventsCleared()
}

// SendOccluded delivers Occluded to every open window, as the host does
// when the application moves to or from the background.
func (l *HostLoop) SendOccluded(occluded bool) {
	l.checkOwner("handle_nonuser_events")
	live := l.r.windows.live()
	events := make([]EventWrapper, 0, len(live))
	for _, w := range live {
		events = append(events, StaticEvent(NewWindowEvent(w.id, Occluded{Occluded: occluded})))
	}
	l.r.handleNonUserEvents(events...)
}

// Terminated delivers Destroyed for every open window, then Exiting. After
// it returns, the loop is inert, and another may be created.
//
// The host must deliver it inside an iteration, after DidFinishLaunching or
// HandleWakeup. From any other phase it panics with a [*BugError].
func (l *HostLoop) Terminated() {
	l.checkOwner("terminated")
	if l.r.sm.HasTerminated() {
		return
	}
	l.r.terminate(true)
	if l.claimed {
		l.claimed = false
		releaseNativeLoop()
	}
}

// CreateProxy returns a wake handle, usable from any goroutine.
func (l *HostLoop) CreateProxy() *Proxy {
	return &Proxy{src: l.r.src}
}

// Phase returns the current iteration phase.
func (l *HostLoop) Phase() Phase {
	return l.r.sm.Phase()
}

// Metrics returns the loop metrics, or nil if not enabled by [WithMetrics].
func (l *HostLoop) Metrics() *Metrics {
	return l.r.metrics
}
