// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package winloop

import (
	"time"

	"github.com/joeycumines/logiface"
)

// runner is the platform independent core shared by [EventLoop] and
// [HostLoop]: the lifecycle state machine, the reentrancy guard, and
// delivery to the application.
//
// Everything except src is confined to the owner goroutine.
type runner struct {
	sm      *LifecycleStateMachine
	policy  *ControlFlowPolicy
	src     *wakeSource
	windows *registry
	active  *ActiveEventLoop
	logger  *logiface.Logger[logiface.Event]
	diag    *diagnostics
	metrics *Metrics
	now     func() time.Time

	// queue holds events produced while the handler was unavailable.
	queue   chunkedQueue[EventWrapper]
	handler handlerSlot

	exitCode      int
	exitRequested bool
	// hostOwned is set when the host owns the run loop, and exit cannot be
	// honored.
	hostOwned bool
}

func newRunner(cfg *loopOptions, waker Waker, poke func() error, hostOwned bool) *runner {
	r := &runner{
		policy:    &ControlFlowPolicy{flow: cfg.controlFlow},
		windows:   newRegistry(),
		logger:    cfg.logger,
		diag:      &diagnostics{logger: cfg.logger, limiter: cfg.limiter},
		now:       cfg.now,
		hostOwned: hostOwned,
	}
	if cfg.metricsEnabled {
		r.metrics = newMetrics()
	}
	r.sm = newLifecycleStateMachine(r.policy, waker, cfg)
	r.src = &wakeSource{poke: poke, metrics: r.metrics, diag: r.diag}
	r.active = &ActiveEventLoop{r: r}
	return r
}

// install sets the application, making the handler ready.
func (r *runner) install(app ApplicationHandler) {
	r.handler.app = app
}

// handleNonUserEvents delivers events in order, deferring them to the queue
// if the handler is unavailable, which is the case before launch, before an
// application is installed, and during any callback. Whichever call finds
// the handler ready drains the queue, before and after its own events.
func (r *runner) handleNonUserEvents(events ...EventWrapper) {
	if len(events) == 0 {
		return
	}

	phase := r.sm.Phase()
	switch phase {
	case PhaseTerminated:
		r.logger.Debug().
			Int("count", len(events)).
			Log("dropping events after termination")
		return
	case PhaseInitial:
		for _, ev := range events {
			r.queue.Push(ev)
		}
		return
	case PhaseProcessingEvents, PhaseProcessingRedraws:
	default:
		r.sm.bug("handle_nonuser_events", phase, "event delivered outside an iteration")
	}

	if !r.handler.ready() {
		for _, ev := range events {
			r.queue.Push(ev)
		}
		return
	}

	processingRedraws := phase == PhaseProcessingRedraws
	// events queued while the handler was unavailable are older
	r.drainQueue(processingRedraws)
	for _, ev := range events {
		r.deliver(ev, processingRedraws)
	}
	r.drainQueue(processingRedraws)
}

// drainQueue delivers queued events until the queue stays empty.
func (r *runner) drainQueue(processingRedraws bool) {
	for {
		ev, ok := r.queue.Pop()
		if !ok {
			return
		}
		r.deliver(ev, processingRedraws)
	}
}

// deliver hands a single event to the application. Misordered events are
// reported, and still delivered.
func (r *runner) deliver(ev EventWrapper, processingRedraws bool) {
	redraw := ev.isRedraw()
	switch {
	case redraw && !processingRedraws:
		r.diag.warning(diagRedrawOutsideRedraws).
			Uint64("window", uint64(ev.event.Window)).
			Log("processing RedrawRequested during the main event loop")
	case !redraw && processingRedraws && ev.event.Kind != EventAboutToWait:
		r.diag.warning(diagEventDuringRedraws).
			Stringer("event", ev).
			Log("processing non-RedrawRequested event after the main event loop")
	}

	if ev.scale != nil {
		r.handleScaleFactor(*ev.scale)
		return
	}

	r.logger.Trace().
		Stringer("event", ev).
		Log("delivering event")
	r.handler.handle(func(app ApplicationHandler) {
		dispatch(app, r.active, ev.event)
	})
}

// handleScaleFactor lets the application override the suggested size, then
// applies the result.
func (r *runner) handleScaleFactor(sc ScaleFactorChange) {
	writer := &SurfaceSizeWriter{size: sc.SuggestedSize}
	r.handler.handle(func(app ApplicationHandler) {
		app.WindowEvent(r.active, sc.Window, ScaleFactorChanged{
			ScaleFactor: sc.ScaleFactor,
			SizeWriter:  writer,
		})
	})
	writer.expired = true
	if sc.Apply != nil {
		sc.Apply(sc.Window, writer.size)
	}
}

// launch performs the first half of the Init iteration: NewEvents(Init),
// Resumed, then everything queued before launch.
func (r *runner) launch() {
	r.sm.DidFinishLaunching()
	queued := r.queue.Drain()
	events := make([]EventWrapper, 0, 2+len(queued))
	events = append(events,
		StaticEvent(newEventsEvent(StartCause{Kind: CauseInit})),
		StaticEvent(NewLifecycleEvent(EventResumed)),
	)
	events = append(events, queued...)
	r.logger.Debug().
		Int("queued", len(queued)).
		Log("launched")
	r.handleNonUserEvents(events...)
}

// wakeup begins an iteration, delivering NewEvents. It returns false if no
// iteration began.
func (r *runner) wakeup() bool {
	cause, ok := r.sm.Wakeup()
	if !ok {
		return false
	}
	r.logger.Debug().
		Stringer("cause", cause).
		Log("iteration started")
	r.handleNonUserEvents(StaticEvent(newEventsEvent(cause)))
	return true
}

// handleUserEvents delivers any deferred native events, then queued user
// events in send order, then a single
// ProxyWakeUp if any wake was requested since the last one. Events sent
// while this runs are delivered in the next iteration.
func (r *runner) handleUserEvents() {
	if phase := r.sm.Phase(); phase != PhaseProcessingEvents {
		r.sm.bug("handle_user_events", phase, "")
	}
	if !r.handler.ready() {
		return
	}
	r.drainQueue(false)

	events := r.src.takeUserEvents()
	r.metrics.recordUserEvents(len(events))
	for _, v := range events {
		r.handler.handle(func(app ApplicationHandler) {
			if h, ok := app.(UserEventHandler); ok {
				h.UserEvent(r.active, v)
			}
		})
	}

	if r.src.takeWake() {
		r.handler.handle(func(app ApplicationHandler) {
			if h, ok := app.(ProxyWakeUpHandler); ok {
				h.ProxyWakeUp(r.active)
			}
		})
	}

	r.drainQueue(false)
}

// mainEventsCleared moves cross-goroutine redraw requests into the
// coalescer, enters the redraw phase, and delivers RedrawRequested for each
// drained window followed by AboutToWait.
func (r *runner) mainEventsCleared() {
	r.collectRedraws()

	ids := r.sm.MainEventsCleared()
	r.metrics.recordRedraws(len(ids))

	events := make([]EventWrapper, 0, len(ids))
	for _, id := range ids {
		if r.windows.get(id) == nil {
			continue
		}
		events = append(events, StaticEvent(NewWindowEvent(id, RedrawRequested{})))
	}
	r.handleNonUserEvents(events...)

	// separately, so anything queued by the redraws is delivered first
	r.handleNonUserEvents(StaticEvent(NewLifecycleEvent(EventAboutToWait)))
}

// collectRedraws moves the redraw inbox into the state machine.
func (r *runner) collectRedraws() {
	for _, id := range r.src.redrawInbox.Drain() {
		w := r.windows.get(id)
		if w == nil {
			continue
		}
		w.redrawPending.Store(false)
		r.sm.QueueRedraw(id)
	}
}

// eventsCleared ends the iteration.
func (r *runner) eventsCleared() {
	r.sm.EventsCleared()
	r.windows.scavenge(16)
}

// pending reports whether application-level work is waiting, in which case
// the next wait must not block.
func (r *runner) pending() bool {
	return r.src.pending() || r.sm.PendingRedraws() != 0 || r.queue.Len() != 0
}

// terminate delivers the final callbacks, and leaves the state machine
// Terminated. If destroyWindows is set, every live window first receives
// Destroyed. It must be called while processing events, and anything else
// is a bug, reported before any callback runs.
func (r *runner) terminate(destroyWindows bool) {
	if phase := r.sm.Phase(); phase != PhaseProcessingEvents {
		r.sm.bug("terminated", phase, "")
	}

	if destroyWindows {
		live := r.windows.live()
		events := make([]EventWrapper, 0, len(live))
		for _, w := range live {
			events = append(events, StaticEvent(NewWindowEvent(w.id, Destroyed{})))
		}
		r.handleNonUserEvents(events...)
	}

	r.sm.Terminated()
	r.src.close()

	r.handler.handle(func(app ApplicationHandler) {
		if h, ok := app.(ExitingHandler); ok {
			h.Exiting(r.active)
		}
	})
	r.handler.app = nil

	r.logger.Debug().
		Int("code", r.exitCode).
		Log("terminated")
}

// exit requests exit at the next iteration boundary.
func (r *runner) exit(code int) {
	if r.hostOwned {
		r.diag.warning(diagHostExit).
			Int("code", code).
			Log("exit() cannot be honored: the host owns the run loop")
		return
	}
	r.exitRequested = true
	r.exitCode = code
}
