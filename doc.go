// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package winloop implements the event-loop and application-lifecycle engine
// of a cross-platform windowing library: the state machine that folds native
// event sources (message queues, run-loop observers, socket readiness, mobile
// lifecycle callbacks) into one deterministically ordered callback stream,
// with a portable scheduling policy and redraw coalescing.
//
// # Architecture
//
// Components, leaves first:
//   - [ControlFlow] and its policy slot, read lazily when computing the next
//     wait timeout
//   - [Proxy], the coalesced thread-safe wake primitive
//   - the redraw coalescer, which dedups [Window.RequestRedraw] per iteration
//   - the event queue, which defers events produced while a callback runs
//   - [LifecycleStateMachine], the iteration-phase state machine
//   - [PlatformDriver], one per OS, which blocks on native sources
//   - [EventLoop] (pump driven) and [HostLoop] (host owned), which
//     orchestrate iterations
//
// # Iteration Order
//
// Every iteration delivers exactly one NewEvents first and AboutToWait last:
//  1. NewEvents(cause), where cause is computed from real elapsed time
//  2. Resumed (first iteration only), then events queued before launch
//  3. native events, translated by the driver
//  4. user events, then a single ProxyWakeUp per coalesced batch
//  5. RedrawRequested, at most once per window
//  6. AboutToWait
//
// # Platform Support
//
// Native drivers:
//   - Linux: epoll, with an eventfd wake source
//   - macOS: kqueue, with a non-blocking self-pipe wake source
//
// [HeadlessDriver] and [ScriptDriver] run anywhere.
//
// # Thread Safety
//
// The loop is strictly single-threaded and cooperative. Only the goroutine
// that constructed the loop may run it, and all application callbacks run
// on that goroutine. The cross-thread entry points are [Proxy.WakeUp],
// [Proxy.SendEvent] and [Window.RequestRedraw].
//
// # Usage
//
//	loop, err := winloop.New(winloop.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := loop.RunApp(app); err != nil {
//	    log.Fatal(err)
//	}
package winloop
