// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package winloop

import (
	"sync/atomic"
	"time"
)

// HeadlessDriver is an in-memory [PlatformDriver], with no native event
// sources. Events are injected from any goroutine with Inject. It suits
// tests, and applications with no display.
type HeadlessDriver struct {
	// signal has capacity 1, so any number of pokes before a Wait collapse
	// into one.
	signal  chan struct{}
	pending ingress[EventWrapper]
	// buf holds events taken from pending by the current Wait.
	buf     eventBuffer
	waiting atomic.Bool
	closed  atomic.Bool
}

// NewHeadlessDriver returns an empty headless driver.
func NewHeadlessDriver() *HeadlessDriver {
	return &HeadlessDriver{signal: make(chan struct{}, 1)}
}

// Inject queues native events, waking the loop. Safe to call from any
// goroutine.
func (d *HeadlessDriver) Inject(events ...EventWrapper) error {
	if d.closed.Load() {
		return ErrDriverClosed
	}
	for _, ev := range events {
		d.pending.Push(ev)
	}
	d.poke()
	return nil
}

func (d *HeadlessDriver) poke() {
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

func (d *HeadlessDriver) Wait(timeout time.Duration) (WakeResult, error) {
	if d.closed.Load() {
		return WakeResult{}, ErrDriverClosed
	}
	if !d.waiting.CompareAndSwap(false, true) {
		reentrantWait()
	}
	defer d.waiting.Store(false)

	if res, ok := d.take(); ok {
		return res, nil
	}

	var timer <-chan time.Time
	switch {
	case timeout == 0:
		select {
		case <-d.signal:
			return d.woken(), nil
		default:
			return WakeResult{Reason: WakeTimedOut}, nil
		}
	case timeout > 0:
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-d.signal:
		return d.woken(), nil
	case <-timer:
		if res, ok := d.take(); ok {
			return res, nil
		}
		return WakeResult{Reason: WakeTimedOut}, nil
	}
}

// woken classifies a signal: injected events take precedence over a plain
// wake.
func (d *HeadlessDriver) woken() WakeResult {
	if res, ok := d.take(); ok {
		return res
	}
	return WakeResult{Reason: WakeWoken}
}

// take moves injected events into the buffer, returning the first.
func (d *HeadlessDriver) take() (WakeResult, bool) {
	for _, ev := range d.pending.Drain() {
		d.buf.emit(ev)
	}
	ev, ok := d.buf.Poll()
	if !ok {
		return WakeResult{}, false
	}
	return WakeResult{Reason: WakeNativeEvent, Event: ev}, true
}

func (d *HeadlessDriver) Poll() (EventWrapper, bool) { return d.buf.Poll() }

func (d *HeadlessDriver) Pending() bool {
	return d.buf.Pending() || d.pending.Len() != 0
}

// Wake is safe to call from any goroutine.
func (d *HeadlessDriver) Wake() error {
	if d.closed.Load() {
		return ErrDriverClosed
	}
	d.poke()
	return nil
}

func (d *HeadlessDriver) Close() error {
	d.closed.Store(true)
	return nil
}

func (d *HeadlessDriver) Backend() Backend { return BackendHeadless }

func (d *HeadlessDriver) attach(*runner) {}
