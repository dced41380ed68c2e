// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package winloop

import (
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/require"
)

// testEvent captures fields, for asserting on log output.
type testEvent struct {
	logiface.UnimplementedEvent
	fields map[string]any
	level  logiface.Level
}

func (e *testEvent) Level() logiface.Level { return e.level }

func (e *testEvent) AddField(key string, val any) {
	if e.fields == nil {
		e.fields = make(map[string]any)
	}
	e.fields[key] = val
}

type testEventFactory struct{}

func (testEventFactory) NewEvent(level logiface.Level) *testEvent {
	return &testEvent{level: level}
}

// logCapture is a logiface writer that keeps every event.
type logCapture struct {
	mu     sync.Mutex
	events []*testEvent
}

func (c *logCapture) Write(event *testEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

// messages returns the messages logged at level, in order.
func (c *logCapture) messages(level logiface.Level) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var msgs []string
	for _, e := range c.events {
		if e.level == level {
			msg, _ := e.fields["msg"].(string)
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

// count returns how many events were logged at level with the given
// category field.
func (c *logCapture) count(level logiface.Level, category string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	for _, e := range c.events {
		if e.level == level && e.fields["category"] == category {
			n++
		}
	}
	return n
}

func newCaptureLogger(level logiface.Level) (*logiface.Logger[logiface.Event], *logCapture) {
	capture := new(logCapture)
	logger := logiface.New[*testEvent](
		logiface.WithEventFactory[*testEvent](testEventFactory{}),
		logiface.WithWriter[*testEvent](capture),
		logiface.WithLevel[*testEvent](level),
	).Logger()
	return logger, capture
}

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingWaker records how the state machine armed it.
type recordingWaker struct {
	calls []string
	at    time.Time
}

func (w *recordingWaker) Start() { w.calls = append(w.calls, "start") }

func (w *recordingWaker) StartAt(t time.Time) {
	w.calls = append(w.calls, "start_at")
	w.at = t
}

func (w *recordingWaker) Stop() { w.calls = append(w.calls, "stop") }

func (w *recordingWaker) take() []string {
	calls := w.calls
	w.calls = nil
	return calls
}

// requireBug runs fn, requiring it to panic with a *BugError for
// transition.
func requireBug(t *testing.T, transition string, fn func()) *BugError {
	t.Helper()
	var bug *BugError
	func() {
		defer func() {
			r := recover()
			require.NotNil(t, r, "expected a panic")
			var ok bool
			bug, ok = r.(*BugError)
			require.True(t, ok, "expected *BugError, got %T: %v", r, r)
		}()
		fn()
	}()
	require.Equal(t, transition, bug.Transition)
	return bug
}
