// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package winloop_test

import (
	"errors"
	"fmt"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/joeycumines/go-winloop"
	"github.com/joeycumines/go-winloop/internal/apptrace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hookApp is a recorder with optional hooks, run after each line is
// recorded.
type hookApp struct {
	*apptrace.Recorder
	resumed     func(el *winloop.ActiveEventLoop)
	newEvents   func(el *winloop.ActiveEventLoop, cause winloop.StartCause)
	aboutToWait func(el *winloop.ActiveEventLoop)
}

func newHookApp() *hookApp {
	return &hookApp{Recorder: apptrace.New(apptrace.Options{ExitOnClose: true, RedrawOnResize: true})}
}

func (x *hookApp) Resumed(el *winloop.ActiveEventLoop) {
	x.Recorder.Resumed(el)
	if x.resumed != nil {
		x.resumed(el)
	}
}

func (x *hookApp) NewEvents(el *winloop.ActiveEventLoop, cause winloop.StartCause) {
	x.Recorder.NewEvents(el, cause)
	if x.newEvents != nil {
		x.newEvents(el, cause)
	}
}

func (x *hookApp) AboutToWait(el *winloop.ActiveEventLoop) {
	x.Recorder.AboutToWait(el)
	if x.aboutToWait != nil {
		x.aboutToWait(el)
	}
}

func newHeadlessLoop(t *testing.T, opts ...winloop.LoopOption) (*winloop.EventLoop, *winloop.HeadlessDriver) {
	t.Helper()
	driver := winloop.NewHeadlessDriver()
	loop, err := winloop.New(append([]winloop.LoopOption{winloop.WithDriver(driver), winloop.WithMetrics(true)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = loop.Close() })
	return loop, driver
}

func TestEventLoop_RunApp_exitInResumed(t *testing.T) {
	loop, _ := newHeadlessLoop(t)
	app := apptrace.New(apptrace.Options{ExitInResumed: true})

	require.NoError(t, loop.RunApp(app))
	assert.Equal(t, []string{
		"NewEvents Init",
		"Resumed",
		"AboutToWait",
		"Exiting exiting=true",
	}, app.Lines())
	assert.Equal(t, winloop.StateExited, loop.State())
	assert.Equal(t, uint64(1), loop.Metrics().Snapshot().Iterations)

	assert.ErrorIs(t, loop.RunApp(app), winloop.ErrLoopTerminated)
}

func TestEventLoop_RunApp_waitUntil(t *testing.T) {
	loop, _ := newHeadlessLoop(t)

	var (
		deadline time.Time
		causes   []winloop.StartCause
	)
	app := newHookApp()
	app.resumed = func(el *winloop.ActiveEventLoop) {
		deadline = time.Now().Add(50 * time.Millisecond)
		el.SetControlFlow(winloop.WaitUntil(deadline))
	}
	app.newEvents = func(el *winloop.ActiveEventLoop, cause winloop.StartCause) {
		causes = append(causes, cause)
		if cause.Kind != winloop.CauseInit {
			el.Exit()
		}
	}

	start := time.Now()
	require.NoError(t, loop.RunApp(app))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	require.Len(t, causes, 2)
	assert.Equal(t, winloop.CauseInit, causes[0].Kind)
	assert.Equal(t, winloop.CauseResumeTimeReached, causes[1].Kind)
	assert.True(t, causes[1].RequestedResume.Equal(deadline), "requested resume %v should equal %v", causes[1].RequestedResume, deadline)
	assert.False(t, causes[1].Start.IsZero())
}

func TestEventLoop_RunApp_exitWithCode(t *testing.T) {
	loop, _ := newHeadlessLoop(t)
	app := apptrace.New(apptrace.Options{ExitInResumed: true, ExitCode: 3})

	err := loop.RunApp(app)
	var exitErr *winloop.ExitFailureError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.Code)
	assert.EqualError(t, err, "winloop: exit failure: 3")
}

func TestEventLoop_controlFlowRoundTrip(t *testing.T) {
	loop, _ := newHeadlessLoop(t)

	var kinds []winloop.CauseKind
	app := newHookApp()
	app.resumed = func(el *winloop.ActiveEventLoop) {
		el.SetControlFlow(winloop.Poll())
	}
	app.newEvents = func(el *winloop.ActiveEventLoop, cause winloop.StartCause) {
		kinds = append(kinds, cause.Kind)
	}
	app.aboutToWait = func(el *winloop.ActiveEventLoop) {
		assert.Equal(t, winloop.Poll(), el.ControlFlow())
		if len(kinds) == 5 {
			el.Exit()
		}
	}

	require.NoError(t, loop.RunApp(app))
	assert.Equal(t, []winloop.CauseKind{
		winloop.CauseInit,
		winloop.CausePoll,
		winloop.CausePoll,
		winloop.CausePoll,
		winloop.CausePoll,
	}, kinds)
	assert.Equal(t, 5, app.Count("AboutToWait"))
}

func TestEventLoop_initialControlFlow(t *testing.T) {
	loop, _ := newHeadlessLoop(t, winloop.WithControlFlow(winloop.Poll()))

	var kinds []winloop.CauseKind
	app := newHookApp()
	app.newEvents = func(el *winloop.ActiveEventLoop, cause winloop.StartCause) {
		kinds = append(kinds, cause.Kind)
		if len(kinds) == 3 {
			el.Exit()
		}
	}

	require.NoError(t, loop.RunApp(app))
	assert.Equal(t, []winloop.CauseKind{winloop.CauseInit, winloop.CausePoll, winloop.CausePoll}, kinds)
}

func TestEventLoop_proxyWakeUpCoalesced(t *testing.T) {
	loop, _ := newHeadlessLoop(t)
	app := newHookApp()

	status, err := loop.PumpAppEvents(0, app)
	require.NoError(t, err)
	require.False(t, status.Exit)

	proxy := loop.CreateProxy()
	const n = 50
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			proxy.WakeUp()
		}()
	}
	wg.Wait()

	for range 3 {
		_, err = loop.PumpAppEvents(0, app)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, app.Count("ProxyWakeUp"))
	snap := loop.Metrics().Snapshot()
	assert.Equal(t, uint64(1), snap.Wakes)
	assert.Equal(t, uint64(n-1), snap.CoalescedWakes)
	assert.Equal(t, int(snap.Iterations), app.Count("AboutToWait"))
}

func TestEventLoop_userEventsInOrder(t *testing.T) {
	loop, _ := newHeadlessLoop(t)
	proxy := loop.CreateProxy()

	var want []string
	for i := range 100 {
		require.NoError(t, proxy.SendEvent(i))
		want = append(want, fmt.Sprintf("UserEvent %d", i))
	}
	require.NoError(t, proxy.SendEvent(apptrace.QuitEvent))
	want = append(want, "UserEvent quit")

	app := newHookApp()
	require.NoError(t, loop.RunApp(app))

	var got []string
	for _, line := range app.Lines() {
		if len(line) > 9 && line[:9] == "UserEvent" {
			got = append(got, line)
		}
	}
	assert.Equal(t, want, got)

	assert.ErrorIs(t, proxy.SendEvent("late"), winloop.ErrLoopTerminated)
	proxy.WakeUp()
}

func TestEventLoop_injectedEvents(t *testing.T) {
	loop, driver := newHeadlessLoop(t)

	app := newHookApp()
	app.resumed = func(el *winloop.ActiveEventLoop) {
		w := el.NewWindow()
		require.NoError(t, driver.Inject(
			winloop.StaticEvent(winloop.NewWindowEvent(w.ID(), winloop.Resized{Size: winloop.PhysicalSize{Width: 10, Height: 20}})),
			winloop.StaticEvent(winloop.NewWindowEvent(w.ID(), winloop.CloseRequested{})),
		))
	}

	require.NoError(t, loop.RunApp(app))
	assert.Equal(t, []string{
		"NewEvents Init",
		"Resumed",
		"AboutToWait",
		"NewEvents WaitCancelled",
		"WindowEvent 1 Resized(10x20)",
		"WindowEvent 1 CloseRequested",
		"AboutToWait",
		"Exiting exiting=true",
	}, app.Lines(), "a window closed before the redraw phase gets no RedrawRequested")

	assert.ErrorIs(t, driver.Inject(), winloop.ErrDriverClosed)
}

func TestEventLoop_requestRedrawCoalesced(t *testing.T) {
	loop, _ := newHeadlessLoop(t)

	var window *winloop.Window
	app := newHookApp()
	app.resumed = func(el *winloop.ActiveEventLoop) {
		window = el.NewWindow()
	}

	_, err := loop.PumpAppEvents(0, app)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				window.RequestRedraw()
			}
		}()
	}
	wg.Wait()

	_, err = loop.PumpAppEvents(winloop.WaitForever, app)
	require.NoError(t, err)
	assert.Equal(t, 1, app.Count("WindowEvent 1 RedrawRequested"))

	// redraws come after every other event, and before AboutToWait
	lines := app.Lines()
	assert.Equal(t, "AboutToWait", lines[len(lines)-1])
	assert.Equal(t, "WindowEvent 1 RedrawRequested", lines[len(lines)-2])

	_, err = loop.PumpAppEvents(0, app)
	require.NoError(t, err)
	assert.Equal(t, 1, app.Count("WindowEvent 1 RedrawRequested"))
	assert.Equal(t, uint64(1), loop.Metrics().Snapshot().Redraws)
}

func TestEventLoop_spuriousWakeSkipped(t *testing.T) {
	loop, driver := newHeadlessLoop(t)
	app := newHookApp()

	_, err := loop.PumpAppEvents(0, app)
	require.NoError(t, err)
	before := len(app.Lines())

	require.NoError(t, driver.Wake())
	status, err := loop.PumpAppEvents(winloop.WaitForever, app)
	require.NoError(t, err)
	assert.False(t, status.Exit)

	assert.Len(t, app.Lines(), before, "a wake with nothing to deliver should not start an iteration")
	assert.Equal(t, uint64(1), loop.Metrics().Snapshot().SpuriousWakes)
}

type failingDriver struct {
	*winloop.HeadlessDriver
	err error
}

func (d *failingDriver) Wait(time.Duration) (winloop.WakeResult, error) {
	return winloop.WakeResult{}, d.err
}

func TestEventLoop_driverWaitFailure(t *testing.T) {
	driver := &failingDriver{
		HeadlessDriver: winloop.NewHeadlessDriver(),
		err:            &winloop.OSError{Op: "epoll_wait", Err: syscall.EBADF},
	}
	loop, err := winloop.New(winloop.WithDriver(driver))
	require.NoError(t, err)

	app := newHookApp()
	err = loop.RunApp(app)

	var exitErr *winloop.ExitFailureError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, int(syscall.EBADF), exitErr.Code)
	assert.Equal(t, "Exiting exiting=true", app.Lines()[len(app.Lines())-1])
}

func TestEventLoop_PumpAppEvents_errors(t *testing.T) {
	t.Run("nil app", func(t *testing.T) {
		loop, _ := newHeadlessLoop(t)
		_, err := loop.PumpAppEvents(0, nil)
		assert.Error(t, err)
	})

	t.Run("not owner", func(t *testing.T) {
		loop, _ := newHeadlessLoop(t)
		errCh := make(chan error, 1)
		go func() {
			_, err := loop.PumpAppEvents(0, newHookApp())
			errCh <- err
		}()
		assert.ErrorIs(t, <-errCh, winloop.ErrNotOwnerGoroutine)
		assert.Equal(t, winloop.StateNotRunning, loop.State())
	})

	t.Run("reentrant", func(t *testing.T) {
		loop, _ := newHeadlessLoop(t)
		var reentrantErr error
		app := newHookApp()
		app.resumed = func(el *winloop.ActiveEventLoop) {
			_, reentrantErr = loop.PumpAppEvents(0, app)
			el.Exit()
		}
		require.NoError(t, loop.RunApp(app))
		assert.ErrorIs(t, reentrantErr, winloop.ErrReentrantRun)
	})

	t.Run("closed", func(t *testing.T) {
		loop, _ := newHeadlessLoop(t)
		require.NoError(t, loop.Close())
		require.NoError(t, loop.Close())
		_, err := loop.PumpAppEvents(0, newHookApp())
		assert.ErrorIs(t, err, winloop.ErrLoopTerminated)
	})

	t.Run("close while running", func(t *testing.T) {
		loop, _ := newHeadlessLoop(t)
		_, err := loop.PumpAppEvents(0, newHookApp())
		require.NoError(t, err)
		assert.ErrorIs(t, loop.Close(), winloop.ErrLoopAlreadyRunning)
	})
}

func TestEventLoop_panicTerminates(t *testing.T) {
	loop, _ := newHeadlessLoop(t)
	boom := errors.New("boom")
	app := newHookApp()
	app.resumed = func(*winloop.ActiveEventLoop) { panic(boom) }

	assert.PanicsWithValue(t, boom, func() { _ = loop.RunApp(app) })
	assert.Equal(t, winloop.StateExited, loop.State())

	_, err := loop.PumpAppEvents(0, app)
	assert.ErrorIs(t, err, winloop.ErrLoopTerminated)
}

func TestEventLoop_newEventsFirst(t *testing.T) {
	script, err := winloop.ParseScript([]byte(`
name: ordering
windows: [a, b]
steps:
  - event: resized
    window: a
    width: 1
    height: 1
  - event: request_redraw
    window: b
  - event: wake_up
  - event: user_event
    payload: x
  - event: close_requested
    window: a
  - event: close_requested
    window: b
`))
	require.NoError(t, err)
	driver, err := winloop.NewScriptDriver(script)
	require.NoError(t, err)
	loop, err := winloop.New(winloop.WithDriver(driver))
	require.NoError(t, err)

	app := newHookApp()
	require.NoError(t, loop.RunApp(app))

	// every iteration is NewEvents ... AboutToWait, with nothing outside
	lines := app.Lines()
	require.Equal(t, "Exiting exiting=true", lines[len(lines)-1])
	inIteration := false
	for i, line := range lines[:len(lines)-1] {
		switch {
		case len(line) >= 9 && line[:9] == "NewEvents":
			assert.False(t, inIteration, "line %d: NewEvents inside an iteration", i)
			inIteration = true
		case line == "AboutToWait":
			assert.True(t, inIteration, "line %d: AboutToWait outside an iteration", i)
			inIteration = false
		default:
			assert.True(t, inIteration, "line %d: %q outside an iteration", i, line)
		}
	}
}
