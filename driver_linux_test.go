// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux

package winloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestEpollDriver(t *testing.T) *EpollDriver {
	t.Helper()
	d, err := NewEpollDriver()
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func newTestPipe(t *testing.T) (r, w int) {
	t.Helper()
	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK))
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestEpollDriver_Wait(t *testing.T) {
	d := newTestEpollDriver(t)
	assert.Equal(t, BackendEpoll, d.Backend())

	res, err := d.Wait(0)
	require.NoError(t, err)
	assert.Equal(t, WakeTimedOut, res.Reason)

	start := time.Now()
	res, err = d.Wait(10 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, WakeTimedOut, res.Reason)
	assert.GreaterOrEqual(t, time.Since(start), 9*time.Millisecond)

	// wakes made before the wait are not lost, and are coalesced
	require.NoError(t, d.Wake())
	require.NoError(t, d.Wake())
	res, err = d.Wait(WaitForever)
	require.NoError(t, err)
	assert.Equal(t, WakeWoken, res.Reason)
	res, err = d.Wait(0)
	require.NoError(t, err)
	assert.Equal(t, WakeTimedOut, res.Reason)

	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = d.Wake()
	}()
	res, err = d.Wait(WaitForever)
	require.NoError(t, err)
	assert.Equal(t, WakeWoken, res.Reason)
}

func TestEpollDriver_RegisterSource(t *testing.T) {
	d := newTestEpollDriver(t)
	rfd, wfd := newTestPipe(t)

	var seen IOEvents
	require.NoError(t, d.RegisterSource(rfd, EventRead, func(events IOEvents, emit func(EventWrapper)) {
		seen = events
		var buf [16]byte
		n, _ := unix.Read(rfd, buf[:])
		for i := range n {
			emit(StaticEvent(NewWindowEvent(WindowID(buf[i]), Focused{Focused: true})))
		}
	}))
	assert.ErrorIs(t, d.RegisterSource(rfd, EventRead, nil), ErrFDAlreadyRegistered)
	assert.ErrorIs(t, d.RegisterSource(-1, EventRead, nil), ErrFDOutOfRange)
	assert.ErrorIs(t, d.RegisterSource(d.wakeFd, EventRead, nil), ErrFDAlreadyRegistered)

	_, err := unix.Write(wfd, []byte{1, 2})
	require.NoError(t, err)

	res, err := d.Wait(WaitForever)
	require.NoError(t, err)
	assert.Equal(t, EventRead, seen&EventRead)
	assert.Equal(t, WakeNativeEvent, res.Reason)
	assert.Equal(t, WindowID(1), res.Event.event.Window)
	assert.True(t, d.Pending())
	ev, ok := d.Poll()
	require.True(t, ok)
	assert.Equal(t, WindowID(2), ev.event.Window)
	assert.False(t, d.Pending())

	require.NoError(t, d.UnregisterSource(rfd))
	assert.ErrorIs(t, d.UnregisterSource(rfd), ErrFDNotRegistered)
}

func TestEpollDriver_Close(t *testing.T) {
	d := newTestEpollDriver(t)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	_, err := d.Wait(0)
	assert.ErrorIs(t, err, ErrDriverClosed)
	assert.ErrorIs(t, d.Wake(), ErrDriverClosed)
	assert.ErrorIs(t, d.RegisterSource(0, EventRead, nil), ErrDriverClosed)
}

func TestEventLoop_epoll(t *testing.T) {
	d := newTestEpollDriver(t)
	l, err := New(WithDriver(d))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	assert.Equal(t, BackendEpoll, l.Backend())

	_, err = New()
	assert.ErrorIs(t, err, ErrRecreationAttempt)

	rfd, wfd := newTestPipe(t)
	require.NoError(t, d.RegisterSource(rfd, EventRead, func(events IOEvents, emit func(EventWrapper)) {
		var buf [1]byte
		if n, _ := unix.Read(rfd, buf[:]); n == 1 {
			emit(StaticEvent(NewWindowEvent(1, CloseRequested{})))
		}
	}))

	app := new(hostApp)
	app.windowEvent = func(el *ActiveEventLoop, id WindowID, ev WindowEvent) {
		if _, ok := ev.(CloseRequested); ok {
			el.ExitWithCode(2)
		}
	}
	pump(t, l, 0, app)
	app.log = nil

	proxy := l.CreateProxy()
	go func() {
		time.Sleep(5 * time.Millisecond)
		proxy.WakeUp()
	}()
	// interrupted waits (EINTR) return without an iteration
	for len(app.log) == 0 {
		pump(t, l, WaitForever, app)
	}
	assert.Equal(t, []string{"NewEvents WaitCancelled", "ProxyWakeUp", "AboutToWait"}, app.log)
	app.log = nil

	_, err = unix.Write(wfd, []byte{0})
	require.NoError(t, err)
	var status PumpStatus
	for len(app.log) == 0 {
		status, err = l.PumpAppEvents(WaitForever, app)
		require.NoError(t, err)
	}
	assert.Equal(t, PumpStatus{Code: 2, Exit: true}, status)
	assert.Equal(t, []string{"NewEvents WaitCancelled", "1 CloseRequested", "AboutToWait", "Exiting"}, app.log)

	// the guard is released on exit
	again, err := New(WithDriver(newTestEpollDriver(t)))
	require.NoError(t, err)
	require.NoError(t, again.Close())
}
