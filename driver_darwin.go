// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build darwin

package winloop

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// KqueueDriver is the native darwin driver: a kqueue instance, with a
// non-blocking self-pipe as the wake source.
type KqueueDriver struct { // betteralign:ignore
	_         [64]byte // Cache line padding //nolint:unused
	kq        int
	wakeRead  int
	wakeWrite int
	eventBuf  [256]unix.Kevent_t
	sources   sourceTable
	buf       eventBuffer
	waiting   atomic.Bool
	closed    atomic.Bool
}

// NewKqueueDriver creates the kqueue instance and its wake pipe.
func NewKqueueDriver() (*KqueueDriver, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, &OSError{Op: "kqueue", Err: err}
	}
	unix.CloseOnExec(kq)

	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		_ = unix.Close(kq)
		return nil, &OSError{Op: "pipe", Err: err}
	}
	cleanup := func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
		_ = unix.Close(kq)
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			cleanup()
			return nil, &OSError{Op: "set_nonblock", Err: err}
		}
	}

	d := &KqueueDriver{kq: kq, wakeRead: fds[0], wakeWrite: fds[1]}
	if _, err := unix.Kevent(kq, eventsToKevents(fds[0], EventRead, unix.EV_ADD|unix.EV_ENABLE), nil, nil); err != nil {
		cleanup()
		return nil, &OSError{Op: "kevent", Err: err}
	}
	return d, nil
}

func newNativeDriver() (PlatformDriver, error) {
	return NewKqueueDriver()
}

// RegisterSource adds a native event source. fn runs on the loop goroutine
// whenever fd is ready. Must be called from the loop goroutine.
func (d *KqueueDriver) RegisterSource(fd int, events IOEvents, fn SourceFunc) error {
	if d.closed.Load() {
		return ErrDriverClosed
	}
	if fd == d.wakeRead || fd == d.wakeWrite {
		return ErrFDAlreadyRegistered
	}
	if err := d.sources.add(fd, events, fn); err != nil {
		return err
	}
	if kevents := eventsToKevents(fd, events, unix.EV_ADD|unix.EV_ENABLE); len(kevents) > 0 {
		if _, err := unix.Kevent(d.kq, kevents, nil, nil); err != nil {
			_, _ = d.sources.remove(fd)
			return &OSError{Op: "kevent", Err: err}
		}
	}
	return nil
}

// UnregisterSource removes a native event source.
func (d *KqueueDriver) UnregisterSource(fd int) error {
	info, err := d.sources.remove(fd)
	if err != nil {
		return err
	}
	if kevents := eventsToKevents(fd, info.events, unix.EV_DELETE); len(kevents) > 0 {
		_, _ = unix.Kevent(d.kq, kevents, nil, nil)
	}
	return nil
}

func (d *KqueueDriver) Wait(timeout time.Duration) (WakeResult, error) {
	if d.closed.Load() {
		return WakeResult{}, ErrDriverClosed
	}
	if !d.waiting.CompareAndSwap(false, true) {
		reentrantWait()
	}
	defer d.waiting.Store(false)

	if ev, ok := d.buf.Poll(); ok {
		return WakeResult{Reason: WakeNativeEvent, Event: ev}, nil
	}

	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(int64(timeout))
		ts = &t
	}

	n, err := unix.Kevent(d.kq, nil, d.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return WakeResult{Reason: WakeWoken}, nil
		}
		return WakeResult{}, &OSError{Op: "kevent", Err: err}
	}
	if n == 0 {
		return WakeResult{Reason: WakeTimedOut}, nil
	}

	for i := range n {
		kev := &d.eventBuf[i]
		fd := int(kev.Ident)
		if fd == d.wakeRead {
			d.drainWakePipe()
			continue
		}
		if info, ok := d.sources.get(fd); ok && info.fn != nil {
			info.fn(keventToEvents(kev), d.buf.emit)
		}
	}

	if ev, ok := d.buf.Poll(); ok {
		return WakeResult{Reason: WakeNativeEvent, Event: ev}, nil
	}
	return WakeResult{Reason: WakeWoken}, nil
}

func (d *KqueueDriver) Poll() (EventWrapper, bool) { return d.buf.Poll() }

func (d *KqueueDriver) Pending() bool { return d.buf.Pending() }

// Wake writes a byte to the self-pipe. Safe to call from any goroutine.
func (d *KqueueDriver) Wake() error {
	if d.closed.Load() {
		return ErrDriverClosed
	}
	_, err := unix.Write(d.wakeWrite, []byte{1})
	if err == unix.EAGAIN {
		// pipe full, a wake is already pending
		return nil
	}
	return err
}

func (d *KqueueDriver) drainWakePipe() {
	var buf [64]byte
	for {
		if _, err := unix.Read(d.wakeRead, buf[:]); err != nil {
			return
		}
	}
}

func (d *KqueueDriver) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	_ = unix.Close(d.wakeRead)
	_ = unix.Close(d.wakeWrite)
	return unix.Close(d.kq)
}

func (d *KqueueDriver) Backend() Backend { return BackendKqueue }

func (d *KqueueDriver) attach(*runner) {}

func eventsToKevents(fd int, events IOEvents, flags uint16) []unix.Kevent_t {
	var kevents []unix.Kevent_t
	if events&EventRead != 0 {
		kevents = append(kevents, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_READ,
			Flags:  flags,
		})
	}
	if events&EventWrite != 0 {
		kevents = append(kevents, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_WRITE,
			Flags:  flags,
		})
	}
	return kevents
}

func keventToEvents(kev *unix.Kevent_t) IOEvents {
	var events IOEvents
	switch kev.Filter {
	case unix.EVFILT_READ:
		events |= EventRead
	case unix.EVFILT_WRITE:
		events |= EventWrite
	}
	if kev.Flags&unix.EV_ERROR != 0 {
		events |= EventError
	}
	if kev.Flags&unix.EV_EOF != 0 {
		events |= EventHangup
	}
	return events
}
