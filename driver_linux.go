// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux

package winloop

import (
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// EpollDriver is the native linux driver: an epoll instance, with an
// eventfd as the wake source. Display server connections (and any other
// native sources) are attached with RegisterSource.
type EpollDriver struct { // betteralign:ignore
	_        [64]byte // Cache line padding //nolint:unused
	wakeFd   int
	epfd     int
	eventBuf [256]unix.EpollEvent
	sources  sourceTable
	buf      eventBuffer
	waiting  atomic.Bool
	closed   atomic.Bool
}

// NewEpollDriver creates the epoll instance and its wake eventfd.
func NewEpollDriver() (*EpollDriver, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, &OSError{Op: "epoll_create1", Err: err}
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, &OSError{Op: "eventfd", Err: err}
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &ev); err != nil {
		_ = unix.Close(wakeFd)
		_ = unix.Close(epfd)
		return nil, &OSError{Op: "epoll_ctl", Err: err}
	}
	return &EpollDriver{epfd: epfd, wakeFd: wakeFd}, nil
}

func newNativeDriver() (PlatformDriver, error) {
	return NewEpollDriver()
}

// RegisterSource adds a native event source. fn runs on the loop goroutine
// whenever fd is ready. Must be called from the loop goroutine.
func (d *EpollDriver) RegisterSource(fd int, events IOEvents, fn SourceFunc) error {
	if d.closed.Load() {
		return ErrDriverClosed
	}
	if fd == d.wakeFd {
		return ErrFDAlreadyRegistered
	}
	if err := d.sources.add(fd, events, fn); err != nil {
		return err
	}
	ev := unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		_, _ = d.sources.remove(fd)
		return &OSError{Op: "epoll_ctl", Err: err}
	}
	return nil
}

// UnregisterSource removes a native event source.
func (d *EpollDriver) UnregisterSource(fd int) error {
	if _, err := d.sources.remove(fd); err != nil {
		return err
	}
	if err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return &OSError{Op: "epoll_ctl", Err: err}
	}
	return nil
}

func (d *EpollDriver) Wait(timeout time.Duration) (WakeResult, error) {
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

	n, err := unix.EpollWait(d.epfd, d.eventBuf[:], waitMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return WakeResult{Reason: WakeWoken}, nil
		}
		return WakeResult{}, &OSError{Op: "epoll_wait", Err: err}
	}
	if n == 0 {
		return WakeResult{Reason: WakeTimedOut}, nil
	}

	for i := range n {
		fd := int(d.eventBuf[i].Fd)
		if fd == d.wakeFd {
			d.drainWakeFd()
			continue
		}
		if info, ok := d.sources.get(fd); ok && info.fn != nil {
			info.fn(epollToEvents(d.eventBuf[i].Events), d.buf.emit)
		}
	}

	if ev, ok := d.buf.Poll(); ok {
		return WakeResult{Reason: WakeNativeEvent, Event: ev}, nil
	}
	return WakeResult{Reason: WakeWoken}, nil
}

func (d *EpollDriver) Poll() (EventWrapper, bool) { return d.buf.Poll() }

func (d *EpollDriver) Pending() bool { return d.buf.Pending() }

// Wake writes to the eventfd. Safe to call from any goroutine.
func (d *EpollDriver) Wake() error {
	if d.closed.Load() {
		return ErrDriverClosed
	}
	// Native endianness, as eventfd requires
	var one uint64 = 1
	buf := (*[8]byte)(unsafe.Pointer(&one))[:]
	_, err := unix.Write(d.wakeFd, buf)
	if err == unix.EAGAIN {
		// counter saturated, a wake is already pending
		return nil
	}
	return err
}

// drainWakeFd resets the eventfd counter.
func (d *EpollDriver) drainWakeFd() {
	var buf [8]byte
	for {
		if _, err := unix.Read(d.wakeFd, buf[:]); err != nil {
			return
		}
	}
}

func (d *EpollDriver) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	err1 := unix.Close(d.wakeFd)
	err2 := unix.Close(d.epfd)
	if err1 != nil {
		return err1
	}
	return err2
}

func (d *EpollDriver) Backend() Backend { return BackendEpoll }

func (d *EpollDriver) attach(*runner) {}

func eventsToEpoll(events IOEvents) uint32 {
	var epollEvents uint32
	if events&EventRead != 0 {
		epollEvents |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		epollEvents |= unix.EPOLLOUT
	}
	return epollEvents
}

func epollToEvents(epollEvents uint32) IOEvents {
	var events IOEvents
	if epollEvents&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if epollEvents&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if epollEvents&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if epollEvents&unix.EPOLLHUP != 0 {
		events |= EventHangup
	}
	return events
}
