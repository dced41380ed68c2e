// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package winloop

import (
	"runtime"
)

// ownerToken identifies the goroutine that owns a loop. Loop state is
// confined to it; every entry point that touches that state checks it.
type ownerToken struct {
	id uint64
}

func newOwnerToken() ownerToken {
	return ownerToken{id: getGoroutineID()}
}

// held reports whether the calling goroutine is the owner.
func (t ownerToken) held() bool {
	return t.id != 0 && getGoroutineID() == t.id
}

// getGoroutineID returns the current goroutine's ID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
