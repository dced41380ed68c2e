// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package winloop

import (
	"sync"
	"weak"
)

// registry tracks live windows by ID using weak pointers, so that a
// [Window] the application drops without closing is eventually forgotten.
//
// Scavenging walks a ring of IDs incrementally, one batch per iteration,
// and compacts the ring once most of it is dead.
type registry struct {
	data map[WindowID]weak.Pointer[Window]

	// ring holds IDs in allocation order. Zero marks a removed slot.
	ring []WindowID

	// head is the scavenger's position in ring.
	head int

	nextID WindowID
	mu     sync.RWMutex

	scavengeMu sync.Mutex
}

func newRegistry() *registry {
	return &registry{
		data:   make(map[WindowID]weak.Pointer[Window]),
		ring:   make([]WindowID, 0, 16),
		nextID: 1, // Start at 1 so 0 is never a valid ID
	}
}

// add allocates an ID for w, and registers it.
func (r *registry) add(w *Window) WindowID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	w.id = id

	r.data[id] = weak.Make(w)
	r.ring = append(r.ring, id)
	return id
}

// get returns the live window for id, or nil.
func (r *registry) get(id WindowID) *Window {
	r.mu.RLock()
	wp, ok := r.data[id]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	w := wp.Value()
	if w == nil || w.closed.Load() {
		return nil
	}
	return w
}

// remove forgets id.
func (r *registry) remove(id WindowID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, id)
}

// live returns the open windows, in ID order.
func (r *registry) live() []*Window {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Window, 0, len(r.data))
	for _, id := range r.ring {
		if id == 0 {
			continue
		}
		wp, ok := r.data[id]
		if !ok {
			continue
		}
		if w := wp.Value(); w != nil && !w.closed.Load() {
			out = append(out, w)
		}
	}
	return out
}

// len returns the number of registered IDs, including any not yet
// scavenged.
func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

// scavenge checks up to batchSize ring entries, removing those whose window
// was collected or closed.
func (r *registry) scavenge(batchSize int) {
	r.scavengeMu.Lock()
	defer r.scavengeMu.Unlock()

	if batchSize <= 0 {
		return
	}

	type item struct {
		wp  weak.Pointer[Window]
		id  WindowID
		idx int
	}

	r.mu.RLock()
	ringLen := len(r.ring)
	if ringLen == 0 {
		r.mu.RUnlock()
		return
	}
	start := r.head
	end := min(start+batchSize, ringLen)
	items := make([]item, 0, end-start)
	for i := start; i < end; i++ {
		id := r.ring[i]
		if id == 0 {
			continue
		}
		wp, ok := r.data[id]
		if !ok {
			// removed, but the ring slot is still set
			items = append(items, item{id: id, idx: i})
			continue
		}
		items = append(items, item{wp: wp, id: id, idx: i})
	}
	nextHead := end
	if nextHead >= ringLen {
		nextHead = 0
	}
	r.mu.RUnlock()

	// resolve weak pointers without holding the lock
	dead := items[:0]
	for _, it := range items {
		if w := it.wp.Value(); w == nil || w.closed.Load() {
			dead = append(dead, it)
		}
	}

	cycleCompleted := nextHead == 0

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, it := range dead {
		delete(r.data, it.id)
		if it.idx < len(r.ring) && r.ring[it.idx] == it.id {
			r.ring[it.idx] = 0
		}
	}
	r.head = nextHead

	if cycleCompleted && len(r.ring) > 64 && len(r.data)*4 < len(r.ring) {
		r.compact()
	}
}

// compact rebuilds ring without removed slots. Caller must hold mu.
func (r *registry) compact() {
	ring := make([]WindowID, 0, len(r.data))
	for _, id := range r.ring {
		if id == 0 {
			continue
		}
		if _, ok := r.data[id]; ok {
			ring = append(ring, id)
		}
	}
	r.ring = ring
	r.head = 0
}
