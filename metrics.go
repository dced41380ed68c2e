// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package winloop

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks loop statistics. Enabled via [WithMetrics].
//
// Thread Safety: all methods are thread-safe. The loop records, any
// goroutine may read.
//
// Example:
//
//	loop, _ := winloop.New(winloop.WithMetrics(true))
//	_ = loop.RunApp(app)
//	stats := loop.Metrics().Snapshot()
//	fmt.Printf("iterations: %d, P99: %v\n", stats.Iterations, stats.Latency.P99)
type Metrics struct {
	rate *RateCounter

	// Latency is the wall time spent in each iteration, excluding the wait.
	Latency LatencyMetrics

	iterations     atomic.Uint64
	wakes          atomic.Uint64
	coalescedWakes atomic.Uint64
	spuriousWakes  atomic.Uint64
	redraws        atomic.Uint64
	userEvents     atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of [Metrics].
type MetricsSnapshot struct {
	Latency LatencySnapshot
	// IterationsPerSecond is averaged over a 10 second window.
	IterationsPerSecond float64
	Iterations          uint64
	// Wakes counts proxy wakes that poked the platform.
	Wakes uint64
	// CoalescedWakes counts proxy wakes absorbed by a pending one.
	CoalescedWakes uint64
	// SpuriousWakes counts driver wakes that started no iteration.
	SpuriousWakes uint64
	Redraws       uint64
	UserEvents    uint64
}

func newMetrics() *Metrics {
	return &Metrics{rate: NewRateCounter(10*time.Second, 100*time.Millisecond)}
}

// Snapshot computes percentiles and copies all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.Latency.Sample()
	return MetricsSnapshot{
		Latency:             m.Latency.snapshot(),
		IterationsPerSecond: m.rate.Rate(),
		Iterations:          m.iterations.Load(),
		Wakes:               m.wakes.Load(),
		CoalescedWakes:      m.coalescedWakes.Load(),
		SpuriousWakes:       m.spuriousWakes.Load(),
		Redraws:             m.redraws.Load(),
		UserEvents:          m.userEvents.Load(),
	}
}

// The record methods are nil-safe, so call sites need no enabled check.

func (m *Metrics) recordIteration(d time.Duration) {
	if m == nil {
		return
	}
	m.iterations.Add(1)
	m.rate.Increment()
	m.Latency.Record(d)
}

func (m *Metrics) recordWake(coalesced bool) {
	if m == nil {
		return
	}
	if coalesced {
		m.coalescedWakes.Add(1)
	} else {
		m.wakes.Add(1)
	}
}

func (m *Metrics) recordSpuriousWake() {
	if m != nil {
		m.spuriousWakes.Add(1)
	}
}

func (m *Metrics) recordRedraws(n int) {
	if m != nil {
		m.redraws.Add(uint64(n))
	}
}

func (m *Metrics) recordUserEvents(n int) {
	if m != nil {
		m.userEvents.Add(uint64(n))
	}
}

// sampleSize is the maximum number of latency samples to retain.
const sampleSize = 1000

// LatencyMetrics tracks latency distribution with percentiles, over a
// rolling buffer of samples.
type LatencyMetrics struct {
	samples     [sampleSize]time.Duration
	sum         time.Duration
	cached      LatencySnapshot
	sampleIdx   int
	sampleCount int
	mu          sync.Mutex
}

// LatencySnapshot holds percentiles computed by [LatencyMetrics.Sample].
type LatencySnapshot struct {
	P50  time.Duration
	P90  time.Duration
	P99  time.Duration
	Max  time.Duration
	Mean time.Duration
}

// Record records a latency sample.
func (l *LatencyMetrics) Record(duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sampleCount >= sampleSize {
		l.sum -= l.samples[l.sampleIdx]
	}

	l.samples[l.sampleIdx] = duration
	l.sum += duration
	l.sampleIdx++
	if l.sampleIdx >= sampleSize {
		l.sampleIdx = 0
	}
	if l.sampleCount < sampleSize {
		l.sampleCount++
	}
}

// Sample computes percentiles from collected samples, returning the number
// of samples used.
func (l *LatencyMetrics) Sample() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := l.sampleCount
	if count == 0 {
		return 0
	}

	sorted := slices.Clone(l.samples[:count])
	slices.Sort(sorted)

	l.cached = LatencySnapshot{
		P50:  sorted[percentileIndex(count, 50)],
		P90:  sorted[percentileIndex(count, 90)],
		P99:  sorted[percentileIndex(count, 99)],
		Max:  sorted[count-1],
		Mean: l.sum / time.Duration(count),
	}
	return count
}

func (l *LatencyMetrics) snapshot() LatencySnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cached
}

// percentileIndex computes the index for a given percentile (0-100).
func percentileIndex(n, p int) int {
	index := (p * n) / 100
	if index >= n {
		return n - 1
	}
	return index
}

// RateCounter tracks events per second over a rolling window of buckets.
//
// Rate is 0 until the first event, and reflects the average over the whole
// window thereafter.
type RateCounter struct {
	lastRotation time.Time
	buckets      []int64
	bucketSize   time.Duration
	windowSize   time.Duration
	mu           sync.Mutex
}

// NewRateCounter creates a counter over windowSize, with bucketSize
// granularity.
func NewRateCounter(windowSize, bucketSize time.Duration) *RateCounter {
	bucketCount := max(int(windowSize/bucketSize), 1)
	return &RateCounter{
		buckets:      make([]int64, bucketCount),
		bucketSize:   bucketSize,
		windowSize:   windowSize,
		lastRotation: time.Now(),
	}
}

// Increment records one event.
func (t *RateCounter) Increment() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rotate(time.Now())
	t.buckets[len(t.buckets)-1]++
}

// rotate advances the buckets. Caller must hold mu.
func (t *RateCounter) rotate(now time.Time) {
	advance := int(now.Sub(t.lastRotation) / t.bucketSize)
	if advance <= 0 {
		return
	}
	if advance >= len(t.buckets) {
		clear(t.buckets)
		t.lastRotation = now
		return
	}
	copy(t.buckets, t.buckets[advance:])
	clear(t.buckets[len(t.buckets)-advance:])
	t.lastRotation = t.lastRotation.Add(time.Duration(advance) * t.bucketSize)
}

// Rate returns the current events per second.
func (t *RateCounter) Rate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rotate(time.Now())
	var sum int64
	for _, n := range t.buckets {
		sum += n
	}
	if sum == 0 {
		return 0
	}
	return float64(sum) / t.windowSize.Seconds()
}
