// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package winloop

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLoopOptions_defaults(t *testing.T) {
	cfg, err := resolveLoopOptions(nil)
	require.NoError(t, err)
	assert.Nil(t, cfg.driver)
	assert.Nil(t, cfg.logger)
	assert.NotNil(t, cfg.now)
	assert.NotNil(t, cfg.limiter)
	assert.Equal(t, Wait(), cfg.controlFlow)
	assert.False(t, cfg.metricsEnabled)
}

func TestResolveLoopOptions(t *testing.T) {
	clock := newTestClock()
	driver := NewHeadlessDriver()
	logger, _ := newCaptureLogger(logiface.LevelInformational)

	cfg, err := resolveLoopOptions([]LoopOption{
		nil,
		WithDriver(driver),
		WithLogger(logger),
		WithClock(clock.Now),
		WithControlFlow(Poll()),
		WithMetrics(true),
		WithDiagnosticRate(nil),
	})
	require.NoError(t, err)
	assert.Same(t, driver, cfg.driver)
	assert.Same(t, logger, cfg.logger)
	assert.Equal(t, clock.Now(), cfg.now())
	assert.Equal(t, Poll(), cfg.controlFlow)
	assert.True(t, cfg.metricsEnabled)
	assert.Nil(t, cfg.limiter, "an empty rate disables limiting")
}

func TestResolveLoopOptions_errors(t *testing.T) {
	for _, tc := range [...]struct {
		name string
		opt  LoopOption
	}{
		{"nil driver", WithDriver(nil)},
		{"nil clock", WithClock(nil)},
		{"zero rate", WithDiagnosticRate(map[time.Duration]int{time.Second: 0})},
		{"rates not increasing", WithDiagnosticRate(map[time.Duration]int{time.Second: 10, time.Minute: 5})},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := resolveLoopOptions([]LoopOption{tc.opt})
			assert.Error(t, err)
		})
	}

	_, err := New(WithClock(nil))
	assert.Error(t, err)
	_, err = NewHostLoop(new(fakeRunLoop), WithDriver(nil))
	assert.Error(t, err)
	assert.False(t, nativeLoopClaimed.Load(), "a failed loop should not hold the guard")
}

func TestNewDefaultLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDefaultLogger(&buf, logiface.LevelWarning)

	logger.Info().Log("hidden")
	logger.Warning().Str("category", "test").Log("shown")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "test", entry["category"])
}

func TestDiagnostics_warning(t *testing.T) {
	var nop diagnostics
	nop.warning("any").Log("dropped")

	logger, capture := newCaptureLogger(logiface.LevelTrace)
	d := diagnostics{logger: logger}
	d.warning("a").Log("first")
	d.warning("a").Log("second")
	assert.Equal(t, 2, capture.count(logiface.LevelWarning, "a"), "no limiter, no limit")
}
