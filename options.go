// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package winloop

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// loopOptions holds configuration options for loop creation.
type loopOptions struct {
	driver         PlatformDriver
	logger         *logiface.Logger[logiface.Event]
	now            func() time.Time
	limiter        *catrate.Limiter
	controlFlow    ControlFlow
	limiterSet     bool
	metricsEnabled bool
}

// --- Loop Options ---

// LoopOption configures an [EventLoop] or [HostLoop].
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithLogger sets the structured logger. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithDriver sets the platform driver, instead of detecting the native one.
// The loop takes ownership of the driver, and closes it on exit.
// Ignored by [NewHostLoop].
func WithDriver(driver PlatformDriver) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if driver == nil {
			return errors.New("winloop: nil driver")
		}
		opts.driver = driver
		return nil
	}}
}

// WithControlFlow sets the initial control flow. The default is Wait.
func WithControlFlow(flow ControlFlow) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.controlFlow = flow
		return nil
	}}
}

// WithClock sets the time source used for StartCause computation and
// timeouts. Intended for tests.
func WithClock(now func() time.Time) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if now == nil {
			return errors.New("winloop: nil clock")
		}
		opts.now = now
		return nil
	}}
}

// WithDiagnosticRate sets the per-category rate limits for warning
// diagnostics, as accepted by [catrate.NewLimiter]. A nil or empty map
// disables rate limiting.
func WithDiagnosticRate(rates map[time.Duration]int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) (err error) {
		opts.limiterSet = true
		if len(rates) == 0 {
			opts.limiter = nil
			return nil
		}
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("winloop: invalid diagnostic rate: %v", r)
			}
		}()
		opts.limiter = catrate.NewLimiter(rates)
		return nil
	}}
}

// WithMetrics enables iteration metrics, accessible via Metrics().
func WithMetrics(enabled bool) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// defaultDiagnosticRates allows bursts of diagnostics while bounding a
// misbehaving platform.
var defaultDiagnosticRates = map[time.Duration]int{
	time.Second: 4,
	time.Minute: 32,
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		now: time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	if !cfg.limiterSet {
		cfg.limiter = catrate.NewLimiter(defaultDiagnosticRates)
	}
	return cfg, nil
}
