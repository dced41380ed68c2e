// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package winloop

import (
	"io"
	"os"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// NewDefaultLogger returns a JSON lines logger writing to w (stderr if nil),
// enabled at level and above.
func NewDefaultLogger(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	if w == nil {
		w = os.Stderr
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}

// Diagnostic categories, used as rate limiter keys.
const (
	diagRedrawOutsideRedraws = "redraw_outside_redraws"
	diagEventDuringRedraws   = "event_during_redraws"
	diagHostExit             = "host_exit"
	diagWakeFailed           = "wake_failed"
)

// diagnostics emits rate limited warnings.
type diagnostics struct {
	logger  *logiface.Logger[logiface.Event]
	limiter *catrate.Limiter
}

// warning returns a builder for a warning in category, or nil if the
// category is currently limited. The nil builder is safe to use.
func (d *diagnostics) warning(category string) *logiface.Builder[logiface.Event] {
	if d.logger == nil {
		return nil
	}
	if _, ok := d.limiter.Allow(category); !ok {
		return nil
	}
	return d.logger.Warning().Str("category", category)
}
