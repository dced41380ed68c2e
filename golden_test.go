// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package winloop_test

import (
	"path/filepath"
	"testing"

	"github.com/joeycumines/go-winloop"
	"github.com/joeycumines/go-winloop/internal/apptrace"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runScript replays a script from testdata/scripts, returning the driver
// and the recorded trace.
func runScript(t *testing.T, name string) (*winloop.ScriptDriver, *apptrace.Recorder) {
	t.Helper()

	script, err := winloop.LoadScript(filepath.Join("testdata", "scripts", name+".yaml"))
	require.NoError(t, err)
	driver, err := winloop.NewScriptDriver(script)
	require.NoError(t, err)

	loop, err := winloop.New(winloop.WithDriver(driver), winloop.WithMetrics(true))
	require.NoError(t, err)

	rec := apptrace.New(apptrace.Options{
		ExitOnClose:    true,
		RedrawOnResize: true,
		ScaleSize:      2,
	})
	require.NoError(t, loop.RunApp(rec))
	assert.Equal(t, winloop.StateExited, loop.State())
	assert.Zero(t, driver.Remaining())

	// AboutToWait is delivered exactly once per iteration
	assert.Equal(t, int(loop.Metrics().Snapshot().Iterations), rec.Count("AboutToWait"))

	return driver, rec
}

func assertGolden(t *testing.T, name string, rec *apptrace.Recorder) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir(filepath.Join("testdata", "golden")),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(rec.String()))
}

func TestGolden_resizeClose(t *testing.T) {
	driver, rec := runScript(t, "resize_close")
	assertGolden(t, "resize_close", rec)

	size, ok := driver.SurfaceSize(driver.Window("main").ID())
	assert.True(t, ok)
	assert.Equal(t, winloop.PhysicalSize{Width: 800, Height: 600}, size)
}

func TestGolden_userEvents(t *testing.T) {
	_, rec := runScript(t, "user_events")
	assertGolden(t, "user_events", rec)
}

func TestGolden_lifecycle(t *testing.T) {
	driver, rec := runScript(t, "lifecycle")
	assertGolden(t, "lifecycle", rec)

	size, ok := driver.SurfaceSize(driver.Window("main").ID())
	assert.True(t, ok)
	assert.Equal(t, winloop.PhysicalSize{Width: 800, Height: 600}, size, "scale factor change should apply the size requested by the handler")
	assert.True(t, driver.Window("aux").Closed())
}
