// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joeycumines/go-winloop"
	"github.com/joeycumines/go-winloop/internal/apptrace"
	"github.com/spf13/cobra"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Script         string
	Driver         string
	ControlFlow    string
	Timeout        time.Duration
	ExitCode       int
	Metrics        bool
	RedrawOnResize bool
}

// Driver flag values.
const (
	DriverNative   = "native"
	DriverHeadless = "headless"
	DriverScript   = "script"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the loop with a tracing application",
		Long: `Run the event loop with an application that prints each callback it
receives, one per line, to stdout.

The application closes windows on CloseRequested, exiting once none remain,
and exits on the user event "quit", which is sent on SIGINT, SIGTERM, or
after --timeout.

Example:
  winloop run --script testdata/scripts/resize_close.yaml
  winloop run --driver native --timeout 2s --control-flow poll`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoop(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Script, "script", "", "YAML script to replay (implies --driver script)")
	cmd.Flags().StringVar(&opts.Driver, "driver", DriverNative, "platform driver (native|headless|script)")
	cmd.Flags().StringVar(&opts.ControlFlow, "control-flow", "wait", "initial control flow (wait|poll)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "send the quit event after this long (0 for never)")
	cmd.Flags().IntVar(&opts.ExitCode, "exit-code", 0, "code the application exits with")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "log loop metrics on exit")
	cmd.Flags().BoolVar(&opts.RedrawOnResize, "redraw-on-resize", true, "request a redraw on each resize")

	return cmd
}

func runLoop(opts *RunOptions, cmd *cobra.Command) error {
	logger, err := opts.newLogger(cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}

	loopOpts := []winloop.LoopOption{
		winloop.WithLogger(logger),
		winloop.WithMetrics(opts.Metrics),
	}

	switch opts.ControlFlow {
	case "wait":
	case "poll":
		loopOpts = append(loopOpts, winloop.WithControlFlow(winloop.Poll()))
	default:
		return WrapExitError(ExitCommandError, "invalid flags", fmt.Errorf("invalid control flow %q", opts.ControlFlow))
	}

	driver := opts.Driver
	if opts.Script != "" {
		driver = DriverScript
	}
	switch driver {
	case DriverNative:
	case DriverHeadless:
		loopOpts = append(loopOpts, winloop.WithDriver(winloop.NewHeadlessDriver()))
	case DriverScript:
		if opts.Script == "" {
			return WrapExitError(ExitCommandError, "invalid flags", errors.New("--script is required for the script driver"))
		}
		script, err := winloop.LoadScript(opts.Script)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load script", err)
		}
		d, err := winloop.NewScriptDriver(script)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid script", err)
		}
		loopOpts = append(loopOpts, winloop.WithDriver(d))
	default:
		return WrapExitError(ExitCommandError, "invalid flags", fmt.Errorf("invalid driver %q", driver))
	}

	loop, err := winloop.New(loopOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create event loop", err)
	}

	proxy := loop.CreateProxy()
	quit := func() { _ = proxy.SendEvent(apptrace.QuitEvent) }

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigChan:
			quit()
		case <-done:
		}
	}()

	if opts.Timeout > 0 {
		t := time.AfterFunc(opts.Timeout, quit)
		defer t.Stop()
	}

	app := apptrace.New(apptrace.Options{
		Out:            cmd.OutOrStdout(),
		ExitCode:       opts.ExitCode,
		ExitOnClose:    true,
		RedrawOnResize: opts.RedrawOnResize,
	})

	logger.Info().
		Stringer("backend", loop.Backend()).
		Log("event loop starting")

	err = loop.RunApp(app)

	if m := loop.Metrics(); m != nil {
		snap := m.Snapshot()
		logger.Info().
			Uint64("iterations", snap.Iterations).
			Uint64("wakes", snap.Wakes).
			Uint64("coalesced_wakes", snap.CoalescedWakes).
			Uint64("spurious_wakes", snap.SpuriousWakes).
			Uint64("redraws", snap.Redraws).
			Uint64("user_events", snap.UserEvents).
			Dur("latency_p99", snap.Latency.P99).
			Log("event loop metrics")
	}

	return err
}
