// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package cli implements the winloop command.
package cli

import (
	"fmt"
	"io"

	"github.com/joeycumines/go-winloop"
	"github.com/joeycumines/logiface"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	LogLevel string
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "winloop",
		Short: "Drive a windowing event loop",
		Long: `Drive a windowing event loop with a tracing application, printing each
callback it receives.

Loops are driven by the native platform driver, or by replaying a YAML script
of platform activity.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := parseLevel(opts.LogLevel); err != nil {
				return err
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warning", "log level (disabled|emerg|alert|crit|err|warning|notice|info|debug|trace)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

// newLogger returns the stderr logger for the configured level.
func (x *RootOptions) newLogger(w io.Writer) (*logiface.Logger[logiface.Event], error) {
	level, err := parseLevel(x.LogLevel)
	if err != nil {
		return nil, err
	}
	return winloop.NewDefaultLogger(w, level), nil
}

func parseLevel(s string) (logiface.Level, error) {
	for level := logiface.LevelDisabled; level <= logiface.LevelTrace; level++ {
		if level.String() == s {
			return level, nil
		}
	}
	return 0, fmt.Errorf("invalid log level %q", s)
}
