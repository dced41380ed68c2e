// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package cli

import (
	"fmt"

	"github.com/joeycumines/go-winloop"
	"github.com/spf13/cobra"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <script>...",
		Short: "Validate scripts without running them",
		Long: `Decode each YAML script, checking for unknown fields, unknown events, and
steps that refer to undeclared windows.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(args, cmd)
		},
	}

	return cmd
}

func runValidate(paths []string, cmd *cobra.Command) error {
	var failed int
	for _, path := range paths {
		script, err := winloop.LoadScript(path)
		if err != nil {
			failed++
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "FAIL %v\n", err)
			continue
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ok   %s (%d windows, %d steps)\n", path, len(script.Windows), len(script.Steps))
	}
	if failed != 0 {
		return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d of %d scripts invalid", failed, len(paths))}
	}
	return nil
}
