// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Command winloop drives an event loop with a tracing application.
package main

import (
	"fmt"
	"os"

	"github.com/joeycumines/go-winloop/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "winloop:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
