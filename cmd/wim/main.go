// Copyright 2026 The Wimlib Authors
// SPDX-License-Identifier: Apache-2.0

// Command wim inspects and builds WIM archives.
package main

import (
	"fmt"
	"os"

	"github.com/ChloeTigre/wimlib/cmd/wim/cli"
)

func main() {
	root := &cli.Command{
		Name:    "wim",
		Summary: "inspect and build WIM archives",
		Description: "wim reads and writes Windows Imaging (WIM) archives: " +
			"content-addressed, deduplicated containers of filesystem images " +
			"with per-chunk compression.",
		Subcommands: []*cli.Command{
			infoCommand(),
			verifyCommand(),
			createCommand(),
			appendCommand(),
			extractCommand(),
			optimizeCommand(),
		},
	}

	if err := root.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "wim: %v\n", err)
		os.Exit(1)
	}
}
