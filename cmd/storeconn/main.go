// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command storeconn opens the Redis connections described in its
// configuration and checks, describes or serves health for them.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ManuGH/storeconn/internal/version"
)

const usage = `usage: storeconn <command> [flags]

commands:
  ping      connect to each configured connection and PING it
  describe  print how each connection would be constructed (no network I/O)
  serve     expose /healthz, /readyz and /metrics for the configured connections
  version   print version and exit
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	switch args[0] {
	case "ping":
		return runPingCLI(args[1:], stdout, stderr)
	case "describe":
		return runDescribeCLI(args[1:], stdout, stderr)
	case "serve":
		return runServeCLI(args[1:], stderr)
	case "version", "-version", "--version":
		fmt.Fprintln(stdout, version.String())
		return 0
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
}
