// Package main is the entry point for the armada CLI. Armada is a task
// orchestration engine for running autonomous coding-agent sessions
// against a git repository.
package main

import (
	"fmt"
	"os"

	"github.com/tOgg1/armada/internal/cli"
)

// Version information (set by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := cli.Execute(version, commit, date); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
