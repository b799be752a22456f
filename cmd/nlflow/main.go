package main

import (
	"fmt"
	"io"
	"os"
)

var version = "dev"

// stdout and stdin are swapped in tests.
var (
	stdout io.Writer = os.Stdout
	stdin  io.Reader = os.Stdin
)

var commands = map[string]func([]string) error{
	"parse":    runParse,
	"validate": runValidate,
	"config":   runConfig,
}

func usage() {
	fmt.Fprintf(os.Stderr, `nlflow - natural-language workflow parser (version %s)

Usage:
  nlflow <command> [options]

Commands:
  parse      Parse an instruction into a workflow (json or yaml, optional jq filter)
  validate   Check a workflow JSON document against the step invariants
  config     Configuration tooling (check a file, print defaults)

Run 'nlflow <command> -h' for command-specific help.
`, version)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		usage()
		os.Exit(0)
	}
	if cmd == "-v" || cmd == "--version" || cmd == "version" {
		fmt.Println(version)
		os.Exit(0)
	}

	fn, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd) //nolint:gosec // G705: CLI error output
		usage()
		os.Exit(1)
	}

	if err := fn(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err) //nolint:gosec // G705: CLI error output
		os.Exit(1)
	}
}
