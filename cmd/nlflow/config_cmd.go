package main

import (
	"flag"
	"fmt"

	"github.com/GoCodeAlone/nlflow/config"
)

func runConfig(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: nlflow config <check|defaults> [options]")
	}
	switch args[0] {
	case "check":
		return runConfigCheck(args[1:])
	case "defaults":
		return runConfigDefaults(args[1:])
	default:
		return fmt.Errorf("unknown config subcommand: %s", args[0])
	}
}

func runConfigCheck(args []string) error {
	fs := flag.NewFlagSet("config check", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: nlflow config check <nlflow.yaml>\n\nLoad and validate a configuration file.\n")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("config file path is required")
	}

	cfg, err := loadCLIConfig(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "config %s is valid (provider %s, cache %s, store %s)\n",
		fs.Arg(0), cfg.AI.Provider, cfg.Cache.Backend, cfg.Store.Backend)
	return nil
}

func runConfigDefaults(args []string) error {
	fs := flag.NewFlagSet("config defaults", flag.ContinueOnError)
	format := fs.String("format", "yaml", "Output format: json or yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return writeOutput(stdout, config.Default(), *format, nil, false)
}
