package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/GoCodeAlone/nlflow/nlparse"
)

func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	strict := fs.Bool("strict", false, "Require a non-empty then branch on every condition")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: nlflow validate [options] <workflow.json|->\n\nCheck a workflow JSON document against the step invariants.\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("workflow file path is required")
	}

	path := fs.Arg(0)
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read workflow: %w", err)
	}

	var wf nlparse.ParsedWorkflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return fmt.Errorf("failed to decode workflow: %w", err)
	}

	check := nlparse.Validate
	if *strict {
		check = nlparse.ValidateStrict
	}
	if err := check(wf.Steps); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Fprintf(stdout, "workflow %q is valid (%d steps, apps: %v)\n", wf.Name, len(wf.Steps), wf.RequiredApps)
	return nil
}
