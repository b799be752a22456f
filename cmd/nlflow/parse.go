package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/itchyny/gojq"

	"github.com/GoCodeAlone/nlflow/config"
	"github.com/GoCodeAlone/nlflow/setup"
	"github.com/GoCodeAlone/nlflow/store"
)

// stderr receives CLI logs; swapped in tests.
var stderr io.Writer = os.Stderr

func runParse(args []string) error {
	fs := flag.NewFlagSet("parse", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to nlflow configuration YAML file")
	apps := fs.String("apps", "", "Comma-separated apps the model may choose from")
	format := fs.String("format", "json", "Output format: json or yaml")
	jqExpr := fs.String("jq", "", "jq expression applied to the output")
	raw := fs.Bool("r", false, "Print string jq results without quotes")
	noModel := fs.Bool("no-model", false, "Disable the model fallback")
	recursive := fs.Bool("recursive", false, "Detect steps inside conditional branches")
	withOutcome := fs.Bool("outcome", false, "Print {outcome, workflow} instead of the bare workflow")
	save := fs.Bool("save", false, "Persist the result to the configured store and print its id")
	timeout := fs.Duration("timeout", 2*time.Minute, "Overall time limit")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: nlflow parse [options] <instruction...>\n\nParse an instruction into a workflow. Reads stdin when no instruction is given or it is \"-\".\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *format != "json" && *format != "yaml" {
		return fmt.Errorf("unknown output format %q (want json or yaml)", *format)
	}

	var code *gojq.Code
	if *jqExpr != "" {
		var err error
		if code, err = compileJQ(*jqExpr); err != nil {
			return err
		}
	}

	instruction, err := readInstruction(fs.Args())
	if err != nil {
		return err
	}
	if strings.TrimSpace(instruction) == "" {
		fs.Usage()
		return fmt.Errorf("instruction is required")
	}

	cfg, err := loadCLIConfig(*configPath)
	if err != nil {
		return err
	}
	if *noModel {
		cfg.AI.Enabled = false
	}
	if *recursive {
		cfg.Parser.RecursiveBranches = true
	}
	cfg.Metrics.Enabled = false
	logger := cfg.Logging.NewLogger(stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	comps, err := setup.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer comps.Close(context.Background()) //nolint:errcheck

	res, err := comps.Parser.ParseWithOutcome(ctx, instruction, splitApps(*apps))
	if err != nil {
		return err
	}
	if res.FallbackErr != nil {
		logger.Debug("Model fallback not used", "error", res.FallbackErr)
	}

	var out any = res.Workflow
	if *withOutcome || *save {
		wrapped := map[string]any{
			"outcome":  res.Outcome,
			"workflow": res.Workflow,
		}
		if *save {
			rec := &store.Record{Instruction: instruction, Outcome: res.Outcome, Workflow: res.Workflow}
			if err := comps.Store.Save(ctx, rec); err != nil {
				return fmt.Errorf("save workflow: %w", err)
			}
			wrapped["id"] = rec.ID.String()
			if cfg.Store.Backend != config.StorePostgres {
				logger.Warn("Saved to the in-memory store; the record is lost on exit")
			}
		}
		out = wrapped
	}
	return writeOutput(stdout, out, *format, code, *raw)
}

// readInstruction joins args, or reads stdin when args are empty or "-".
func readInstruction(args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read instruction from stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func loadCLIConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("NLFLOW_CONFIG")
	}
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func splitApps(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var apps []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			apps = append(apps, a)
		}
	}
	return apps
}
