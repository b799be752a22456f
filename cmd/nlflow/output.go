package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/itchyny/gojq"
	"gopkg.in/yaml.v3"
)

// compileJQ parses and compiles a jq expression up front so syntax errors
// are reported before any work is done.
func compileJQ(expression string) (*gojq.Code, error) {
	parsed, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression %q: %w", expression, err)
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq expression %q: %w", expression, err)
	}
	return code, nil
}

// normalize round-trips v through JSON so custom marshalers apply and the
// result is made of plain maps, slices and scalars.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// runJQ applies code to input and collects every emitted value.
func runJQ(code *gojq.Code, input any) ([]any, error) {
	iter := code.Run(input)
	var results []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("jq: %w", err)
		}
		results = append(results, v)
	}
	return results, nil
}

// writeOutput renders v in format, applying the jq filter first when one
// is given. Each jq result is written as its own document. With raw set,
// string results are printed without JSON quoting.
func writeOutput(w io.Writer, v any, format string, code *gojq.Code, raw bool) error {
	doc, err := normalize(v)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}

	docs := []any{doc}
	if code != nil {
		docs, err = runJQ(code, doc)
		if err != nil {
			return err
		}
	}

	for i, d := range docs {
		switch format {
		case "yaml":
			if i > 0 {
				if _, err := io.WriteString(w, "---\n"); err != nil {
					return err
				}
			}
			enc := yaml.NewEncoder(w)
			enc.SetIndent(2)
			if err := enc.Encode(d); err != nil {
				return fmt.Errorf("encode yaml: %w", err)
			}
			if err := enc.Close(); err != nil {
				return err
			}
		case "json", "":
			if s, ok := d.(string); ok && raw {
				if _, err := fmt.Fprintln(w, s); err != nil {
					return err
				}
				continue
			}
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if err := enc.Encode(d); err != nil {
				return fmt.Errorf("encode json: %w", err)
			}
		default:
			return fmt.Errorf("unknown output format %q (want json or yaml)", format)
		}
	}
	return nil
}
