package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/peterbourgon/ff/v4"
	"gopkg.in/yaml.v3"

	"github.com/zombor/docextract/internal/extraction"
)

func newParseCommand(cfg *rootConfig, parent *ff.FlagSet) *ff.Command {
	fs := ff.NewFlagSet("parse").SetParent(parent)
	kind := fs.StringLong("kind", "", "Declared document kind, e.g. pdf, csv, image/png (defaults to the extension)")
	output := fs.StringLong("output", "json", "Output format: 'json' or 'yaml'")

	return &ff.Command{
		Name:      "parse",
		Usage:     "docextract parse [FLAGS] <LOCATOR>",
		ShortHelp: "parse one document and print its fields",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("parse takes exactly one locator")
			}
			if *output != "json" && *output != "yaml" {
				return fmt.Errorf("invalid output %q, want json or yaml", *output)
			}

			parser, release, err := newParser(ctx, cfg, slog.Default())
			if err != nil {
				return err
			}
			defer release()

			result, err := parser.ParseDocument(ctx, args[0], *kind)
			if err != nil {
				return err
			}
			return render(os.Stdout, result, *output)
		},
	}
}

// render writes a result as indented JSON or YAML
func render(w io.Writer, result *extraction.Result, format string) error {
	if result.Fields == nil {
		result.Fields = []extraction.Field{}
	}

	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("encoding json: %w", err)
		}
		return nil
	}
}
