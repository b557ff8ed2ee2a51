// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accounts/internal/web"
)

// newSchemaCmd creates the schema subcommand.
func newSchemaCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Write the JSON Schemas of the API request bodies",
		Long: `Generate the JSON Schema documents the API validates request bodies
against. With --out, each schema is written to DIR/<name>.schema.json;
otherwise they are printed to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSchema(cmd, outDir)
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "", "directory to write schema files to")

	return cmd
}

func runSchema(cmd *cobra.Command, outDir string) error {
	schemas, err := web.GenerateSchemas()
	if err != nil {
		return oops.Code("SCHEMA_GENERATE_FAILED").Wrap(err)
	}

	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	slices.Sort(names)

	if outDir == "" {
		for _, name := range names {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(schemas[name]))
		}
		return nil
	}

	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return oops.Code("SCHEMA_WRITE_FAILED").With("dir", outDir).Wrap(err)
	}
	for _, name := range names {
		path := filepath.Join(outDir, name+".schema.json")
		if err := os.WriteFile(path, append(schemas[name], '\n'), 0o600); err != nil {
			return oops.Code("SCHEMA_WRITE_FAILED").With("path", path).Wrap(err)
		}
		cmd.Printf("Generated %s\n", path)
	}
	return nil
}
