// Copyright 2026 Relaymesh
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/relaymesh/conductor/internal/guidelines"
	"github.com/spf13/cobra"
)

var validateGuidelinesCmd = &cobra.Command{
	Use:   "validate-guidelines [path]",
	Short: "Validate guideline definition files",
	Long: `Validate one or more guideline YAML files against the schema and
dependency rules enforced by the Guidelines Registry.

If path is a directory, every .yaml/.yml file directly under it is
validated. If path is omitted, the configured guidelines directory is used.

Examples:
  conductor validate-guidelines
  conductor validate-guidelines guidelines/security-review.yaml
  conductor validate-guidelines guidelines/`,
	Args: cobra.MaximumNArgs(1),
	Run:  runValidateGuidelines,
}

func init() {
	rootCmd.AddCommand(validateGuidelinesCmd)
}

func runValidateGuidelines(cmd *cobra.Command, args []string) {
	path := config.Guidelines.Dir
	if len(args) == 1 {
		path = args[0]
	}

	info, err := os.Stat(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %s: %v\n", path, err)
		os.Exit(1)
	}

	if !info.IsDir() {
		if err := validateSingleGuideline(path); err != nil {
			fmt.Fprintf(os.Stderr, "❌ %s\n   %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("✅ %s is valid\n", path)
		return
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != path {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(p, ".yaml") || strings.HasSuffix(p, ".yml") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ error walking %s: %v\n", path, err)
		os.Exit(1)
	}

	if len(files) == 0 {
		fmt.Printf("No guideline files found in %s\n", path)
		return
	}

	fmt.Printf("Validating %d guideline files in %s...\n\n", len(files), path)

	valid, invalid := 0, 0
	var errs []string
	for _, f := range files {
		rel, _ := filepath.Rel(path, f)
		if err := validateSingleGuideline(f); err != nil {
			fmt.Printf("❌ %s\n", rel)
			errs = append(errs, fmt.Sprintf("%s: %v", rel, err))
			invalid++
		} else {
			fmt.Printf("✅ %s\n", rel)
			valid++
		}
	}

	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  Valid:   %d\n", valid)
	fmt.Printf("  Invalid: %d\n", invalid)
	fmt.Printf("  Total:   %d\n", len(files))

	if invalid > 0 {
		fmt.Println("\nErrors:")
		for _, e := range errs {
			fmt.Printf("  - %s\n", e)
		}
		os.Exit(1)
	}
}

// validateSingleGuideline loads a guideline into a fresh, empty scratch
// registry so its shape and schema validation run without mutating the
// registry the serve command will later load for real. Each file is checked
// on its own: a guideline that declares a dependency on another guideline is
// reported as invalid, since the scratch registry holds no other guidelines.
func validateSingleGuideline(path string) error {
	g, err := guidelines.LoadFromYAML(path)
	if err != nil {
		return err
	}
	scratch := guidelines.NewRegistry()
	return scratch.RegisterGuideline(g)
}
