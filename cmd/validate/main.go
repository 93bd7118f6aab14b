package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/nightline-game/nightline/pkg/scenario"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <night.json|night.yaml> [...]\n", os.Args[0])
		os.Exit(1)
	}

	failed := false
	for _, filename := range os.Args[1:] {
		if err := validateFile(filename); err != nil {
			fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}

	fmt.Println("Night files are valid!")
}

var filenamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func validateFile(filename string) error {
	fmt.Printf("Validating %s...\n", filename)

	baseName := filepath.Base(filename)
	ext := filepath.Ext(baseName)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("night file must have .json, .yaml or .yml extension: %s", baseName)
	}

	nameWithoutExt := strings.TrimSuffix(baseName, ext)
	if !filenamePattern.MatchString(nameWithoutExt) {
		return fmt.Errorf("night filename '%s' must be lowercase snake_case (e.g., night_one.json, not NightOne.json)", baseName)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", filename, err)
	}

	// Schema validation only applies to JSON; YAML nights go through the
	// loader's generic decode instead.
	if ext == ".json" {
		if schemaErrors := scenario.ValidateSchema(data); len(schemaErrors) > 0 {
			return fmt.Errorf("schema errors in %s:\n  %s", filename, strings.Join(schemaErrors, "\n  "))
		}
	}

	n, err := scenario.LoadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", filename, err)
	}

	if warnings := n.Validate(); len(warnings) > 0 {
		return fmt.Errorf("referential errors in %s:\n  %s", filename, strings.Join(warnings, "\n  "))
	}

	return nil
}
