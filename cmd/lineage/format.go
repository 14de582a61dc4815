package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// formatTypesText formats CLIType results as aligned columns.
func formatTypesText(w io.Writer, types []CLIType) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tSUPERCLASS\tPATH")
	for _, t := range types {
		kind := "class"
		if t.Interface {
			kind = "interface"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.Name, kind, t.Superclass, t.Path)
	}
	tw.Flush()
}

// formatHierarchyText prints the hierarchy tree and the names that did not
// resolve.
func formatHierarchyText(w io.Writer, h CLIHierarchy) {
	io.WriteString(w, h.tree)
	if len(h.Missing) > 0 {
		fmt.Fprintf(w, "Missing: %s\n", strings.Join(h.Missing, ", "))
	}
	source := "built"
	if h.Cached {
		source = "cached"
	}
	fmt.Fprintf(w, "\n%d types, %s (%s)\n", len(h.Types), source, h.BuildID)
}

func formatInvalidationText(w io.Writer, inv CLIInvalidation) {
	fmt.Fprintf(w, "refreshed %s: %d types (%s)\n", inv.Focus, inv.Types, inv.BuildID)
}

// outputResultText dispatches to the text formatter of the result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLIType:
		formatTypesText(w, v)
	case CLIHierarchy:
		formatHierarchyText(w, v)
	case CLIInvalidation:
		formatInvalidationText(w, v)
	case string:
		fmt.Fprintln(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

func outputResult(result CLIResult) error {
	return writeResult(os.Stdout, result)
}

func writeResult(w io.Writer, result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(w, result)
	}
	enc := json.NewEncoder(w)
	if flagFormat == "json" {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	_ = writeResult(os.Stdout, CLIResult{Command: command, Error: err.Error()})
	return err
}

// validFormats lists accepted values for --format. jsonl is compact JSON,
// one result per line, for streaming watch output.
var validFormats = []string{"json", "jsonl", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be one of %s", format, strings.Join(validFormats, ", "))
}
