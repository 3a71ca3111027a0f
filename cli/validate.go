package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolpack/manifest"
)

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [manifest]",
		Short: "Validate a tool manifest without running anything",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runValidate,
	}

	cmd.Flags().String("format", "text", "Output format: text | json")
	cmd.Flags().Bool("strict", false, "Treat warnings as errors")

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	strict, _ := cmd.Flags().GetBool("strict")
	if format != "text" && format != "json" {
		return exitError(exitInputParse, "unknown format %q (use text or json)", format)
	}

	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	path := env.cfg.Manifest
	if len(args) == 1 {
		path = args[0]
	}
	m, err := env.readManifest(path)
	if err != nil {
		return err
	}

	result := manifest.Validate(m)
	printValidateDiagnostics(cmd.OutOrStdout(), result.Diagnostics, format, m.Len())

	hasWarns := len(result.Diagnostics) > len(result.Errors())
	if result.HasErrors() || (strict && hasWarns) {
		return exitError(exitValidation, "validation failed")
	}
	return nil
}

func printValidateDiagnostics(w io.Writer, diags []manifest.Diagnostic, format string, tools int) {
	if format == "json" {
		// Output an empty array rather than null when there are no diagnostics.
		if diags == nil {
			diags = []manifest.Diagnostic{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]any{"diagnostics": diags})
		return
	}

	var errs, warns int
	for _, d := range diags {
		if d.Severity == manifest.SeverityError {
			errs++
		} else {
			warns++
		}
		sev := strings.ToUpper(string(d.Severity))
		if d.Field != "" {
			fmt.Fprintf(w, "%s [%s]: %s (at %s)\n", sev, d.Code, d.Message, d.Field)
		} else {
			fmt.Fprintf(w, "%s [%s]: %s\n", sev, d.Code, d.Message)
		}
	}

	switch {
	case errs == 0 && warns == 0:
		fmt.Fprintf(w, "Valid! (%d %s)\n", tools, pluralize("tool", tools))
	case errs == 0:
		fmt.Fprintf(w, "\nValid! (%d %s)\n", warns, pluralize("warning", warns))
	default:
		fmt.Fprintf(w, "\n%d %s, %d %s\n", errs, pluralize("error", errs), warns, pluralize("warning", warns))
	}
}

func pluralize(word string, n int) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
