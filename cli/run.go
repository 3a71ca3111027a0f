package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolpack/tool"
)

// NewRunCmd creates the "run" subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <name>",
		Short: "Run a tool and print its output",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}

	cmd.Flags().StringArray("param", nil, "Bind a bare placeholder: name=value (repeatable)")
	cmd.Flags().StringArray("file", nil, "Override a file alias: package.key=path (repeatable)")
	cmd.Flags().Bool("dry-run", false, "Print the assembled command without executing it")
	cmd.Flags().Duration("timeout", 0, "Invocation timeout (e.g. 30s, 5m)")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	params, _ := cmd.Flags().GetStringArray("param")
	files, _ := cmd.Flags().GetStringArray("file")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	paramMap, err := parseAssignments("--param", params)
	if err != nil {
		return err
	}
	fileMap, err := parseAssignments("--file", files)
	if err != nil {
		return err
	}
	for name := range fileMap {
		if _, _, err := tool.ParseAliasName(name); err != nil {
			return exitError(exitInputParse, "invalid --file alias %q: %v", name, err)
		}
	}

	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	m, err := env.loadManifest()
	if err != nil {
		return err
	}
	store, closeStore, err := env.openStore()
	if err != nil {
		return err
	}
	defer closeStore()
	runner, err := env.newRunner(m, store)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	stopTelemetry := env.startTelemetry(ctx)
	defer stopTelemetry()

	result, err := runner.Run(ctx, tool.RunRequest{
		Tool:    args[0],
		Params:  paramMap,
		Files:   fileMap,
		DryRun:  dryRun,
		Timeout: timeout,
	})
	if err != nil {
		return toolExitError("running "+args[0], err)
	}

	out := cmd.OutOrStdout()
	if result.DryRun {
		fmt.Fprintln(out, result.Invocation.CommandLine())
		return nil
	}
	env.logger.Debug("tool finished",
		"tool", args[0],
		"duration_ms", result.DurationMS,
		"history_id", result.HistoryID,
	)
	fmt.Fprintln(out, result.Output)
	return nil
}

// parseAssignments parses repeated key=value flag values.
func parseAssignments(flag string, values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for _, value := range values {
		key, val, ok := strings.Cut(value, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, exitError(exitInputParse, "invalid %s value %q (want key=value)", flag, value)
		}
		out[key] = val
	}
	return out, nil
}
