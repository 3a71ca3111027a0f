package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolpack/manifest"
	"github.com/petal-labs/toolpack/tool"
)

// NewListCmd creates the "list" subcommand.
func NewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the tools described by the manifest",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
}

func runList(cmd *cobra.Command, _ []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	m, err := env.loadManifest()
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tPACKAGE\tINSTALL\tDESCRIPTION")
	for _, desc := range m.Tools() {
		description := strings.TrimSpace(desc.Description)
		if description == "" {
			description = "-"
		}
		fmt.Fprintf(writer, "%s\t%s\t%d\t%s\n", desc.Name, desc.Package, len(desc.Install.Tasks), description)
	}
	return writer.Flush()
}

// NewInspectCmd creates the "inspect" subcommand.
func NewInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <name>",
		Short: "Print a tool descriptor",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}
	cmd.Flags().String("format", "yaml", "Output format: yaml | json")
	return cmd
}

func runInspect(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	f := manifest.Format(strings.ToLower(strings.TrimSpace(format)))
	if f != manifest.FormatYAML && f != manifest.FormatJSON {
		return exitError(exitInputParse, "unknown format %q (use yaml or json)", format)
	}

	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	m, err := env.loadManifest()
	if err != nil {
		return err
	}
	desc, ok := m.Lookup(args[0])
	if !ok {
		return exitError(exitNotFound, "tool %q not found", args[0])
	}

	data, err := manifest.EncodeDescriptor(desc, f)
	if err != nil {
		return exitError(exitRuntime, "encoding tool: %v", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

// NewInstallCmd creates the "install" subcommand.
func NewInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install [name...]",
		Short: "Run the install tasks of one or more tools",
		RunE:  runInstall,
	}
	cmd.Flags().Bool("all", false, "Install every tool in the manifest")
	cmd.Flags().Bool("force", false, "Download again even when the target exists")
	return cmd
}

func runInstall(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	force, _ := cmd.Flags().GetBool("force")
	if all && len(args) > 0 {
		return exitError(exitInputParse, "cannot combine --all with tool names")
	}
	if !all && len(args) == 0 {
		return exitError(exitInputParse, "specify at least one tool name or --all")
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

	var results []tool.InstallResult
	if all {
		results, err = runner.InstallAll(ctx, force)
		printInstallResults(cmd, results)
		if err != nil {
			return toolExitError("installing tools", err)
		}
		return nil
	}
	for _, name := range args {
		results, err = runner.Install(ctx, name, force)
		printInstallResults(cmd, results)
		if err != nil {
			return toolExitError("installing "+name, err)
		}
	}
	return nil
}

func printInstallResults(cmd *cobra.Command, results []tool.InstallResult) {
	out := cmd.OutOrStdout()
	for _, res := range results {
		if res.Skipped {
			fmt.Fprintf(out, "Skipped %s: %s already present\n", res.Tool, res.Target)
			continue
		}
		fmt.Fprintf(out, "Installed %s: %s (%d bytes)\n", res.Tool, res.Target, res.Bytes)
	}
}
