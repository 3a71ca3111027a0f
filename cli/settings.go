package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/petal-labs/toolpack/settings"
)

// NewSettingsCmd creates the "settings" subcommand group.
func NewSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and write layered user and project settings",
	}
	cmd.PersistentFlags().Bool("project", false, "Use only the enclosing project and context settings files")

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a setting",
		Args:  cobra.ExactArgs(2),
		RunE:  runSettingsSet,
	}
	setCmd.Flags().Bool("cascade", false, "Write to every context file along the working directory path")
	unsetCmd := &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a setting",
		Args:  cobra.ExactArgs(1),
		RunE:  runSettingsUnset,
	}
	unsetCmd.Flags().Bool("cascade", false, "Remove from every context file along the working directory path")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show effective settings",
			Args:  cobra.NoArgs,
			RunE:  runSettingsShow,
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one setting",
			Args:  cobra.ExactArgs(1),
			RunE:  runSettingsGet,
		},
		setCmd,
		unsetCmd,
		&cobra.Command{
			Use:   "init [dir]",
			Short: "Create a project settings directory",
			Args:  cobra.MaximumNArgs(1),
			RunE:  runSettingsInit,
		},
		newSettingsContextCmd(),
	)
	return cmd
}

func newSettingsContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Manage directory contexts that override project settings",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "create [dir]",
			Short: "Create a context for a directory below the project root",
			Args:  cobra.MaximumNArgs(1),
			RunE:  runContextCreate,
		},
		&cobra.Command{
			Use:   "list",
			Short: "List the contexts of the enclosing project",
			Args:  cobra.NoArgs,
			RunE:  runContextList,
		},
	)
	return cmd
}

// settingsLayers returns the layers to read and the file to write. With
// --project both are restricted to the project and its contexts, and writes
// go to the innermost of them.
func settingsLayers(cmd *cobra.Command) (settings.Layers, string, error) {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return settings.Layers{}, "", err
	}
	project, _ := cmd.Flags().GetBool("project")
	if !project {
		return env.layers, env.cfg.SettingsPath(), nil
	}

	dir, err := enclosingProject(env.workDir)
	if err != nil {
		return settings.Layers{}, "", err
	}
	layers, err := settings.ProjectLayers(dir, env.workDir)
	if err != nil {
		return settings.Layers{}, "", exitError(exitInputParse, "%v", err)
	}
	path, _ := layers.Top()
	return layers, path, nil
}

func enclosingProject(workDir string) (string, error) {
	dir, err := settings.FindProjectDir(workDir)
	if err != nil {
		if errors.Is(err, settings.ErrNoProject) {
			return "", exitError(exitValidation, "not inside a project (run 'toolpack settings init')")
		}
		return "", exitError(exitValidation, "%v", err)
	}
	return dir, nil
}

// settingsTargets returns the files a set or unset writes to.
func settingsTargets(cmd *cobra.Command) ([]string, error) {
	layers, path, err := settingsLayers(cmd)
	if err != nil {
		return nil, err
	}
	if cascade, _ := cmd.Flags().GetBool("cascade"); !cascade {
		return []string{path}, nil
	}
	if len(layers.Contexts) == 0 {
		return nil, exitError(exitValidation, "no context along the working directory (run 'toolpack settings context create')")
	}
	return layers.Contexts, nil
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	layers, _, err := settingsLayers(cmd)
	if err != nil {
		return err
	}
	tree, err := layers.Merged()
	if err != nil {
		return exitError(exitInputParse, "reading settings: %v", err)
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "KEY\tVALUE")
	for _, kv := range tree.Flatten() {
		fmt.Fprintf(writer, "%s\t%s\n", kv.Key, kv.Value)
	}
	return writer.Flush()
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	layers, _, err := settingsLayers(cmd)
	if err != nil {
		return err
	}
	value, err := layers.Get(args[0])
	switch {
	case errors.Is(err, settings.ErrUnknownKey):
		return exitError(exitNotFound, "setting %q is not set", args[0])
	case errors.Is(err, settings.ErrNotScalar), errors.Is(err, settings.ErrInvalidKey):
		return exitError(exitInputParse, "%v", err)
	case err != nil:
		return exitError(exitInputParse, "reading settings: %v", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	paths, err := settingsTargets(cmd)
	if err != nil {
		return err
	}
	value := parseSettingValue(args[1])
	for _, path := range paths {
		if err := settings.Update(path, args[0], value); err != nil {
			return exitError(exitInputParse, "updating %s: %v", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s in %s\n", args[0], path)
	}
	return nil
}

func runSettingsUnset(cmd *cobra.Command, args []string) error {
	paths, err := settingsTargets(cmd)
	if err != nil {
		return err
	}
	for _, path := range paths {
		if err := settings.Update(path, args[0], nil); err != nil {
			return exitError(exitInputParse, "updating %s: %v", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Unset %s in %s\n", args[0], path)
	}
	return nil
}

func runSettingsInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	path, err := settings.InitProject(dir)
	if err != nil {
		return exitError(exitRuntime, "%v", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Initialized project settings in %s\n", path)
	return nil
}

func runContextCreate(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	dir := env.workDir
	if len(args) == 1 {
		if dir, err = filepath.Abs(args[0]); err != nil {
			return exitError(exitInputParse, "resolving %s: %v", args[0], err)
		}
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return exitError(exitFileNotFound, "not a directory: %s", dir)
	}

	projectDir, err := enclosingProject(dir)
	if err != nil {
		return err
	}
	ctx, err := settings.CreateContext(projectDir, dir)
	switch {
	case errors.Is(err, settings.ErrContextExists), errors.Is(err, settings.ErrProjectRoot):
		return exitError(exitValidation, "%v", err)
	case err != nil:
		return exitError(exitRuntime, "%v", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created context %s in %s\n", ctx.Path, ctx.File)
	return nil
}

func runContextList(cmd *cobra.Command, _ []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	projectDir, err := enclosingProject(env.workDir)
	if err != nil {
		return err
	}
	listing, err := settings.ReadContexts(projectDir)
	if err != nil {
		return exitError(exitInputParse, "%v", err)
	}
	paths := make([]string, 0, len(listing))
	for path := range listing {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "PATH\tFILE")
	for _, path := range paths {
		fmt.Fprintf(writer, "%s\t%s\n", path, filepath.Join(projectDir, settings.ContextDirName, listing[path]))
	}
	return writer.Flush()
}

// parseSettingValue decodes YAML scalars so numbers and booleans keep their
// type. Anything else is stored as the raw string.
func parseSettingValue(raw string) any {
	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		return raw
	}
	switch value.(type) {
	case bool, int, float64:
		return value
	default:
		return raw
	}
}
