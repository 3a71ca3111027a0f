package cli

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolpack/tool"
)

// NewFilesCmd creates the "files" subcommand group.
func NewFilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Manage file aliases referenced as [[files.<package>.<key>]]",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "register <package.key> <path>",
			Short: "Register or replace a file alias",
			Args:  cobra.ExactArgs(2),
			RunE:  runFilesRegister,
		},
		&cobra.Command{
			Use:   "list",
			Short: "List registered file aliases",
			Args:  cobra.NoArgs,
			RunE:  runFilesList,
		},
		&cobra.Command{
			Use:   "remove <package.key>",
			Short: "Remove a file alias",
			Args:  cobra.ExactArgs(1),
			RunE:  runFilesRemove,
		},
	)
	return cmd
}

func runFilesRegister(cmd *cobra.Command, args []string) error {
	pkg, key, err := tool.ParseAliasName(args[0])
	if err != nil {
		return exitError(exitInputParse, "%v", err)
	}
	path, err := filepath.Abs(args[1])
	if err != nil {
		return exitError(exitInputParse, "resolving %s: %v", args[1], err)
	}

	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	store, closeStore, err := env.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	alias := tool.FileAlias{Package: pkg, Key: key, Path: path, RegisteredAt: time.Now().UTC()}
	if err := store.Upsert(commandContext(cmd), alias); err != nil {
		return exitError(exitRuntime, "saving file alias: %v", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Registered file: %s -> %s\n", alias.Name(), alias.Path)
	return nil
}

func runFilesList(cmd *cobra.Command, _ []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	store, closeStore, err := env.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	aliases, err := store.List(commandContext(cmd))
	if err != nil {
		return exitError(exitRuntime, "listing file aliases: %v", err)
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tPATH\tREGISTERED")
	for _, alias := range aliases {
		fmt.Fprintf(writer, "%s\t%s\t%s\n", alias.Name(), alias.Path, alias.RegisteredAt.Format(time.RFC3339))
	}
	return writer.Flush()
}

func runFilesRemove(cmd *cobra.Command, args []string) error {
	pkg, key, err := tool.ParseAliasName(args[0])
	if err != nil {
		return exitError(exitInputParse, "%v", err)
	}

	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	store, closeStore, err := env.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := commandContext(cmd)
	if _, found, err := store.Get(ctx, pkg, key); err != nil {
		return exitError(exitRuntime, "loading file alias: %v", err)
	} else if !found {
		return exitError(exitNotFound, "file alias %q not found", args[0])
	}
	if err := store.Delete(ctx, pkg, key); err != nil {
		return exitError(exitRuntime, "removing file alias: %v", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed file: %s\n", args[0])
	return nil
}
