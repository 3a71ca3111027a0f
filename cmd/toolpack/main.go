package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolpack/cli"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "toolpack",
	Short: "Run command line tools described by a manifest",
	Long:  "toolpack installs and runs the command line tools declared in a tool manifest, resolving [[placeholders]] from settings, registered files and parameters.",
	// SilenceUsage prevents printing usage on every error
	SilenceUsage: true,
}

func init() {
	cli.BindGlobalFlags(rootCmd)

	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("toolpack version %s\n", version))

	rootCmd.AddCommand(cli.NewListCmd())
	rootCmd.AddCommand(cli.NewInspectCmd())
	rootCmd.AddCommand(cli.NewValidateCmd())
	rootCmd.AddCommand(cli.NewInstallCmd())
	rootCmd.AddCommand(cli.NewRunCmd())
	rootCmd.AddCommand(cli.NewFilesCmd())
	rootCmd.AddCommand(cli.NewSettingsCmd())
	rootCmd.AddCommand(cli.NewLogCmd())
}
