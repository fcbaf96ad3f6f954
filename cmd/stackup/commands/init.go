package commands

import (
	"github.com/spf13/cobra"

	"github.com/stackup-sh/stackup/cmd/stackup/handlers"
)

// Init returns the command for interactively creating a stack configuration.
//
// Flags:
//
//	--output, -o: Path to output file (default "stackup.yaml")
func Init() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively create a stack configuration",
		Long: `Interactively create a stack configuration file.

This command walks you through the minimal set of questions needed to
describe your application:

  - Application name (seeds the system user, database, paths and units)
  - Release source (version, tarball URL, release API)
  - The application's upgrade, admin, server and worker commands

Everything else (database name, install paths, unit names, proxy site)
defaults from the application name and can be overridden by editing the
generated file.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return handlers.Init(outputPath)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "stackup.yaml", "Output file path")

	return cmd
}
