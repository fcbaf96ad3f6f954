package commands

import (
	"github.com/spf13/cobra"

	"github.com/stackup-sh/stackup/cmd/stackup/handlers"
)

// Provision returns the command that converges the host onto the configured
// stack.
//
// Optional flags:
//
//	--config, -c: Path to stack configuration YAML file (default: auto-detect stackup.yaml)
func Provision() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Install or update the stack on this host",
		Long: `Install or update the application stack on this host.

This command installs OS packages, sets up PostgreSQL and Redis, generates
and persists credentials, writes the application settings file, installs the
application, creates the admin account (once), starts the systemd units and
configures nginx with TLS.

Runs are idempotent: re-running after a failure resumes where the previous
run left off, and re-running after a config change converges the host.

If no config file is specified, it looks for stackup.yaml in the current
directory. Use 'stackup init' to create one.

Examples:
  # Provision using stackup.yaml in current directory
  stackup provision

  # Provision using a specific config file
  stackup provision -c production.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Provision(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: stackup.yaml)")

	return cmd
}
