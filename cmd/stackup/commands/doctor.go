package commands

import (
	"github.com/spf13/cobra"

	"github.com/stackup-sh/stackup/cmd/stackup/handlers"
)

// Doctor returns the command for diagnosing host and stack status.
//
// Optional flags:
//
//	--config, -c: Path to stack configuration YAML file (default: auto-detect stackup.yaml)
//	--json: Output in JSON format
func Doctor() *cobra.Command {
	var configPath string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose stack configuration and host status",
		Long: `Diagnose the stack configuration and the state of this host.

Validates the configuration file and reports, without changing anything:

  - whether the host meets the provisioning prerequisites
  - which services are reachable (PostgreSQL socket, Redis port, app port)
  - which generated files are in place (settings, units, certificate)
  - which run-once steps have completed

Examples:
  # Diagnose the stack
  stackup doctor

  # Get status in JSON format
  stackup doctor --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Doctor(cmd.Context(), configPath, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: stackup.yaml)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}
