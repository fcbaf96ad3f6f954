package commands

import (
	"github.com/spf13/cobra"

	"github.com/stackup-sh/stackup/cmd/stackup/handlers"
)

// Secrets returns the command for displaying the generated credentials.
func Secrets() *cobra.Command {
	var configPath string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Show the generated stack credentials",
		Long: `Show the credentials generated for this stack.

Displays the values persisted under the state directory:
  - database password
  - application secret key and token peppers
  - initial admin password

Requires a previous 'stackup provision' run on this host.
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Secrets(configPath, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: stackup.yaml)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}
