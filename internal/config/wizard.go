package config

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"gopkg.in/yaml.v3"
)

// WizardResult holds the answers collected by the init questionnaire.
type WizardResult struct {
	Name           string
	ServerName     string
	Version        string
	ReleaseURL     string
	ReleaseAPI     string
	UpgradeCommand string
	AdminCommand   string
	ServerCommand  string
	WorkerCommand  string
}

// RunWizard walks the operator through the minimal set of questions needed
// to produce a stackup.yaml. Everything else defaults from the app name.
func RunWizard() (*WizardResult, error) {
	result := &WizardResult{Version: "latest"}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Application name").
				Description("Seeds the system user, database, paths and unit names (lowercase)").
				Placeholder("myapp").
				Value(&result.Name).
				Validate(validateName),

			huh.NewInput().
				Title("Server name (optional)").
				Description("Public host name for the proxy site. Leave empty to use the host's address.").
				Placeholder("app.example.com").
				Value(&result.ServerName),
		),

		huh.NewGroup(
			huh.NewInput().
				Title("Version").
				Description("A release version, or \"latest\" to discover it from the release API").
				Value(&result.Version),

			huh.NewInput().
				Title("Release tarball URL (optional)").
				Description("Use {version} as placeholder. Leave empty when the app is deployed separately.").
				Placeholder("https://example.com/myapp-v{version}.tar.gz").
				Value(&result.ReleaseURL),

			huh.NewInput().
				Title("Release API URL (optional)").
				Description("JSON endpoint with a tag_name field, used when version is \"latest\"").
				Placeholder("https://api.github.com/repos/acme/myapp/releases/latest").
				Value(&result.ReleaseAPI),
		),

		huh.NewGroup(
			huh.NewInput().
				Title("Upgrade command").
				Description("The application's own install/upgrade procedure, run from the current release").
				Placeholder("./upgrade.sh").
				Value(&result.UpgradeCommand).
				Validate(required("upgrade command")),

			huh.NewInput().
				Title("Admin account command").
				Description("Creates the administrative account; credentials are passed via environment").
				Placeholder("./manage createsuperuser --no-input").
				Value(&result.AdminCommand).
				Validate(required("admin command")),

			huh.NewInput().
				Title("Server command").
				Description("ExecStart for the application server unit").
				Placeholder("/opt/myapp/current/venv/bin/gunicorn myapp.wsgi").
				Value(&result.ServerCommand).
				Validate(required("server command")),

			huh.NewInput().
				Title("Worker command (optional)").
				Description("ExecStart for the background worker unit. Leave empty for none.").
				Value(&result.WorkerCommand),
		),
	)

	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("wizard aborted: %w", err)
	}
	return result, nil
}

// RenderYAML produces the stackup.yaml document for the collected answers.
func (r *WizardResult) RenderYAML() ([]byte, error) {
	app := map[string]interface{}{
		"name":            r.Name,
		"version":         r.Version,
		"upgrade_command": strings.Fields(r.UpgradeCommand),
		"admin_command":   strings.Fields(r.AdminCommand),
		"server_command":  r.ServerCommand,
	}
	if r.ReleaseURL != "" {
		app["release_url"] = r.ReleaseURL
	}
	if r.ReleaseAPI != "" {
		app["release_api"] = r.ReleaseAPI
	}
	if r.WorkerCommand != "" {
		app["worker_command"] = r.WorkerCommand
	}

	doc := map[string]interface{}{"app": app}
	if r.ServerName != "" {
		doc["proxy"] = map[string]interface{}{"server_name": r.ServerName}
	}
	return yaml.Marshal(doc)
}

func validateName(s string) error {
	if !nameRe.MatchString(s) {
		return fmt.Errorf("must be lowercase letters, digits, - or _")
	}
	return nil
}

func required(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}
