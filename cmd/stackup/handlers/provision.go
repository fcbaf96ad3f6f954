// Package handlers implements the business logic for CLI commands.
//
// This package contains handler functions that are called by command
// definitions in the commands package. Handlers are framework-agnostic and
// can be tested independently of the CLI framework.
package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/stackup-sh/stackup/internal/config"
	"github.com/stackup-sh/stackup/internal/ledger"
	"github.com/stackup-sh/stackup/internal/platform/execx"
	"github.com/stackup-sh/stackup/internal/platform/postgres"
	"github.com/stackup-sh/stackup/internal/platform/systemd"
	"github.com/stackup-sh/stackup/internal/provisioning"
	"github.com/stackup-sh/stackup/internal/provisioning/admin"
	"github.com/stackup-sh/stackup/internal/provisioning/application"
	"github.com/stackup-sh/stackup/internal/provisioning/cache"
	"github.com/stackup-sh/stackup/internal/provisioning/credentials"
	"github.com/stackup-sh/stackup/internal/provisioning/database"
	"github.com/stackup-sh/stackup/internal/provisioning/packages"
	"github.com/stackup-sh/stackup/internal/provisioning/preflight"
	"github.com/stackup-sh/stackup/internal/provisioning/proxy"
	"github.com/stackup-sh/stackup/internal/provisioning/services"
	"github.com/stackup-sh/stackup/internal/provisioning/settings"
	"github.com/stackup-sh/stackup/internal/secrets"
)

// Factory function variables - can be replaced in tests for dependency
// injection.
var (
	// loadConfigFile loads config from file.
	loadConfigFile = config.LoadFile

	// findConfigFile finds the default config file.
	findConfigFile = config.FindConfigFile

	// newRunner creates the command runner.
	newRunner = func() execx.Runner { return execx.NewLocal() }

	// newServiceManager creates the systemd manager.
	newServiceManager = func() provisioning.ServiceManager { return systemd.New() }

	// newObserver creates the progress observer.
	newObserver = func() provisioning.Observer { return provisioning.NewLogObserver(os.Stderr) }

	// runPhases executes the provisioning pipeline.
	runPhases = provisioning.RunPhases
)

// Provision converges the host onto the configured application stack.
//
// The phase order is a dependency order: nothing configures a package that
// is not installed yet, nothing embeds a secret that has not been generated
// yet, and the proxy goes live only after the services behind it.
func Provision(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	led, err := ledger.Load(cfg.LedgerPath())
	if err != nil {
		return err
	}
	store := secrets.NewStore(cfg.SecretsDir())

	pctx := &provisioning.Context{
		Context: ctx,
		Config:  cfg,
		State:   provisioning.NewState(),
		Secrets: store,
		Ledger:  led,
		Runner:  newRunner(),
		Systemd: newServiceManager(),
		OpenDatabase: func(ctx context.Context) (provisioning.DatabaseAdmin, error) {
			return postgres.Open(ctx, cfg.Database.SocketDir, cfg.Database.Port)
		},
		Observer: newObserver(),
	}

	if err := runPhases(pctx, defaultPhases()); err != nil {
		return err
	}

	printProvisionSuccess(cfg, pctx.State, store)
	return nil
}

// defaultPhases returns the full provisioning sequence in execution order.
func defaultPhases() []provisioning.Phase {
	return []provisioning.Phase{
		preflight.New(),
		packages.New(),
		credentials.New(),
		database.New(),
		cache.New(),
		settings.New(),
		application.New(),
		admin.New(),
		services.New(),
		proxy.New(),
	}
}

// loadConfig loads and validates the stack configuration. If configPath is
// empty, it looks for stackup.yaml in the current directory.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		path, err := findConfigFile()
		if err != nil {
			return nil, fmt.Errorf("no config file found: %w\nRun 'stackup init' to create one", err)
		}
		configPath = path
	}

	cfg, err := loadConfigFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// printProvisionSuccess outputs the access details and where the generated
// credentials live.
func printProvisionSuccess(cfg *config.Config, state *provisioning.State, store *secrets.Store) {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f9fafb"))
	nameStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))

	fmt.Println()
	fmt.Println(titleStyle.Render(fmt.Sprintf("  %s is up", cfg.App.Name)))
	fmt.Println()
	fmt.Printf("  %s %s\n", nameStyle.Render("access url:"), valueStyle.Render(state.AccessURL))
	fmt.Printf("  %s %s\n", nameStyle.Render("settings:  "), valueStyle.Render(cfg.Settings.Path))
	fmt.Printf("  %s %s\n", nameStyle.Render("units:     "), valueStyle.Render(fmt.Sprint(state.Units)))
	fmt.Println()

	if state.AdminSkipped {
		fmt.Println(dimStyle.Render("  admin account was created on an earlier run; password unchanged"))
	} else {
		fmt.Printf("  %s %s\n", nameStyle.Render("admin user:    "), valueStyle.Render(cfg.App.AdminUser))
		fmt.Printf("  %s %s\n", nameStyle.Render("admin password:"), valueStyle.Render(store.Path(credentials.NameAdminPassword)))
	}
	fmt.Println()
	fmt.Println(dimStyle.Render("  run 'stackup secrets' to display all generated credentials"))
	fmt.Println()
}
