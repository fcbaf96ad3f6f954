// Package packages installs the OS package set through apt. Installation is
// naturally idempotent; already-installed packages are a no-op for apt, not
// an error.
package packages

import (
	"fmt"

	"github.com/stackup-sh/stackup/internal/platform/execx"
	"github.com/stackup-sh/stackup/internal/provisioning"
)

// noninteractive keeps dpkg from blocking on configuration prompts.
var noninteractive = []string{"DEBIAN_FRONTEND=noninteractive"}

// Phase installs the configured package set.
type Phase struct{}

// New returns the package install phase.
func New() *Phase { return &Phase{} }

// Name implements provisioning.Phase.
func (p *Phase) Name() string { return "packages" }

// Provision implements provisioning.Phase. Any package manager failure is
// fatal: later phases configure services these packages provide.
func (p *Phase) Provision(ctx *provisioning.Context) error {
	pkgs := ctx.Config.AllPackages()
	ctx.Observer.Info("installing packages", "count", len(pkgs))

	update := execx.Command{
		Name: "apt-get",
		Args: []string{"update", "-q"},
		Env:  noninteractive,
	}
	if err := ctx.Runner.Run(ctx, update); err != nil {
		return fmt.Errorf("package index update failed: %w", err)
	}

	install := execx.Command{
		Name: "apt-get",
		Args: append([]string{"install", "-y", "-q"}, pkgs...),
		Env:  noninteractive,
	}
	if err := ctx.Runner.Run(ctx, install); err != nil {
		return fmt.Errorf("package installation failed: %w", err)
	}

	return nil
}
