// Package admin creates the application's first administrator account,
// exactly once per host.
package admin

import (
	"fmt"

	"github.com/stackup-sh/stackup/internal/platform/execx"
	"github.com/stackup-sh/stackup/internal/provisioning"
)

// Marker is the ledger entry recording that the admin account was created.
// Once present the account is never touched again, so operator changes to
// the account (password resets, renames) survive re-provisioning.
const Marker = "admin-account"

// Phase creates the initial admin account.
type Phase struct{}

// New returns the admin phase.
func New() *Phase { return &Phase{} }

// Name implements provisioning.Phase.
func (p *Phase) Name() string { return "admin" }

// Provision implements provisioning.Phase.
func (p *Phase) Provision(ctx *provisioning.Context) error {
	if ctx.Ledger.Done(Marker) {
		ctx.Observer.Info("admin account already created, skipping")
		ctx.State.AdminSkipped = true
		return nil
	}

	cfg := ctx.Config.App
	cmd := execx.Command{
		Name: cfg.AdminCommand[0],
		Args: cfg.AdminCommand[1:],
		Dir:  ctx.State.ReleaseDir,
		Env: []string{
			"ADMIN_USERNAME=" + cfg.AdminUser,
			"ADMIN_EMAIL=" + cfg.AdminEmail,
			"ADMIN_PASSWORD=" + ctx.State.Credentials.AdminPassword,
		},
	}

	ctx.Observer.Info("creating admin account", "username", cfg.AdminUser)
	if err := ctx.Runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("admin account creation failed: %w", err)
	}

	if err := ctx.Ledger.MarkDone(Marker); err != nil {
		return fmt.Errorf("failed to record admin account creation: %w", err)
	}
	return nil
}
