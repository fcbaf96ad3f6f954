// Package database ensures the application's PostgreSQL role and database
// exist. Existence is checked before every create; privileges are
// re-asserted on every run so a re-run heals partial failures and manual
// privilege drift without ever recreating user data.
package database

import (
	"fmt"
	"time"

	"github.com/stackup-sh/stackup/internal/provisioning"
	"github.com/stackup-sh/stackup/internal/util/retry"
)

// Phase provisions the database role and database.
type Phase struct {
	// ConnectTimeout bounds how long the phase waits for the database
	// server to accept administrative connections after package install.
	ConnectTimeout time.Duration
}

// New returns the database phase.
func New() *Phase {
	return &Phase{ConnectTimeout: 2 * time.Minute}
}

// Name implements provisioning.Phase.
func (p *Phase) Name() string { return "database" }

// Provision implements provisioning.Phase.
func (p *Phase) Provision(ctx *provisioning.Context) error {
	cfg := ctx.Config.Database

	if err := ctx.Systemd.EnableAndStart(ctx, cfg.Service); err != nil {
		return fmt.Errorf("failed to start database server: %w", err)
	}

	admin, err := p.connect(ctx)
	if err != nil {
		return err
	}
	defer admin.Close(ctx)

	if err := p.ensureRole(ctx, admin); err != nil {
		return err
	}
	if err := p.ensureDatabase(ctx, admin); err != nil {
		return err
	}

	// Re-asserted every run, additive only.
	if err := admin.ReassertPrivileges(ctx, cfg.Name, cfg.User); err != nil {
		return err
	}

	return nil
}

// connect waits for the server to be ready; it may still be initializing its
// cluster right after package installation.
func (p *Phase) connect(ctx *provisioning.Context) (provisioning.DatabaseAdmin, error) {
	var admin provisioning.DatabaseAdmin
	err := retry.WithExponentialBackoff(ctx, func() error {
		var err error
		admin, err = ctx.OpenDatabase(ctx)
		return err
	}, retry.WithInitialDelay(p.ConnectTimeout/60), retry.WithMaxDelay(p.ConnectTimeout/4))
	if err != nil {
		return nil, fmt.Errorf("database server did not become ready: %w", err)
	}
	return admin, nil
}

func (p *Phase) ensureRole(ctx *provisioning.Context, admin provisioning.DatabaseAdmin) error {
	cfg := ctx.Config.Database

	exists, err := admin.RoleExists(ctx, cfg.User)
	if err != nil {
		return err
	}
	if exists {
		ctx.Observer.Info("role exists", "role", cfg.User)
		return nil
	}

	ctx.Observer.Info("creating role", "role", cfg.User)
	return admin.CreateRole(ctx, cfg.User, ctx.State.Credentials.DBPassword)
}

func (p *Phase) ensureDatabase(ctx *provisioning.Context, admin provisioning.DatabaseAdmin) error {
	cfg := ctx.Config.Database

	exists, err := admin.DatabaseExists(ctx, cfg.Name)
	if err != nil {
		return err
	}
	if exists {
		ctx.Observer.Info("database exists", "database", cfg.Name)
		return nil
	}

	ctx.Observer.Info("creating database", "database", cfg.Name, "owner", cfg.User)
	return admin.CreateDatabase(ctx, cfg.Name, cfg.User)
}
