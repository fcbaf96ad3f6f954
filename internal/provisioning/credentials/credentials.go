// Package credentials provisions the run's secrets before anything embeds
// them. Each value is generated exactly once and read back from the secret
// store on every later run, keeping already-written configuration and
// already-created database roles in sync.
package credentials

import (
	"fmt"

	"github.com/stackup-sh/stackup/internal/provisioning"
)

// Secret names and lengths. The names double as file names in the store.
const (
	NameDBPassword    = "db_password"
	NameSecretKey     = "secret_key"
	NameTokenPepper   = "token_pepper_1"
	NameAdminPassword = "admin_password"

	lenDBPassword    = 24
	lenSecretKey     = 50
	lenTokenPepper   = 64
	lenAdminPassword = 20
)

// Phase loads or generates all secrets.
type Phase struct{}

// New returns the credentials phase.
func New() *Phase { return &Phase{} }

// Name implements provisioning.Phase.
func (p *Phase) Name() string { return "credentials" }

// Provision implements provisioning.Phase.
func (p *Phase) Provision(ctx *provisioning.Context) error {
	creds := &ctx.State.Credentials

	var err error
	if creds.DBPassword, err = ctx.Secrets.GetOrCreate(NameDBPassword, lenDBPassword); err != nil {
		return fmt.Errorf("database password: %w", err)
	}
	if creds.SecretKey, err = ctx.Secrets.GetOrCreate(NameSecretKey, lenSecretKey); err != nil {
		return fmt.Errorf("secret key: %w", err)
	}

	pepper, err := ctx.Secrets.GetOrCreate(NameTokenPepper, lenTokenPepper)
	if err != nil {
		return fmt.Errorf("token pepper: %w", err)
	}
	creds.TokenPeppers = map[string]string{"1": pepper}

	if creds.AdminPassword, err = ctx.Secrets.GetOrCreate(NameAdminPassword, lenAdminPassword); err != nil {
		return fmt.Errorf("admin password: %w", err)
	}

	ctx.Observer.Info("credentials ready", "store", ctx.Secrets.Path(""))
	return nil
}
