// Package provisioning provides the shared types and the sequential pipeline
// for provisioning an application stack on a single host.
//
// The phases live in focused subpackages:
//   - preflight/ — privilege and environment checks
//   - packages/ — OS package installation
//   - credentials/ — secret generation and reuse
//   - database/ — PostgreSQL role and database
//   - cache/ — Redis enablement and verification
//   - settings/ — generated application settings document
//   - application/ — release discovery, source retrieval, upgrade
//   - admin/ — marker-gated administrative account creation
//   - services/ — systemd units for the server and worker
//   - proxy/ — TLS material and the nginx site
//
// This root package contains the Phase contract, the Context handed to each
// phase, and the interfaces the phases use to mutate external systems.
package provisioning

import "context"

// Phase is one step of the provisioning sequence. Implementations must be
// idempotent: a re-run after a partial failure completes the remainder
// without corrupting what already succeeded.
type Phase interface {
	// Name returns the human-readable name of this phase.
	Name() string

	// Provision executes the phase.
	Provision(ctx *Context) error
}

// SecretSource provides stable generated secrets. A value, once created, is
// returned byte-identical on every later call.
type SecretSource interface {
	GetOrCreate(name string, length int) (string, error)
	Path(name string) string
}

// CompletionLedger records steps that must run at most once per host.
type CompletionLedger interface {
	Done(name string) bool
	MarkDone(name string) error
}

// ServiceManager drives the init system. Implemented by platform/systemd.
type ServiceManager interface {
	InstallUnit(unit string, content []byte) error
	DaemonReload(ctx context.Context) error
	EnableAndStart(ctx context.Context, unit string) error
	ReloadOrRestart(ctx context.Context, unit string) error
}

// DatabaseAdmin manages the relational database server's catalog.
// Implemented by platform/postgres.
type DatabaseAdmin interface {
	RoleExists(ctx context.Context, role string) (bool, error)
	CreateRole(ctx context.Context, role, password string) error
	DatabaseExists(ctx context.Context, name string) (bool, error)
	CreateDatabase(ctx context.Context, name, owner string) error
	ReassertPrivileges(ctx context.Context, name, owner string) error
	Close(ctx context.Context) error
}
