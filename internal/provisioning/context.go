package provisioning

import (
	"context"

	"github.com/stackup-sh/stackup/internal/config"
	"github.com/stackup-sh/stackup/internal/platform/execx"
)

// Context wraps the dependencies and shared state handed to every phase.
type Context struct {
	context.Context

	Config  *config.Config
	State   *State
	Secrets SecretSource
	Ledger  CompletionLedger
	Runner  execx.Runner
	Systemd ServiceManager

	// OpenDatabase dials the administrative database connection. Phases
	// close what they open.
	OpenDatabase func(ctx context.Context) (DatabaseAdmin, error)

	Observer Observer
}

// WithObserver returns a shallow copy of the context using the given
// observer. The pipeline uses it to scope events to the running phase.
func (c *Context) WithObserver(o Observer) *Context {
	cp := *c
	cp.Observer = o
	return &cp
}
