// Package preflight verifies the host can be provisioned at all before any
// mutation happens: required privileges, a usable init system, and the
// package manager in PATH.
package preflight

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/stackup-sh/stackup/internal/provisioning"
)

// requiredTools must be resolvable in PATH before the sequence starts.
var requiredTools = []string{"apt-get", "adduser", "tar"}

// Phase implements the environment checks. Failures here are environment
// errors: fatal, no retry, nothing has been mutated yet.
type Phase struct {
	// Injection points for tests.
	Geteuid  func() int
	Stat     func(string) (os.FileInfo, error)
	LookPath func(string) (string, error)
}

// New returns the preflight phase.
func New() *Phase {
	return &Phase{
		Geteuid:  os.Geteuid,
		Stat:     os.Stat,
		LookPath: exec.LookPath,
	}
}

// Name implements provisioning.Phase.
func (p *Phase) Name() string { return "preflight" }

// Provision implements provisioning.Phase.
func (p *Phase) Provision(ctx *provisioning.Context) error {
	if p.Geteuid() != 0 {
		return fmt.Errorf("must run as root (euid %d)", p.Geteuid())
	}

	if info, err := p.Stat("/run/systemd/system"); err != nil || !info.IsDir() {
		return fmt.Errorf("systemd is not the init system on this host")
	}

	for _, tool := range requiredTools {
		if _, err := p.LookPath(tool); err != nil {
			return fmt.Errorf("required tool %q not found in PATH", tool)
		}
	}

	ctx.Observer.Info("environment checks passed", "tools", requiredTools)
	return nil
}
