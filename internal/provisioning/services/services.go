// Package services renders the application's systemd units and brings them
// up: one server unit, and optionally one background worker unit.
package services

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"text/template"
	"time"

	"github.com/stackup-sh/stackup/internal/provisioning"
	"github.com/stackup-sh/stackup/internal/util/netutil"
)

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description={{.Description}}
After=network.target {{.DatabaseService}} {{.CacheService}}
Wants={{.DatabaseService}} {{.CacheService}}

[Service]
Type=simple
User={{.User}}
Group={{.User}}
WorkingDirectory={{.WorkingDir}}
EnvironmentFile={{.EnvironmentFile}}
ExecStart={{.ExecStart}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`))

type unitData struct {
	Description     string
	DatabaseService string
	CacheService    string
	User            string
	WorkingDir      string
	EnvironmentFile string
	ExecStart       string
}

// Phase installs and starts the application units.
type Phase struct {
	// WaitFor blocks until a TCP port accepts connections. Replaced in
	// tests.
	WaitFor func(ctx context.Context, host string, port int, timeout time.Duration) error

	// StartTimeout bounds how long the server gets to open its port.
	StartTimeout time.Duration
}

// New returns the services phase.
func New() *Phase {
	return &Phase{
		WaitFor:      netutil.WaitForPort,
		StartTimeout: time.Minute,
	}
}

// Name implements provisioning.Phase.
func (p *Phase) Name() string { return "services" }

// Provision implements provisioning.Phase.
func (p *Phase) Provision(ctx *provisioning.Context) error {
	units := map[string]unitData{
		ctx.Config.ServerUnit(): unitDataFor(ctx, ctx.Config.App.Name+" application server", ctx.Config.App.ServerCommand),
	}
	if ctx.Config.App.WorkerCommand != "" {
		units[ctx.Config.WorkerUnit()] = unitDataFor(ctx, ctx.Config.App.Name+" background worker", ctx.Config.App.WorkerCommand)
	}

	// Install every unit before reloading, then start; a worker referring
	// to a not-yet-written server unit would race otherwise.
	for _, unit := range unitNames(ctx) {
		data, ok := units[unit]
		if !ok {
			continue
		}
		content, err := renderUnit(data)
		if err != nil {
			return err
		}
		if err := ctx.Systemd.InstallUnit(unit, content); err != nil {
			return fmt.Errorf("failed to install unit %s: %w", unit, err)
		}
	}

	if err := ctx.Systemd.DaemonReload(ctx); err != nil {
		return fmt.Errorf("daemon reload failed: %w", err)
	}

	for _, unit := range unitNames(ctx) {
		if _, ok := units[unit]; !ok {
			continue
		}
		ctx.Observer.Info("enabling unit", "unit", unit)
		if err := ctx.Systemd.EnableAndStart(ctx, unit); err != nil {
			return fmt.Errorf("failed to start unit %s: %w", unit, err)
		}
		ctx.State.Units = append(ctx.State.Units, unit)

		// The worker has no port; only the server is awaited.
		if unit == ctx.Config.ServerUnit() {
			if err := p.awaitServer(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// awaitServer blocks until the application server answers on its bind
// address, so the proxy phase never goes live in front of a dead upstream.
func (p *Phase) awaitServer(ctx *provisioning.Context) error {
	host, portStr, err := net.SplitHostPort(ctx.Config.App.BindAddr)
	if err != nil {
		return fmt.Errorf("invalid bind address %q: %w", ctx.Config.App.BindAddr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid bind address %q: %w", ctx.Config.App.BindAddr, err)
	}

	if err := p.WaitFor(ctx, host, port, p.StartTimeout); err != nil {
		return fmt.Errorf("application server did not open %s: %w", ctx.Config.App.BindAddr, err)
	}
	return nil
}

// unitNames returns the units in bring-up order: server first, worker after.
func unitNames(ctx *provisioning.Context) []string {
	return []string{ctx.Config.ServerUnit(), ctx.Config.WorkerUnit()}
}

func unitDataFor(ctx *provisioning.Context, description, execStart string) unitData {
	return unitData{
		Description:     description,
		DatabaseService: ctx.Config.Database.Service,
		CacheService:    ctx.Config.Cache.Service,
		User:            ctx.Config.App.SystemUser,
		WorkingDir:      filepath.Join(ctx.Config.App.InstallDir, "current"),
		EnvironmentFile: ctx.Config.Settings.Path,
		ExecStart:       execStart,
	}
}

func renderUnit(data unitData) ([]byte, error) {
	var buf bytes.Buffer
	if err := unitTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render unit: %w", err)
	}
	return buf.Bytes(), nil
}
