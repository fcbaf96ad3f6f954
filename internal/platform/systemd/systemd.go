// Package systemd installs unit files and drives the service manager over
// its D-Bus API.
package systemd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/coreos/go-systemd/v22/dbus"
)

// UnitDir is where locally administered unit files live.
const UnitDir = "/etc/systemd/system"

// DBusAPI is the subset of the systemd D-Bus connection the manager needs.
// Satisfied by *dbus.Conn; replaced by a fake in tests.
type DBusAPI interface {
	EnableUnitFilesContext(ctx context.Context, files []string, runtime, force bool) (bool, []dbus.EnableUnitFileChange, error)
	StartUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	ReloadOrRestartUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	ReloadContext(ctx context.Context) error
	Close()
}

// Manager installs and controls systemd units.
type Manager struct {
	unitDir string
	newConn func(ctx context.Context) (DBusAPI, error)
}

// New returns a Manager talking to the system bus.
func New() *Manager {
	return &Manager{
		unitDir: UnitDir,
		newConn: func(ctx context.Context) (DBusAPI, error) {
			return dbus.NewSystemConnectionContext(ctx)
		},
	}
}

// NewWithConn returns a Manager using the given connection factory and unit
// directory. Used by tests.
func NewWithConn(unitDir string, newConn func(ctx context.Context) (DBusAPI, error)) *Manager {
	return &Manager{unitDir: unitDir, newConn: newConn}
}

// IsRunning reports whether systemd is the init system on this host.
func IsRunning() bool {
	info, err := os.Stat("/run/systemd/system")
	return err == nil && info.IsDir()
}

// UnitPath returns where a unit file is installed.
func (m *Manager) UnitPath(unit string) string {
	return filepath.Join(m.unitDir, unit)
}

// InstallUnit writes a unit file. Overwriting an existing definition is
// always safe; callers follow up with DaemonReload.
func (m *Manager) InstallUnit(unit string, content []byte) error {
	if err := os.MkdirAll(m.unitDir, 0o755); err != nil {
		return fmt.Errorf("failed to create unit directory: %w", err)
	}
	if err := os.WriteFile(m.UnitPath(unit), content, 0o644); err != nil {
		return fmt.Errorf("failed to install unit %s: %w", unit, err)
	}
	return nil
}

// DaemonReload makes systemd re-read unit definitions.
func (m *Manager) DaemonReload(ctx context.Context) error {
	conn, err := m.newConn(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to systemd: %w", err)
	}
	defer conn.Close()

	if err := conn.ReloadContext(ctx); err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}
	return nil
}

// EnableAndStart enables a unit and starts it. An already-enabled or
// already-running unit is success, not failure: enablement reports no
// changes and the start job in "replace" mode completes as done.
func (m *Manager) EnableAndStart(ctx context.Context, unit string) error {
	conn, err := m.newConn(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to systemd: %w", err)
	}
	defer conn.Close()

	if _, _, err := conn.EnableUnitFilesContext(ctx, []string{unit}, false, true); err != nil {
		return fmt.Errorf("failed to enable %s: %w", unit, err)
	}

	ch := make(chan string, 1)
	if _, err := conn.StartUnitContext(ctx, unit, "replace", ch); err != nil {
		return fmt.Errorf("failed to start %s: %w", unit, err)
	}
	return waitForJob(ctx, unit, ch)
}

// ReloadOrRestart reloads a unit's configuration, restarting it when the
// unit does not support reload.
func (m *Manager) ReloadOrRestart(ctx context.Context, unit string) error {
	conn, err := m.newConn(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to systemd: %w", err)
	}
	defer conn.Close()

	ch := make(chan string, 1)
	if _, err := conn.ReloadOrRestartUnitContext(ctx, unit, "replace", ch); err != nil {
		return fmt.Errorf("failed to reload %s: %w", unit, err)
	}
	return waitForJob(ctx, unit, ch)
}

func waitForJob(ctx context.Context, unit string, ch <-chan string) error {
	select {
	case result := <-ch:
		if result != "done" {
			return fmt.Errorf("job for %s finished with result %q", unit, result)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
