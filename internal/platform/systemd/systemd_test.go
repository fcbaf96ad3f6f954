package systemd

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records D-Bus calls and completes every job immediately.
type fakeConn struct {
	enabled    []string
	started    []string
	reloaded   []string
	reloads    int
	closed     bool
	jobResult  string
	enableErr  error
	startErr   error
}

func newFakeConn() *fakeConn {
	return &fakeConn{jobResult: "done"}
}

func (f *fakeConn) EnableUnitFilesContext(_ context.Context, files []string, _, _ bool) (bool, []dbus.EnableUnitFileChange, error) {
	f.enabled = append(f.enabled, files...)
	return true, nil, f.enableErr
}

func (f *fakeConn) StartUnitContext(_ context.Context, name, _ string, ch chan<- string) (int, error) {
	f.started = append(f.started, name)
	if f.startErr != nil {
		return 0, f.startErr
	}
	ch <- f.jobResult
	return 1, nil
}

func (f *fakeConn) ReloadOrRestartUnitContext(_ context.Context, name, _ string, ch chan<- string) (int, error) {
	f.reloaded = append(f.reloaded, name)
	ch <- f.jobResult
	return 1, nil
}

func (f *fakeConn) ReloadContext(context.Context) error {
	f.reloads++
	return nil
}

func (f *fakeConn) Close() { f.closed = true }

func newManager(conn *fakeConn, dir string) *Manager {
	return NewWithConn(dir, func(context.Context) (DBusAPI, error) { return conn, nil })
}

func TestInstallUnit(t *testing.T) {
	dir := t.TempDir()
	m := newManager(newFakeConn(), dir)

	require.NoError(t, m.InstallUnit("demo.service", []byte("[Unit]\nDescription=demo\n")))

	data, err := os.ReadFile(m.UnitPath("demo.service"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Description=demo")

	// Overwriting is safe to repeat.
	require.NoError(t, m.InstallUnit("demo.service", []byte("[Unit]\nDescription=demo v2\n")))
	data, err = os.ReadFile(m.UnitPath("demo.service"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "demo v2")
}

func TestEnableAndStart(t *testing.T) {
	conn := newFakeConn()
	m := newManager(conn, t.TempDir())

	require.NoError(t, m.EnableAndStart(context.Background(), "demo.service"))
	assert.Equal(t, []string{"demo.service"}, conn.enabled)
	assert.Equal(t, []string{"demo.service"}, conn.started)
	assert.True(t, conn.closed)
}

func TestEnableAndStart_JobFailure(t *testing.T) {
	conn := newFakeConn()
	conn.jobResult = "failed"
	m := newManager(conn, t.TempDir())

	err := m.EnableAndStart(context.Background(), "demo.service")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"failed"`)
}

func TestEnableAndStart_EnableError(t *testing.T) {
	conn := newFakeConn()
	conn.enableErr = errors.New("unit not found")
	m := newManager(conn, t.TempDir())

	err := m.EnableAndStart(context.Background(), "demo.service")
	require.Error(t, err)
	assert.Empty(t, conn.started, "start must not run after enable fails")
}

func TestDaemonReload(t *testing.T) {
	conn := newFakeConn()
	m := newManager(conn, t.TempDir())

	require.NoError(t, m.DaemonReload(context.Background()))
	assert.Equal(t, 1, conn.reloads)
}

func TestReloadOrRestart(t *testing.T) {
	conn := newFakeConn()
	m := newManager(conn, t.TempDir())

	require.NoError(t, m.ReloadOrRestart(context.Background(), "nginx.service"))
	assert.Equal(t, []string{"nginx.service"}, conn.reloaded)
}
