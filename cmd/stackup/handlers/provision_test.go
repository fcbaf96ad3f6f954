package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackup-sh/stackup/internal/config"
	"github.com/stackup-sh/stackup/internal/platform/execx"
	"github.com/stackup-sh/stackup/internal/provisioning"
)

func saveAndRestoreFactories(t *testing.T) {
	t.Helper()
	origLoadConfigFile := loadConfigFile
	origFindConfigFile := findConfigFile
	origNewRunner := newRunner
	origNewServiceManager := newServiceManager
	origNewObserver := newObserver
	origRunPhases := runPhases
	origFileExists := fileExists
	origRunWizard := runWizard
	origWriteConfigFile := writeConfigFile

	t.Cleanup(func() {
		loadConfigFile = origLoadConfigFile
		findConfigFile = origFindConfigFile
		newRunner = origNewRunner
		newServiceManager = origNewServiceManager
		newObserver = origNewObserver
		runPhases = origRunPhases
		fileExists = origFileExists
		runWizard = origRunWizard
		writeConfigFile = origWriteConfigFile
	})
}

// testConfig returns a valid config whose state lives in a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.App.Name = "myapp"
	cfg.App.UpgradeCommand = []string{"./upgrade.sh"}
	cfg.App.AdminCommand = []string{"./manage", "createadmin"}
	cfg.App.ServerCommand = "/opt/myapp/current/bin/server"
	cfg.StateDir = t.TempDir()
	cfg.ApplyDefaults()
	return cfg
}

func stubEnvironment(t *testing.T, cfg *config.Config) {
	t.Helper()
	loadConfigFile = func(string) (*config.Config, error) { return cfg, nil }
	newRunner = func() execx.Runner { return &execx.Fake{} }
	newServiceManager = func() provisioning.ServiceManager { return nil }
	newObserver = func() provisioning.Observer { return provisioning.NopObserver{} }
}

func TestLoadConfig_EmptyPath_NoDefaultFile(t *testing.T) {
	saveAndRestoreFactories(t)

	findConfigFile = func() (string, error) {
		return "", errors.New("stackup.yaml not found in current directory")
	}

	_, err := loadConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no config file found")
	assert.Contains(t, err.Error(), "stackup init")
}

func TestLoadConfig_ExplicitPath(t *testing.T) {
	saveAndRestoreFactories(t)

	var loaded string
	loadConfigFile = func(path string) (*config.Config, error) {
		loaded = path
		return testConfig(t), nil
	}

	cfg, err := loadConfig("production.yaml")
	require.NoError(t, err)
	assert.Equal(t, "production.yaml", loaded)
	assert.Equal(t, "myapp", cfg.App.Name)
}

func TestProvision_RunsPhasesInOrder(t *testing.T) {
	saveAndRestoreFactories(t)
	stubEnvironment(t, testConfig(t))

	var phaseNames []string
	runPhases = func(ctx *provisioning.Context, phases []provisioning.Phase) error {
		for _, p := range phases {
			phaseNames = append(phaseNames, p.Name())
		}
		require.NotNil(t, ctx.Secrets)
		require.NotNil(t, ctx.Ledger)
		require.NotNil(t, ctx.OpenDatabase)
		return nil
	}

	require.NoError(t, Provision(context.Background(), "stackup.yaml"))

	assert.Equal(t, []string{
		"preflight", "packages", "credentials", "database", "cache",
		"settings", "application", "admin", "services", "proxy",
	}, phaseNames)
}

func TestProvision_PhaseFailureSurfaces(t *testing.T) {
	saveAndRestoreFactories(t)
	stubEnvironment(t, testConfig(t))

	runPhases = func(*provisioning.Context, []provisioning.Phase) error {
		return errors.New("database phase failed: connection refused")
	}

	err := Provision(context.Background(), "stackup.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database phase failed")
}

func TestProvision_ConfigErrorAbortsEarly(t *testing.T) {
	saveAndRestoreFactories(t)

	loadConfigFile = func(string) (*config.Config, error) {
		return nil, errors.New("configuration validation failed")
	}
	runPhases = func(*provisioning.Context, []provisioning.Phase) error {
		t.Fatal("phases must not run with invalid config")
		return nil
	}

	err := Provision(context.Background(), "broken.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}
