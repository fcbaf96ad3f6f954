package settings

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/ini.v1"

	"github.com/stackup-sh/stackup/internal/config"
	"github.com/stackup-sh/stackup/internal/provisioning"
)

func testContext(t *testing.T) *provisioning.Context {
	t.Helper()
	cfg := &config.Config{}
	cfg.App.Name = "myapp"
	cfg.Settings.Path = filepath.Join(t.TempDir(), "myapp.env")
	cfg.Settings.Extra = map[string]string{"LOG_LEVEL": "info"}
	cfg.ApplyDefaults()

	state := provisioning.NewState()
	state.Credentials = provisioning.Credentials{
		DBPassword:   "dbpass",
		SecretKey:    "supersecret",
		TokenPeppers: map[string]string{"1": "pepper1"},
	}

	return &provisioning.Context{
		Context:  context.Background(),
		Config:   cfg,
		State:    state,
		Observer: provisioning.NopObserver{},
	}
}

func phaseWithAddr(addr string) *Phase {
	p := New()
	p.DiscoverAddr = func() string { return addr }
	return p
}

func loadDoc(t *testing.T, path string) *ini.Section {
	t.Helper()
	doc, err := ini.Load(path)
	require.NoError(t, err)
	return doc.Section("")
}

func TestProvision_WritesManagedSettings(t *testing.T) {
	ctx := testContext(t)
	require.NoError(t, phaseWithAddr("203.0.113.7").Provision(ctx))

	sec := loadDoc(t, ctx.Config.Settings.Path)
	assert.Equal(t, "203.0.113.7,localhost,127.0.0.1", sec.Key("ALLOWED_HOSTS").String())
	assert.Equal(t, "myapp", sec.Key("DB_NAME").String())
	assert.Equal(t, "dbpass", sec.Key("DB_PASSWORD").String())
	assert.Equal(t, "5432", sec.Key("DB_PORT").String())
	assert.Equal(t, "6379", sec.Key("REDIS_PORT").String())
	assert.Equal(t, "supersecret", sec.Key("SECRET_KEY").String())
	assert.JSONEq(t, `{"1":"pepper1"}`, sec.Key("TOKEN_PEPPERS").String())
	assert.Equal(t, "info", sec.Key("LOG_LEVEL").String())

	assert.Equal(t, "203.0.113.7", ctx.State.AdvertiseAddr)
	assert.Equal(t, "203.0.113.7", ctx.State.ServerName)
}

func TestProvision_DiscoveryFallback(t *testing.T) {
	ctx := testContext(t)
	require.NoError(t, phaseWithAddr("").Provision(ctx))

	assert.Equal(t, FallbackAddr, ctx.State.AdvertiseAddr)
	sec := loadDoc(t, ctx.Config.Settings.Path)
	assert.Equal(t, "127.0.0.1,localhost", sec.Key("ALLOWED_HOSTS").String())
}

func TestProvision_ConfiguredServerNameWins(t *testing.T) {
	ctx := testContext(t)
	ctx.Config.Proxy.ServerName = "app.example.com"
	require.NoError(t, phaseWithAddr("203.0.113.7").Provision(ctx))

	assert.Equal(t, "app.example.com", ctx.State.ServerName)
	sec := loadDoc(t, ctx.Config.Settings.Path)
	assert.Equal(t, "app.example.com,203.0.113.7,localhost,127.0.0.1",
		sec.Key("ALLOWED_HOSTS").String())
}

func TestSynthesize_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.env")
	values := map[string]string{"A": "1", "B": "two"}

	require.NoError(t, Synthesize(path, values))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, Synthesize(path, values))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second), "re-synthesis must be byte-stable")
	assert.Equal(t, 1, strings.Count(string(second), "A="), "each key appears exactly once")
}

func TestSynthesize_ReplacesStaleValuesKeepsForeignKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.env")
	require.NoError(t, os.WriteFile(path,
		[]byte("HAND_EDITED=keep-me\nSECRET_KEY=old-value\n"), 0o640))

	require.NoError(t, Synthesize(path, map[string]string{"SECRET_KEY": "new-value"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "HAND_EDITED=keep-me")
	assert.Contains(t, content, "SECRET_KEY=new-value")
	assert.NotContains(t, content, "old-value")
	assert.Equal(t, 1, strings.Count(content, "SECRET_KEY="))
}

func TestSynthesize_RestrictedPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.env")
	require.NoError(t, Synthesize(path, map[string]string{"SECRET_KEY": "x"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}

func TestAllowedHosts_Dedupes(t *testing.T) {
	assert.Equal(t, "127.0.0.1,localhost", allowedHosts("127.0.0.1", "127.0.0.1"))
	assert.Equal(t, "a.example.com,10.0.0.5,localhost,127.0.0.1",
		allowedHosts("a.example.com", "10.0.0.5"))
}
