package application

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackup-sh/stackup/internal/config"
	"github.com/stackup-sh/stackup/internal/platform/execx"
	"github.com/stackup-sh/stackup/internal/provisioning"
)

func testContext(t *testing.T, runner execx.Runner) *provisioning.Context {
	t.Helper()

	cfg := &config.Config{}
	cfg.App.Name = "myapp"
	cfg.App.SystemUser = "deploy"
	cfg.App.Version = "1.0.0"
	cfg.App.UpgradeCommand = []string{"./scripts/upgrade.sh"}
	cfg.ApplyDefaults()
	cfg.App.InstallDir = t.TempDir()

	return &provisioning.Context{
		Context:  context.Background(),
		Config:   cfg,
		State:    provisioning.NewState(),
		Runner:   runner,
		Observer: provisioning.NopObserver{},
	}
}

// tarball builds a gzip-compressed archive with a single top-level directory,
// the shape release tarballs come in.
func tarball(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "myapp-1.0.0/", Typeflag: tar.TypeDir, Mode: 0o755,
	}))
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: "myapp-1.0.0/" + name, Typeflag: tar.TypeReg,
			Mode: 0o644, Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

type tarEntry struct {
	header  tar.Header
	content string
}

// rawTarball builds a gzip-compressed archive from explicit entries, in order.
func rawTarball(t *testing.T, entries []tarEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, e := range entries {
		hdr := e.header
		if hdr.Typeflag == tar.TypeReg {
			hdr.Size = int64(len(e.content))
		}
		require.NoError(t, tw.WriteHeader(&hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.content))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestResolveVersion_Pinned(t *testing.T) {
	ctx := testContext(t, &execx.Fake{})
	ctx.Config.App.Version = "3.4.5"

	version, err := New().resolveVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "3.4.5", version)
}

func TestResolveVersion_Latest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tag_name": "v2.0.1"}`))
	}))
	defer srv.Close()

	ctx := testContext(t, &execx.Fake{})
	ctx.Config.App.Version = "latest"
	ctx.Config.App.ReleaseAPI = srv.URL

	version, err := New().resolveVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2.0.1", version, "leading v must be stripped")
}

func TestResolveVersion_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx := testContext(t, &execx.Fake{})
	ctx.Config.App.Version = "latest"
	ctx.Config.App.ReleaseAPI = srv.URL

	_, err := New().resolveVersion(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "release discovery failed")
}

func TestEnsureSystemUser_AlreadyExists(t *testing.T) {
	fake := &execx.Fake{Outputs: map[string]string{"id -u deploy": "998"}}
	ctx := testContext(t, fake)

	require.NoError(t, ensureSystemUser(ctx))
	require.Len(t, fake.Calls, 1)
	assert.Equal(t, "id -u deploy", fake.Calls[0].String())
}

func TestEnsureSystemUser_Creates(t *testing.T) {
	fake := &execx.Fake{Errors: map[string]error{
		"id -u deploy": errors.New("no such user"),
	}}
	ctx := testContext(t, fake)

	require.NoError(t, ensureSystemUser(ctx))
	require.Len(t, fake.Calls, 2)
	assert.Equal(t,
		"adduser --system --group --home "+ctx.Config.App.InstallDir+" deploy",
		fake.Calls[1].String())
}

func TestProvision_FreshInstall(t *testing.T) {
	archive := tarball(t, map[string]string{"bin/run": "#!/bin/sh\n"})
	var downloads int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		downloads++
		w.Write(archive)
	}))
	defer srv.Close()

	fake := &execx.Fake{Outputs: map[string]string{"id -u deploy": "998"}}
	ctx := testContext(t, fake)
	ctx.Config.App.ReleaseURL = srv.URL + "/myapp-{version}.tar.gz"

	require.NoError(t, New().Provision(ctx))

	releaseDir := filepath.Join(ctx.Config.App.InstallDir, "releases", "1.0.0")
	assert.Equal(t, 1, downloads)
	assert.Equal(t, "1.0.0", ctx.State.Version)
	assert.Equal(t, releaseDir, ctx.State.ReleaseDir)
	assert.FileExists(t, filepath.Join(releaseDir, "bin", "run"))

	target, err := os.Readlink(filepath.Join(ctx.Config.App.InstallDir, "current"))
	require.NoError(t, err)
	assert.Equal(t, releaseDir, target)

	lines := fake.CommandLines()
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "chown -R deploy:deploy")
	assert.Equal(t, "./scripts/upgrade.sh", lines[2])
	assert.Equal(t, releaseDir, fake.Calls[2].Dir)
	assert.Contains(t, fake.Calls[2].Env, "APP_SETTINGS_FILE="+ctx.Config.Settings.Path)
}

func TestProvision_FlatTarball(t *testing.T) {
	archive := rawTarball(t, []tarEntry{
		{header: tar.Header{Name: "manage.py", Typeflag: tar.TypeReg, Mode: 0o644}, content: "print()\n"},
		{header: tar.Header{Name: "bin/", Typeflag: tar.TypeDir, Mode: 0o755}},
		{header: tar.Header{Name: "bin/run", Typeflag: tar.TypeReg, Mode: 0o755}, content: "#!/bin/sh\n"},
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer srv.Close()

	fake := &execx.Fake{Outputs: map[string]string{"id -u deploy": "998"}}
	ctx := testContext(t, fake)
	ctx.Config.App.ReleaseURL = srv.URL + "/myapp-{version}.tar.gz"

	require.NoError(t, New().Provision(ctx))

	releaseDir := filepath.Join(ctx.Config.App.InstallDir, "releases", "1.0.0")
	assert.FileExists(t, filepath.Join(releaseDir, "manage.py"))
	assert.FileExists(t, filepath.Join(releaseDir, "bin", "run"))
}

func TestProvision_EmptyArchiveDoesNotStick(t *testing.T) {
	archive := rawTarball(t, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer srv.Close()

	fake := &execx.Fake{Outputs: map[string]string{"id -u deploy": "998"}}
	ctx := testContext(t, fake)
	ctx.Config.App.ReleaseURL = srv.URL + "/myapp-{version}.tar.gz"

	err := New().Provision(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no entries")

	releaseDir := filepath.Join(ctx.Config.App.InstallDir, "releases", "1.0.0")
	assert.NoDirExists(t, releaseDir, "a failed extraction must not be mistaken for a release on the next run")
}

func TestUntar_Hardlink(t *testing.T) {
	archive := rawTarball(t, []tarEntry{
		{header: tar.Header{Name: "app/a.txt", Typeflag: tar.TypeReg, Mode: 0o644}, content: "shared"},
		{header: tar.Header{Name: "app/b.txt", Typeflag: tar.TypeLink, Linkname: "app/a.txt"}},
	})

	dir := t.TempDir()
	require.NoError(t, untar(bytes.NewReader(archive), dir))

	got, err := os.ReadFile(filepath.Join(dir, "app", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "shared", string(got))
}

func TestUntar_RejectsWriteThroughSymlink(t *testing.T) {
	outside := t.TempDir()
	archive := rawTarball(t, []tarEntry{
		{header: tar.Header{Name: "evil", Typeflag: tar.TypeSymlink, Linkname: outside}},
		{header: tar.Header{Name: "evil/owned", Typeflag: tar.TypeReg, Mode: 0o644}, content: "pwned"},
	})

	err := untar(bytes.NewReader(archive), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "routes through symlink")
	assert.NoFileExists(t, filepath.Join(outside, "owned"))
}

func TestUntar_SkipsPaxGlobalHeader(t *testing.T) {
	archive := rawTarball(t, []tarEntry{
		{header: tar.Header{Name: "pax_global_header", Typeflag: tar.TypeXGlobalHeader}},
		{header: tar.Header{Name: "myapp-1.0.0/README", Typeflag: tar.TypeReg, Mode: 0o644}, content: "hi"},
	})

	dir := t.TempDir()
	require.NoError(t, untar(bytes.NewReader(archive), dir))
	assert.FileExists(t, filepath.Join(dir, "myapp-1.0.0", "README"))
}

func TestProvision_SkipsPresentRelease(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("present release must not be downloaded again")
	}))
	defer srv.Close()

	fake := &execx.Fake{Outputs: map[string]string{"id -u deploy": "998"}}
	ctx := testContext(t, fake)
	ctx.Config.App.ReleaseURL = srv.URL + "/myapp-{version}.tar.gz"

	releaseDir := filepath.Join(ctx.Config.App.InstallDir, "releases", "1.0.0")
	require.NoError(t, os.MkdirAll(releaseDir, 0o755))

	require.NoError(t, New().Provision(ctx))
	assert.Equal(t, releaseDir, ctx.State.ReleaseDir)
}

func TestProvision_NoReleaseURL(t *testing.T) {
	fake := &execx.Fake{Outputs: map[string]string{"id -u deploy": "998"}}
	ctx := testContext(t, fake)

	require.NoError(t, New().Provision(ctx))

	current := filepath.Join(ctx.Config.App.InstallDir, "current")
	assert.Equal(t, current, ctx.State.ReleaseDir)
	assert.Equal(t, current, fake.Calls[1].Dir, "upgrade runs in place")
}

func TestProvision_UpgradeFailureSurfaces(t *testing.T) {
	fake := &execx.Fake{
		Outputs: map[string]string{"id -u deploy": "998"},
		Errors:  map[string]error{"./scripts/upgrade.sh": errors.New("exit status 1")},
	}
	ctx := testContext(t, fake)

	err := New().Provision(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "application upgrade failed")
}

func TestSecurePath_RejectsEscape(t *testing.T) {
	_, err := securePath("/opt/myapp/releases/1.0.0", "../../escape")
	require.Error(t, err)
}
