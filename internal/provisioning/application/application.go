// Package application installs the application itself: it resolves the
// release version, retrieves and unpacks the source, points the current
// symlink at it, and runs the application's own upgrade procedure as an
// opaque step.
package application

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stackup-sh/stackup/internal/platform/execx"
	"github.com/stackup-sh/stackup/internal/provisioning"
)

// Phase installs or upgrades the application.
type Phase struct {
	// HTTPClient fetches release metadata and tarballs.
	HTTPClient *http.Client
}

// New returns the application phase.
func New() *Phase {
	return &Phase{HTTPClient: &http.Client{Timeout: 5 * time.Minute}}
}

// Name implements provisioning.Phase.
func (p *Phase) Name() string { return "application" }

// Provision implements provisioning.Phase.
func (p *Phase) Provision(ctx *provisioning.Context) error {
	if err := ensureSystemUser(ctx); err != nil {
		return err
	}

	version, err := p.resolveVersion(ctx)
	if err != nil {
		return err
	}
	ctx.State.Version = version

	releaseDir, err := p.retrieveRelease(ctx, version)
	if err != nil {
		return err
	}
	ctx.State.ReleaseDir = releaseDir

	return p.runUpgrade(ctx, releaseDir)
}

// ensureSystemUser creates the unprivileged service account if it does not
// exist yet.
func ensureSystemUser(ctx *provisioning.Context) error {
	user := ctx.Config.App.SystemUser

	_, err := ctx.Runner.Output(ctx, execx.Command{Name: "id", Args: []string{"-u", user}})
	if err == nil {
		ctx.Observer.Info("system user exists", "user", user)
		return nil
	}

	ctx.Observer.Info("creating system user", "user", user)
	create := execx.Command{
		Name: "adduser",
		Args: []string{"--system", "--group", "--home", ctx.Config.App.InstallDir, user},
	}
	if err := ctx.Runner.Run(ctx, create); err != nil {
		return fmt.Errorf("failed to create system user %q: %w", user, err)
	}
	return nil
}

// resolveVersion returns the pinned version, or discovers the latest release
// through the configured release API.
func (p *Phase) resolveVersion(ctx *provisioning.Context) (string, error) {
	cfg := ctx.Config.App
	if cfg.Version != "latest" {
		return cfg.Version, nil
	}
	if cfg.ReleaseAPI == "" {
		// Nothing to discover against; the upgrade command owns versioning.
		return cfg.Version, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.ReleaseAPI, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build release request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("release discovery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("release discovery failed: %s returned %s", cfg.ReleaseAPI, resp.Status)
	}

	var release struct {
		TagName string `json:"tag_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", fmt.Errorf("failed to decode release metadata: %w", err)
	}

	version := strings.TrimPrefix(release.TagName, "v")
	if version == "" {
		return "", fmt.Errorf("release metadata from %s carries no tag name", cfg.ReleaseAPI)
	}

	ctx.Observer.Info("discovered latest release", "version", version)
	return version, nil
}

// retrieveRelease downloads and unpacks the release tarball unless that
// release is already on disk, then repoints the current symlink.
func (p *Phase) retrieveRelease(ctx *provisioning.Context, version string) (string, error) {
	cfg := ctx.Config.App
	if cfg.ReleaseURL == "" {
		// Application deployed by other means; upgrade runs in place.
		return filepath.Join(cfg.InstallDir, "current"), nil
	}

	releaseDir := filepath.Join(cfg.InstallDir, "releases", version)
	if _, err := os.Stat(releaseDir); err == nil {
		ctx.Observer.Info("release already present", "version", version)
	} else {
		url := strings.ReplaceAll(cfg.ReleaseURL, "{version}", version)
		ctx.Observer.Info("downloading release", "url", url)
		if err := p.download(ctx, url, releaseDir); err != nil {
			return "", err
		}
	}

	current := filepath.Join(cfg.InstallDir, "current")
	if err := repointSymlink(current, releaseDir); err != nil {
		return "", err
	}

	chown := execx.Command{
		Name: "chown",
		Args: []string{"-R", cfg.SystemUser + ":" + cfg.SystemUser, cfg.InstallDir},
	}
	if err := ctx.Runner.Run(ctx, chown); err != nil {
		return "", fmt.Errorf("failed to hand install tree to %s: %w", cfg.SystemUser, err)
	}

	return releaseDir, nil
}

// download unpacks the tarball at url into dir. Extraction happens in a
// scratch directory that is renamed into place, so an interrupted download
// never leaves a half-populated release to be skipped on the next run.
func (p *Phase) download(ctx *provisioning.Context, url, dir string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("release download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("release download failed: %s returned %s", url, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return fmt.Errorf("failed to create releases directory: %w", err)
	}

	scratch, err := os.MkdirTemp(filepath.Dir(dir), ".extract-*")
	if err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	if err := untar(resp.Body, scratch); err != nil {
		return fmt.Errorf("failed to unpack release: %w", err)
	}

	root, err := releaseRoot(scratch)
	if err != nil {
		return err
	}
	if err := os.Rename(root, dir); err != nil {
		return fmt.Errorf("failed to move release into place: %w", err)
	}
	return nil
}

// untar extracts a gzip-compressed tarball into dir. An archive with no
// entries is an error: renaming an empty extraction into releases/ would make
// every later run skip the download against a hollow release.
func untar(r io.Reader, dir string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	extracted := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			if extracted == 0 {
				return fmt.Errorf("archive contains no entries")
			}
			return nil
		}
		if err != nil {
			return err
		}
		if hdr.Typeflag == tar.TypeXGlobalHeader || hdr.Typeflag == tar.TypeXHeader {
			continue
		}

		name := strings.Trim(strings.TrimPrefix(hdr.Name, "./"), "/")
		if name == "" || name == "." {
			continue
		}
		target, err := securePath(dir, name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode)&0o777)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil && !os.IsExist(err) {
				return err
			}
		case tar.TypeLink:
			source, err := securePath(dir, strings.Trim(strings.TrimPrefix(hdr.Linkname, "./"), "/"))
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Link(source, target); err != nil {
				return err
			}
		default:
			return fmt.Errorf("archive entry %q has unsupported type %d", name, hdr.Typeflag)
		}
		extracted++
	}
}

// releaseRoot collapses the conventional wrapping directory: when the archive
// extracted to exactly one top-level directory that directory is the release,
// otherwise the extraction root itself is.
func releaseRoot(scratch string) (string, error) {
	entries, err := os.ReadDir(scratch)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(scratch, entries[0].Name()), nil
	}
	return scratch, nil
}

// securePath rejects entries that would escape the extraction directory,
// either lexically or by being routed through a symlink extracted earlier.
func securePath(dir, name string) (string, error) {
	dir = filepath.Clean(dir)
	target := filepath.Join(dir, name)
	if !strings.HasPrefix(target, dir+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes extraction directory", name)
	}

	cur := dir
	for _, part := range strings.Split(strings.TrimPrefix(target, dir+string(os.PathSeparator)), string(os.PathSeparator)) {
		cur = filepath.Join(cur, part)
		fi, err := os.Lstat(cur)
		if os.IsNotExist(err) {
			break
		}
		if err != nil {
			return "", err
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return "", fmt.Errorf("archive entry %q routes through symlink %q", name, cur)
		}
	}
	return target, nil
}

// repointSymlink atomically points link at target.
func repointSymlink(link, target string) error {
	tmp := link + ".new"
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("failed to create symlink: %w", err)
	}
	if err := os.Rename(tmp, link); err != nil {
		return fmt.Errorf("failed to update current symlink: %w", err)
	}
	return nil
}

// runUpgrade invokes the application's own install/upgrade procedure. Its
// internals are not the provisioner's concern; its exit status is.
func (p *Phase) runUpgrade(ctx *provisioning.Context, releaseDir string) error {
	cmd := ctx.Config.App.UpgradeCommand
	upgrade := execx.Command{
		Name: cmd[0],
		Args: cmd[1:],
		Dir:  releaseDir,
		Env: []string{
			"APP_SETTINGS_FILE=" + ctx.Config.Settings.Path,
			"APP_ROOT=" + releaseDir,
		},
	}

	ctx.Observer.Info("running upgrade procedure", "command", upgrade.String())
	if err := ctx.Runner.Run(ctx, upgrade); err != nil {
		return fmt.Errorf("application upgrade failed: %w", err)
	}
	return nil
}
