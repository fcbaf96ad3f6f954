// Package settings synthesizes the application's settings document: an
// environment file read by the application and its units. The document is
// keyed by setting name, so re-runs replace prior values instead of
// appending conflicting duplicates; settings the provisioner does not manage
// are left untouched.
package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/stackup-sh/stackup/internal/provisioning"
	"github.com/stackup-sh/stackup/internal/util/netutil"
)

// FallbackAddr is used when host address discovery yields nothing. The
// document must never carry an empty host identity.
const FallbackAddr = "127.0.0.1"

// Phase writes the settings document.
type Phase struct {
	// DiscoverAddr finds the host's externally reachable address.
	// Replaced in tests.
	DiscoverAddr func() string
}

// New returns the settings phase.
func New() *Phase {
	return &Phase{DiscoverAddr: netutil.PrimaryAddress}
}

// Name implements provisioning.Phase.
func (p *Phase) Name() string { return "settings" }

// Provision implements provisioning.Phase.
func (p *Phase) Provision(ctx *provisioning.Context) error {
	addr := p.DiscoverAddr()
	if addr == "" {
		ctx.Observer.Warn("address discovery returned nothing, falling back", "addr", FallbackAddr)
		addr = FallbackAddr
	}
	ctx.State.AdvertiseAddr = addr

	ctx.State.ServerName = ctx.Config.Proxy.ServerName
	if ctx.State.ServerName == "" {
		ctx.State.ServerName = addr
	}

	values, err := computeValues(ctx)
	if err != nil {
		return err
	}

	path := ctx.Config.Settings.Path
	if err := Synthesize(path, values); err != nil {
		return err
	}

	ctx.Observer.Info("settings written", "path", path, "managed", len(values))
	return nil
}

func computeValues(ctx *provisioning.Context) (map[string]string, error) {
	cfg := ctx.Config
	creds := ctx.State.Credentials

	peppers, err := json.Marshal(creds.TokenPeppers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode token peppers: %w", err)
	}

	values := map[string]string{
		"ALLOWED_HOSTS": allowedHosts(ctx.State.ServerName, ctx.State.AdvertiseAddr),
		"DB_HOST":       cfg.Database.SocketDir,
		"DB_PORT":       strconv.Itoa(cfg.Database.Port),
		"DB_NAME":       cfg.Database.Name,
		"DB_USER":       cfg.Database.User,
		"DB_PASSWORD":   creds.DBPassword,
		"REDIS_HOST":    cfg.Cache.Host,
		"REDIS_PORT":    strconv.Itoa(cfg.Cache.Port),
		"REDIS_DB":      strconv.Itoa(cfg.Cache.DB),
		"SECRET_KEY":    creds.SecretKey,
		"TOKEN_PEPPERS": string(peppers),
	}
	for k, v := range cfg.Settings.Extra {
		values[k] = v
	}
	return values, nil
}

// allowedHosts builds the comma-separated host allowlist with duplicates
// removed and order preserved.
func allowedHosts(names ...string) string {
	hosts := append(names, "localhost", FallbackAddr)
	seen := make(map[string]bool, len(hosts))
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return strings.Join(out, ",")
}

// Synthesize merges the managed values into the document at path. Every
// managed key ends up set exactly once to its current value; keys the
// provisioner does not manage survive untouched. The result is written with
// restricted permissions since it embeds credentials.
func Synthesize(path string, values map[string]string) error {
	doc, err := ini.LooseLoad(path)
	if err != nil {
		return fmt.Errorf("failed to load settings document: %w", err)
	}

	section := doc.Section("")
	for _, key := range sortedKeys(values) {
		section.Key(key).SetValue(values[key])
	}

	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return fmt.Errorf("failed to render settings document: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o640); err != nil {
		return fmt.Errorf("failed to write settings document: %w", err)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Deterministic output keeps re-runs byte-stable.
	sort.Strings(keys)
	return keys
}

func init() {
	// Emit KEY=value so systemd EnvironmentFile can read the document.
	ini.PrettyFormat = false
}
