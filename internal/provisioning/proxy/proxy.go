// Package proxy puts nginx in front of the application: a generated site
// definition terminating TLS with a self-signed certificate, and an
// optionally basic-auth protected status location.
package proxy

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/stackup-sh/stackup/internal/provisioning"
)

// certValidity is how long generated certificates last. Self-signed certs
// exist to get TLS on the wire immediately; operators replace them with real
// ones at their own pace.
const certValidity = 10 * 365 * 24 * time.Hour

// siteMarker opens every generated site definition. It is how stale sites
// from an earlier application name are told apart from operator-written ones.
const siteMarker = "# Managed by stackup; manual edits are overwritten."

var siteTemplate = template.Must(template.New("site").Parse(siteMarker + `
server {
    listen 80;
    server_name {{.ServerName}};
    return 301 https://$host$request_uri;
}

server {
    listen 443 ssl;
    server_name {{.ServerName}};

    ssl_certificate {{.CertFile}};
    ssl_certificate_key {{.KeyFile}};

    client_max_body_size 64m;

    location / {
        proxy_pass http://{{.Upstream}};
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
    }
{{if .StatusAuth}}
    location /status {
        auth_basic "restricted";
        auth_basic_user_file {{.HtpasswdFile}};
        proxy_pass http://{{.Upstream}};
        proxy_set_header Host $host;
    }
{{end}}}
`))

type siteData struct {
	ServerName   string
	CertFile     string
	KeyFile      string
	Upstream     string
	StatusAuth   bool
	HtpasswdFile string
}

// Phase configures the reverse proxy.
type Phase struct{}

// New returns the proxy phase.
func New() *Phase { return &Phase{} }

// Name implements provisioning.Phase.
func (p *Phase) Name() string { return "proxy" }

// Provision implements provisioning.Phase.
func (p *Phase) Provision(ctx *provisioning.Context) error {
	cfg := ctx.Config.Proxy

	if err := ensureCertificate(ctx); err != nil {
		return err
	}

	if cfg.StatusAuth {
		if err := writeHtpasswd(cfg.HtpasswdFile, ctx.Config.App.AdminUser, ctx.State.Credentials.AdminPassword); err != nil {
			return err
		}
	}

	if err := installSite(ctx); err != nil {
		return err
	}

	if cfg.DisableDefault {
		link := filepath.Join(cfg.SitesEnabledDir, "default")
		if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to disable default site: %w", err)
		}
	}

	if err := ctx.Systemd.ReloadOrRestart(ctx, cfg.Service); err != nil {
		return fmt.Errorf("failed to reload proxy: %w", err)
	}

	ctx.State.AccessURL = "https://" + ctx.State.ServerName
	return nil
}

// ensureCertificate generates a self-signed certificate unless one is already
// installed. An existing pair is never overwritten: it may be a real
// certificate the operator put there.
func ensureCertificate(ctx *provisioning.Context) error {
	cfg := ctx.Config.Proxy
	_, certErr := os.Stat(cfg.CertFile)
	_, keyErr := os.Stat(cfg.KeyFile)
	if certErr == nil && keyErr == nil {
		ctx.Observer.Info("certificate already installed", "cert", cfg.CertFile)
		return nil
	}

	ctx.Observer.Info("generating self-signed certificate", "cert", cfg.CertFile)
	certPEM, keyPEM, err := selfSignedPair(ctx.State.ServerName, ctx.State.AdvertiseAddr)
	if err != nil {
		return err
	}

	for _, dir := range []string{filepath.Dir(cfg.CertFile), filepath.Dir(cfg.KeyFile)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create certificate directory: %w", err)
		}
	}
	if err := os.WriteFile(cfg.CertFile, certPEM, 0o644); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}
	if err := os.WriteFile(cfg.KeyFile, keyPEM, 0o600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	return nil
}

// selfSignedPair returns a PEM-encoded certificate and key covering the given
// names plus the loopback identities.
func selfSignedPair(names ...string) (certPEM, keyPEM []byte, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate serial: %w", err)
	}

	tmpl := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: names[0]},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(certValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	for _, name := range append(names, "localhost", "127.0.0.1") {
		if name == "" {
			continue
		}
		if ip := net.ParseIP(name); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, name)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode key: %w", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, nil
}

// writeHtpasswd writes a single-entry htpasswd file with a bcrypt hash, the
// only scheme nginx and apache both verify without crypt(3) quirks.
func writeHtpasswd(path, user, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create htpasswd directory: %w", err)
	}
	content := fmt.Sprintf("%s:%s\n", user, hash)
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		return fmt.Errorf("failed to write htpasswd file: %w", err)
	}
	return nil
}

// installSite renders the site definition into sites-available and links it
// into sites-enabled.
func installSite(ctx *provisioning.Context) error {
	cfg := ctx.Config.Proxy
	data := siteData{
		ServerName:   ctx.State.ServerName,
		CertFile:     cfg.CertFile,
		KeyFile:      cfg.KeyFile,
		Upstream:     ctx.Config.App.BindAddr,
		StatusAuth:   cfg.StatusAuth,
		HtpasswdFile: cfg.HtpasswdFile,
	}

	var buf bytes.Buffer
	if err := siteTemplate.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to render site: %w", err)
	}

	available := filepath.Join(cfg.SitesAvailableDir, ctx.Config.App.Name+".conf")
	if err := os.MkdirAll(cfg.SitesAvailableDir, 0o755); err != nil {
		return fmt.Errorf("failed to create sites-available: %w", err)
	}
	if err := os.WriteFile(available, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write site: %w", err)
	}

	if err := os.MkdirAll(cfg.SitesEnabledDir, 0o755); err != nil {
		return fmt.Errorf("failed to create sites-enabled: %w", err)
	}
	enabled := filepath.Join(cfg.SitesEnabledDir, ctx.Config.App.Name+".conf")
	if err := os.Symlink(available, enabled); err != nil && !os.IsExist(err) {
		return fmt.Errorf("failed to enable site: %w", err)
	}

	return pruneStaleSites(ctx, ctx.Config.App.Name+".conf")
}

// pruneStaleSites removes generated sites left enabled under an earlier
// application name. Only definitions opening with the managed marker are
// touched; anything the operator wrote stays.
func pruneStaleSites(ctx *provisioning.Context, keep string) error {
	cfg := ctx.Config.Proxy
	entries, err := os.ReadDir(cfg.SitesEnabledDir)
	if err != nil {
		return fmt.Errorf("failed to scan sites-enabled: %w", err)
	}

	for _, entry := range entries {
		if entry.Name() == keep {
			continue
		}
		link := filepath.Join(cfg.SitesEnabledDir, entry.Name())
		target, err := os.Readlink(link)
		if err != nil {
			continue
		}
		if filepath.Dir(target) != filepath.Clean(cfg.SitesAvailableDir) {
			continue
		}
		content, err := os.ReadFile(target)
		if err != nil || !bytes.HasPrefix(content, []byte(siteMarker)) {
			continue
		}

		ctx.Observer.Info("removing stale site", "site", entry.Name())
		if err := os.Remove(link); err != nil {
			return fmt.Errorf("failed to remove stale site link: %w", err)
		}
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale site: %w", err)
		}
	}
	return nil
}
