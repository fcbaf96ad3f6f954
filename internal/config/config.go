// Package config defines the provisioner's configuration: the identity of
// the application stack being installed and where its pieces live on the
// host. Everything except the application identity has a working default.
package config

// Config is the root configuration for a provisioning run.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Proxy    ProxyConfig    `mapstructure:"proxy"`
	Settings SettingsConfig `mapstructure:"settings"`

	// Packages are installed before anything else. The baseline set
	// (PostgreSQL, Redis, nginx) is always included.
	Packages []string `mapstructure:"packages"`

	// StateDir holds generated secrets and the completion ledger. It must
	// survive across runs; losing it desynchronizes re-runs from the
	// resources created by earlier ones.
	StateDir string `mapstructure:"state_dir"`
}

// AppConfig describes the application being provisioned.
type AppConfig struct {
	// Name identifies the stack. It seeds most defaults (system user,
	// database name, install paths, unit names).
	Name string `mapstructure:"name"`

	// SystemUser is the unprivileged account the services run as.
	SystemUser string `mapstructure:"system_user"`

	// InstallDir is the root of the application's install tree, with
	// releases/<version> directories and a current symlink.
	InstallDir string `mapstructure:"install_dir"`

	// Version is a release version, or "latest" to discover the newest
	// release through ReleaseAPI.
	Version string `mapstructure:"version"`

	// ReleaseURL is a tarball URL template; "{version}" is replaced with
	// the resolved version. Empty skips source retrieval (the application
	// is deployed by other means).
	ReleaseURL string `mapstructure:"release_url"`

	// ReleaseAPI is a JSON endpoint whose tag_name field names the latest
	// release. Only consulted when Version is "latest".
	ReleaseAPI string `mapstructure:"release_api"`

	// UpgradeCommand is the application's own install/upgrade procedure.
	// It is run from the current release with the settings file location
	// in its environment, and is treated as an opaque step.
	UpgradeCommand []string `mapstructure:"upgrade_command"`

	// AdminCommand creates the administrative account. The generated
	// credentials are passed in its environment. Guarded by a completion
	// marker so it runs at most once per host.
	AdminCommand []string `mapstructure:"admin_command"`

	// ServerCommand and WorkerCommand are the ExecStart lines for the two
	// generated units. WorkerCommand may be empty when the application has
	// no background worker.
	ServerCommand string `mapstructure:"server_command"`
	WorkerCommand string `mapstructure:"worker_command"`

	// BindAddr is where the application server listens; the reverse proxy
	// forwards to it.
	BindAddr string `mapstructure:"bind_addr"`

	AdminUser  string `mapstructure:"admin_user"`
	AdminEmail string `mapstructure:"admin_email"`
}

// DatabaseConfig describes the PostgreSQL database and role.
type DatabaseConfig struct {
	Name string `mapstructure:"name"`
	User string `mapstructure:"user"`

	// SocketDir is the unix socket directory for the administrative
	// connection.
	SocketDir string `mapstructure:"socket_dir"`
	Port      int    `mapstructure:"port"`

	// Service is the unit the database server runs as.
	Service string `mapstructure:"service"`
}

// CacheConfig describes the Redis server.
type CacheConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	DB      int    `mapstructure:"db"`
	Service string `mapstructure:"service"`
}

// ProxyConfig describes the nginx site.
type ProxyConfig struct {
	// ServerName is the public host name. Empty means the discovered host
	// address is used.
	ServerName string `mapstructure:"server_name"`

	SitesAvailableDir string `mapstructure:"sites_available_dir"`
	SitesEnabledDir   string `mapstructure:"sites_enabled_dir"`

	// DisableDefault removes the distribution's default site link so the
	// generated site answers on the bare address.
	DisableDefault bool `mapstructure:"disable_default"`

	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`

	// StatusAuth protects the proxy's status location with basic auth
	// using the generated admin password.
	StatusAuth   bool   `mapstructure:"status_auth"`
	HtpasswdFile string `mapstructure:"htpasswd_file"`

	Service string `mapstructure:"service"`
}

// SettingsConfig describes the generated application settings document.
type SettingsConfig struct {
	// Path of the environment file the application and its units read.
	Path string `mapstructure:"path"`

	// Extra settings merged into the managed document verbatim.
	Extra map[string]string `mapstructure:"extra"`
}

// basePackages are always installed regardless of the configured extras.
var basePackages = []string{"postgresql", "redis-server", "nginx"}

// AllPackages returns the baseline package set plus configured extras,
// without duplicates and in stable order.
func (c *Config) AllPackages() []string {
	seen := make(map[string]bool, len(basePackages)+len(c.Packages))
	out := make([]string, 0, len(basePackages)+len(c.Packages))
	for _, pkg := range append(append([]string{}, basePackages...), c.Packages...) {
		if pkg == "" || seen[pkg] {
			continue
		}
		seen[pkg] = true
		out = append(out, pkg)
	}
	return out
}

// ServerUnit returns the unit name for the application server.
func (c *Config) ServerUnit() string {
	return c.App.Name + ".service"
}

// WorkerUnit returns the unit name for the background worker.
func (c *Config) WorkerUnit() string {
	return c.App.Name + "-worker.service"
}
