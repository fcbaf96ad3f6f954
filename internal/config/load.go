package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file provision looks for when none is given.
const DefaultFileName = "stackup.yaml"

// FindConfigFile locates the default config file in the working directory.
func FindConfigFile() (string, error) {
	if _, err := os.Stat(DefaultFileName); err != nil {
		return "", fmt.Errorf("%s not found in current directory", DefaultFileName)
	}
	return DefaultFileName, nil
}

// LoadFile reads, defaults and validates the configuration at path.
func LoadFile(path string) (*Config, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	var cfg Config
	if err := mapstructure.Decode(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills in everything derivable from the application name plus
// the fixed conventions of a Debian-family host.
func (c *Config) ApplyDefaults() {
	name := c.App.Name

	if c.App.SystemUser == "" {
		c.App.SystemUser = name
	}
	if c.App.InstallDir == "" && name != "" {
		c.App.InstallDir = filepath.Join("/opt", name)
	}
	if c.App.Version == "" {
		c.App.Version = "latest"
	}
	if c.App.BindAddr == "" {
		c.App.BindAddr = "127.0.0.1:8001"
	}
	if c.App.AdminUser == "" {
		c.App.AdminUser = "admin"
	}
	if c.App.AdminEmail == "" && name != "" {
		c.App.AdminEmail = "admin@" + name + ".local"
	}

	if c.Database.Name == "" {
		c.Database.Name = name
	}
	if c.Database.User == "" {
		c.Database.User = name
	}
	if c.Database.SocketDir == "" {
		c.Database.SocketDir = "/var/run/postgresql"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.Service == "" {
		c.Database.Service = "postgresql.service"
	}

	if c.Cache.Host == "" {
		c.Cache.Host = "127.0.0.1"
	}
	if c.Cache.Port == 0 {
		c.Cache.Port = 6379
	}
	if c.Cache.Service == "" {
		c.Cache.Service = "redis-server.service"
	}

	if c.Proxy.SitesAvailableDir == "" {
		c.Proxy.SitesAvailableDir = "/etc/nginx/sites-available"
	}
	if c.Proxy.SitesEnabledDir == "" {
		c.Proxy.SitesEnabledDir = "/etc/nginx/sites-enabled"
	}
	if c.Proxy.CertFile == "" && name != "" {
		c.Proxy.CertFile = filepath.Join("/etc/ssl", name, name+".crt")
	}
	if c.Proxy.KeyFile == "" && name != "" {
		c.Proxy.KeyFile = filepath.Join("/etc/ssl", name, name+".key")
	}
	if c.Proxy.HtpasswdFile == "" && name != "" {
		c.Proxy.HtpasswdFile = filepath.Join("/etc/nginx", name+".htpasswd")
	}
	if c.Proxy.Service == "" {
		c.Proxy.Service = "nginx.service"
	}

	if c.Settings.Path == "" && name != "" {
		c.Settings.Path = filepath.Join("/etc", name, name+".env")
	}

	if c.StateDir == "" {
		c.StateDir = "/var/lib/stackup"
	}
}

// SecretsDir returns where generated secrets are persisted.
func (c *Config) SecretsDir() string {
	return filepath.Join(c.StateDir, "secrets")
}

// LedgerPath returns the completion ledger location.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.StateDir, "state.yaml")
}
