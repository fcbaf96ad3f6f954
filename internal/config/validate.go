package config

import (
	"fmt"
	"net"
	"regexp"
	"strings"
)

// nameRe constrains the application name since it seeds file paths, unit
// names and the system user.
var nameRe = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// identRe constrains database identifiers created without quoting concerns.
var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Validate checks the configuration after defaulting. It returns the first
// problem found.
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}
	if !nameRe.MatchString(c.App.Name) {
		return fmt.Errorf("app.name %q must match %s", c.App.Name, nameRe)
	}
	if !nameRe.MatchString(c.App.SystemUser) {
		return fmt.Errorf("app.system_user %q must match %s", c.App.SystemUser, nameRe)
	}
	if len(c.App.UpgradeCommand) == 0 {
		return fmt.Errorf("app.upgrade_command is required")
	}
	if len(c.App.AdminCommand) == 0 {
		return fmt.Errorf("app.admin_command is required")
	}
	if c.App.ServerCommand == "" {
		return fmt.Errorf("app.server_command is required")
	}
	if c.App.Version == "latest" && c.App.ReleaseURL != "" && c.App.ReleaseAPI == "" {
		return fmt.Errorf("app.release_api is required to resolve version %q", c.App.Version)
	}
	if c.App.ReleaseURL != "" && !strings.Contains(c.App.ReleaseURL, "{version}") {
		return fmt.Errorf("app.release_url must contain a {version} placeholder")
	}
	if _, _, err := net.SplitHostPort(c.App.BindAddr); err != nil {
		return fmt.Errorf("app.bind_addr %q is not host:port: %w", c.App.BindAddr, err)
	}

	if !identRe.MatchString(c.Database.Name) {
		return fmt.Errorf("database.name %q must match %s", c.Database.Name, identRe)
	}
	if !identRe.MatchString(c.Database.User) {
		return fmt.Errorf("database.user %q must match %s", c.Database.User, identRe)
	}
	if err := validPort("database.port", c.Database.Port); err != nil {
		return err
	}
	if err := validPort("cache.port", c.Cache.Port); err != nil {
		return err
	}
	if c.Cache.DB < 0 {
		return fmt.Errorf("cache.db must not be negative")
	}
	return nil
}

func validPort(field string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s %d is out of range", field, port)
	}
	return nil
}
