package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/stackup-sh/stackup/internal/config"
	"github.com/stackup-sh/stackup/internal/ledger"
	"github.com/stackup-sh/stackup/internal/platform/systemd"
	"github.com/stackup-sh/stackup/internal/provisioning/admin"
)

// dialTimeout bounds each reachability probe.
const dialTimeout = 2 * time.Second

// checkResult is one diagnostic outcome.
type checkResult struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// Probe function variables - can be replaced in tests.
var (
	lookPath     = exec.LookPath
	statFile     = os.Stat
	dialAddr     = func(addr string) error { return probe("tcp", addr) }
	dialSocket   = func(path string) error { return probe("unix", path) }
	loadLedger   = ledger.Load
	systemdAlive = systemd.IsRunning
)

func probe(network, addr string) error {
	conn, err := net.DialTimeout(network, addr, dialTimeout)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Doctor diagnoses the configuration and the host without changing anything.
func Doctor(ctx context.Context, configPath string, jsonOutput bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	results := runChecks(cfg)

	if jsonOutput {
		b, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		fmt.Println(string(b))
		return nil
	}

	printChecksStyled(cfg.App.Name, results)
	return nil
}

// runChecks inspects the host the way provisioning would find it, read-only.
func runChecks(cfg *config.Config) []checkResult {
	var results []checkResult

	add := func(name string, err error, detail string) {
		r := checkResult{Name: name, OK: err == nil, Detail: detail}
		if err != nil {
			r.Detail = err.Error()
		}
		results = append(results, r)
	}

	// Environment.
	if systemdAlive() {
		results = append(results, checkResult{Name: "systemd init", OK: true})
	} else {
		results = append(results, checkResult{Name: "systemd init", OK: false, Detail: "systemd is not the init system"})
	}
	for _, tool := range []string{"apt-get", "adduser", "tar"} {
		_, err := lookPath(tool)
		add("tool "+tool, err, "in PATH")
	}

	// Services.
	socket := filepath.Join(cfg.Database.SocketDir, fmt.Sprintf(".s.PGSQL.%d", cfg.Database.Port))
	add("postgresql socket", dialSocket(socket), socket)
	redisAddr := fmt.Sprintf("%s:%d", cfg.Cache.Host, cfg.Cache.Port)
	add("redis", dialAddr(redisAddr), redisAddr)
	add("application server", dialAddr(cfg.App.BindAddr), cfg.App.BindAddr)

	// Generated files.
	for _, f := range []struct{ name, path string }{
		{"settings file", cfg.Settings.Path},
		{"tls certificate", cfg.Proxy.CertFile},
		{"server unit", filepath.Join(systemd.UnitDir, cfg.ServerUnit())},
	} {
		_, err := statFile(f.path)
		add(f.name, err, f.path)
	}

	// Run-once markers.
	led, err := loadLedger(cfg.LedgerPath())
	switch {
	case err != nil:
		results = append(results, checkResult{Name: "completion ledger", OK: false, Detail: err.Error()})
	case led.Done(admin.Marker):
		results = append(results, checkResult{Name: "admin account", OK: true, Detail: "created"})
	default:
		results = append(results, checkResult{Name: "admin account", OK: false, Detail: "not created yet"})
	}

	return results
}

func printChecksStyled(appName string, results []checkResult) {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f9fafb"))
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e"))
	failStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))

	fmt.Println()
	fmt.Println(titleStyle.Render(fmt.Sprintf("  stackup doctor: %s", appName)))
	fmt.Println()

	for _, r := range results {
		mark := okStyle.Render("ok  ")
		if !r.OK {
			mark = failStyle.Render("fail")
		}
		line := fmt.Sprintf("  %s %s", mark, r.Name)
		if r.Detail != "" {
			line += " " + dimStyle.Render("("+r.Detail+")")
		}
		fmt.Println(line)
	}
	fmt.Println()
}
