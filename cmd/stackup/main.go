// Package main is the entry point for the stackup CLI.
//
// stackup provisions a complete application stack on a single Debian-family
// host: OS packages, PostgreSQL, Redis, the application itself, systemd
// units, and an nginx reverse proxy with TLS. Runs are idempotent; re-running
// after a failure or a config change converges the host.
//
// Commands: init, provision, doctor, secrets, version, completion.
//
// For detailed usage information, run:
//
//	stackup --help
package main

import (
	"fmt"
	"os"

	"github.com/stackup-sh/stackup/cmd/stackup/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
