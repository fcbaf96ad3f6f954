// Package execx wraps external command invocation behind a small interface
// so provisioning phases can be tested without touching the host.
package execx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Command describes a single external command invocation.
type Command struct {
	Name  string
	Args  []string
	Dir   string
	Env   []string // appended to the inherited environment
	Input string   // piped to stdin when non-empty
}

// String renders the command line for diagnostics.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Runner executes external commands.
type Runner interface {
	// Run executes the command, streaming its output. A non-zero exit
	// status is returned as an error.
	Run(ctx context.Context, cmd Command) error

	// Output executes the command and returns its trimmed stdout.
	Output(ctx context.Context, cmd Command) (string, error)
}

// Local runs commands on the local host. The command's own diagnostic output
// goes to Stdout/Stderr so failures are visible at the point they happen.
type Local struct {
	Stdout io.Writer
	Stderr io.Writer
}

// NewLocal returns a Runner wired to the process's standard streams.
func NewLocal() *Local {
	return &Local{Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run implements Runner.
func (l *Local) Run(ctx context.Context, cmd Command) error {
	c := l.build(ctx, cmd)
	c.Stdout = l.Stdout
	c.Stderr = l.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("command %q failed: %w", cmd.String(), err)
	}
	return nil
}

// Output implements Runner.
func (l *Local) Output(ctx context.Context, cmd Command) (string, error) {
	c := l.build(ctx, cmd)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	if err := c.Run(); err != nil {
		return "", fmt.Errorf("command %q failed: %w (stderr: %s)",
			cmd.String(), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (l *Local) build(ctx context.Context, cmd Command) *exec.Cmd {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), cmd.Env...)
	if cmd.Input != "" {
		c.Stdin = strings.NewReader(cmd.Input)
	}
	return c
}
