package execx

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Fake is a Runner for tests. It records every invocation and answers from
// canned outputs and errors keyed by the rendered command line.
type Fake struct {
	mu sync.Mutex

	// Calls holds every command passed to Run or Output, in order.
	Calls []Command

	// Outputs maps a command line (see Command.String) to the stdout
	// Output should return for it.
	Outputs map[string]string

	// Errors maps a command line to the error Run/Output should return.
	Errors map[string]error

	// Err, when set, is returned for every invocation without a more
	// specific entry in Errors.
	Err error
}

// Run implements Runner.
func (f *Fake) Run(ctx context.Context, cmd Command) error {
	f.record(cmd)
	return f.errorFor(cmd)
}

// Output implements Runner.
func (f *Fake) Output(ctx context.Context, cmd Command) (string, error) {
	f.record(cmd)
	if err := f.errorFor(cmd); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Outputs[cmd.String()], nil
}

// CommandLines returns the recorded invocations as rendered command lines.
func (f *Fake) CommandLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := make([]string, len(f.Calls))
	for i, c := range f.Calls {
		lines[i] = c.String()
	}
	return lines
}

// CalledWith reports whether any recorded command line contains substr.
func (f *Fake) CalledWith(substr string) bool {
	for _, line := range f.CommandLines() {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func (f *Fake) record(cmd Command) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, cmd)
}

func (f *Fake) errorFor(cmd Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.Errors[cmd.String()]; ok {
		if err != nil {
			return fmt.Errorf("command %q failed: %w", cmd.String(), err)
		}
		return nil
	}
	if f.Err != nil {
		return fmt.Errorf("command %q failed: %w", cmd.String(), f.Err)
	}
	return nil
}
