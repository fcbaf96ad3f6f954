// Package ledger records which run-at-most-once provisioning steps have
// completed on this host. Markers live in a single YAML document instead of
// scattered sentinel files, so the set of completed steps is inspectable in
// one place.
package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Ledger is a persisted map of marker name to completion time. A marker, once
// set, survives for the lifetime of the host; steps guarded by one execute at
// most once no matter how many times the provisioner runs.
type Ledger struct {
	path    string
	markers map[string]time.Time
}

// Load reads the ledger at path. A missing file yields an empty ledger.
func Load(path string) (*Ledger, error) {
	l := &Ledger{
		path:    path,
		markers: make(map[string]time.Time),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	if err := yaml.Unmarshal(data, &l.markers); err != nil {
		return nil, fmt.Errorf("failed to parse ledger %s: %w", path, err)
	}
	return l, nil
}

// Done reports whether the named marker has been recorded.
func (l *Ledger) Done(name string) bool {
	_, ok := l.markers[name]
	return ok
}

// CompletedAt returns when the named marker was recorded, if it was.
func (l *Ledger) CompletedAt(name string) (time.Time, bool) {
	t, ok := l.markers[name]
	return t, ok
}

// Markers returns the names of all recorded markers.
func (l *Ledger) Markers() []string {
	names := make([]string, 0, len(l.markers))
	for name := range l.markers {
		names = append(names, name)
	}
	return names
}

// MarkDone records the named marker and persists the ledger immediately, so
// an interrupted run never repeats a step it already finished.
func (l *Ledger) MarkDone(name string) error {
	if l.Done(name) {
		return nil
	}
	l.markers[name] = time.Now().UTC().Truncate(time.Second)
	return l.save()
}

func (l *Ledger) save() error {
	data, err := yaml.Marshal(l.markers)
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	return nil
}
