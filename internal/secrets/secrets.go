// Package secrets persists generated credentials under the provisioner's
// state directory. A secret is generated exactly once; every later run reads
// the persisted value back, so configuration written from it stays in sync
// with the external systems it was handed to.
package secrets

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// charset is the unbiased alphabet for generated secrets. 62 symbols divide
// evenly into 248, so bytes >= 248 are rejected instead of skewing the
// distribution.
const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Store reads and writes named secrets as individual files with restricted
// permissions. The persisted copy is the single source of truth: once a
// secret exists it is never regenerated.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir. The directory is created lazily on
// the first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the file a secret is persisted to.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Exists reports whether a secret has been generated already.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// GetOrCreate returns the persisted value for name, generating and persisting
// a new random value of the given length if none exists yet. The value is on
// disk before it is returned, so an interrupted run never hands out a secret
// it failed to record.
func (s *Store) GetOrCreate(name string, length int) (string, error) {
	path := s.Path(name)

	data, err := os.ReadFile(path)
	if err == nil {
		value := strings.TrimRight(string(data), "\n")
		if value == "" {
			return "", fmt.Errorf("secret %q exists but is empty: %s", name, path)
		}
		return value, nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read secret %q: %w", name, err)
	}

	value, err := Generate(length)
	if err != nil {
		return "", fmt.Errorf("failed to generate secret %q: %w", name, err)
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create secrets directory: %w", err)
	}

	// Write to a temp file first so a crash never leaves a truncated secret
	// behind to be read back on the next run.
	tmp, err := os.CreateTemp(s.dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("failed to persist secret %q: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to restrict secret %q: %w", name, err)
	}
	if _, err := tmp.WriteString(value + "\n"); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to persist secret %q: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to persist secret %q: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to persist secret %q: %w", name, err)
	}

	return value, nil
}

// Generate produces a cryptographically random string of the given length
// drawn uniformly from the store's alphanumeric charset.
func Generate(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("secret length must be positive, got %d", length)
	}

	// Largest multiple of len(charset) that fits in a byte.
	limit := byte(256 - 256%len(charset))

	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, charset[int(b)%len(charset)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
