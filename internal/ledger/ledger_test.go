package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFile(t *testing.T) {
	l, err := Load(filepath.Join(t.TempDir(), "state.yaml"))
	require.NoError(t, err)
	assert.False(t, l.Done("anything"))
	assert.Empty(t, l.Markers())
}

func TestMarkDone_PersistsAcrossLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.yaml")

	l, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, l.MarkDone("admin-account"))
	assert.True(t, l.Done("admin-account"))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, reloaded.Done("admin-account"))
	assert.False(t, reloaded.Done("something-else"))

	when, ok := reloaded.CompletedAt("admin-account")
	assert.True(t, ok)
	assert.False(t, when.IsZero())
}

func TestMarkDone_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")

	l, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, l.MarkDone("step"))
	first, _ := l.CompletedAt("step")

	require.NoError(t, l.MarkDone("step"))
	second, _ := l.CompletedAt("step")
	assert.Equal(t, first, second, "re-marking must not move the completion time")
}

func TestLoad_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	require.NoError(t, os.WriteFile(path, []byte("::: not yaml"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
