package credentials

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackup-sh/stackup/internal/provisioning"
	"github.com/stackup-sh/stackup/internal/secrets"
)

func testContext(t *testing.T) *provisioning.Context {
	t.Helper()
	return &provisioning.Context{
		Context:  context.Background(),
		State:    provisioning.NewState(),
		Secrets:  secrets.NewStore(t.TempDir()),
		Observer: provisioning.NopObserver{},
	}
}

func TestProvision_PopulatesCredentials(t *testing.T) {
	ctx := testContext(t)
	require.NoError(t, New().Provision(ctx))

	creds := ctx.State.Credentials
	assert.Len(t, creds.DBPassword, 24)
	assert.Len(t, creds.SecretKey, 50)
	assert.Len(t, creds.TokenPeppers["1"], 64)
	assert.Len(t, creds.AdminPassword, 20)
}

func TestProvision_StableAcrossRuns(t *testing.T) {
	ctx := testContext(t)
	require.NoError(t, New().Provision(ctx))
	first := ctx.State.Credentials

	// Second run against the same store.
	second := &provisioning.Context{
		Context:  context.Background(),
		State:    provisioning.NewState(),
		Secrets:  ctx.Secrets,
		Observer: provisioning.NopObserver{},
	}
	require.NoError(t, New().Provision(second))

	assert.Equal(t, first.DBPassword, second.State.Credentials.DBPassword)
	assert.Equal(t, first.SecretKey, second.State.Credentials.SecretKey)
	assert.Equal(t, first.TokenPeppers, second.State.Credentials.TokenPeppers)
	assert.Equal(t, first.AdminPassword, second.State.Credentials.AdminPassword)
}
