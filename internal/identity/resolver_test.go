package identity_test

import (
	"context"
	"strconv"
	"testing"

	"storefront_ledger/internal/domain"
	"storefront_ledger/internal/identity"
	"storefront_ledger/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_NumericIDIsCanonical(t *testing.T) {
	r := identity.NewResolver(testutil.NewDB(t))

	// No account 42 exists: numeric ids are returned without a lookup
	id, err := r.Resolve(context.Background(), "42", "")
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)
}

func TestResolve_ExternalUIDUsesEmailHint(t *testing.T) {
	gdb := testutil.NewDB(t)
	acct := testutil.SeedFederatedAccount(t, gdb, "firebase-uid-abc", "alice@example.com", 0)
	r := identity.NewResolver(gdb)

	id, err := r.Resolve(context.Background(), "firebase-uid-abc", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, id)

	// Case and surrounding space are normalized, nothing else
	id, err = r.Resolve(context.Background(), "anything", "  Alice@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, id)
}

func TestResolve_NoPartialMatches(t *testing.T) {
	gdb := testutil.NewDB(t)
	testutil.SeedAccount(t, gdb, "alice@example.com", 0, domain.RoleUser)
	r := identity.NewResolver(gdb)

	for _, hint := range []string{"alice", "example.com", "alice@example.co", ""} {
		_, err := r.Resolve(context.Background(), "uid-x", hint)
		assert.ErrorIs(t, err, domain.ErrNotFound, hint)
	}
}

func TestResolve_IsStable(t *testing.T) {
	gdb := testutil.NewDB(t)
	testutil.SeedAccount(t, gdb, "bob@example.com", 0, domain.RoleUser)
	r := identity.NewResolver(gdb)

	first, err := r.Resolve(context.Background(), "uid-bob", "bob@example.com")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := r.Resolve(context.Background(), "uid-bob", "bob@example.com")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestResolveOwner_MismatchIsUnauthorized(t *testing.T) {
	gdb := testutil.NewDB(t)
	alice := testutil.SeedAccount(t, gdb, "alice@example.com", 0, domain.RoleUser)
	testutil.SeedAccount(t, gdb, "mallory@example.com", 0, domain.RoleUser)
	r := identity.NewResolver(gdb)
	ctx := context.Background()

	raw := strconv.FormatUint(uint64(alice.ID), 10)

	id, err := r.ResolveOwner(ctx, raw, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, id)

	_, err = r.ResolveOwner(ctx, raw, "mallory@example.com")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.NotErrorIs(t, err, domain.ErrNotFound)

	_, err = r.ResolveOwner(ctx, "999", "alice@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProvision_CreatesThenLinks(t *testing.T) {
	gdb := testutil.NewDB(t)
	r := identity.NewResolver(gdb)
	ctx := context.Background()

	created, err := r.Provision(ctx, "uid-new", "New@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", created.Email)
	assert.Equal(t, "uid-new", created.UID())
	assert.Equal(t, domain.RoleUser, created.Role)

	again, err := r.Provision(ctx, "uid-new", "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)

	// Email-only account gets its uid linked once
	local := testutil.SeedAccount(t, gdb, "local@example.com", 0, domain.RoleUser)
	linked, err := r.Provision(ctx, "uid-local", "local@example.com")
	require.NoError(t, err)
	assert.Equal(t, local.ID, linked.ID)
	assert.Equal(t, "uid-local", linked.UID())

	_, err = r.Provision(ctx, "uid-other", "local@example.com")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestProvision_NumericSubjectIsNotAnAccountID(t *testing.T) {
	gdb := testutil.NewDB(t)
	victim := testutil.SeedAccount(t, gdb, "victim@example.com", 500, domain.RoleUser)
	r := identity.NewResolver(gdb)
	ctx := context.Background()

	sub := strconv.FormatUint(uint64(victim.ID), 10)
	acct, err := r.Provision(ctx, sub, "attacker@evil.com")
	require.NoError(t, err)
	assert.NotEqual(t, victim.ID, acct.ID)
	assert.Equal(t, "attacker@evil.com", acct.Email)
	assert.Equal(t, sub, acct.UID())

	// The victim row is untouched
	reloaded, err := r.Load(ctx, victim.ID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.UID())
	assert.Equal(t, "victim@example.com", reloaded.Email)

	// The same subject with another email is refused once bound
	_, err = r.Provision(ctx, sub, "victim@example.com")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestProvision_LooksUpByExternalUIDFirst(t *testing.T) {
	gdb := testutil.NewDB(t)
	fed := testutil.SeedFederatedAccount(t, gdb, "123456", "gh@example.com", 0)
	r := identity.NewResolver(gdb)

	acct, err := r.Provision(context.Background(), "123456", "GH@example.com")
	require.NoError(t, err)
	assert.Equal(t, fed.ID, acct.ID)

	_, err = r.Provision(context.Background(), "123456", "someone-else@example.com")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = r.Provision(context.Background(), "", "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
