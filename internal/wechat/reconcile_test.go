package wechat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testToken() *Token {
	return &Token{
		AccessToken:  "access-token-1",
		RefreshToken: "refresh-token-1",
		OpenID:       "o1",
		Scope:        "snsapi_login",
		ExpiresIn:    7200,
		ExpiresAt:    time.Now().Add(7200 * time.Second),
	}
}

func testIdentity() Identity {
	return Identity{
		ExternalID:    "o1",
		Email:         "o1@wechat.local",
		Name:          "Li",
		EmailVerified: true,
	}
}

func TestReconcileRegistersNewUser(t *testing.T) {
	fs := newFakeStore()
	r := NewReconciler(fs, false)

	user, isRegister, err := r.Reconcile(context.Background(), testIdentity(), testToken())
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.True(t, isRegister)

	stored := fs.userByEmail("o1@wechat.local")
	require.NotNil(t, stored)
	assert.Equal(t, "o1@wechat.local", stored.User.Email)
	assert.True(t, stored.User.EmailVerified)
	require.Len(t, stored.Accounts, 1)
	assert.Equal(t, "wechat", stored.Accounts[0].ProviderID)
	assert.Equal(t, "o1", stored.Accounts[0].AccountID)
	assert.Equal(t, "access-token-1", stored.Accounts[0].AccessToken)
}

func TestReconcileCreateFailure(t *testing.T) {
	fs := newFakeStore()
	fs.failCreate = true
	r := NewReconciler(fs, false)

	_, _, err := r.Reconcile(context.Background(), testIdentity(), testToken())
	assert.ErrorIs(t, err, ErrCreateUser)
}

func TestReconcileLinksToExistingUser(t *testing.T) {
	fs := newFakeStore()
	r := NewReconciler(fs, false)

	// User already exists under the synthetic email, but with a
	// different provider linked.
	_, err := fs.CreateOAuthUser(context.Background(),
		newUserFixture("o1@wechat.local"),
		accountFixture("google", "g-123"),
	)
	require.NoError(t, err)

	user, isRegister, err := r.Reconcile(context.Background(), testIdentity(), testToken())
	require.NoError(t, err)
	assert.False(t, isRegister, "linking is not registration")

	stored := fs.userByEmail("o1@wechat.local")
	require.Len(t, stored.Accounts, 2)
	assert.Equal(t, stored.User.ID, user.ID)
	assert.Equal(t, 1, fs.linkCalls)
	assert.Equal(t, 1, fs.createCalls, "no second user is created")
}

func TestReconcileLinkFailure(t *testing.T) {
	fs := newFakeStore()
	r := NewReconciler(fs, false)

	_, err := fs.CreateOAuthUser(context.Background(),
		newUserFixture("o1@wechat.local"),
		accountFixture("google", "g-123"),
	)
	require.NoError(t, err)

	fs.failLink = true
	_, _, err = r.Reconcile(context.Background(), testIdentity(), testToken())
	assert.ErrorIs(t, err, ErrLinkAccount)
}

func TestReconcileUpdateIsIdempotent(t *testing.T) {
	fs := newFakeStore()
	r := NewReconciler(fs, false)

	_, isRegister, err := r.Reconcile(context.Background(), testIdentity(), testToken())
	require.NoError(t, err)
	require.True(t, isRegister)

	// Second and third login with identical token fields.
	for i := 0; i < 2; i++ {
		user, isRegister, err := r.Reconcile(context.Background(), testIdentity(), testToken())
		require.NoError(t, err)
		assert.False(t, isRegister)
		require.NotNil(t, user)
	}

	stored := fs.userByEmail("o1@wechat.local")
	require.Len(t, stored.Accounts, 1, "repeat logins must not duplicate accounts")
	assert.Equal(t, 1, fs.createCalls)
	assert.Equal(t, 0, fs.linkCalls)
	assert.Equal(t, 2, fs.updateCalls)
	assert.Equal(t, "access-token-1", stored.Accounts[0].AccessToken)
}

func TestReconcilePartialUpdateKeepsStoredFields(t *testing.T) {
	fs := newFakeStore()
	r := NewReconciler(fs, false)

	_, _, err := r.Reconcile(context.Background(), testIdentity(), testToken())
	require.NoError(t, err)

	// Provider omits refresh_token and scope on the next login.
	second := &Token{AccessToken: "access-token-2", OpenID: "o1"}
	_, _, err = r.Reconcile(context.Background(), testIdentity(), second)
	require.NoError(t, err)

	stored := fs.userByEmail("o1@wechat.local")
	require.Len(t, stored.Accounts, 1)
	assert.Equal(t, "access-token-2", stored.Accounts[0].AccessToken)
	assert.Equal(t, "refresh-token-1", stored.Accounts[0].RefreshToken,
		"absent fields must not clear stored values")
	assert.Equal(t, "snsapi_login", stored.Accounts[0].Scope)
}

func TestReconcileUpdateFailureDoesNotBlockLogin(t *testing.T) {
	fs := newFakeStore()
	r := NewReconciler(fs, false)

	_, _, err := r.Reconcile(context.Background(), testIdentity(), testToken())
	require.NoError(t, err)

	fs.failUpdate = true
	user, isRegister, err := r.Reconcile(context.Background(), testIdentity(), testToken())
	require.NoError(t, err, "stale tokens are not a login failure")
	assert.False(t, isRegister)
	assert.NotNil(t, user)
}

func TestReconcileLookupFailureFallsBackToCreate(t *testing.T) {
	fs := newFakeStore()
	fs.failFind = true
	r := NewReconciler(fs, false)

	user, isRegister, err := r.Reconcile(context.Background(), testIdentity(), testToken())
	require.NoError(t, err)
	assert.True(t, isRegister)
	assert.NotNil(t, user)
}
