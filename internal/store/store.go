package store

import (
	"context"
	"time"
)

// User is an account holder. Email is the unique key; for providers
// without a real email concept it holds a synthetic address.
type User struct {
	ID            string
	Email         string
	EmailVerified bool
	Name          string
	Image         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Account is one external-provider credential linked to a user.
type Account struct {
	ID                   string
	UserID               string
	ProviderID           string
	AccountID            string
	AccessToken          string
	RefreshToken         string
	AccessTokenExpiresAt *time.Time
	Scope                string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// OAuthUser is a user together with all linked provider accounts.
type OAuthUser struct {
	User     User
	Accounts []Account
}

// FindAccount returns the linked account for the given provider, or nil.
func (u *OAuthUser) FindAccount(providerID string) *Account {
	for i := range u.Accounts {
		if u.Accounts[i].ProviderID == providerID {
			return &u.Accounts[i]
		}
	}
	return nil
}

// NewUser holds the fields for user creation.
type NewUser struct {
	Email         string
	EmailVerified bool
	Name          string
	Image         string
}

// NewAccount holds the fields for account creation/linking.
// UserID is ignored by CreateOAuthUser, which assigns it.
type NewAccount struct {
	UserID               string
	ProviderID           string
	AccountID            string
	AccessToken          string
	RefreshToken         string
	AccessTokenExpiresAt *time.Time
	Scope                string
}

// AccountUpdate is a partial token update. Nil fields are left
// untouched in storage.
type AccountUpdate struct {
	AccessToken          *string
	RefreshToken         *string
	AccessTokenExpiresAt *time.Time
	Scope                *string
}

// Empty reports whether the update would change nothing.
func (u AccountUpdate) Empty() bool {
	return u.AccessToken == nil &&
		u.RefreshToken == nil &&
		u.AccessTokenExpiresAt == nil &&
		u.Scope == nil
}

// Store is the persistence interface consumed by the OAuth flows.
// Implementations own all uniqueness and concurrency guarantees; callers
// perform lookup-then-act without transactions of their own.
type Store interface {
	// FindOAuthUser locates a user by email or by an already-linked
	// account (providerID + accountID). Returns (nil, nil) when no user
	// matches.
	FindOAuthUser(ctx context.Context, email, accountID, providerID string) (*OAuthUser, error)

	// CreateOAuthUser creates a user and its first linked account in one
	// step. It is idempotent under concurrent duplicate registration.
	CreateOAuthUser(ctx context.Context, user NewUser, account NewAccount) (*OAuthUser, error)

	// LinkAccount attaches a provider account to an existing user.
	LinkAccount(ctx context.Context, account NewAccount) (*Account, error)

	// UpdateAccount applies a partial token update to an account row.
	UpdateAccount(ctx context.Context, accountID string, upd AccountUpdate) error
}
