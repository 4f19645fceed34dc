package wechat

import (
	"context"
	"errors"

	"social-auth-service/internal/logger"
	"social-auth-service/internal/store"
)

// Reconciliation failures the callback maps to terminal redirects.
var (
	ErrCreateUser  = errors.New("wechat: unable to create user")
	ErrLinkAccount = errors.New("wechat: unable to link account")
)

// Reconciler decides register vs. link vs. update for a normalized
// identity and performs exactly one of the three against the store.
// The lookup-then-act sequence is not transactional; the store's
// uniqueness constraints are the backstop for concurrent duplicates.
type Reconciler struct {
	store store.Store
	debug bool
}

func NewReconciler(s store.Store, debug bool) *Reconciler {
	return &Reconciler{store: s, debug: debug}
}

// Reconcile resolves the identity to a user, creating or linking as
// needed, and refreshes stored tokens on repeat logins. isRegister
// reports whether a new user was created.
func (r *Reconciler) Reconcile(
	ctx context.Context,
	identity Identity,
	token *Token,
) (user *store.User, isRegister bool, err error) {

	existing, lookupErr := r.store.FindOAuthUser(ctx, identity.Email, identity.ExternalID, providerID)
	if lookupErr != nil {
		// A failed lookup is treated as "no existing user"; creation
		// below hits the same constraints and fails loudly if the user
		// does in fact exist.
		if r.debug {
			logger.Error("wechat.reconcile.lookup_failed", map[string]any{
				"error": lookupErr.Error(),
			})
		}
		existing = nil
	}

	if existing == nil {
		created, createErr := r.store.CreateOAuthUser(ctx,
			store.NewUser{
				Email:         identity.Email,
				EmailVerified: identity.EmailVerified,
				Name:          identity.Name,
				Image:         identity.Image,
			},
			r.newAccount("", identity, token),
		)
		if createErr != nil || created == nil {
			if r.debug && createErr != nil {
				logger.Error("wechat.reconcile.create_user_failed", map[string]any{
					"error": createErr.Error(),
				})
			}
			return nil, false, ErrCreateUser
		}
		return &created.User, true, nil
	}

	account := existing.FindAccount(providerID)
	if account == nil {
		if _, linkErr := r.store.LinkAccount(ctx, r.newAccount(existing.User.ID, identity, token)); linkErr != nil {
			if r.debug {
				logger.Error("wechat.reconcile.link_account_failed", map[string]any{
					"error": linkErr.Error(),
				})
			}
			return nil, false, ErrLinkAccount
		}
		return &existing.User, false, nil
	}

	upd := tokenUpdate(token)
	if !upd.Empty() {
		if updErr := r.store.UpdateAccount(ctx, account.ID, upd); updErr != nil {
			// Stale stored tokens do not block login.
			logger.Warn("wechat.reconcile.update_account_failed", map[string]any{
				"error": updErr.Error(),
			})
		}
	}

	return &existing.User, false, nil
}

func (r *Reconciler) newAccount(userID string, identity Identity, token *Token) store.NewAccount {
	a := store.NewAccount{
		UserID:       userID,
		ProviderID:   providerID,
		AccountID:    identity.ExternalID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Scope:        token.Scope,
	}
	if token.ExpiresIn > 0 {
		expiresAt := token.ExpiresAt
		a.AccessTokenExpiresAt = &expiresAt
	}
	return a
}

// tokenUpdate builds a partial update from the fields the provider
// actually returned. Absent fields stay nil and never overwrite stored
// values.
func tokenUpdate(token *Token) store.AccountUpdate {
	var upd store.AccountUpdate
	if token.AccessToken != "" {
		upd.AccessToken = &token.AccessToken
	}
	if token.RefreshToken != "" {
		upd.RefreshToken = &token.RefreshToken
	}
	if token.ExpiresIn > 0 {
		expiresAt := token.ExpiresAt
		upd.AccessTokenExpiresAt = &expiresAt
	}
	if token.Scope != "" {
		upd.Scope = &token.Scope
	}
	return upd
}
