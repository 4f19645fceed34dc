package wechat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"social-auth-service/internal/auth/state"
	"social-auth-service/internal/session"
	"social-auth-service/internal/store"
)

// fakeStore is an in-memory store.Store with the same semantics as the
// postgres implementation: users unique by lowercased email, accounts
// by (provider, account id), partial updates never clear fields.
type fakeStore struct {
	mu     sync.Mutex
	users  map[string]*store.OAuthUser // keyed by lower(email)
	nextID int

	failFind   bool
	failCreate bool
	failLink   bool
	failUpdate bool

	createCalls int
	linkCalls   int
	updateCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]*store.OAuthUser{}}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeStore) FindOAuthUser(_ context.Context, email, accountID, providerID string) (*store.OAuthUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failFind {
		return nil, errors.New("store unavailable")
	}

	if u, ok := f.users[strings.ToLower(email)]; ok {
		return u, nil
	}
	for _, u := range f.users {
		for _, a := range u.Accounts {
			if a.ProviderID == providerID && a.AccountID == accountID {
				return u, nil
			}
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateOAuthUser(_ context.Context, user store.NewUser, account store.NewAccount) (*store.OAuthUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.createCalls++
	if f.failCreate {
		return nil, errors.New("unique constraint violation")
	}

	key := strings.ToLower(user.Email)
	if existing, ok := f.users[key]; ok {
		// Upsert semantics, same as the postgres store.
		return existing, nil
	}

	u := &store.OAuthUser{
		User: store.User{
			ID:            f.id("user"),
			Email:         user.Email,
			EmailVerified: user.EmailVerified,
			Name:          user.Name,
			Image:         user.Image,
		},
	}
	u.Accounts = append(u.Accounts, store.Account{
		ID:                   f.id("account"),
		UserID:               u.User.ID,
		ProviderID:           account.ProviderID,
		AccountID:            account.AccountID,
		AccessToken:          account.AccessToken,
		RefreshToken:         account.RefreshToken,
		AccessTokenExpiresAt: account.AccessTokenExpiresAt,
		Scope:                account.Scope,
	})
	f.users[key] = u
	return u, nil
}

func (f *fakeStore) LinkAccount(_ context.Context, account store.NewAccount) (*store.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.linkCalls++
	if f.failLink {
		return nil, errors.New("unique constraint violation")
	}

	for _, u := range f.users {
		if u.User.ID != account.UserID {
			continue
		}
		a := store.Account{
			ID:                   f.id("account"),
			UserID:               account.UserID,
			ProviderID:           account.ProviderID,
			AccountID:            account.AccountID,
			AccessToken:          account.AccessToken,
			RefreshToken:         account.RefreshToken,
			AccessTokenExpiresAt: account.AccessTokenExpiresAt,
			Scope:                account.Scope,
		}
		u.Accounts = append(u.Accounts, a)
		return &a, nil
	}
	return nil, errors.New("user not found")
}

func (f *fakeStore) UpdateAccount(_ context.Context, accountID string, upd store.AccountUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.updateCalls++
	if f.failUpdate {
		return errors.New("store unavailable")
	}

	for _, u := range f.users {
		for i := range u.Accounts {
			if u.Accounts[i].ID != accountID {
				continue
			}
			if upd.AccessToken != nil {
				u.Accounts[i].AccessToken = *upd.AccessToken
			}
			if upd.RefreshToken != nil {
				u.Accounts[i].RefreshToken = *upd.RefreshToken
			}
			if upd.AccessTokenExpiresAt != nil {
				u.Accounts[i].AccessTokenExpiresAt = upd.AccessTokenExpiresAt
			}
			if upd.Scope != nil {
				u.Accounts[i].Scope = *upd.Scope
			}
			return nil
		}
	}
	return errors.New("account not found")
}

// userByEmail is a test helper, not part of the Store interface.
func (f *fakeStore) userByEmail(email string) *store.OAuthUser {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[strings.ToLower(email)]
}

func newUserFixture(email string) store.NewUser {
	return store.NewUser{Email: email, EmailVerified: true, Name: "Existing"}
}

func accountFixture(providerID, accountID string) store.NewAccount {
	return store.NewAccount{ProviderID: providerID, AccountID: accountID, AccessToken: "tok"}
}

// fakeSessionStore records created sessions.
type fakeSessionStore struct {
	mu      sync.Mutex
	created []session.Session
	fail    bool
}

func (f *fakeSessionStore) Create(_ context.Context, s session.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("redis unavailable")
	}
	f.created = append(f.created, s)
	return nil
}

func (f *fakeSessionStore) Get(context.Context, string) (*session.Session, error) {
	return nil, nil
}

func (f *fakeSessionStore) Update(context.Context, session.Session) error { return nil }
func (f *fakeSessionStore) Delete(context.Context, string) error          { return nil }

// fakeStateCodec hands out sequential tokens and consumes each at most
// once, mimicking the real codec without redis.
type fakeStateCodec struct {
	mu       sync.Mutex
	payloads map[string]*state.Payload
	next     int
}

func newFakeStateCodec() *fakeStateCodec {
	return &fakeStateCodec{payloads: map[string]*state.Payload{}}
}

func (f *fakeStateCodec) Generate(_ context.Context, p state.Payload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	token := fmt.Sprintf("state-token-%d", f.next)
	copied := p
	f.payloads[token] = &copied
	return token, nil
}

func (f *fakeStateCodec) Consume(_ context.Context, raw string) (*state.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payloads[raw]
	if !ok {
		return nil, state.ErrInvalid
	}
	delete(f.payloads, raw)
	return p, nil
}
