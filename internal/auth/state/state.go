// Package state implements the opaque state token carried across the
// OAuth authorization redirect round-trip. The token is an HS256 JWT
// embedding the caller's redirect destinations plus a random nonce; the
// nonce is recorded server-side and consumed atomically on callback, so
// a token can be redeemed exactly once.
package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"social-auth-service/internal/utils"
)

const defaultTTL = 10 * time.Minute

var (
	// ErrInvalid covers malformed, tampered, or expired tokens.
	ErrInvalid = errors.New("state: invalid token")
	// ErrConsumed is returned when a token is redeemed a second time.
	ErrConsumed = errors.New("state: token already consumed")
)

// Payload is the redirect metadata a sign-in attempt carries through
// the provider round-trip. All fields may be empty.
type Payload struct {
	CallbackURL        string
	ErrorCallbackURL   string
	NewUserCallbackURL string
}

type claims struct {
	jwt.RegisteredClaims
	CallbackURL        string `json:"cb,omitempty"`
	ErrorCallbackURL   string `json:"ecb,omitempty"`
	NewUserCallbackURL string `json:"ncb,omitempty"`
}

// NonceStore records issued nonces and consumes them exactly once.
// Consume must be atomic against concurrent callbacks.
type NonceStore interface {
	Save(ctx context.Context, nonce string, ttl time.Duration) error
	Consume(ctx context.Context, nonce string) error
}

// Codec generates and redeems state tokens.
type Codec struct {
	secret []byte
	ttl    time.Duration
	nonces NonceStore
}

func NewCodec(secret string, nonces NonceStore) *Codec {
	return &Codec{
		secret: []byte(secret),
		ttl:    defaultTTL,
		nonces: nonces,
	}
}

// Generate issues a single-use token for one sign-in attempt.
func (c *Codec) Generate(ctx context.Context, p Payload) (string, error) {
	nonce := utils.RandomString(32)
	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		CallbackURL:        p.CallbackURL,
		ErrorCallbackURL:   p.ErrorCallbackURL,
		NewUserCallbackURL: p.NewUserCallbackURL,
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("state: sign: %w", err)
	}

	if err := c.nonces.Save(ctx, nonce, c.ttl); err != nil {
		return "", fmt.Errorf("state: save nonce: %w", err)
	}

	return signed, nil
}

// Consume verifies the token and redeems its nonce. A second Consume of
// the same token returns ErrConsumed.
func (c *Codec) Consume(ctx context.Context, raw string) (*Payload, error) {
	if raw == "" {
		return nil, ErrInvalid
	}

	var cl claims
	_, err := jwt.ParseWithClaims(raw, &cl, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if cl.ID == "" {
		return nil, ErrInvalid
	}

	if err := c.nonces.Consume(ctx, cl.ID); err != nil {
		return nil, err
	}

	return &Payload{
		CallbackURL:        cl.CallbackURL,
		ErrorCallbackURL:   cl.ErrorCallbackURL,
		NewUserCallbackURL: cl.NewUserCallbackURL,
	}, nil
}
