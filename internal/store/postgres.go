package store

import (
	"context"
	"database/sql"
	"fmt"

	"social-auth-service/internal/db"
)

// PostgresStore implements Store on the keystone schema (users +
// accounts). Uniqueness lives in the database: users are unique by
// LOWER(email), accounts by (provider_id, account_id).
type PostgresStore struct {
	db *db.DB
}

func NewPostgresStore(db *db.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindOAuthUser(
	ctx context.Context,
	email string,
	accountID string,
	providerID string,
) (*OAuthUser, error) {

	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM users WHERE LOWER(email) = LOWER($1)
		UNION
		SELECT u.id FROM users u
		JOIN accounts a ON a.user_id = u.id
		WHERE a.provider_id = $2 AND a.account_id = $3
		LIMIT 1
	`,
		email,
		providerID,
		accountID,
	).Scan(&userID)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return s.loadOAuthUser(ctx, userID)
}

func (s *PostgresStore) loadOAuthUser(ctx context.Context, userID string) (*OAuthUser, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, email_verified, name, image, created_at, updated_at
		FROM users
		WHERE id = $1
	`, userID).Scan(
		&u.ID,
		&u.Email,
		&u.EmailVerified,
		&u.Name,
		&u.Image,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, provider_id, account_id,
		       access_token, refresh_token, access_token_expires_at, scope,
		       created_at, updated_at
		FROM accounts
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := &OAuthUser{User: u}
	for rows.Next() {
		var a Account
		if err := rows.Scan(
			&a.ID,
			&a.UserID,
			&a.ProviderID,
			&a.AccountID,
			&a.AccessToken,
			&a.RefreshToken,
			&a.AccessTokenExpiresAt,
			&a.Scope,
			&a.CreatedAt,
			&a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result.Accounts = append(result.Accounts, a)
	}

	return result, rows.Err()
}

// CreateOAuthUser upserts the user row and its first account. Two
// concurrent registrations for the same identity converge on one row
// instead of one of them failing on the unique constraint.
func (s *PostgresStore) CreateOAuthUser(
	ctx context.Context,
	user NewUser,
	account NewAccount,
) (*OAuthUser, error) {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var userID string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (email, email_verified, name, image)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (LOWER(email)) DO UPDATE SET updated_at = NOW()
		RETURNING id
	`,
		user.Email,
		user.EmailVerified,
		user.Name,
		user.Image,
	).Scan(&userID)
	if err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts
			(user_id, provider_id, account_id,
			 access_token, refresh_token, access_token_expires_at, scope)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (provider_id, account_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			access_token_expires_at = EXCLUDED.access_token_expires_at,
			scope = EXCLUDED.scope,
			updated_at = NOW()
	`,
		userID,
		account.ProviderID,
		account.AccountID,
		account.AccessToken,
		account.RefreshToken,
		account.AccessTokenExpiresAt,
		account.Scope,
	)
	if err != nil {
		return nil, fmt.Errorf("store: create account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.loadOAuthUser(ctx, userID)
}

func (s *PostgresStore) LinkAccount(ctx context.Context, account NewAccount) (*Account, error) {
	var a Account
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO accounts
			(user_id, provider_id, account_id,
			 access_token, refresh_token, access_token_expires_at, scope)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (provider_id, account_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			access_token_expires_at = EXCLUDED.access_token_expires_at,
			scope = EXCLUDED.scope,
			updated_at = NOW()
		RETURNING id, user_id, provider_id, account_id,
		          access_token, refresh_token, access_token_expires_at, scope,
		          created_at, updated_at
	`,
		account.UserID,
		account.ProviderID,
		account.AccountID,
		account.AccessToken,
		account.RefreshToken,
		account.AccessTokenExpiresAt,
		account.Scope,
	).Scan(
		&a.ID,
		&a.UserID,
		&a.ProviderID,
		&a.AccountID,
		&a.AccessToken,
		&a.RefreshToken,
		&a.AccessTokenExpiresAt,
		&a.Scope,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("store: link account: %w", err)
	}

	return &a, nil
}

// UpdateAccount leaves columns with nil update fields untouched.
func (s *PostgresStore) UpdateAccount(ctx context.Context, accountID string, upd AccountUpdate) error {
	if upd.Empty() {
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET
			access_token = COALESCE($2, access_token),
			refresh_token = COALESCE($3, refresh_token),
			access_token_expires_at = COALESCE($4, access_token_expires_at),
			scope = COALESCE($5, scope),
			updated_at = NOW()
		WHERE id = $1
	`,
		accountID,
		upd.AccessToken,
		upd.RefreshToken,
		upd.AccessTokenExpiresAt,
		upd.Scope,
	)
	if err != nil {
		return fmt.Errorf("store: update account: %w", err)
	}

	return nil
}
