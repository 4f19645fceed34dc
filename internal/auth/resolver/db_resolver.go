package resolver

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"social-auth-service/internal/auth"
	"social-auth-service/internal/db"
)

// DBResolver resolves identities using the database. Lookup order:
// previously linked account, then email-based linking, then creation.
type DBResolver struct {
	db *db.DB
}

func NewDBResolver(db *db.DB) *DBResolver {
	return &DBResolver{db: db}
}

func (r *DBResolver) Resolve(
	ctx context.Context,
	identity *auth.Identity,
) (string, error) {

	if identity == nil {
		return "", errors.New("identity is nil")
	}

	// 1. Try account lookup (provider + provider_user_id)
	var userID uuid.UUID
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id
		FROM accounts
		WHERE provider_id = $1
		  AND account_id = $2
	`,
		identity.Provider,
		identity.ProviderUserID,
	).Scan(&userID)

	if err == nil {
		return userID.String(), nil
	}

	if err != sql.ErrNoRows {
		return "", err
	}

	// 2. Try email-based linking (existing user, new provider)
	err = r.db.QueryRowContext(ctx, `
		SELECT id
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`,
		identity.Email,
	).Scan(&userID)

	if err == nil {
		// Link new account to existing user
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO accounts (user_id, provider_id, account_id)
			VALUES ($1, $2, $3)
		`,
			userID,
			identity.Provider,
			identity.ProviderUserID,
		)
		if err != nil {
			return "", err
		}

		return userID.String(), nil
	}

	if err != sql.ErrNoRows {
		return "", err
	}

	// 3. Create new user
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO users (email, email_verified, name, image)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`,
		identity.Email,
		identity.EmailVerified,
		identity.Name,
		identity.Picture,
	).Scan(&userID)

	if err != nil {
		return "", err
	}

	// 4. Create account mapping
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO accounts (user_id, provider_id, account_id)
		VALUES ($1, $2, $3)
	`,
		userID,
		identity.Provider,
		identity.ProviderUserID,
	)

	if err != nil {
		return "", err
	}

	return userID.String(), nil
}
