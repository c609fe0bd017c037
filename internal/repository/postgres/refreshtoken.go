package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vshumov/minibank/internal/apperrors"
	"github.com/vshumov/minibank/internal/models"
)

type RefreshTokenRepo struct {
	db DBTX
}

const saveToken = `-- name: Save refresh token
INSERT INTO refresh_tokens (id, account_id, token, created_at, expires_at, used_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id
`

func (r *RefreshTokenRepo) Save(ctx context.Context, token models.RefreshToken) error {
	rows, _ := r.db.Query(ctx, saveToken, token.ID, token.AccountID, token.Token, token.CreatedAt, token.ExpiresAt, token.UsedAt)
	_, err := pgx.CollectOneRow(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const markTokenUsed = `-- name: Mark token used if it not used
UPDATE refresh_tokens
SET used_at = COALESCE(used_at, $2)
WHERE token = $1
RETURNING id, account_id, created_at, expires_at, used_at
`

// Return token and mark it used
// Must be idempotent-safe: an already used token keeps its original
// used_at and the call fails with apperrors.ErrRefreshTokenIsUsed
func (r *RefreshTokenRepo) GetAndMarkUsed(ctx context.Context, tokenString string) (models.RefreshToken, error) {
	// Postgres keeps microseconds only, align before comparing round-tripped value
	now := time.Now().Truncate(time.Microsecond)
	rows, _ := r.db.Query(ctx, markTokenUsed, tokenString, now)
	token, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (models.RefreshToken, error) {
		t := models.RefreshToken{Token: tokenString}
		err := row.Scan(&t.ID, &t.AccountID, &t.CreatedAt, &t.ExpiresAt, &t.UsedAt)
		return t, err
	})

	switch {
	case err == nil && token.UsedAt != nil && token.UsedAt.Equal(now):
		return token, nil
	case err == nil: // used_at kept its old value == token was used before
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenIsUsed)
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}
