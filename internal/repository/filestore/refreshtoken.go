package filestore

import (
	"context"
	"fmt"
	"time"

	"github.com/vshumov/minibank/internal/apperrors"
	"github.com/vshumov/minibank/internal/models"
)

type refreshTokenRepo struct {
	s *Store
}

func (r *refreshTokenRepo) Save(ctx context.Context, token models.RefreshToken) error {
	r.s.lock()
	defer r.s.unlock()

	return r.s.update(func(st *state) error {
		t := token
		st.tokens[t.Token] = &t
		return nil
	})
}

func (r *refreshTokenRepo) GetAndMarkUsed(ctx context.Context, tokenString string) (models.RefreshToken, error) {
	r.s.lock()
	defer r.s.unlock()

	t, ok := r.s.st.tokens[tokenString]
	if !ok {
		return models.RefreshToken{}, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	}
	if t.UsedAt != nil {
		return *t, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenIsUsed)
	}

	now := time.Now()
	err := r.s.update(func(st *state) error {
		st.tokens[tokenString].UsedAt = &now
		return nil
	})
	if err != nil {
		return models.RefreshToken{}, err
	}

	return *r.s.st.tokens[tokenString], nil
}
