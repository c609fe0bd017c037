package tokenmanager

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vshumov/minibank/internal/apperrors"
	"github.com/vshumov/minibank/internal/models"
	"github.com/vshumov/minibank/internal/repository/filestore"
)

func mustParseTime(value string) time.Time {
	dt, err := time.Parse("2006-01-02 15:04:05Z07:00", value)
	if err != nil {
		panic(err)
	}
	return dt
}

func Test_TokenManager(t *testing.T) {
	t.Parallel()

	testAccount := models.Account{
		ID:             uuid.New(),
		CreatedAt:      mustParseTime("2024-01-01 19:00:01Z"),
		Name:           "testuser",
		Email:          "testuser@bank.test",
		HashedPassword: "hashed_password",
		AccountNumber:  "0000000001",
		Role:           models.RoleUser,
	}

	// Token manager only needs the refresh token repo, the in-memory
	// store is enough for that
	newManager := func(t *testing.T, accessTTL time.Duration, refreshTTL time.Duration) *TokenManager {
		t.Helper()

		store, err := filestore.New("")
		require.NoError(t, err)

		cfg := Config{
			SecretKey:  "test-secret-key",
			AccessTTL:  accessTTL,
			RefreshTTL: refreshTTL,
		}
		tokenManager, err := New(cfg, store.RefreshToken())
		require.NoError(t, err, "token manager should be created without errors")

		return tokenManager
	}

	t.Run("new defaults", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret"}, nil)
		require.NoError(t, err, "token manager should be created without errors")

		require.Equal(t, "secret", m.key, "secret key should be set")
		require.Equal(t, defaultAccessTokenTTL, m.accessTTL, "default access token TTL should be set")
		require.Equal(t, defaultRefreshTokenTTL, m.refreshTTL, "default refresh token TTL")
		require.Equal(t, defaultSigningMethod, m.alg.Alg(), "default signing method should be set")
	})

	t.Run("new requires secret", func(t *testing.T) {
		_, err := New(Config{}, nil)

		require.Error(t, err, "empty secret key should be refused")
	})

	t.Run("GeneratePair", func(t *testing.T) {
		t.Run("return token pair", func(t *testing.T) {
			tokenManager := newManager(t, 15*time.Minute, 24*time.Hour)

			pair, err := tokenManager.GeneratePair(t.Context(), testAccount)

			require.NoError(t, err)

			assert.NotEmpty(t, pair.Access.Value, "access token should not be empty")
			assert.WithinDuration(t, time.Now().Add(15*time.Minute), pair.Access.ExpiresAt, time.Second)
			assert.NotEmpty(t, pair.Refresh.Value, "refresh token should not be empty")
			assert.WithinDuration(t, time.Now().Add(24*time.Hour), pair.Refresh.ExpiresAt, time.Second)
		})

		t.Run("access claims", func(t *testing.T) {
			tokenManager := newManager(t, 15*time.Minute, 24*time.Hour)

			pair, err := tokenManager.GeneratePair(t.Context(), testAccount)
			require.NoError(t, err)

			// Parse and verify the access token
			token, err := jwt.ParseWithClaims(pair.Access.Value, &AccessTokenClaims{}, func(token *jwt.Token) (any, error) {
				return []byte("test-secret-key"), nil
			})
			require.NoError(t, err)
			require.True(t, token.Valid, "access token should be valid")

			claims, ok := token.Claims.(*AccessTokenClaims)
			require.True(t, ok, "claims should be of type AccessTokenClaims")
			assert.Equal(t, testAccount.ID, claims.AccountID, "account ID in token should match")
			assert.NotEmpty(t, claims.ID, "token has to has jti")
			assert.WithinDuration(t, time.Now(), claims.IssuedAt.Time, time.Second, "issued at should be close to now")
			assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt.Time, time.Second, "expires at should be 15 minutes from now")

			assert.WithinDuration(t, pair.Access.ExpiresAt, claims.ExpiresAt.Time, 0, "access expires at should match token pair")
		})

		t.Run("generate different tokens", func(t *testing.T) {
			tokenManager := newManager(t, 15*time.Minute, 24*time.Hour)

			pair1, err := tokenManager.GeneratePair(t.Context(), testAccount)
			require.NoError(t, err)

			pair2, err := tokenManager.GeneratePair(t.Context(), testAccount)
			require.NoError(t, err)

			assert.NotEqual(t, pair1.Refresh.Value, pair2.Refresh.Value, "refresh tokens should be different")
			assert.NotEqual(t, pair1.Access.Value, pair2.Access.Value, "access tokens should be different")
		})
	})

	t.Run("UseRefresh", func(t *testing.T) {
		t.Run("use ok", func(t *testing.T) {
			tokenManager := newManager(t, 15*time.Minute, 24*time.Hour)

			pair, err := tokenManager.GeneratePair(t.Context(), testAccount)
			require.NoError(t, err)

			token, err := tokenManager.UseRefresh(t.Context(), pair.Refresh.Value)

			require.NoError(t, err)
			assert.Equal(t, testAccount.ID, token.AccountID)
			assert.NotNil(t, token.UsedAt, "token should be marked used")
		})

		t.Run("second use fails", func(t *testing.T) {
			tokenManager := newManager(t, 15*time.Minute, 24*time.Hour)

			pair, err := tokenManager.GeneratePair(t.Context(), testAccount)
			require.NoError(t, err)

			_, err = tokenManager.UseRefresh(t.Context(), pair.Refresh.Value)
			require.NoError(t, err)

			_, err = tokenManager.UseRefresh(t.Context(), pair.Refresh.Value)
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenIsUsed)
		})

		t.Run("unknown token fails", func(t *testing.T) {
			tokenManager := newManager(t, 15*time.Minute, 24*time.Hour)

			_, err := tokenManager.UseRefresh(t.Context(), "never-issued")

			require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
		})

		t.Run("expired token fails", func(t *testing.T) {
			tokenManager := newManager(t, 15*time.Minute, -time.Hour)

			pair, err := tokenManager.GeneratePair(t.Context(), testAccount)
			require.NoError(t, err)

			_, err = tokenManager.UseRefresh(t.Context(), pair.Refresh.Value)

			require.ErrorIs(t, err, apperrors.ErrRefreshTokenExpired)
		})
	})

	t.Run("ParseAccess", func(t *testing.T) {
		t.Run("parse ok", func(t *testing.T) {
			tokenManager := newManager(t, 15*time.Minute, 24*time.Hour)

			pair, err := tokenManager.GeneratePair(t.Context(), testAccount)
			require.NoError(t, err)

			accountID, err := tokenManager.ParseAccess(t.Context(), pair.Access.Value)

			require.NoError(t, err)
			assert.Equal(t, testAccount.ID, accountID)
		})

		t.Run("garbage fails", func(t *testing.T) {
			tokenManager := newManager(t, 15*time.Minute, 24*time.Hour)

			_, err := tokenManager.ParseAccess(t.Context(), "not-a-jwt")

			require.Error(t, err)
		})

		t.Run("wrong key fails", func(t *testing.T) {
			tokenManager := newManager(t, 15*time.Minute, 24*time.Hour)
			other, err := New(Config{SecretKey: "other-key"}, nil)
			require.NoError(t, err)

			pair, err := tokenManager.GeneratePair(t.Context(), testAccount)
			require.NoError(t, err)

			_, err = other.ParseAccess(t.Context(), pair.Access.Value)

			require.Error(t, err, "token signed with a different key should be refused")
		})

		t.Run("expired access fails", func(t *testing.T) {
			tokenManager := newManager(t, -time.Minute, 24*time.Hour)

			pair, err := tokenManager.GeneratePair(t.Context(), testAccount)
			require.NoError(t, err)

			_, err = tokenManager.ParseAccess(t.Context(), pair.Access.Value)

			require.Error(t, err, "expired access token should be refused")
		})
	})
}
