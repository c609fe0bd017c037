package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vshumov/minibank/internal/apperrors"
	"github.com/vshumov/minibank/internal/models"
	"github.com/vshumov/minibank/internal/testutil"
)

func mustParseTime(value string) time.Time {
	dt, err := time.Parse("2006-01-02 15:04:05Z07:00", value)
	if err != nil {
		panic(err)
	}
	return dt
}

func Test_RefreshTokenRepo(t *testing.T) {
	t.Parallel() // It's ok to run in parallel with other tests, but not with subtests

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	newToken := func(t *testing.T, tx pgx.Tx) models.RefreshToken {
		t.Helper()

		// Token rows reference an account, so create one first
		account := mustCreateAccount(t, AccountRepo{db: tx}, "alice", "0000000001", "")
		return models.RefreshToken{
			ID:        uuid.New(),
			AccountID: account.ID,
			Token:     "secret-token",
			CreatedAt: mustParseTime("2024-01-01 19:00:01Z"),
			ExpiresAt: mustParseTime("2200-01-01 03:00:02Z"),
			UsedAt:    nil,
		}
	}

	t.Run("save token ok", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{db: tx}
			token := newToken(t, tx)

			err := repo.Save(t.Context(), token)

			require.NoError(t, err)
		})
	})

	t.Run("mark token used", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{db: tx}
			token := newToken(t, tx)
			err := repo.Save(t.Context(), token)
			require.NoError(t, err)

			got, err := repo.GetAndMarkUsed(t.Context(), token.Token)

			require.NoError(t, err, "No error must be happen when marking used existed token")
			require.NotNil(t, got.UsedAt, "token must marked used")
			require.WithinDuration(t, time.Now(), *got.UsedAt, 50*time.Millisecond, "should marked as used close to now() enough")
			require.Equal(t, token.Token, got.Token)
			require.Equal(t, token.AccountID, got.AccountID)
			require.WithinDuration(t, token.CreatedAt, got.CreatedAt, 0)
			require.WithinDuration(t, token.ExpiresAt, got.ExpiresAt, 0)
		})
	})

	t.Run("mark used not existed token", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{db: tx}

			_, err := repo.GetAndMarkUsed(t.Context(), "never-saved")

			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
		})
	})

	t.Run("mark used is idempotent", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{db: tx}
			token := newToken(t, tx)
			err := repo.Save(t.Context(), token)
			require.NoError(t, err)

			tokenFirst, err := repo.GetAndMarkUsed(t.Context(), token.Token)
			require.NoError(t, err, "No error should happen on make used")

			time.Sleep(100 * time.Millisecond)
			tokenSecond, err := repo.GetAndMarkUsed(t.Context(), token.Token)
			require.Error(t, err, "Mark used already used token has to return error")
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenIsUsed, "should return ErrRefreshTokenIsUsed error")

			assert.WithinDuration(t, *tokenFirst.UsedAt, *tokenSecond.UsedAt, 0, "should return same time for already used token")
		})
	})
}
