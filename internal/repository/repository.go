package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vshumov/minibank/internal/models"
)

type CreateAccountParams struct {
	Name           string
	Email          string
	HashedPassword string
	AccountNumber  string
	Role           string
}

// Account repository interface
type AccountRepo interface {
	// Create account with zero balance
	// If account with the same email or account number exists must return
	// apperrors.ErrAccountAlreadyExists
	CreateAccount(ctx context.Context, arg CreateAccountParams) (models.Account, error)

	// Get account by id, email or account number
	// If account not found must return apperrors.ErrAccountNotFound
	GetAccount(ctx context.Context, accountID uuid.UUID) (models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (models.Account, error)
	GetAccountByNumber(ctx context.Context, number string) (models.Account, error)

	// Acquire exclusive locks on the given accounts in a fixed global
	// order (by id). Must be called inside InTx before mutating more than
	// one account, otherwise two opposite transfers may deadlock.
	LockAccounts(ctx context.Context, accountIDs ...uuid.UUID) error

	// Add delta (positive or negative) to the account balance.
	// Must return apperrors.ErrInsufficientFunds if the balance would go
	// negative and apperrors.ErrAccountBlocked on a debit from a blocked
	// account. Deposits to blocked accounts are allowed.
	ApplyDelta(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (models.Account, error)

	// Set the blocked flag
	// Must return apperrors.ErrForbidden if the target is an admin
	SetBlocked(ctx context.Context, accountID uuid.UUID, blocked bool) (models.Account, error)

	// Listing and aggregates for the admin view, newest accounts first
	ListAccounts(ctx context.Context, role string, limit int, offset int) ([]models.Account, error)
	CountAccounts(ctx context.Context, role string) (int64, error)
	CountBlocked(ctx context.Context, role string) (int64, error)
	TotalBalance(ctx context.Context, role string) (decimal.Decimal, error)
}

// Ledger repository interface. The ledger is append only: entries are
// never updated or removed.
type LedgerRepo interface {
	// Append the entry and assign id and seq. CreatedAt is kept when the
	// caller set it (both sides of a transfer share one timestamp),
	// otherwise assigned too.
	Append(ctx context.Context, tx models.Transaction) (models.Transaction, error)

	// Ordered by created_at descending, seq descending as tiebreak
	ListForAccount(ctx context.Context, accountID uuid.UUID, limit int, offset int) ([]models.Transaction, error)
	ListAll(ctx context.Context, limit int, offset int) ([]models.Transaction, error)

	CountForAccount(ctx context.Context, accountID uuid.UUID) (int64, error)
	CountAll(ctx context.Context) (int64, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	// Save token in repository
	Save(ctx context.Context, token models.RefreshToken) error

	// Return the token and mark it used in one step
	// If the token is already used must return apperrors.ErrRefreshTokenIsUsed
	// and must not overwrite the existing used_at
	GetAndMarkUsed(ctx context.Context, tokenString string) (models.RefreshToken, error)
}

// Storage aggregates all repositories over one backend
type Storage interface {
	Account() AccountRepo
	Ledger() LedgerRepo
	RefreshToken() RefreshTokenRepo

	// Run fn atomically: either every write inside fn is applied or none
	// is. The storage passed to fn operates within the transaction.
	InTx(ctx context.Context, fn func(Storage) error) error

	// Run fn with every read served from one consistent snapshot of the
	// store, so multi-query aggregations (a list plus its count, the
	// stats totals) cannot interleave with concurrent writes. Writes do
	// not belong inside fn.
	InReadTx(ctx context.Context, fn func(Storage) error) error
}
