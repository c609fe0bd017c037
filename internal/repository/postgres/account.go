package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/vshumov/minibank/internal/apperrors"
	"github.com/vshumov/minibank/internal/models"
	"github.com/vshumov/minibank/internal/repository"
)

type AccountRepo struct {
	db DBTX
}

const accountColumns = `id, created_at, name, email, password_hash, account_number, role, blocked, balance`

const createAccount = `-- name: CreateAccount
INSERT INTO accounts (id, name, email, password_hash, account_number, role, blocked, balance)
VALUES ($1, $2, $3, $4, $5, $6, false, 0)
RETURNING ` + accountColumns

func (r *AccountRepo) CreateAccount(ctx context.Context, arg repository.CreateAccountParams) (models.Account, error) {
	role := arg.Role
	if role == "" {
		role = models.RoleUser
	}

	rows, _ := r.db.Query(ctx, createAccount, uuid.New(), arg.Name, arg.Email, arg.HashedPassword, arg.AccountNumber, role)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return account, apperrors.ErrAccountAlreadyExists
		}

		return account, fmt.Errorf("db error: %w", err)
	}

	return account, nil
}

const getAccount = `-- name: GetAccount
SELECT ` + accountColumns + ` FROM accounts
WHERE id = $1
`

func (r *AccountRepo) GetAccount(ctx context.Context, accountID uuid.UUID) (models.Account, error) {
	rows, _ := r.db.Query(ctx, getAccount, accountID)
	return collectAccount(rows)
}

const getAccountByEmail = `-- name: GetAccountByEmail
SELECT ` + accountColumns + ` FROM accounts
WHERE email = $1
`

func (r *AccountRepo) GetAccountByEmail(ctx context.Context, email string) (models.Account, error) {
	rows, _ := r.db.Query(ctx, getAccountByEmail, email)
	return collectAccount(rows)
}

const getAccountByNumber = `-- name: GetAccountByNumber
SELECT ` + accountColumns + ` FROM accounts
WHERE account_number = $1
`

func (r *AccountRepo) GetAccountByNumber(ctx context.Context, number string) (models.Account, error) {
	rows, _ := r.db.Query(ctx, getAccountByNumber, number)
	return collectAccount(rows)
}

const lockAccounts = `-- name: LockAccounts
SELECT id FROM accounts
WHERE id = ANY($1)
ORDER BY id
FOR UPDATE
`

// Lock rows in id order so two concurrent opposite transfers acquire
// their locks in the same sequence
func (r *AccountRepo) LockAccounts(ctx context.Context, accountIDs ...uuid.UUID) error {
	ids := make([]uuid.UUID, len(accountIDs))
	copy(ids, accountIDs)
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	rows, _ := r.db.Query(ctx, lockAccounts, ids)
	locked, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])

	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case len(locked) != len(ids):
		return apperrors.ErrAccountNotFound
	default:
		return nil
	}
}

const lockAccount = `-- name: lock single account for read-modify-write
SELECT ` + accountColumns + ` FROM accounts
WHERE id = $1
FOR UPDATE
`

const updateBalance = `-- name: update balance after checks
UPDATE accounts
SET balance = balance + $2
WHERE id = $1
RETURNING ` + accountColumns

func (r *AccountRepo) ApplyDelta(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (models.Account, error) {
	rows, _ := r.db.Query(ctx, lockAccount, accountID)
	account, err := collectAccount(rows)
	if err != nil {
		return account, err
	}

	switch {
	case account.Blocked && delta.IsNegative():
		return account, apperrors.ErrAccountBlocked
	case account.Balance.Add(delta).IsNegative():
		return account, apperrors.ErrInsufficientFunds
	}

	rows, _ = r.db.Query(ctx, updateBalance, accountID, delta)
	account, err = pgx.CollectOneRow(rows, rowToAccount)
	if err != nil {
		return account, fmt.Errorf("db error: %w", err)
	}

	return account, nil
}

const setBlocked = `-- name: SetBlocked
UPDATE accounts
SET blocked = $2
WHERE id = $1
RETURNING ` + accountColumns

func (r *AccountRepo) SetBlocked(ctx context.Context, accountID uuid.UUID, blocked bool) (models.Account, error) {
	rows, _ := r.db.Query(ctx, lockAccount, accountID)
	account, err := collectAccount(rows)
	if err != nil {
		return account, err
	}

	if account.IsAdmin() {
		return account, apperrors.ErrForbidden
	}

	rows, _ = r.db.Query(ctx, setBlocked, accountID, blocked)
	account, err = pgx.CollectOneRow(rows, rowToAccount)
	if err != nil {
		return account, fmt.Errorf("db error: %w", err)
	}

	return account, nil
}

const listAccounts = `-- name: ListAccounts
SELECT ` + accountColumns + ` FROM accounts
WHERE role = $1
ORDER BY created_at DESC, id
LIMIT $2 OFFSET $3
`

func (r *AccountRepo) ListAccounts(ctx context.Context, role string, limit int, offset int) ([]models.Account, error) {
	rows, _ := r.db.Query(ctx, listAccounts, role, limit, offset)
	accounts, err := pgx.CollectRows(rows, rowToAccount)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return accounts, nil
}

const countAccounts = `-- name: CountAccounts
SELECT count(*) FROM accounts
WHERE role = $1
`

func (r *AccountRepo) CountAccounts(ctx context.Context, role string) (int64, error) {
	rows, _ := r.db.Query(ctx, countAccounts, role)
	return collectCount(rows)
}

const countBlocked = `-- name: CountBlocked
SELECT count(*) FROM accounts
WHERE role = $1 AND blocked
`

func (r *AccountRepo) CountBlocked(ctx context.Context, role string) (int64, error) {
	rows, _ := r.db.Query(ctx, countBlocked, role)
	return collectCount(rows)
}

const totalBalance = `-- name: TotalBalance
SELECT COALESCE(sum(balance), 0) FROM accounts
WHERE role = $1
`

func (r *AccountRepo) TotalBalance(ctx context.Context, role string) (decimal.Decimal, error) {
	rows, _ := r.db.Query(ctx, totalBalance, role)
	total, err := pgx.CollectOneRow(rows, pgx.RowTo[decimal.Decimal])
	if err != nil {
		return total, fmt.Errorf("db error: %w", err)
	}

	return total, nil
}

func collectAccount(rows pgx.Rows) (models.Account, error) {
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, apperrors.ErrAccountNotFound
	default:
		return account, fmt.Errorf("db error: %w", err)
	}
}

func collectCount(rows pgx.Rows) (int64, error) {
	count, err := pgx.CollectOneRow(rows, pgx.RowTo[int64])
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return count, nil
}

func rowToAccount(row pgx.CollectableRow) (models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.CreatedAt, &a.Name, &a.Email, &a.HashedPassword, &a.AccountNumber, &a.Role, &a.Blocked, &a.Balance)
	return a, err
}
