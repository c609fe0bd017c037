package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vshumov/minibank/internal/models"
)

type LedgerRepo struct {
	db DBTX
}

const transactionColumns = `seq, id, created_at, account_id, type, amount, counterparty_id, description, balance_after`

const appendEntry = `-- name: Append
INSERT INTO transactions (id, created_at, account_id, type, amount, counterparty_id, description, balance_after)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING seq
`

// Append assigns id and seq; created_at is kept if the caller set it so
// both sides of a transfer share one timestamp
func (r *LedgerRepo) Append(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	t.ID = uuid.New()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	rows, _ := r.db.Query(ctx, appendEntry, t.ID, t.CreatedAt, t.AccountID, t.Type, t.Amount, t.CounterpartyID, t.Description, t.BalanceAfter)
	seq, err := pgx.CollectOneRow(rows, pgx.RowTo[int64])
	if err != nil {
		return t, fmt.Errorf("db error: %w", err)
	}

	t.Seq = seq
	return t, nil
}

const listForAccount = `-- name: ListForAccount
SELECT ` + transactionColumns + ` FROM transactions
WHERE account_id = $1
ORDER BY created_at DESC, seq DESC
LIMIT $2 OFFSET $3
`

func (r *LedgerRepo) ListForAccount(ctx context.Context, accountID uuid.UUID, limit int, offset int) ([]models.Transaction, error) {
	rows, _ := r.db.Query(ctx, listForAccount, accountID, limit, offset)
	return collectTransactions(rows)
}

const listAll = `-- name: ListAll
SELECT ` + transactionColumns + ` FROM transactions
ORDER BY created_at DESC, seq DESC
LIMIT $1 OFFSET $2
`

func (r *LedgerRepo) ListAll(ctx context.Context, limit int, offset int) ([]models.Transaction, error) {
	rows, _ := r.db.Query(ctx, listAll, limit, offset)
	return collectTransactions(rows)
}

const countForAccount = `-- name: CountForAccount
SELECT count(*) FROM transactions
WHERE account_id = $1
`

func (r *LedgerRepo) CountForAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	rows, _ := r.db.Query(ctx, countForAccount, accountID)
	return collectCount(rows)
}

const countAll = `-- name: CountAll
SELECT count(*) FROM transactions
`

func (r *LedgerRepo) CountAll(ctx context.Context) (int64, error) {
	rows, _ := r.db.Query(ctx, countAll)
	return collectCount(rows)
}

const countSince = `-- name: CountSince
SELECT count(*) FROM transactions
WHERE created_at >= $1
`

func (r *LedgerRepo) CountSince(ctx context.Context, since time.Time) (int64, error) {
	rows, _ := r.db.Query(ctx, countSince, since)
	return collectCount(rows)
}

func collectTransactions(rows pgx.Rows) ([]models.Transaction, error) {
	transactions, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return transactions, nil
}

func rowToTransaction(row pgx.CollectableRow) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.Seq, &t.ID, &t.CreatedAt, &t.AccountID, &t.Type, &t.Amount, &t.CounterpartyID, &t.Description, &t.BalanceAfter)
	return t, err
}
