// Package transfer holds the transfer engine: the only code that moves
// money. Every mutation changes a balance and appends the matching
// ledger entry inside one storage transaction, so a reader can never
// observe a balance the ledger does not explain.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vshumov/minibank/internal/apperrors"
	"github.com/vshumov/minibank/internal/models"
	"github.com/vshumov/minibank/internal/repository"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

type Engine struct {
	// Repository to access long term data
	storage repository.Storage
}

func NewEngine(storage repository.Storage) *Engine {
	return &Engine{storage: storage}
}

// Result of a completed money movement
type Result struct {
	Account     models.Account
	Transaction models.Transaction
}

func (e *Engine) Deposit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (Result, error) {
	var res Result

	if err := validateAmount(amount); err != nil {
		return res, err
	}

	err := e.storage.InTx(ctx, func(st repository.Storage) error {
		account, err := st.Account().ApplyDelta(ctx, accountID, amount)
		if err != nil {
			return err
		}

		entry, err := st.Ledger().Append(ctx, models.Transaction{
			AccountID:    account.ID,
			Type:         models.TransactionTypeDeposit,
			Amount:       amount,
			Description:  "Deposit of " + amount.StringFixed(2),
			BalanceAfter: account.Balance,
		})
		if err != nil {
			return err
		}

		res = Result{Account: account, Transaction: entry}
		return nil
	})

	return res, err
}

func (e *Engine) Withdraw(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (Result, error) {
	var res Result

	if err := validateAmount(amount); err != nil {
		return res, err
	}

	err := e.storage.InTx(ctx, func(st repository.Storage) error {
		account, err := st.Account().ApplyDelta(ctx, accountID, amount.Neg())
		if err != nil {
			return err
		}

		entry, err := st.Ledger().Append(ctx, models.Transaction{
			AccountID:    account.ID,
			Type:         models.TransactionTypeWithdraw,
			Amount:       amount,
			Description:  "Withdrawal of " + amount.StringFixed(2),
			BalanceAfter: account.Balance,
		})
		if err != nil {
			return err
		}

		res = Result{Account: account, Transaction: entry}
		return nil
	})

	return res, err
}

// Transfer moves amount from the sender to the recipient resolved by
// key (email or account number). Preconditions are checked in a fixed
// order so the first failing one always wins: amount, recipient
// resolution, self transfer, recipient blocked, sufficient funds.
// The debit, the credit and both ledger entries commit atomically; any
// failure after the debit rolls everything back.
func (e *Engine) Transfer(ctx context.Context, senderID uuid.UUID, recipientKey string, amount decimal.Decimal) (Result, error) {
	var res Result

	if err := validateAmount(amount); err != nil {
		return res, err
	}

	err := e.storage.InTx(ctx, func(st repository.Storage) error {
		recipient, err := resolveRecipient(ctx, st, recipientKey)
		if err != nil {
			return err
		}

		if senderID == recipient.ID {
			return apperrors.ErrSelfTransfer
		}
		if recipient.Blocked {
			return apperrors.ErrRecipientBlocked
		}

		// Both rows locked in id order before either balance moves
		if err := st.Account().LockAccounts(ctx, senderID, recipient.ID); err != nil {
			return err
		}

		// The blocked flag may have changed between the unlocked lookup
		// and the lock; the locked row decides
		recipient, err = st.Account().GetAccount(ctx, recipient.ID)
		if err != nil {
			return err
		}
		if recipient.Blocked {
			return apperrors.ErrRecipientBlocked
		}

		sender, err := st.Account().ApplyDelta(ctx, senderID, amount.Neg())
		if err != nil {
			return err
		}

		recipient, err = st.Account().ApplyDelta(ctx, recipient.ID, amount)
		if err != nil {
			return err
		}

		// Both sides of the pair share one timestamp
		now := time.Now()

		sent, err := st.Ledger().Append(ctx, models.Transaction{
			CreatedAt:      now,
			AccountID:      sender.ID,
			Type:           models.TransactionTypeTransferSent,
			Amount:         amount,
			CounterpartyID: &recipient.ID,
			Description:    "Transfer to " + recipient.Name,
			BalanceAfter:   sender.Balance,
		})
		if err != nil {
			return err
		}

		_, err = st.Ledger().Append(ctx, models.Transaction{
			CreatedAt:      now,
			AccountID:      recipient.ID,
			Type:           models.TransactionTypeTransferReceived,
			Amount:         amount,
			CounterpartyID: &sender.ID,
			Description:    "Transfer from " + sender.Name,
			BalanceAfter:   recipient.Balance,
		})
		if err != nil {
			return err
		}

		res = Result{Account: sender, Transaction: sent}
		return nil
	})

	return res, err
}

func (e *Engine) Balance(ctx context.Context, accountID uuid.UUID) (models.Account, error) {
	return e.storage.Account().GetAccount(ctx, accountID)
}

func (e *Engine) History(ctx context.Context, accountID uuid.UUID, page int, limit int) ([]models.Transaction, models.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	var items []models.Transaction
	var pagination models.Pagination

	// One read snapshot so the list and the count agree with each other
	err := e.storage.InReadTx(ctx, func(st repository.Storage) error {
		var err error
		items, err = st.Ledger().ListForAccount(ctx, accountID, limit, (page-1)*limit)
		if err != nil {
			return err
		}

		count, err := st.Ledger().CountForAccount(ctx, accountID)
		if err != nil {
			return err
		}

		pagination = models.NewPagination(page, limit, count)
		return nil
	})

	return items, pagination, err
}

// Amounts are decimal currency values with at most two decimal places;
// anything finer has no exact minor-unit meaning and is rejected
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return apperrors.ErrInvalidAmount
	}
	return nil
}

func resolveRecipient(ctx context.Context, st repository.Storage, key string) (models.Account, error) {
	account, err := st.Account().GetAccountByEmail(ctx, key)
	if errors.Is(err, apperrors.ErrAccountNotFound) {
		account, err = st.Account().GetAccountByNumber(ctx, key)
	}

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, apperrors.ErrAccountNotFound):
		return account, apperrors.ErrRecipientNotFound
	default:
		return account, fmt.Errorf("recipient lookup failed. Err: %w", err)
	}
}
