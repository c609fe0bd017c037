package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vshumov/minibank/internal/apperrors"
	"github.com/vshumov/minibank/internal/handlers/render"
	"github.com/vshumov/minibank/internal/handlers/userctx"
	"github.com/vshumov/minibank/internal/logger"
	"github.com/vshumov/minibank/internal/models"
)

type transactionItem struct {
	ID             uuid.UUID  `json:"id"`
	Type           string     `json:"type"`
	Amount         float64    `json:"amount"`
	CounterpartyID *uuid.UUID `json:"counterpartyId,omitempty"`
	Description    string     `json:"description,omitempty"`
	BalanceAfter   float64    `json:"balanceAfter"`
	CreatedAt      time.Time  `json:"createdAt"`
}

func toTransactionItem(t models.Transaction) transactionItem {
	amount, _ := t.Amount.Float64()
	balanceAfter, _ := t.BalanceAfter.Float64()

	return transactionItem{
		ID:             t.ID,
		Type:           t.Type,
		Amount:         amount,
		CounterpartyID: t.CounterpartyID,
		Description:    t.Description,
		BalanceAfter:   balanceAfter,
		CreatedAt:      t.CreatedAt,
	}
}

type paginationItem struct {
	Current int   `json:"current"`
	Pages   int   `json:"pages"`
	Count   int64 `json:"count"`
	HasNext bool  `json:"hasNext"`
	HasPrev bool  `json:"hasPrev"`
}

func toPaginationItem(p models.Pagination) paginationItem {
	return paginationItem{
		Current: p.Current,
		Pages:   p.Pages,
		Count:   p.Count,
		HasNext: p.HasNext,
		HasPrev: p.HasPrev,
	}
}

func handleBalance(engine transferEngine, l logger.Logger) http.Handler {
	type response struct {
		Balance       float64 `json:"balance"`
		AccountNumber string  `json:"accountNumber"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		account, err := engine.Balance(r.Context(), account.ID)
		if err != nil {
			l.Error("Failed to get balance", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		balance, _ := account.Balance.Float64()
		render.JSON(w, response{Balance: balance, AccountNumber: account.AccountNumber})
	})
}

func handleDeposit(engine transferEngine, l logger.Logger) http.Handler {
	type request struct {
		Amount decimal.Decimal `json:"amount" validate:"required"`
	}
	type response struct {
		Message     string          `json:"message"`
		Balance     float64         `json:"balance"`
		Transaction transactionItem `json:"transaction"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		res, err := engine.Deposit(r.Context(), account.ID, data.Amount)
		if err != nil {
			renderMoneyError(w, l, "deposit", err)
			return
		}

		balance, _ := res.Account.Balance.Float64()
		render.JSON(w, response{
			Message:     "Deposit successful",
			Balance:     balance,
			Transaction: toTransactionItem(res.Transaction),
		})
	})
}

func handleWithdraw(engine transferEngine, l logger.Logger) http.Handler {
	type request struct {
		Amount decimal.Decimal `json:"amount" validate:"required"`
	}
	type response struct {
		Message     string          `json:"message"`
		Balance     float64         `json:"balance"`
		Transaction transactionItem `json:"transaction"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		res, err := engine.Withdraw(r.Context(), account.ID, data.Amount)
		if err != nil {
			renderMoneyError(w, l, "withdrawal", err)
			return
		}

		balance, _ := res.Account.Balance.Float64()
		render.JSON(w, response{
			Message:     "Withdrawal successful",
			Balance:     balance,
			Transaction: toTransactionItem(res.Transaction),
		})
	})
}

func handleTransfer(engine transferEngine, l logger.Logger) http.Handler {
	type request struct {
		Amount    decimal.Decimal `json:"amount" validate:"required"`
		Recipient string          `json:"recipient" validate:"required"`
	}
	type response struct {
		Message     string          `json:"message"`
		Balance     float64         `json:"balance"`
		Transaction transactionItem `json:"transaction"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		res, err := engine.Transfer(r.Context(), account.ID, data.Recipient, data.Amount)
		if err != nil {
			renderMoneyError(w, l, "transfer", err)
			return
		}

		balance, _ := res.Account.Balance.Float64()
		render.JSON(w, response{
			Message:     "Transfer successful",
			Balance:     balance,
			Transaction: toTransactionItem(res.Transaction),
		})
	})
}

func handleTransactions(engine transferEngine, l logger.Logger) http.Handler {
	type response struct {
		Transactions []transactionItem `json:"transactions"`
		Pagination   paginationItem    `json:"pagination"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		page, limit := pageParams(r)
		items, pagination, err := engine.History(r.Context(), account.ID, page, limit)
		if err != nil {
			l.Error("Failed to list transactions", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		transactions := make([]transactionItem, 0, len(items))
		for _, t := range items {
			transactions = append(transactions, toTransactionItem(t))
		}

		render.JSON(w, response{Transactions: transactions, Pagination: toPaginationItem(pagination)})
	})
}

// Map engine errors to user-visible statuses; the engine itself only
// classifies
func renderMoneyError(w http.ResponseWriter, l logger.Logger, op string, err error) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidAmount):
		render.ServiceError(w, "Invalid amount", http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrSelfTransfer):
		render.ServiceError(w, "Cannot transfer to yourself", http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrInsufficientFunds):
		render.ServiceError(w, "Insufficient funds", http.StatusPaymentRequired)
	case errors.Is(err, apperrors.ErrAccountBlocked):
		render.ServiceError(w, "Account is blocked", http.StatusForbidden)
	case errors.Is(err, apperrors.ErrRecipientBlocked):
		render.ServiceError(w, "Recipient account is blocked", http.StatusForbidden)
	case errors.Is(err, apperrors.ErrRecipientNotFound):
		render.ServiceError(w, "Recipient not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrAccountNotFound):
		render.ServiceError(w, "Account not found", http.StatusNotFound)
	default:
		l.Error("Operation failed", "op", op, "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func pageParams(r *http.Request) (page int, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	return page, limit
}
