package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vshumov/minibank/internal/apperrors"
	"github.com/vshumov/minibank/internal/handlers/render"
	"github.com/vshumov/minibank/internal/logger"
	"github.com/vshumov/minibank/internal/models"
)

type userItem struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	AccountNumber string    `json:"accountNumber"`
	Balance       float64   `json:"balance"`
	IsBlocked     bool      `json:"isBlocked"`
	CreatedAt     time.Time `json:"createdAt"`
}

func toUserItem(a models.Account) userItem {
	balance, _ := a.Balance.Float64()

	return userItem{
		ID:            a.ID,
		Name:          a.Name,
		Email:         a.Email,
		AccountNumber: a.AccountNumber,
		Balance:       balance,
		IsBlocked:     a.Blocked,
		CreatedAt:     a.CreatedAt,
	}
}

func handleAdminUsers(adminService adminService, l logger.Logger) http.Handler {
	type response struct {
		Users      []userItem     `json:"users"`
		Pagination paginationItem `json:"pagination"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, limit := pageParams(r)
		accounts, pagination, err := adminService.ListUsers(r.Context(), page, limit)
		if err != nil {
			l.Error("Failed to list users", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		users := make([]userItem, 0, len(accounts))
		for _, a := range accounts {
			users = append(users, toUserItem(a))
		}

		render.JSON(w, response{Users: users, Pagination: toPaginationItem(pagination)})
	})
}

func handleAdminTransactions(adminService adminService, l logger.Logger) http.Handler {
	type item struct {
		transactionItem
		AccountID uuid.UUID `json:"accountId"`
	}
	type response struct {
		Transactions []item         `json:"transactions"`
		Pagination   paginationItem `json:"pagination"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, limit := pageParams(r)
		entries, pagination, err := adminService.ListTransactions(r.Context(), page, limit)
		if err != nil {
			l.Error("Failed to list transactions", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		transactions := make([]item, 0, len(entries))
		for _, t := range entries {
			transactions = append(transactions, item{
				transactionItem: toTransactionItem(t),
				AccountID:       t.AccountID,
			})
		}

		render.JSON(w, response{Transactions: transactions, Pagination: toPaginationItem(pagination)})
	})
}

func handleAdminBlock(adminService adminService, l logger.Logger) http.Handler {
	type request struct {
		IsBlocked *bool `json:"isBlocked" validate:"required"`
	}
	type response struct {
		Message string   `json:"message"`
		User    userItem `json:"user"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, err := uuid.Parse(r.PathValue("accountID"))
		if err != nil {
			render.ServiceError(w, "Account not found", http.StatusNotFound)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		account, err := adminService.SetBlocked(r.Context(), accountID, *data.IsBlocked)

		switch {
		case err == nil:
			message := "User unblocked successfully"
			if account.Blocked {
				message = "User blocked successfully"
			}
			render.JSON(w, response{Message: message, User: toUserItem(account)})
		case errors.Is(err, apperrors.ErrAccountNotFound):
			render.ServiceError(w, "Account not found", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrForbidden):
			render.ServiceError(w, "Cannot block admin accounts", http.StatusForbidden)
		default:
			l.Error("Failed to set blocked flag", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleAdminStats(adminService adminService, l logger.Logger) http.Handler {
	type response struct {
		TotalUsers         int64   `json:"totalUsers"`
		ActiveUsers        int64   `json:"activeUsers"`
		BlockedUsers       int64   `json:"blockedUsers"`
		TotalTransactions  int64   `json:"totalTransactions"`
		RecentTransactions int64   `json:"recentTransactions"`
		TotalBalance       float64 `json:"totalBalance"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := adminService.Stats(r.Context())
		if err != nil {
			l.Error("Failed to get stats", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		totalBalance, _ := stats.TotalBalance.Float64()
		render.JSON(w, response{
			TotalUsers:         stats.TotalUsers,
			ActiveUsers:        stats.ActiveUsers,
			BlockedUsers:       stats.BlockedUsers,
			TotalTransactions:  stats.TotalTransactions,
			RecentTransactions: stats.RecentTransactions,
			TotalBalance:       totalBalance,
		})
	})
}
