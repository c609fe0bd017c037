package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vshumov/minibank/internal/handlers/middleware"
	"github.com/vshumov/minibank/internal/handlers/render"
	"github.com/vshumov/minibank/internal/handlers/userctx"
	"github.com/vshumov/minibank/internal/logger"
	"github.com/vshumov/minibank/internal/models"
	"github.com/vshumov/minibank/internal/service/admin"
	"github.com/vshumov/minibank/internal/service/transfer"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService authService,
	engine transferEngine,
	adminService adminService,
	logger logger.Logger,
) http.Handler {
	authMiddleware := middleware.AuthMiddleware(authService)
	withAuth := func(h http.Handler) http.Handler {
		return authMiddleware(h)
	}
	withAdmin := func(h http.Handler) http.Handler {
		return authMiddleware(requireAdmin(h))
	}

	apiauth := http.NewServeMux()
	apiauth.Handle("POST /register", handleRegister(authService, logger))
	apiauth.Handle("POST /login", handleLogin(authService, logger))
	apiauth.Handle("POST /refresh", handleRefresh(authService, logger))

	apiaccount := http.NewServeMux()
	apiaccount.Handle("GET /balance", handleBalance(engine, logger))
	apiaccount.Handle("POST /deposit", handleDeposit(engine, logger))
	apiaccount.Handle("POST /withdraw", handleWithdraw(engine, logger))
	apiaccount.Handle("POST /transfer", handleTransfer(engine, logger))
	apiaccount.Handle("GET /transactions", handleTransactions(engine, logger))

	apiadmin := http.NewServeMux()
	apiadmin.Handle("GET /users", handleAdminUsers(adminService, logger))
	apiadmin.Handle("GET /transactions", handleAdminTransactions(adminService, logger))
	apiadmin.Handle("PATCH /users/{accountID}/block", handleAdminBlock(adminService, logger))
	apiadmin.Handle("GET /stats", handleAdminStats(adminService, logger))

	root := http.NewServeMux()
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", apiauth))
	root.Handle("/api/account/", http.StripPrefix("/api/account", withAuth(apiaccount)))
	root.Handle("/api/admin/", http.StripPrefix("/api/admin", withAdmin(apiadmin)))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

// requireAdmin runs after the auth middleware and rejects everyone
// whose role is not admin
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := userctx.FromContext(r.Context())
		if !ok || !account.IsAdmin() {
			render.ServiceError(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type authService interface {
	// Register account with generated account number and zero balance
	// Has to return apperrors.ErrAccountAlreadyExists if email is taken
	Register(ctx context.Context, name string, email string, password string) (models.Account, models.TokenPair, error)

	// Login account with email and password
	// Has to return apperrors.ErrUnauthenticated on any credential failure
	Login(ctx context.Context, email string, password string) (models.Account, models.TokenPair, error)

	// Refresh tokens using refresh token
	// If token expired: has to return apperrors.ErrRefreshTokenExpired
	// If token not found: has to return apperrors.ErrRefreshTokenNotFound
	Refresh(ctx context.Context, refresh string) (models.TokenPair, error)

	// Get request and return account if it authenticated or error
	Auth(ctx context.Context, r *http.Request) (models.Account, error)
}

type transferEngine interface {
	Deposit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (transfer.Result, error)
	Withdraw(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (transfer.Result, error)
	Transfer(ctx context.Context, senderID uuid.UUID, recipientKey string, amount decimal.Decimal) (transfer.Result, error)
	Balance(ctx context.Context, accountID uuid.UUID) (models.Account, error)
	History(ctx context.Context, accountID uuid.UUID, page int, limit int) ([]models.Transaction, models.Pagination, error)
}

type adminService interface {
	ListUsers(ctx context.Context, page int, limit int) ([]models.Account, models.Pagination, error)
	ListTransactions(ctx context.Context, page int, limit int) ([]models.Transaction, models.Pagination, error)
	SetBlocked(ctx context.Context, accountID uuid.UUID, blocked bool) (models.Account, error)
	Stats(ctx context.Context) (admin.Stats, error)
}
