package admin

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vshumov/minibank/internal/models"
	"github.com/vshumov/minibank/internal/repository"
)

const (
	defaultUsersLimit        = 10
	defaultTransactionsLimit = 20
	maxListLimit             = 100

	recentWindow = 24 * time.Hour
)

// Read side of the admin area plus account blocking. Never moves money.
type Service struct {
	// Repository to access long term data
	storage repository.Storage
}

func NewService(storage repository.Storage) *Service {
	return &Service{storage: storage}
}

type Stats struct {
	TotalUsers         int64
	ActiveUsers        int64
	BlockedUsers       int64
	TotalTransactions  int64
	RecentTransactions int64
	TotalBalance       decimal.Decimal
}

func (s *Service) ListUsers(ctx context.Context, page int, limit int) ([]models.Account, models.Pagination, error) {
	page, limit = clampPage(page, limit, defaultUsersLimit)

	var users []models.Account
	var pagination models.Pagination

	err := s.storage.InReadTx(ctx, func(st repository.Storage) error {
		var err error
		users, err = st.Account().ListAccounts(ctx, models.RoleUser, limit, (page-1)*limit)
		if err != nil {
			return err
		}

		count, err := st.Account().CountAccounts(ctx, models.RoleUser)
		if err != nil {
			return err
		}

		pagination = models.NewPagination(page, limit, count)
		return nil
	})

	return users, pagination, err
}

func (s *Service) ListTransactions(ctx context.Context, page int, limit int) ([]models.Transaction, models.Pagination, error) {
	page, limit = clampPage(page, limit, defaultTransactionsLimit)

	var transactions []models.Transaction
	var pagination models.Pagination

	err := s.storage.InReadTx(ctx, func(st repository.Storage) error {
		var err error
		transactions, err = st.Ledger().ListAll(ctx, limit, (page-1)*limit)
		if err != nil {
			return err
		}

		count, err := st.Ledger().CountAll(ctx)
		if err != nil {
			return err
		}

		pagination = models.NewPagination(page, limit, count)
		return nil
	})

	return transactions, pagination, err
}

// SetBlocked toggles the blocked flag. The store refuses admin targets
// with apperrors.ErrForbidden.
func (s *Service) SetBlocked(ctx context.Context, accountID uuid.UUID, blocked bool) (models.Account, error) {
	var account models.Account

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		var err error
		account, err = st.Account().SetBlocked(ctx, accountID, blocked)
		return err
	})

	return account, err
}

// Stats are computed from one read snapshot so the totals reconcile
// even while transfers run concurrently
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var stats Stats

	err := s.storage.InReadTx(ctx, func(st repository.Storage) error {
		var err error

		if stats.TotalUsers, err = st.Account().CountAccounts(ctx, models.RoleUser); err != nil {
			return err
		}
		if stats.BlockedUsers, err = st.Account().CountBlocked(ctx, models.RoleUser); err != nil {
			return err
		}
		if stats.TotalTransactions, err = st.Ledger().CountAll(ctx); err != nil {
			return err
		}
		if stats.RecentTransactions, err = st.Ledger().CountSince(ctx, time.Now().Add(-recentWindow)); err != nil {
			return err
		}
		if stats.TotalBalance, err = st.Account().TotalBalance(ctx, models.RoleUser); err != nil {
			return err
		}

		stats.ActiveUsers = stats.TotalUsers - stats.BlockedUsers
		return nil
	})

	return stats, err
}

func clampPage(page int, limit int, def int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = def
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return page, limit
}
