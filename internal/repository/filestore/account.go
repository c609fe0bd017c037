package filestore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vshumov/minibank/internal/apperrors"
	"github.com/vshumov/minibank/internal/models"
	"github.com/vshumov/minibank/internal/repository"
)

type accountRepo struct {
	s *Store
}

func (r *accountRepo) CreateAccount(ctx context.Context, arg repository.CreateAccountParams) (models.Account, error) {
	r.s.lock()
	defer r.s.unlock()

	st := r.s.st
	if _, ok := st.byEmail[arg.Email]; ok {
		return models.Account{}, apperrors.ErrAccountAlreadyExists
	}
	if _, ok := st.byNumber[arg.AccountNumber]; ok {
		return models.Account{}, apperrors.ErrAccountAlreadyExists
	}

	role := arg.Role
	if role == "" {
		role = models.RoleUser
	}

	account := models.Account{
		ID:             uuid.New(),
		CreatedAt:      time.Now(),
		Name:           arg.Name,
		Email:          arg.Email,
		HashedPassword: arg.HashedPassword,
		AccountNumber:  arg.AccountNumber,
		Role:           role,
		Balance:        decimal.Zero,
	}

	err := r.s.update(func(st *state) error {
		a := account
		st.accounts[a.ID] = &a
		st.byEmail[a.Email] = a.ID
		st.byNumber[a.AccountNumber] = a.ID
		return nil
	})
	if err != nil {
		return models.Account{}, err
	}

	return account, nil
}

func (r *accountRepo) GetAccount(ctx context.Context, accountID uuid.UUID) (models.Account, error) {
	r.s.lock()
	defer r.s.unlock()

	a, ok := r.s.st.accounts[accountID]
	if !ok {
		return models.Account{}, apperrors.ErrAccountNotFound
	}
	return *a, nil
}

func (r *accountRepo) GetAccountByEmail(ctx context.Context, email string) (models.Account, error) {
	r.s.lock()
	defer r.s.unlock()

	id, ok := r.s.st.byEmail[email]
	if !ok {
		return models.Account{}, apperrors.ErrAccountNotFound
	}
	return *r.s.st.accounts[id], nil
}

func (r *accountRepo) GetAccountByNumber(ctx context.Context, number string) (models.Account, error) {
	r.s.lock()
	defer r.s.unlock()

	id, ok := r.s.st.byNumber[number]
	if !ok {
		return models.Account{}, apperrors.ErrAccountNotFound
	}
	return *r.s.st.accounts[id], nil
}

// The store-wide mutex already serializes writers, so locking here only
// verifies the accounts exist
func (r *accountRepo) LockAccounts(ctx context.Context, accountIDs ...uuid.UUID) error {
	r.s.lock()
	defer r.s.unlock()

	for _, id := range accountIDs {
		if _, ok := r.s.st.accounts[id]; !ok {
			return apperrors.ErrAccountNotFound
		}
	}
	return nil
}

func (r *accountRepo) ApplyDelta(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) (models.Account, error) {
	r.s.lock()
	defer r.s.unlock()

	a, ok := r.s.st.accounts[accountID]
	if !ok {
		return models.Account{}, apperrors.ErrAccountNotFound
	}

	switch {
	case a.Blocked && delta.IsNegative():
		return *a, apperrors.ErrAccountBlocked
	case a.Balance.Add(delta).IsNegative():
		return *a, apperrors.ErrInsufficientFunds
	}

	err := r.s.update(func(st *state) error {
		acc := st.accounts[accountID]
		acc.Balance = acc.Balance.Add(delta)
		return nil
	})
	if err != nil {
		return models.Account{}, err
	}

	return *r.s.st.accounts[accountID], nil
}

func (r *accountRepo) SetBlocked(ctx context.Context, accountID uuid.UUID, blocked bool) (models.Account, error) {
	r.s.lock()
	defer r.s.unlock()

	a, ok := r.s.st.accounts[accountID]
	if !ok {
		return models.Account{}, apperrors.ErrAccountNotFound
	}
	if a.IsAdmin() {
		return *a, apperrors.ErrForbidden
	}

	err := r.s.update(func(st *state) error {
		st.accounts[accountID].Blocked = blocked
		return nil
	})
	if err != nil {
		return models.Account{}, err
	}

	return *r.s.st.accounts[accountID], nil
}

func (r *accountRepo) ListAccounts(ctx context.Context, role string, limit int, offset int) ([]models.Account, error) {
	r.s.lock()
	defer r.s.unlock()

	accounts := make([]models.Account, 0, len(r.s.st.accounts))
	for _, a := range r.s.st.accounts {
		if a.Role == role {
			accounts = append(accounts, *a)
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		if !accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].CreatedAt.After(accounts[j].CreatedAt)
		}
		return accounts[i].ID.String() < accounts[j].ID.String()
	})

	return page(accounts, limit, offset), nil
}

func (r *accountRepo) CountAccounts(ctx context.Context, role string) (int64, error) {
	r.s.lock()
	defer r.s.unlock()

	var count int64
	for _, a := range r.s.st.accounts {
		if a.Role == role {
			count++
		}
	}
	return count, nil
}

func (r *accountRepo) CountBlocked(ctx context.Context, role string) (int64, error) {
	r.s.lock()
	defer r.s.unlock()

	var count int64
	for _, a := range r.s.st.accounts {
		if a.Role == role && a.Blocked {
			count++
		}
	}
	return count, nil
}

func (r *accountRepo) TotalBalance(ctx context.Context, role string) (decimal.Decimal, error) {
	r.s.lock()
	defer r.s.unlock()

	total := decimal.Zero
	for _, a := range r.s.st.accounts {
		if a.Role == role {
			total = total.Add(a.Balance)
		}
	}
	return total, nil
}

func page[T any](items []T, limit int, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
