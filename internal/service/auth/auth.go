package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/vshumov/minibank/internal/apperrors"
	"github.com/vshumov/minibank/internal/models"
	"github.com/vshumov/minibank/internal/repository"
	"github.com/vshumov/minibank/internal/service/auth/tokenmanager"
)

// Account numbers are random 10 digit strings; on the unlikely
// collision registration retries with a fresh one
const (
	accountNumberLen      = 10
	accountNumberAttempts = 3
)

type Config struct {
	// Hasher used during registration and login
	// Default bcrypt hasher is used if not set
	Hasher PasswordHasher
}

// Auth service: the access gate. Resolves credentials to an account
// identity; everything after that trusts the resolved identity.
type AuthService struct {
	// Manager to issue token pairs (access and refresh)
	token *tokenmanager.TokenManager

	// hasher to hash or compare user passwords
	hasher PasswordHasher

	// Repository to access long term data
	storage repository.Storage
}

func NewService(cfg Config, token *tokenmanager.TokenManager, storage repository.Storage) (*AuthService, error) {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = DefaultHasher
	}

	if token == nil || storage == nil {
		return nil, errors.New("token manager and storage must not be nil")
	}

	return &AuthService{
		token:   token,
		hasher:  hasher,
		storage: storage,
	}, nil
}

func (s *AuthService) Register(ctx context.Context, name string, email string, password string) (models.Account, models.TokenPair, error) {
	var pair models.TokenPair

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.Account{}, pair, fmt.Errorf("can't use this as password. Err: %w", err)
	}

	var account models.Account
	for attempt := 0; attempt < accountNumberAttempts; attempt++ {
		number, err := generateAccountNumber()
		if err != nil {
			return account, pair, fmt.Errorf("error while generating account number. Err: %w", err)
		}

		account, err = s.storage.Account().CreateAccount(ctx, repository.CreateAccountParams{
			Name:           name,
			Email:          email,
			HashedPassword: hash,
			AccountNumber:  number,
			Role:           models.RoleUser,
		})

		if errors.Is(err, apperrors.ErrAccountAlreadyExists) {
			// Retry with a fresh number unless the email itself is taken
			if _, emailErr := s.storage.Account().GetAccountByEmail(ctx, email); emailErr == nil {
				return account, pair, apperrors.ErrAccountAlreadyExists
			}
			continue
		}
		if err != nil {
			return account, pair, fmt.Errorf("can't create account. Err: %w", err)
		}

		pair, err = s.token.GeneratePair(ctx, account)
		if err != nil {
			return account, pair, fmt.Errorf("token could not be generated. Err: %w", err)
		}

		return account, pair, nil
	}

	return account, pair, fmt.Errorf("can't create account: %w", apperrors.ErrAccountAlreadyExists)
}

func (s *AuthService) Login(ctx context.Context, email string, password string) (models.Account, models.TokenPair, error) {
	var pair models.TokenPair

	account, err := s.storage.Account().GetAccountByEmail(ctx, email)
	if err != nil {
		return account, pair, apperrors.ErrUnauthenticated
	}

	if err := s.hasher.Compare(account.HashedPassword, password); err != nil {
		return account, pair, apperrors.ErrUnauthenticated
	}

	pair, err = s.token.GeneratePair(ctx, account)
	if err != nil {
		return account, pair, fmt.Errorf("token could not be generated. Err: %w", err)
	}

	return account, pair, nil
}

func (s *AuthService) Refresh(ctx context.Context, refresh string) (models.TokenPair, error) {
	var pair models.TokenPair

	token, err := s.token.UseRefresh(ctx, refresh)
	if err != nil {
		return pair, err
	}

	account, err := s.storage.Account().GetAccount(ctx, token.AccountID)
	if err != nil {
		return pair, fmt.Errorf("token owner not found. Err: %w", err)
	}

	pair, err = s.token.GeneratePair(ctx, account)
	if err != nil {
		return pair, fmt.Errorf("token could not be generated. Err: %w", err)
	}

	return pair, nil
}

// Auth resolves the bearer token from the request to an account.
// Every failure is apperrors.ErrUnauthenticated: the caller never
// learns whether the token or the account was the problem.
func (s *AuthService) Auth(ctx context.Context, r *http.Request) (models.Account, error) {
	header := r.Header.Get("Authorization")
	access, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || access == "" {
		return models.Account{}, apperrors.ErrUnauthenticated
	}

	accountID, err := s.token.ParseAccess(ctx, access)
	if err != nil {
		return models.Account{}, apperrors.ErrUnauthenticated
	}

	account, err := s.storage.Account().GetAccount(ctx, accountID)
	if err != nil {
		return models.Account{}, apperrors.ErrUnauthenticated
	}

	return account, nil
}

func generateAccountNumber() (string, error) {
	b := make([]byte, accountNumberLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	for i := range b {
		b[i] = '0' + b[i]%10
	}
	return string(b), nil
}
