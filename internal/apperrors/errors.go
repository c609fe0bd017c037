package apperrors

import (
	"errors"
)

var (
	ErrAccountAlreadyExists = errors.New("account already exists")
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountBlocked       = errors.New("account is blocked")

	ErrInvalidAmount     = errors.New("amount is invalid")
	ErrInsufficientFunds = errors.New("insufficient funds")

	ErrRecipientNotFound = errors.New("recipient not found")
	ErrRecipientBlocked  = errors.New("recipient is blocked")
	ErrSelfTransfer      = errors.New("transfer to the same account")

	ErrForbidden       = errors.New("operation forbidden")
	ErrUnauthenticated = errors.New("not authenticated")

	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenIsUsed   = errors.New("refresh token is used")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")
)
