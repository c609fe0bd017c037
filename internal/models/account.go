package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type Account struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Name           string
	Email          string
	HashedPassword string
	AccountNumber  string
	Role           string
	Blocked        bool
	Balance        decimal.Decimal
}

func (a Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}
