package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TransactionTypeDeposit          = "deposit"
	TransactionTypeWithdraw         = "withdraw"
	TransactionTypeTransferSent     = "transfer_sent"
	TransactionTypeTransferReceived = "transfer_received"
)

// Transaction is a single ledger entry. Entries are append only: once
// stored no field may change.
//
// Seq is assigned by the ledger itself and grows monotonically, so the
// total order of entries does not depend on clock resolution. History is
// ordered by CreatedAt with Seq as tiebreak.
type Transaction struct {
	ID        uuid.UUID
	Seq       int64
	CreatedAt time.Time
	AccountID uuid.UUID
	Type      string
	Amount    decimal.Decimal

	// Set only on transfer_sent and transfer_received entries
	CounterpartyID *uuid.UUID

	Description  string
	BalanceAfter decimal.Decimal
}
