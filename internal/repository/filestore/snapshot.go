package filestore

import (
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vshumov/minibank/internal/models"
)

// On-disk document: one structure holding every user and transaction,
// read and replaced as a unit
type snapshotDoc struct {
	Seq          int64            `json:"seq"`
	Users        []persistAccount `json:"users"`
	Transactions []persistEntry   `json:"transactions"`
	Tokens       []persistToken   `json:"refreshTokens,omitempty"`
}

type persistAccount struct {
	ID            uuid.UUID       `json:"id"`
	CreatedAt     time.Time       `json:"createdAt"`
	Name          string          `json:"name"`
	Email         string          `json:"email"`
	Password      string          `json:"password"`
	AccountNumber string          `json:"accountNumber"`
	Role          string          `json:"role"`
	Blocked       bool            `json:"isBlocked"`
	Balance       decimal.Decimal `json:"balance"`
}

type persistEntry struct {
	ID             uuid.UUID       `json:"id"`
	Seq            int64           `json:"seq"`
	CreatedAt      time.Time       `json:"createdAt"`
	AccountID      uuid.UUID       `json:"accountId"`
	Type           string          `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	CounterpartyID *uuid.UUID      `json:"counterpartyId,omitempty"`
	Description    string          `json:"description,omitempty"`
	BalanceAfter   decimal.Decimal `json:"balanceAfter"`
}

type persistToken struct {
	ID        uuid.UUID  `json:"id"`
	AccountID uuid.UUID  `json:"accountId"`
	Token     string     `json:"token"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
}

func snapshotFromState(st *state) snapshotDoc {
	doc := snapshotDoc{
		Seq:          st.seq,
		Users:        make([]persistAccount, 0, len(st.accounts)),
		Transactions: make([]persistEntry, 0, len(st.entries)),
	}

	for _, a := range st.accounts {
		doc.Users = append(doc.Users, persistAccount{
			ID:            a.ID,
			CreatedAt:     a.CreatedAt,
			Name:          a.Name,
			Email:         a.Email,
			Password:      a.HashedPassword,
			AccountNumber: a.AccountNumber,
			Role:          a.Role,
			Blocked:       a.Blocked,
			Balance:       a.Balance,
		})
	}
	sort.Slice(doc.Users, func(i, j int) bool { return doc.Users[i].ID.String() < doc.Users[j].ID.String() })

	for _, t := range st.entries {
		doc.Transactions = append(doc.Transactions, persistEntry{
			ID:             t.ID,
			Seq:            t.Seq,
			CreatedAt:      t.CreatedAt,
			AccountID:      t.AccountID,
			Type:           t.Type,
			Amount:         t.Amount,
			CounterpartyID: t.CounterpartyID,
			Description:    t.Description,
			BalanceAfter:   t.BalanceAfter,
		})
	}

	for _, t := range st.tokens {
		doc.Tokens = append(doc.Tokens, persistToken{
			ID:        t.ID,
			AccountID: t.AccountID,
			Token:     t.Token,
			CreatedAt: t.CreatedAt,
			ExpiresAt: t.ExpiresAt,
			UsedAt:    t.UsedAt,
		})
	}
	sort.Slice(doc.Tokens, func(i, j int) bool { return doc.Tokens[i].Token < doc.Tokens[j].Token })

	return doc
}

func (doc snapshotDoc) toState() *state {
	st := newState()
	st.seq = doc.Seq

	for _, u := range doc.Users {
		account := models.Account{
			ID:             u.ID,
			CreatedAt:      u.CreatedAt,
			Name:           u.Name,
			Email:          u.Email,
			HashedPassword: u.Password,
			AccountNumber:  u.AccountNumber,
			Role:           u.Role,
			Blocked:        u.Blocked,
			Balance:        u.Balance,
		}
		st.accounts[account.ID] = &account
		st.byEmail[account.Email] = account.ID
		st.byNumber[account.AccountNumber] = account.ID
	}

	st.entries = make([]models.Transaction, 0, len(doc.Transactions))
	for _, e := range doc.Transactions {
		st.entries = append(st.entries, models.Transaction{
			ID:             e.ID,
			Seq:            e.Seq,
			CreatedAt:      e.CreatedAt,
			AccountID:      e.AccountID,
			Type:           e.Type,
			Amount:         e.Amount,
			CounterpartyID: e.CounterpartyID,
			Description:    e.Description,
			BalanceAfter:   e.BalanceAfter,
		})
	}
	sort.Slice(st.entries, func(i, j int) bool { return st.entries[i].Seq < st.entries[j].Seq })

	for _, t := range doc.Tokens {
		token := models.RefreshToken{
			ID:        t.ID,
			AccountID: t.AccountID,
			Token:     t.Token,
			CreatedAt: t.CreatedAt,
			ExpiresAt: t.ExpiresAt,
			UsedAt:    t.UsedAt,
		}
		st.tokens[token.Token] = &token
	}

	return st
}

func loadSnapshot(path string) (snapshotDoc, error) {
	var doc snapshotDoc

	f, err := os.Open(path)
	if err != nil {
		return doc, err
	}
	defer f.Close() // nolint:errcheck

	err = json.NewDecoder(f).Decode(&doc)
	return doc, err
}

// saveSnapshot writes to a temp file and renames it over the target, so
// a crash mid-write never corrupts the previous snapshot
func saveSnapshot(path string, doc snapshotDoc) error {
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		f.Close() // nolint:errcheck
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}
