package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vshumov/minibank/internal/repository"
)

type Storage struct {
	db DBTX
}

func NewStorage(db DBTX) repository.Storage {
	return &Storage{db: db}
}

func (s *Storage) Account() repository.AccountRepo {
	return &AccountRepo{db: s.db}
}

func (s *Storage) Ledger() repository.LedgerRepo {
	return &LedgerRepo{db: s.db}
}

func (s *Storage) RefreshToken() repository.RefreshTokenRepo {
	return &RefreshTokenRepo{db: s.db}
}

func (s *Storage) InTx(ctx context.Context, fn func(repository.Storage) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("db tx error: %w", err)
	}

	defer func() {
		switch err {
		case nil:
			err = tx.Commit(ctx)
		default:
			_ = tx.Rollback(ctx)
		}
	}()

	err = fn(NewStorage(tx))

	return err
}

// txBeginner is satisfied by pgxpool.Pool and pgx.Conn but not by
// pgx.Tx: a running transaction cannot pick a new isolation level
type txBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// InReadTx runs fn inside a REPEATABLE READ read-only transaction, so
// every query in fn sees the same snapshot. The default READ COMMITTED
// level gives each statement a fresh snapshot, which lets a list and
// its count disagree when writes land in between. When the storage
// already operates inside a transaction fn shares its snapshot.
func (s *Storage) InReadTx(ctx context.Context, fn func(repository.Storage) error) (err error) {
	beginner, ok := s.db.(txBeginner)
	if !ok {
		return fn(s)
	}

	tx, err := beginner.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return fmt.Errorf("db tx error: %w", err)
	}

	defer func() {
		switch err {
		case nil:
			err = tx.Commit(ctx)
		default:
			_ = tx.Rollback(ctx)
		}
	}()

	err = fn(NewStorage(tx))

	return err
}
