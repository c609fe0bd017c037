// Package filestore implements repository.Storage over a single JSON
// document. A global mutex serializes every operation: the file itself
// provides no locking, so correctness depends entirely on this
// discipline. Every mutation runs on a deep copy of the state which is
// swapped in only after the snapshot write succeeds, so a failed
// mutation leaves nothing behind, neither on disk nor in memory.
package filestore

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/vshumov/minibank/internal/models"
	"github.com/vshumov/minibank/internal/repository"
)

type state struct {
	seq      int64
	accounts map[uuid.UUID]*models.Account
	byEmail  map[string]uuid.UUID
	byNumber map[string]uuid.UUID
	entries  []models.Transaction
	tokens   map[string]*models.RefreshToken
}

func newState() *state {
	return &state{
		accounts: make(map[uuid.UUID]*models.Account),
		byEmail:  make(map[string]uuid.UUID),
		byNumber: make(map[string]uuid.UUID),
		tokens:   make(map[string]*models.RefreshToken),
	}
}

func (st *state) clone() *state {
	cp := newState()
	cp.seq = st.seq

	for id, a := range st.accounts {
		account := *a
		cp.accounts[id] = &account
	}
	for email, id := range st.byEmail {
		cp.byEmail[email] = id
	}
	for number, id := range st.byNumber {
		cp.byNumber[number] = id
	}
	cp.entries = make([]models.Transaction, len(st.entries))
	copy(cp.entries, st.entries)
	for key, t := range st.tokens {
		token := *t
		cp.tokens[key] = &token
	}

	return cp
}

type Store struct {
	mu   sync.Mutex
	path string // empty: in-memory only, nothing is persisted
	st   *state
	tx   bool
}

// New creates a store persisted at path. The file is loaded when it
// exists and created on first write. Empty path keeps the store purely
// in memory, which is what the unit tests use.
func New(path string) (*Store, error) {
	s := &Store{path: path, st: newState()}

	if path == "" {
		return s, nil
	}

	doc, err := loadSnapshot(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, err
	}

	s.st = doc.toState()
	return s, nil
}

func (s *Store) Account() repository.AccountRepo {
	return &accountRepo{s: s}
}

func (s *Store) Ledger() repository.LedgerRepo {
	return &ledgerRepo{s: s}
}

func (s *Store) RefreshToken() repository.RefreshTokenRepo {
	return &refreshTokenRepo{s: s}
}

func (s *Store) InTx(ctx context.Context, fn func(repository.Storage) error) error {
	if s.tx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&Store{path: s.path, st: work, tx: true}); err != nil {
		return err
	}

	return s.commit(work)
}

// InReadTx gives fn the same single-snapshot guarantee InTx gives
// writers: the mutex is held for the duration and fn reads a private
// copy, so a multi-query aggregation can never interleave with a
// concurrent mutation.
func (s *Store) InReadTx(ctx context.Context, fn func(repository.Storage) error) error {
	if s.tx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return fn(&Store{path: s.path, st: s.st.clone(), tx: true})
}

// lock is a no-op inside InTx: the transactional view is only reachable
// from the goroutine that already holds the parent mutex
func (s *Store) lock() {
	if !s.tx {
		s.mu.Lock()
	}
}

func (s *Store) unlock() {
	if !s.tx {
		s.mu.Unlock()
	}
}

// commit persists the working copy and swaps it in only after the
// write succeeds, so a failed write leaves the live state untouched.
// Caller must hold the lock.
func (s *Store) commit(work *state) error {
	if s.path != "" {
		if err := saveSnapshot(s.path, snapshotFromState(work)); err != nil {
			return err
		}
	}

	s.st = work
	return nil
}

// update applies a single mutation through the same clone-then-commit
// path InTx uses. Inside a transaction the callback works on the
// transactional view directly and the outer InTx owns the commit.
// Caller must hold the lock.
func (s *Store) update(fn func(st *state) error) error {
	if s.tx {
		return fn(s.st)
	}

	work := s.st.clone()
	if err := fn(work); err != nil {
		return err
	}

	return s.commit(work)
}
