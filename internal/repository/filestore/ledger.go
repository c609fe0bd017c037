package filestore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vshumov/minibank/internal/models"
)

type ledgerRepo struct {
	s *Store
}

func (r *ledgerRepo) Append(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	r.s.lock()
	defer r.s.unlock()

	t.ID = uuid.New()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	err := r.s.update(func(st *state) error {
		st.seq++
		t.Seq = st.seq
		st.entries = append(st.entries, t)
		return nil
	})
	if err != nil {
		return models.Transaction{}, err
	}

	return t, nil
}

func (r *ledgerRepo) ListForAccount(ctx context.Context, accountID uuid.UUID, limit int, offset int) ([]models.Transaction, error) {
	r.s.lock()
	defer r.s.unlock()

	entries := make([]models.Transaction, 0)
	for _, t := range r.s.st.entries {
		if t.AccountID == accountID {
			entries = append(entries, t)
		}
	}

	return page(sortHistory(entries), limit, offset), nil
}

func (r *ledgerRepo) ListAll(ctx context.Context, limit int, offset int) ([]models.Transaction, error) {
	r.s.lock()
	defer r.s.unlock()

	entries := make([]models.Transaction, len(r.s.st.entries))
	copy(entries, r.s.st.entries)

	return page(sortHistory(entries), limit, offset), nil
}

func (r *ledgerRepo) CountForAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	r.s.lock()
	defer r.s.unlock()

	var count int64
	for _, t := range r.s.st.entries {
		if t.AccountID == accountID {
			count++
		}
	}
	return count, nil
}

func (r *ledgerRepo) CountAll(ctx context.Context) (int64, error) {
	r.s.lock()
	defer r.s.unlock()

	return int64(len(r.s.st.entries)), nil
}

func (r *ledgerRepo) CountSince(ctx context.Context, since time.Time) (int64, error) {
	r.s.lock()
	defer r.s.unlock()

	var count int64
	for _, t := range r.s.st.entries {
		if !t.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// created_at descending, seq descending as tiebreak: same order the
// table backend returns
func sortHistory(entries []models.Transaction) []models.Transaction {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].Seq > entries[j].Seq
	})
	return entries
}
