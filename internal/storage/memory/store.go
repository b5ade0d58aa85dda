// Package memory is an in-process ledger store used by tests and by the
// memory data backend. Nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"sync"

	"gofinances/internal/core"
	"gofinances/internal/ledger"
)

type Store struct {
	mu           sync.RWMutex
	categories   map[string]core.Category // by ID
	titles       map[string]string        // title -> ID
	transactions []core.Transaction       // insertion order
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		categories: make(map[string]core.Category),
		titles:     make(map[string]string),
	}
}

func (s *Store) FindTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Transaction, 0, len(s.transactions))
	for _, t := range s.transactions {
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		if filter.CategoryID != "" && t.CategoryID != filter.CategoryID {
			continue
		}
		out = append(out, s.withCategory(t))
	}
	return out, nil
}

func (s *Store) FindTransaction(ctx context.Context, id string) (core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.transactions {
		if t.ID == id {
			return s.withCategory(t), nil
		}
	}
	return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
}

func (s *Store) SaveTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	saved, err := s.SaveTransactions(ctx, []core.Transaction{t})
	if err != nil {
		return core.Transaction{}, err
	}
	return saved[0], nil
}

// SaveTransactions appends the batch atomically. The balance is re-checked
// under the write lock, so a batch that would drive the total negative is
// refused as a whole with core.ErrLedgerConflict.
func (s *Store) SaveTransactions(ctx context.Context, ts []core.Transaction) ([]core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make(map[string]struct{}, len(s.transactions)+len(ts))
	for _, t := range s.transactions {
		ids[t.ID] = struct{}{}
	}
	for _, t := range ts {
		if _, ok := s.categories[t.CategoryID]; !ok {
			return nil, fmt.Errorf("transaction %s: unknown category %q", t.ID, t.CategoryID)
		}
		if _, dup := ids[t.ID]; dup {
			return nil, fmt.Errorf("transaction %s: duplicate id", t.ID)
		}
		ids[t.ID] = struct{}{}
	}

	if _, err := core.ComputeBalance(s.transactions).VerifyAppend(ts); err != nil {
		return nil, err
	}

	saved := make([]core.Transaction, len(ts))
	for i, t := range ts {
		t.Category = nil
		s.transactions = append(s.transactions, t)
		saved[i] = s.withCategory(t)
	}
	return saved, nil
}

// DeleteTransaction removes a transaction unless doing so would leave the
// total negative, which returns core.ErrLedgerConflict.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, t := range s.transactions {
		if t.ID == id {
			if core.ComputeBalance(s.transactions).Revert(t.Entry()).Total.IsNegative() {
				return fmt.Errorf("delete transaction %s: %w", id, core.ErrLedgerConflict)
			}
			s.transactions = append(s.transactions[:i], s.transactions[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
}

func (s *Store) FindCategoriesByTitles(ctx context.Context, titles []string) ([]core.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Category, 0, len(titles))
	for _, title := range titles {
		if id, ok := s.titles[title]; ok {
			out = append(out, s.categories[id])
		}
	}
	return out, nil
}

func (s *Store) SaveCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := ctx.Err(); err != nil {
		return core.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.titles[c.Title]; ok {
		return core.Category{}, fmt.Errorf("category %q: %w", c.Title, core.ErrUniqueViolation)
	}
	if _, ok := s.categories[c.ID]; ok {
		return core.Category{}, fmt.Errorf("category %s: duplicate id", c.ID)
	}
	s.categories[c.ID] = c
	s.titles[c.Title] = c.ID
	return c, nil
}

// CategoryCount is used by tests to assert on category creation.
func (s *Store) CategoryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.categories)
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) withCategory(t core.Transaction) core.Transaction {
	if c, ok := s.categories[t.CategoryID]; ok {
		t.Category = &c
	}
	return t
}
