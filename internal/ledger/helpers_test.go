package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"gofinances/internal/core"
	"gofinances/internal/ledger"
	"gofinances/internal/storage/memory"
)

var (
	fixedNow  = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	errBroken = errors.New("disk on fire")
)

func fixedClock() time.Time { return fixedNow }

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("id-%04d", n.Add(1)) }
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func row(typ, value, category string) ledger.Row {
	return ledger.Row{Title: typ + " " + value, Type: typ, Value: value, Category: category}
}

// flakyStore wraps the memory store and lets tests inject failures and
// count writes.
type flakyStore struct {
	*memory.Store

	mu           sync.Mutex
	failFind     error
	failSaveCat  error
	failSaveTxAt int // 1-based SaveTransactions call that fails, 0 never
	saveTxCalls  int
	saveCatCalls int
	uniqueOnce   map[string]bool
	beforeSaveTx func()
	batchSizes   []int
}

func newFlakyStore() *flakyStore {
	return &flakyStore{Store: memory.New(), uniqueOnce: map[string]bool{}}
}

func (s *flakyStore) FindTransactions(ctx context.Context, f ledger.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	err := s.failFind
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.Store.FindTransactions(ctx, f)
}

func (s *flakyStore) SaveCategory(ctx context.Context, c core.Category) (core.Category, error) {
	s.mu.Lock()
	s.saveCatCalls++
	err := s.failSaveCat
	racer := s.uniqueOnce[c.Title]
	delete(s.uniqueOnce, c.Title)
	s.mu.Unlock()
	if err != nil {
		return core.Category{}, err
	}
	if racer {
		// another writer wins the race for this title
		if _, err := s.Store.SaveCategory(ctx, core.Category{ID: "rival-" + c.Title, Title: c.Title}); err != nil {
			return core.Category{}, err
		}
	}
	return s.Store.SaveCategory(ctx, c)
}

func (s *flakyStore) SaveTransactions(ctx context.Context, ts []core.Transaction) ([]core.Transaction, error) {
	s.mu.Lock()
	s.saveTxCalls++
	call := s.saveTxCalls
	s.batchSizes = append(s.batchSizes, len(ts))
	failAt := s.failSaveTxAt
	hook := s.beforeSaveTx
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	if failAt != 0 && call == failAt {
		return nil, errBroken
	}
	return s.Store.SaveTransactions(ctx, ts)
}

func (s *flakyStore) SaveTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	saved, err := s.SaveTransactions(ctx, []core.Transaction{t})
	if err != nil {
		return core.Transaction{}, err
	}
	return saved[0], nil
}

func (s *flakyStore) total() decimal.Decimal {
	all, err := s.Store.FindTransactions(context.Background(), ledger.TransactionFilter{})
	if err != nil {
		panic(err)
	}
	return core.ComputeBalance(all).Total
}

func (s *flakyStore) count() int {
	all, _ := s.Store.FindTransactions(context.Background(), ledger.TransactionFilter{})
	return len(all)
}

// seed admits incomes directly so tests start from a known total.
func seed(s *flakyStore, amounts ...string) {
	ctx := context.Background()
	cat, err := s.Store.SaveCategory(ctx, core.Category{ID: "seed-cat", Title: "Seed"})
	if err != nil {
		panic(err)
	}
	for i, a := range amounts {
		t := core.Transaction{
			ID:         fmt.Sprintf("seed-%d", i),
			Title:      "seed",
			Value:      dec(a),
			Type:       core.Income,
			CategoryID: cat.ID,
		}
		if _, err := s.Store.SaveTransaction(ctx, t); err != nil {
			panic(err)
		}
	}
}
