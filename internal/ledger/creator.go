package ledger

import (
	"context"
	"log/slog"
	"time"

	"gofinances/internal/core"
)

// TransactionCreator admits a single transaction.
type TransactionCreator struct {
	store      Store
	categories *CategoryResolver
	newID      func() string
	now        func() time.Time
}

func NewTransactionCreator(store Store, categories *CategoryResolver, opts ...Option) *TransactionCreator {
	o := buildOptions(opts)
	return &TransactionCreator{
		store:      store,
		categories: categories,
		newID:      o.newID,
		now:        o.now,
	}
}

// Create validates c against a fresh balance snapshot and persists it with
// its category. A rejected candidate leaves the store untouched, including
// the category table.
//
// Create is not safe to interleave with other admissions on the same store;
// callers serialise admissions (see services.TransactionService).
func (tc *TransactionCreator) Create(ctx context.Context, c core.Candidate) (core.Transaction, error) {
	existing, err := tc.store.FindTransactions(ctx, TransactionFilter{})
	if err != nil {
		return core.Transaction{}, core.NewStoreError("find transactions", err)
	}
	balance := core.ComputeBalance(existing)

	entry, err := core.Validate(c, balance)
	if err != nil {
		slog.DebugContext(ctx, "Transaction rejected",
			"reason", core.ReasonOf(err),
			"total", balance.Total.String())
		return core.Transaction{}, err
	}

	categories, err := tc.categories.ResolveOrCreate(ctx, []string{entry.Category})
	if err != nil {
		return core.Transaction{}, err
	}

	t := core.NewTransaction(tc.newID(), entry, categories[entry.Category], tc.now())
	saved, err := tc.store.SaveTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, core.NewStoreError("save transaction", err)
	}
	if saved.Category == nil {
		saved.Category = t.Category
	}

	return saved, nil
}
