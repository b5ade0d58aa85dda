package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"gofinances/internal/core"
)

// Result is the outcome of one imported row. Exactly one of Transaction and
// Err is set.
type Result struct {
	Row         int // zero-based position in the batch
	Transaction *core.Transaction
	Err         error
}

// Accepted reports whether the row was admitted and persisted.
func (r Result) Accepted() bool {
	return r.Err == nil && r.Transaction != nil
}

// Rejected reports whether the row broke a ledger rule, as opposed to failing
// because of the store or a cancellation.
func (r Result) Rejected() bool {
	return core.IsRejection(r.Err)
}

// Summary counts accepted and not accepted rows.
func Summary(results []Result) (accepted, rejected int) {
	for _, r := range results {
		if r.Accepted() {
			accepted++
		} else {
			rejected++
		}
	}
	return accepted, rejected
}

// BulkImporter admits a batch of rows in input order against a running
// balance. Category creation is the only parallel step.
type BulkImporter struct {
	store      Store
	categories *CategoryResolver
	newID      func() string
	now        func() time.Time
	flushSize  int
}

func NewBulkImporter(store Store, categories *CategoryResolver, opts ...Option) *BulkImporter {
	o := buildOptions(opts)
	return &BulkImporter{
		store:      store,
		categories: categories,
		newID:      o.newID,
		now:        o.now,
		flushSize:  o.flushSize,
	}
}

// ImportBatch returns one result per row, in input order.
//
// Rows are first checked without ledger state; the categories of the rows
// that pass are resolved in one call. Then rows are admitted sequentially:
// an outcome is accepted only if the running balance covers it, and each
// acceptance moves the running balance before the next row is looked at.
// Accepted rows are written in chunks of the configured flush size.
//
// On a store failure or cancellation the error is returned together with
// the results computed so far. Rows written by earlier flushes stay
// persisted; rows of the failed chunk carry the error.
func (b *BulkImporter) ImportBatch(ctx context.Context, rows []Row) ([]Result, error) {
	results := make([]Result, len(rows))
	if len(rows) == 0 {
		return results, nil
	}

	entries := make([]core.Entry, len(rows))
	titles := make([]string, 0, len(rows))
	for i, row := range rows {
		results[i].Row = i
		e, err := core.ValidateShape(row.Candidate())
		if err != nil {
			results[i].Err = err
			continue
		}
		entries[i] = e
		titles = append(titles, e.Category)
	}

	categories, err := b.categories.ResolveOrCreate(ctx, titles)
	if err != nil {
		return failPending(results, fmt.Errorf("resolve categories: %w", err))
	}

	existing, err := b.store.FindTransactions(ctx, TransactionFilter{})
	if err != nil {
		return failPending(results, core.NewStoreError("find transactions", err))
	}
	balance := core.ComputeBalance(existing)

	pending := make([]int, 0, b.flushSize)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		batch := make([]core.Transaction, len(pending))
		for j, idx := range pending {
			batch[j] = *results[idx].Transaction
		}
		saved, err := b.store.SaveTransactions(ctx, batch)
		if err != nil {
			err = core.NewStoreError("save transactions", err)
			for _, idx := range pending {
				results[idx].Transaction = nil
				results[idx].Err = err
			}
			return err
		}
		for j, idx := range pending {
			if j < len(saved) {
				t := saved[j]
				if t.Category == nil {
					t.Category = batch[j].Category
				}
				results[idx].Transaction = &t
			}
		}
		pending = pending[:0]
		return nil
	}

	for i := range rows {
		if err := ctx.Err(); err != nil {
			for _, idx := range pending {
				results[idx].Transaction = nil
				results[idx].Err = err
			}
			return results[:i], err
		}
		if results[i].Err != nil {
			continue
		}

		e := entries[i]
		if err := core.CheckFunds(e, balance); err != nil {
			results[i].Err = err
			continue
		}

		t := core.NewTransaction(b.newID(), e, categories[e.Category], b.now())
		results[i].Transaction = &t
		balance = balance.Apply(e)
		pending = append(pending, i)

		if len(pending) >= b.flushSize {
			if err := flush(); err != nil {
				return results[:i+1], err
			}
		}
	}
	if err := flush(); err != nil {
		return results, err
	}

	accepted, rejected := Summary(results)
	slog.InfoContext(ctx, "Batch imported",
		"rows", len(rows),
		"accepted", accepted,
		"rejected", rejected,
		"total", balance.Total.String())

	return results, nil
}

// failPending marks every row without an outcome yet with err, keeping the
// rejections already recorded.
func failPending(results []Result, err error) ([]Result, error) {
	for i := range results {
		if results[i].Err == nil && results[i].Transaction == nil {
			results[i].Err = err
		}
	}
	return results, err
}

// Collect drains a RowSource into memory. The importer needs the whole batch
// before admission starts, since categories are resolved up front.
func Collect(src RowSource) ([]Row, error) {
	var rows []Row
	for {
		row, err := src.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return rows, fmt.Errorf("read row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, row)
	}
}
