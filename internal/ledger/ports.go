// Package ledger implements the admission side of the ledger: category
// resolution, single transaction creation and batched imports that keep the
// balance non-negative.
package ledger

import (
	"context"

	"gofinances/internal/core"
)

// Ports for the persistence collaborator.
type (
	// TransactionFilter narrows FindTransactions. The zero value matches all.
	TransactionFilter struct {
		Type       core.TransactionType
		CategoryID string
	}

	TransactionStore interface {
		FindTransactions(ctx context.Context, filter TransactionFilter) ([]core.Transaction, error)
		FindTransaction(ctx context.Context, id string) (core.Transaction, error)
		SaveTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		// SaveTransactions persists a batch atomically, in order.
		SaveTransactions(ctx context.Context, ts []core.Transaction) ([]core.Transaction, error)
		DeleteTransaction(ctx context.Context, id string) error
	}

	CategoryStore interface {
		FindCategoriesByTitles(ctx context.Context, titles []string) ([]core.Category, error)
		// SaveCategory must fail with an error matching core.ErrUniqueViolation
		// when the title already exists.
		SaveCategory(ctx context.Context, c core.Category) (core.Category, error)
	}

	Store interface {
		TransactionStore
		CategoryStore
	}
)

// Row is one raw record of an uploaded file, in file order.
type Row struct {
	Title    string
	Type     string
	Value    string
	Category string
	Line     int // 1-based line in the source, 0 when unknown
}

// Candidate converts the raw row into a submission with every field present.
func (r Row) Candidate() core.Candidate {
	return core.NewCandidate(r.Title, r.Value, r.Type, r.Category)
}

// RowSource yields rows once, returning io.EOF after the last one.
type RowSource interface {
	Read() (Row, error)
}
