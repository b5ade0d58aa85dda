// Package services orchestrates the ledger components, the store and event
// publishing behind the operations exposed by the HTTP layer.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"gofinances/internal/amqp"
	"gofinances/internal/core"
	"gofinances/internal/ledger"
	"gofinances/internal/log"
)

var (
	// ErrInvalidID is returned for transaction IDs that are not UUIDs.
	ErrInvalidID = errors.New("invalid id")

	// ErrUnreadableImport wraps failures of the row source itself, before
	// any row reaches the ledger.
	ErrUnreadableImport = errors.New("unreadable import")
)

// EventPublisher is satisfied by *amqp.Client.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, event *amqp.LedgerEvent) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// ImportReport is the outcome of one import request.
type ImportReport struct {
	Rows     []ledger.Row
	Results  []ledger.Result
	Accepted int
	Rejected int
	Balance  core.Balance
}

// TransactionService is the single writer for one store. Every admission
// (create, the transaction phase of an import, delete) runs its
// snapshot-validate-persist sequence under mu, so admissions in this process
// are linearizable. Stores re-check the balance inside their writes for
// writers in other processes.
type TransactionService struct {
	mu        sync.Mutex
	store     ledger.Store
	creator   *ledger.TransactionCreator
	importer  *ledger.BulkImporter
	publisher EventPublisher
}

// NewTransactionService wires the ledger components on store. publisher may
// be nil, in which case events are skipped.
func NewTransactionService(store ledger.Store, publisher EventPublisher, opts ...ledger.Option) *TransactionService {
	resolver := ledger.NewCategoryResolver(store, opts...)
	return &TransactionService{
		store:     store,
		creator:   ledger.NewTransactionCreator(store, resolver, opts...),
		importer:  ledger.NewBulkImporter(store, resolver, opts...),
		publisher: publisher,
	}
}

// CreateTransaction admits a single candidate.
func (s *TransactionService) CreateTransaction(ctx context.Context, c core.Candidate) (core.Transaction, error) {
	s.mu.Lock()
	t, err := s.creator.Create(ctx, c)
	var balance core.Balance
	if err == nil {
		balance, err = s.readBalance(ctx)
	}
	s.mu.Unlock()

	if err != nil {
		if t.ID != "" {
			// persisted, only the follow-up read failed
			slog.WarnContext(ctx, "Balance read after create failed",
				log.FieldTransactionID, t.ID, log.FieldError, err)
			return t, nil
		}
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction created",
		log.NewFields().WithTransaction(t).WithBalance(balance).ToSlice()...)

	s.publish(ctx, amqp.NewTransactionEvent(amqp.TransactionCreated, t, balance))
	return t, nil
}

// ImportTransactions reads every row from src and admits them as one batch.
// On a store failure or cancellation the partial report is returned with the
// error.
func (s *TransactionService) ImportTransactions(ctx context.Context, src ledger.RowSource) (ImportReport, error) {
	rows, err := ledger.Collect(src)
	if err != nil {
		return ImportReport{}, fmt.Errorf("%w: %w", ErrUnreadableImport, err)
	}

	s.mu.Lock()
	results, importErr := s.importer.ImportBatch(ctx, rows)
	balance, balanceErr := s.readBalance(context.WithoutCancel(ctx))
	s.mu.Unlock()

	report := ImportReport{Rows: rows, Results: results, Balance: balance}
	report.Accepted, report.Rejected = ledger.Summary(results)

	if importErr != nil {
		slog.ErrorContext(ctx, "Import aborted",
			log.NewFields().WithImport(report.Accepted, report.Rejected).WithError(importErr).ToSlice()...)
		if report.Accepted > 0 {
			s.publish(context.WithoutCancel(ctx), amqp.NewBatchEvent(report.Accepted, report.Rejected, balance))
		}
		return report, fmt.Errorf("import transactions: %w", importErr)
	}
	if balanceErr != nil {
		return report, fmt.Errorf("import transactions: %w", core.NewStoreError("find transactions", balanceErr))
	}

	slog.InfoContext(ctx, "Import completed",
		log.NewFields().WithImport(report.Accepted, report.Rejected).WithBalance(balance).ToSlice()...)

	if report.Accepted > 0 {
		s.publish(ctx, amqp.NewBatchEvent(report.Accepted, report.Rejected, balance))
	}
	return report, nil
}

// DeleteTransaction removes a transaction by ID. Removing an income that the
// remaining outcomes depend on is refused with core.ErrInsufficientFunds.
func (s *TransactionService) DeleteTransaction(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("delete transaction %q: %w", id, ErrInvalidID)
	}

	s.mu.Lock()
	t, balance, err := s.deleteLocked(ctx, id)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction deleted",
		log.NewFields().WithTransaction(t).WithBalance(balance).ToSlice()...)

	s.publish(ctx, amqp.NewTransactionEvent(amqp.TransactionDeleted, t, balance))
	return nil
}

func (s *TransactionService) deleteLocked(ctx context.Context, id string) (core.Transaction, core.Balance, error) {
	t, err := s.store.FindTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, core.Balance{}, core.NewStoreError("find transaction", err)
	}
	balance, err := s.readBalance(ctx)
	if err != nil {
		return core.Transaction{}, core.Balance{}, err
	}
	after := balance.Revert(t.Entry())
	if after.Total.IsNegative() {
		return core.Transaction{}, core.Balance{}, core.ErrInsufficientFunds
	}
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return core.Transaction{}, core.Balance{}, core.NewStoreError("delete transaction", err)
	}
	return t, after, nil
}

// ListTransactions returns the transactions matching filter, with their
// categories, and the balance over the whole ledger.
func (s *TransactionService) ListTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]core.Transaction, core.Balance, error) {
	all, err := s.store.FindTransactions(ctx, ledger.TransactionFilter{})
	if err != nil {
		return nil, core.Balance{}, core.NewStoreError("find transactions", err)
	}
	balance := core.ComputeBalance(all)
	if filter == (ledger.TransactionFilter{}) {
		return all, balance, nil
	}

	matching, err := s.store.FindTransactions(ctx, filter)
	if err != nil {
		return nil, core.Balance{}, core.NewStoreError("find transactions", err)
	}
	return matching, balance, nil
}

// Balance computes the balance from a fresh read of the store.
func (s *TransactionService) Balance(ctx context.Context) (core.Balance, error) {
	return s.readBalance(ctx)
}

func (s *TransactionService) readBalance(ctx context.Context) (core.Balance, error) {
	all, err := s.store.FindTransactions(ctx, ledger.TransactionFilter{})
	if err != nil {
		return core.Balance{}, core.NewStoreError("find transactions", err)
	}
	return core.ComputeBalance(all), nil
}

// Ping reports whether the store is reachable.
func (s *TransactionService) Ping(ctx context.Context) error {
	if p, ok := s.store.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *TransactionService) publish(ctx context.Context, event *amqp.LedgerEvent) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping ledger event", "kind", event.Kind)
		return
	}
	// the ledger change is already durable; a lost event only delays the audit
	if err := s.publisher.PublishLedgerEvent(ctx, event); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"kind", event.Kind,
			log.FieldTransactionID, event.TransactionID,
			log.FieldError, err)
	}
}

// Close closes the store and the publisher when they hold resources.
func (s *TransactionService) Close() error {
	var errs []error

	if c, ok := s.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if c, ok := s.publisher.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close transaction service: %w", errors.Join(errs...))
	}
	return nil
}
