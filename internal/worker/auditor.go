// Package worker holds the background processes that watch the ledger.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gofinances/internal/amqp"
	"gofinances/internal/core"
	"gofinances/internal/ledger"
	"gofinances/internal/log"
)

// ErrNegativeTotal reports a ledger whose persisted total is below zero.
var ErrNegativeTotal = errors.New("ledger total is negative")

// AuditReport is the result of one pass over the persisted ledger.
type AuditReport struct {
	Balance      core.Balance
	Transactions int
	Malformed    []string // IDs with a non-positive value or unknown type
	CheckedAt    time.Time
}

// Healthy reports whether the pass found nothing wrong.
func (r AuditReport) Healthy() bool {
	return !r.Balance.Total.IsNegative() && len(r.Malformed) == 0
}

// Auditor re-verifies the ledger invariants against the store, on demand,
// for each ledger event and on a fixed interval.
type Auditor struct {
	store ledger.TransactionStore
	now   func() time.Time

	mu   sync.Mutex
	last AuditReport
	runs int
}

func NewAuditor(store ledger.TransactionStore) *Auditor {
	return &Auditor{store: store, now: time.Now}
}

// Audit reads every transaction and checks that the total is non-negative
// and that each record is well formed. A violation is returned as
// ErrNegativeTotal together with the report.
func (a *Auditor) Audit(ctx context.Context) (AuditReport, error) {
	all, err := a.store.FindTransactions(ctx, ledger.TransactionFilter{})
	if err != nil {
		return AuditReport{}, core.NewStoreError("find transactions", err)
	}

	report := AuditReport{
		Balance:      core.ComputeBalance(all),
		Transactions: len(all),
		CheckedAt:    a.now(),
	}
	for _, t := range all {
		if !t.Type.Valid() || !t.Value.IsPositive() {
			report.Malformed = append(report.Malformed, t.ID)
		}
	}

	a.mu.Lock()
	a.last = report
	a.runs++
	a.mu.Unlock()

	fields := log.NewFields().
		WithOperation(log.OpAudit).
		WithBalance(report.Balance).
		WithComponent(log.ComponentWorker)

	if len(report.Malformed) > 0 {
		slog.ErrorContext(ctx, "Malformed transactions in ledger",
			append(fields.ToSlice(), "ids", report.Malformed)...)
	}
	if report.Balance.Total.IsNegative() {
		slog.ErrorContext(ctx, "Ledger invariant violated", fields.ToSlice()...)
		return report, ErrNegativeTotal
	}

	slog.DebugContext(ctx, "Ledger audit passed",
		append(fields.ToSlice(), "transactions", report.Transactions)...)
	return report, nil
}

// HandleLedgerEvent audits after a published change. Only store failures are
// returned, so the delivery is requeued; a violation is logged and acked
// since retrying cannot fix it.
func (a *Auditor) HandleLedgerEvent(ctx context.Context, event *amqp.LedgerEvent) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"kind", event.Kind,
		log.FieldTransactionID, event.TransactionID,
		"reported_total", event.Total)

	_, err := a.Audit(ctx)
	if err != nil && !errors.Is(err, ErrNegativeTotal) {
		return fmt.Errorf("audit after %s: %w", event.Kind, err)
	}
	return nil
}

// Run audits every interval until ctx is done.
func (a *Auditor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Audit(ctx); err != nil && !errors.Is(err, ErrNegativeTotal) {
				slog.ErrorContext(ctx, "Periodic audit failed", log.FieldError, err)
			}
		}
	}
}

// Last returns the most recent report and the number of completed audits.
func (a *Auditor) Last() (AuditReport, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last, a.runs
}
