package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gofinances/internal/amqp"
	"gofinances/internal/core"
	"gofinances/internal/ledger"
)

// stubStore returns a fixed transaction set, bypassing store-side checks so
// corrupted ledgers can be simulated.
type stubStore struct {
	ledger.TransactionStore
	txs   []core.Transaction
	err   error
	calls int
}

func (s *stubStore) FindTransactions(context.Context, ledger.TransactionFilter) ([]core.Transaction, error) {
	s.calls++
	return s.txs, s.err
}

func tx(id string, typ core.TransactionType, v string) core.Transaction {
	return core.Transaction{ID: id, Type: typ, Value: decimal.RequireFromString(v)}
}

func TestAuditHealthyLedger(t *testing.T) {
	store := &stubStore{txs: []core.Transaction{
		tx("a", core.Income, "100"),
		tx("b", core.Outcome, "40"),
	}}
	a := NewAuditor(store)

	report, err := a.Audit(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Healthy())
	assert.Equal(t, 2, report.Transactions)
	assert.True(t, report.Balance.Total.Equal(decimal.NewFromInt(60)))

	last, runs := a.Last()
	assert.Equal(t, 1, runs)
	assert.Equal(t, report.Transactions, last.Transactions)
}

func TestAuditDetectsNegativeTotal(t *testing.T) {
	store := &stubStore{txs: []core.Transaction{
		tx("a", core.Income, "10"),
		tx("b", core.Outcome, "40"),
	}}

	report, err := NewAuditor(store).Audit(context.Background())
	assert.ErrorIs(t, err, ErrNegativeTotal)
	assert.False(t, report.Healthy())
}

func TestAuditDetectsMalformed(t *testing.T) {
	store := &stubStore{txs: []core.Transaction{
		tx("a", core.Income, "10"),
		tx("b", core.TransactionType("refund"), "1"),
		tx("c", core.Income, "0"),
	}}

	report, err := NewAuditor(store).Audit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, report.Malformed)
	assert.False(t, report.Healthy())
}

func TestHandleLedgerEvent(t *testing.T) {
	event := &amqp.LedgerEvent{Kind: amqp.TransactionCreated, TransactionID: "a", Total: "10"}

	t.Run("healthy", func(t *testing.T) {
		store := &stubStore{txs: []core.Transaction{tx("a", core.Income, "10")}}
		assert.NoError(t, NewAuditor(store).HandleLedgerEvent(context.Background(), event))
		assert.Equal(t, 1, store.calls)
	})

	t.Run("violation is acked", func(t *testing.T) {
		store := &stubStore{txs: []core.Transaction{tx("a", core.Outcome, "10")}}
		assert.NoError(t, NewAuditor(store).HandleLedgerEvent(context.Background(), event))
	})

	t.Run("store failure is returned", func(t *testing.T) {
		boom := errors.New("locked")
		store := &stubStore{err: boom}
		err := NewAuditor(store).HandleLedgerEvent(context.Background(), event)
		assert.ErrorIs(t, err, boom)
		var se *core.StoreError
		assert.ErrorAs(t, err, &se)
	})
}

func TestRunStopsOnCancel(t *testing.T) {
	store := &stubStore{}
	a := NewAuditor(store)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		a.Run(ctx, time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, runs := a.Last()
		return runs >= 2
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
