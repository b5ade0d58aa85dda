package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"gofinances/internal/core"
)

// EventKind names what happened to the ledger.
type EventKind string

const (
	TransactionCreated EventKind = "transaction.created"
	TransactionDeleted EventKind = "transaction.deleted"
	BatchImported      EventKind = "batch.imported"
)

// LedgerEvent is published after the ledger changed. It carries enough to
// log and audit the change; consumers re-read the store for the full state.
type LedgerEvent struct {
	Kind          EventKind `json:"kind"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Type          string    `json:"type,omitempty"`
	Value         string    `json:"value,omitempty"`
	Accepted      int       `json:"accepted,omitempty"`
	Rejected      int       `json:"rejected,omitempty"`
	Total         string    `json:"total"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewTransactionEvent describes a single created or deleted transaction.
func NewTransactionEvent(kind EventKind, t core.Transaction, balance core.Balance) *LedgerEvent {
	return &LedgerEvent{
		Kind:          kind,
		TransactionID: t.ID,
		Type:          string(t.Type),
		Value:         t.Value.String(),
		Total:         balance.Total.String(),
		Timestamp:     time.Now().UTC(),
	}
}

// NewBatchEvent summarises an import.
func NewBatchEvent(accepted, rejected int, balance core.Balance) *LedgerEvent {
	return &LedgerEvent{
		Kind:      BatchImported,
		Accepted:  accepted,
		Rejected:  rejected,
		Total:     balance.Total.String(),
		Timestamp: time.Now().UTC(),
	}
}

func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Kind {
	case TransactionCreated, TransactionDeleted, BatchImported:
	default:
		return nil, fmt.Errorf("unknown event kind %q", msg.Kind)
	}
	return &msg, nil
}
