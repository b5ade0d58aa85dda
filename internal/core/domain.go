package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "income"
	Outcome TransactionType = "outcome"
)

type (
	TransactionType string

	// Category groups transactions under a unique, case-sensitive title.
	Category struct {
		ID        string
		Title     string
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	Transaction struct {
		ID         string
		Title      string
		Value      decimal.Decimal
		Type       TransactionType
		CategoryID string
		Category   *Category // attached on create and list, nil otherwise
		CreatedAt  time.Time
		UpdatedAt  time.Time
	}

	// Candidate is a transaction submission before validation. A nil field
	// means the submitter did not send it at all.
	Candidate struct {
		Title    *string
		Value    *string
		Type     *string
		Category *string
	}

	// Entry is a Candidate that passed validation.
	Entry struct {
		Title    string
		Value    decimal.Decimal
		Type     TransactionType
		Category string
	}
)

// Valid reports whether t is one of the two ledger directions.
func (t TransactionType) Valid() bool {
	return t == Income || t == Outcome
}

func (t TransactionType) String() string {
	return string(t)
}

// NewCandidate builds a Candidate with every field present.
func NewCandidate(title, value, typ, category string) Candidate {
	return Candidate{
		Title:    &title,
		Value:    &value,
		Type:     &typ,
		Category: &category,
	}
}

// CategoryTitle returns the trimmed category title, or "" when absent.
func (c Candidate) CategoryTitle() string {
	if c.Category == nil {
		return ""
	}
	return strings.TrimSpace(*c.Category)
}

// NewTransaction turns an admitted entry into a transaction record bound to
// its category.
func NewTransaction(id string, e Entry, category Category, now time.Time) Transaction {
	cat := category
	return Transaction{
		ID:         id,
		Title:      e.Title,
		Value:      e.Value,
		Type:       e.Type,
		CategoryID: category.ID,
		Category:   &cat,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Entry returns the ledger-relevant view of a stored transaction.
func (t Transaction) Entry() Entry {
	e := Entry{Title: t.Title, Value: t.Value, Type: t.Type}
	if t.Category != nil {
		e.Category = t.Category.Title
	}
	return e
}
