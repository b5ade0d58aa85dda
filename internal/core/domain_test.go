package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTransactionTypeValid(t *testing.T) {
	assert.True(t, Income.Valid())
	assert.True(t, Outcome.Valid())
	assert.False(t, TransactionType("transfer").Valid())
	assert.False(t, TransactionType("").Valid())
}

func TestNewTransactionAttachesCategory(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	cat := Category{ID: "c1", Title: "Food"}
	e := Entry{Title: "Lunch", Value: decimal.NewFromInt(12), Type: Outcome, Category: "Food"}

	tx := NewTransaction("t1", e, cat, now)

	assert.Equal(t, "t1", tx.ID)
	assert.Equal(t, "c1", tx.CategoryID)
	if assert.NotNil(t, tx.Category) {
		assert.Equal(t, "Food", tx.Category.Title)
	}
	assert.Equal(t, now, tx.CreatedAt)
	assert.Equal(t, now, tx.UpdatedAt)
	assert.Equal(t, e, tx.Entry())
}

func TestCandidateCategoryTitle(t *testing.T) {
	assert.Equal(t, "", Candidate{}.CategoryTitle())
	assert.Equal(t, "Rent", NewCandidate("a", "1", "income", "  Rent ").CategoryTitle())
}

func TestRejectionErrorMatching(t *testing.T) {
	wrapped := fmt.Errorf("row 3: %w", ErrInsufficientFunds)

	assert.ErrorIs(t, wrapped, ErrInsufficientFunds)
	assert.NotErrorIs(t, wrapped, ErrInvalidValue)
	assert.True(t, IsRejection(wrapped))
	assert.Equal(t, InsufficientFunds, ReasonOf(wrapped))
	assert.Equal(t, RejectionReason(""), ReasonOf(errors.New("boom")))
}

func TestStoreErrorWrapping(t *testing.T) {
	assert.Nil(t, NewStoreError("save", nil))

	err := NewStoreError("save category", ErrUniqueViolation)
	assert.ErrorIs(t, err, ErrUniqueViolation)
	assert.False(t, IsRejection(err))

	var se *StoreError
	assert.ErrorAs(t, err, &se)
	assert.Equal(t, "save category", se.Op)

	// already wrapped errors keep their original operation
	again := NewStoreError("other", err)
	assert.ErrorAs(t, again, &se)
	assert.Equal(t, "save category", se.Op)
}
