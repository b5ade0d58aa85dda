package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tx(typ TransactionType, value string) Transaction {
	return Transaction{Type: typ, Value: decimal.RequireFromString(value)}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeBalanceEmpty(t *testing.T) {
	b := ComputeBalance(nil)
	assert.True(t, b.Equal(Balance{}), "got %+v", b)
	assert.True(t, b.Total.IsZero())
}

func TestComputeBalance(t *testing.T) {
	tests := []struct {
		name    string
		txs     []Transaction
		income  string
		outcome string
	}{
		{"only income", []Transaction{tx(Income, "10"), tx(Income, "5.5")}, "15.5", "0"},
		{"only outcome", []Transaction{tx(Outcome, "3")}, "0", "3"},
		{"mixed", []Transaction{tx(Income, "100"), tx(Outcome, "40.25"), tx(Income, "0.25"), tx(Outcome, "10")}, "100.25", "50.25"},
		{"exact cents", []Transaction{tx(Income, "0.1"), tx(Income, "0.2"), tx(Outcome, "0.3")}, "0.3", "0.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ComputeBalance(tt.txs)
			assert.True(t, b.Income.Equal(dec(tt.income)), "income %s", b.Income)
			assert.True(t, b.Outcome.Equal(dec(tt.outcome)), "outcome %s", b.Outcome)
			assert.True(t, b.Total.Equal(b.Income.Sub(b.Outcome)), "total %s", b.Total)
		})
	}
}

func TestBalanceApplyRevert(t *testing.T) {
	b := Balance{}
	b = b.Apply(Entry{Type: Income, Value: dec("50")})
	b = b.Apply(Entry{Type: Outcome, Value: dec("20")})
	assert.True(t, b.Total.Equal(dec("30")))

	b = b.Revert(Entry{Type: Outcome, Value: dec("20")})
	assert.True(t, b.Total.Equal(dec("50")))
	assert.True(t, b.Outcome.IsZero())

	same := b.Apply(Entry{Type: "bogus", Value: dec("1")})
	assert.True(t, same.Equal(b))
}

func TestBalanceCovers(t *testing.T) {
	b := ComputeBalance([]Transaction{tx(Income, "80")})
	assert.True(t, b.Covers(dec("80")))
	assert.True(t, b.Covers(dec("79.99")))
	assert.False(t, b.Covers(dec("80.01")))
}

func TestVerifyAppend(t *testing.T) {
	start := ComputeBalance([]Transaction{tx(Income, "80")})

	end, err := start.VerifyAppend([]Transaction{tx(Income, "50"), tx(Outcome, "40")})
	require.NoError(t, err)
	assert.True(t, end.Total.Equal(dec("90")))

	_, err = start.VerifyAppend([]Transaction{tx(Outcome, "100"), tx(Income, "50")})
	assert.ErrorIs(t, err, ErrLedgerConflict)
}
