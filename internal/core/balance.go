package core

import "github.com/shopspring/decimal"

// Balance is the derived ledger state. It is never persisted.
type Balance struct {
	Income  decimal.Decimal
	Outcome decimal.Decimal
	Total   decimal.Decimal
}

// ComputeBalance sums a transaction set in a single pass. The caller is
// responsible for handing in a consistent snapshot.
func ComputeBalance(transactions []Transaction) Balance {
	income, outcome := decimal.Zero, decimal.Zero
	for _, t := range transactions {
		switch t.Type {
		case Income:
			income = income.Add(t.Value)
		case Outcome:
			outcome = outcome.Add(t.Value)
		}
	}
	return Balance{
		Income:  income,
		Outcome: outcome,
		Total:   income.Sub(outcome),
	}
}

// Apply returns the balance after admitting e.
func (b Balance) Apply(e Entry) Balance {
	switch e.Type {
	case Income:
		b.Income = b.Income.Add(e.Value)
	case Outcome:
		b.Outcome = b.Outcome.Add(e.Value)
	default:
		return b
	}
	b.Total = b.Income.Sub(b.Outcome)
	return b
}

// Revert returns the balance after removing e, the inverse of Apply.
func (b Balance) Revert(e Entry) Balance {
	switch e.Type {
	case Income:
		b.Income = b.Income.Sub(e.Value)
	case Outcome:
		b.Outcome = b.Outcome.Sub(e.Value)
	default:
		return b
	}
	b.Total = b.Income.Sub(b.Outcome)
	return b
}

// Covers reports whether the balance can absorb an outcome of v.
func (b Balance) Covers(v decimal.Decimal) bool {
	return v.LessThanOrEqual(b.Total)
}

// Equal compares balances by value, ignoring decimal representation.
func (b Balance) Equal(o Balance) bool {
	return b.Income.Equal(o.Income) && b.Outcome.Equal(o.Outcome) && b.Total.Equal(o.Total)
}

// VerifyAppend replays additions on top of b in order and returns
// ErrLedgerConflict at the first outcome the running total cannot cover.
// Stores use it to re-check the ledger inside a write.
func (b Balance) VerifyAppend(additions []Transaction) (Balance, error) {
	for _, t := range additions {
		if t.Type == Outcome && !b.Covers(t.Value) {
			return b, ErrLedgerConflict
		}
		b = b.Apply(t.Entry())
	}
	return b, nil
}
