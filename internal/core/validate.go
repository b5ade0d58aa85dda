package core

import "strings"

// Validate checks a candidate against the admission rules and the supplied
// balance snapshot. The first failing rule wins:
//
//  1. every field present
//  2. non-empty title
//  3. non-empty category
//  4. type is income or outcome
//  5. value is a number greater than zero
//  6. an outcome does not exceed current.Total
//
// Only rule 6 depends on ledger state; the balance is never read here.
func Validate(c Candidate, current Balance) (Entry, error) {
	e, err := ValidateShape(c)
	if err != nil {
		return Entry{}, err
	}
	if err := CheckFunds(e, current); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// CheckFunds applies rule 6 to an entry that already passed ValidateShape.
func CheckFunds(e Entry, current Balance) error {
	if e.Type == Outcome && !current.Covers(e.Value) {
		return ErrInsufficientFunds
	}
	return nil
}

// ValidateShape runs the rules that do not depend on the balance (1 to 5).
func ValidateShape(c Candidate) (Entry, error) {
	if c.Title == nil || c.Value == nil || c.Type == nil || c.Category == nil {
		return Entry{}, ErrMissingFields
	}
	title := strings.TrimSpace(*c.Title)
	if title == "" {
		return Entry{}, ErrInvalidTitle
	}
	category := strings.TrimSpace(*c.Category)
	if category == "" {
		return Entry{}, ErrInvalidCategory
	}
	typ := TransactionType(strings.TrimSpace(*c.Type))
	if !typ.Valid() {
		return Entry{}, ErrInvalidType
	}
	value, err := ParseValue(*c.Value)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Title:    title,
		Value:    value,
		Type:     typ,
		Category: category,
	}, nil
}
