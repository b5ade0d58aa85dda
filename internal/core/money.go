// Package core provides the ledger domain: transactions, categories, the
// balance triple and the admission rules.
//
// This file contains the parsing of monetary values submitted as text.
package core

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Bounds on accepted amounts. They keep every value in a range where
// decimal arithmetic stays cheap.
const (
	MaxIntegerDigits  = 15
	MaxFractionDigits = 8
)

// plainDecimal matches digits with at most one separator: no sign, no
// exponent, no surrounding text.
var plainDecimal = regexp.MustCompile(`^([0-9]+)(?:[.,]([0-9]+))?$`)

// ParseValue converts a decimal string into a strictly positive amount.
//
// Surrounding whitespace is ignored. Both "12.34" and "12,34" are accepted as
// long as the string holds a single separator. Zero, negative values,
// exponents, more than MaxIntegerDigits integer digits or MaxFractionDigits
// fraction digits, and anything that is not a plain decimal number return
// ErrInvalidValue.
//
// Examples:
//
//	ParseValue("12.34") -> 12.34, nil
//	ParseValue("12,34") -> 12.34, nil
//	ParseValue("0")     -> 0, ErrInvalidValue
//	ParseValue("abc")   -> 0, ErrInvalidValue
//	ParseValue("1e5")   -> 0, ErrInvalidValue
func ParseValue(s string) (decimal.Decimal, error) {
	m := plainDecimal.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return decimal.Zero, ErrInvalidValue
	}
	integer := strings.TrimLeft(m[1], "0")
	fraction := strings.TrimRight(m[2], "0")
	if len(integer) > MaxIntegerDigits || len(fraction) > MaxFractionDigits {
		return decimal.Zero, ErrInvalidValue
	}
	digits := integer
	if digits == "" {
		digits = "0"
	}
	if fraction != "" {
		digits += "." + fraction
	}
	v, err := decimal.NewFromString(digits)
	if err != nil {
		return decimal.Zero, ErrInvalidValue
	}
	if !v.IsPositive() {
		return decimal.Zero, ErrInvalidValue
	}
	return v, nil
}
