package core

import (
	"errors"
	"fmt"
)

// RejectionReason names the business rule a candidate transaction broke.
type RejectionReason string

const (
	MissingFields     RejectionReason = "missing_fields"
	InvalidTitle      RejectionReason = "invalid_title"
	InvalidCategory   RejectionReason = "invalid_category"
	InvalidType       RejectionReason = "invalid_type"
	InvalidValue      RejectionReason = "invalid_value"
	InsufficientFunds RejectionReason = "insufficient_funds"
)

// RejectionError is returned when a candidate is refused by the ledger rules.
// It is never retried.
type RejectionError struct {
	Reason  RejectionReason
	Message string
}

func (e *RejectionError) Error() string {
	return e.Message
}

// Is matches any RejectionError with the same reason, so the sentinels below
// work with errors.Is.
func (e *RejectionError) Is(target error) bool {
	t, ok := target.(*RejectionError)
	return ok && t.Reason == e.Reason
}

var (
	ErrMissingFields     = &RejectionError{Reason: MissingFields, Message: "insufficient information"}
	ErrInvalidTitle      = &RejectionError{Reason: InvalidTitle, Message: "invalid title"}
	ErrInvalidCategory   = &RejectionError{Reason: InvalidCategory, Message: "invalid category"}
	ErrInvalidType       = &RejectionError{Reason: InvalidType, Message: "invalid transaction type"}
	ErrInvalidValue      = &RejectionError{Reason: InvalidValue, Message: "invalid value"}
	ErrInsufficientFunds = &RejectionError{Reason: InsufficientFunds, Message: "excessive outcome"}
)

// Store-side conditions. Stores wrap these so callers can use errors.Is.
var (
	ErrNotFound = errors.New("record not found")

	// ErrUniqueViolation reports a duplicate category title at write time.
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrLedgerConflict is returned by a store that re-checked the balance
	// inside a write and found an outcome the ledger can no longer cover.
	ErrLedgerConflict = errors.New("ledger balance conflict")
)

// StoreError wraps a failure of the persistence collaborator.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err unless it already is a StoreError.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsRejection reports whether err is a business-rule rejection.
func IsRejection(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}

// ReasonOf extracts the rejection reason from err, or "" if err is not a
// rejection.
func ReasonOf(err error) RejectionReason {
	var re *RejectionError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}
