/*
errors.go - Error types for the ledger and payout workflow
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateTransaction is returned when a TransactionID already
	// exists. Expected behavior for retried writes.
	ErrDuplicateTransaction = errors.New("duplicate transaction id")

	// ErrInsufficientBalance is returned when a payout request exceeds
	// the mentor's derived balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrMentorRequired is returned when a mentor id is missing.
	ErrMentorRequired = errors.New("mentor id required")

	// ErrPayoutNotFound is returned when a payout request id is unknown.
	ErrPayoutNotFound = errors.New("payout request not found")

	// ErrPayoutResolved is returned when resolving a request that is no
	// longer pending.
	ErrPayoutResolved = errors.New("payout request already resolved")

	// ErrInvalidPayoutMethod is returned for a missing payment method.
	ErrInvalidPayoutMethod = errors.New("payment method required")

	// ErrInvalidResolution is returned when resolution status is neither
	// paid nor rejected.
	ErrInvalidResolution = errors.New("resolution must be paid or rejected")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// InsufficientBalanceError reports how short the mentor's balance is.
type InsufficientBalanceError struct {
	MentorID  string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for mentor %s: available %s, requested %s",
		e.MentorID, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// AmountError reports a non-positive amount.
type AmountError struct {
	Amount decimal.Decimal
}

func (e *AmountError) Error() string {
	return fmt.Sprintf("invalid amount: %s", e.Amount)
}

func (e *AmountError) Unwrap() error { return ErrInvalidAmount }
