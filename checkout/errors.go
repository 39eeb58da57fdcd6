/*
errors.go - Error types for the checkout flow
*/
package checkout

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/mentorbook/schedule"
)

var (
	// ErrSessionNotFound is returned for unknown checkout session ids.
	ErrSessionNotFound = errors.New("checkout session not found")

	// ErrPaymentNotConfirmed is returned when verify runs before the
	// provider reports the session as paid. Recoverable: the caller
	// renders "payment pending" and retries later.
	ErrPaymentNotConfirmed = errors.New("payment not confirmed")

	// ErrInvalidAmount is returned for a non-positive checkout amount.
	ErrInvalidAmount = errors.New("checkout amount must be positive")

	// ErrWrongUser is returned when verify is called with a different
	// user than the one who started the checkout.
	ErrWrongUser = errors.New("session belongs to a different user")
)

// SlotLostError is the one failure needing compensation outside this
// subsystem: payment is confirmed but the slot was taken during the
// payment round trip. It carries what an external refund process
// needs; this core does not issue refunds itself.
type SlotLostError struct {
	SessionID    string
	ProviderTxID string
	Amount       decimal.Decimal
}

func (e *SlotLostError) Error() string {
	return fmt.Sprintf("payment %s succeeded (%s) but the slot is no longer available",
		e.ProviderTxID, e.Amount)
}

func (e *SlotLostError) Unwrap() error { return schedule.ErrSlotTaken }
