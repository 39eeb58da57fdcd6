/*
payout.go - Mentor withdrawal requests against the ledger balance

PURPOSE:
  The payout workflow is the only writer of debit entries:

  1. RequestPayout: balance check, then a pending PayoutRequest plus an
     immediate HOLD debit. Debiting at request time (not approval time)
     means balance reflects "funds already earmarked" the instant the
     mentor asks, so the same funds cannot be requested twice while the
     first request is pending.
  2. ResolvePayout to "paid": the debit stays (funds left the platform).
  3. ResolvePayout to "rejected": a compensating REFUND credit restores
     the balance. Skipping this is a correctness bug, not cosmetic.

IDEMPOTENT COMPENSATION:
  HOLD and REFUND entries use deterministic transaction ids derived
  from the payout id. A crashed-and-retried resolution cannot refund
  twice: the duplicate id is rejected by the store and treated as
  already-compensated.

SEE ALSO:
  - ledger.go: the append-only log this workflow writes to
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/mentorbook/notify"
	"github.com/warp/mentorbook/pkg/metrics"
)

// =============================================================================
// PAYOUT REQUEST
// =============================================================================

type PayoutStatus string

const (
	PayoutPending  PayoutStatus = "pending"
	PayoutPaid     PayoutStatus = "paid"
	PayoutRejected PayoutStatus = "rejected"
)

// PayoutRequest is a mentor-initiated withdrawal, resolved by an admin.
type PayoutRequest struct {
	ID             string          `json:"id"`
	MentorID       string          `json:"mentor_id"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentMethod  string          `json:"payment_method"`
	PaymentDetails string          `json:"payment_details"`
	Status         PayoutStatus    `json:"status"`
	RequestedAt    time.Time       `json:"requested_at"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
	AdminNotes     string          `json:"admin_notes,omitempty"`
}

// PayoutStore persists payout requests.
type PayoutStore interface {
	SavePayout(ctx context.Context, p PayoutRequest) error

	// PayoutByID returns ErrPayoutNotFound for unknown ids.
	PayoutByID(ctx context.Context, id string) (PayoutRequest, error)

	UpdatePayout(ctx context.Context, p PayoutRequest) error

	// Payouts lists requests newest first, optionally filtered by status,
	// plus the total count.
	Payouts(ctx context.Context, status *PayoutStatus, p Page) ([]PayoutRequest, int, error)
}

// holdTransactionID and refundTransactionID are deterministic per payout,
// making the debit and its compensation idempotent.
func holdTransactionID(payoutID string) string   { return "TXN-HOLD-" + payoutID }
func refundTransactionID(payoutID string) string { return "TXN-REFUND-" + payoutID }

// =============================================================================
// PAYOUT SERVICE
// =============================================================================

// PayoutService coordinates payout requests with the ledger.
type PayoutService struct {
	Ledger   *Ledger
	Store    PayoutStore
	Notifier notify.Notifier
	Logger   *zap.Logger
	Clock    func() time.Time
}

// NewPayoutService wires the workflow. Notifier and logger may be nil.
func NewPayoutService(l *Ledger, store PayoutStore, n notify.Notifier, logger *zap.Logger) *PayoutService {
	if n == nil {
		n = notify.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PayoutService{Ledger: l, Store: store, Notifier: n, Logger: logger, Clock: time.Now}
}

// RequestPayout validates the amount against the current balance, then
// writes the pending request and its HOLD debit. InsufficientBalance
// blocks the request before any write occurs.
func (s *PayoutService) RequestPayout(ctx context.Context, mentorID string, amount decimal.Decimal, method, details string) (PayoutRequest, error) {
	if mentorID == "" {
		return PayoutRequest{}, ErrMentorRequired
	}
	if !amount.IsPositive() {
		return PayoutRequest{}, &AmountError{Amount: amount}
	}
	if method == "" {
		return PayoutRequest{}, ErrInvalidPayoutMethod
	}

	balance, err := s.Ledger.Balance(ctx, mentorID)
	if err != nil {
		return PayoutRequest{}, err
	}
	if amount.GreaterThan(balance) {
		return PayoutRequest{}, &InsufficientBalanceError{
			MentorID:  mentorID,
			Available: balance,
			Requested: amount,
		}
	}

	req := PayoutRequest{
		ID:             uuid.NewString(),
		MentorID:       mentorID,
		Amount:         amount,
		PaymentMethod:  method,
		PaymentDetails: details,
		Status:         PayoutPending,
		RequestedAt:    s.Clock(),
	}
	if err := s.Store.SavePayout(ctx, req); err != nil {
		return PayoutRequest{}, err
	}

	// Earmark the funds now, not at approval time.
	desc := fmt.Sprintf("payout request %s (%s)", req.ID, method)
	if _, err := s.Ledger.Debit(ctx, mentorID, amount, desc, holdTransactionID(req.ID)); err != nil {
		// The request exists but the hold failed. Park it as rejected so
		// it cannot be approved against unheld funds.
		req.Status = PayoutRejected
		req.AdminNotes = "hold debit failed: " + err.Error()
		now := s.Clock()
		req.ProcessedAt = &now
		if uerr := s.Store.UpdatePayout(ctx, req); uerr != nil {
			s.Logger.Error("payout hold failed and request could not be parked",
				zap.String("payout_id", req.ID), zap.Error(uerr))
		}
		return PayoutRequest{}, err
	}

	metrics.PayoutsRequested.Inc()
	s.Notifier.Notify(ctx, mentorID, fmt.Sprintf("Payout request for %s received and pending review.", amount))
	return req, nil
}

// ResolvePayout finalizes a pending request. "paid" leaves the hold
// debit in place; "rejected" appends the compensating credit first (the
// deterministic id makes a retry safe), then flips the request.
func (s *PayoutService) ResolvePayout(ctx context.Context, requestID string, status PayoutStatus, notes string) (PayoutRequest, error) {
	if status != PayoutPaid && status != PayoutRejected {
		return PayoutRequest{}, ErrInvalidResolution
	}

	req, err := s.Store.PayoutByID(ctx, requestID)
	if err != nil {
		return PayoutRequest{}, err
	}
	if req.Status != PayoutPending {
		return PayoutRequest{}, ErrPayoutResolved
	}

	if status == PayoutRejected {
		desc := fmt.Sprintf("payout request %s rejected: refund", req.ID)
		_, err := s.Ledger.Credit(ctx, req.MentorID, req.Amount, desc, refundTransactionID(req.ID))
		if err != nil && !errors.Is(err, ErrDuplicateTransaction) {
			return PayoutRequest{}, err
		}
	}

	req.Status = status
	req.AdminNotes = notes
	now := s.Clock()
	req.ProcessedAt = &now
	if err := s.Store.UpdatePayout(ctx, req); err != nil {
		return PayoutRequest{}, err
	}

	metrics.PayoutsResolved.WithLabelValues(string(status)).Inc()
	switch status {
	case PayoutPaid:
		s.Notifier.Notify(ctx, req.MentorID, fmt.Sprintf("Payout of %s was paid out.", req.Amount))
	case PayoutRejected:
		s.Notifier.Notify(ctx, req.MentorID, fmt.Sprintf("Payout of %s was rejected and refunded to your balance.", req.Amount))
	}
	return req, nil
}

// ListPayouts returns a page of requests, optionally filtered by status.
func (s *PayoutService) ListPayouts(ctx context.Context, status *PayoutStatus, p Page) ([]PayoutRequest, int, error) {
	return s.Store.Payouts(ctx, status, p.Normalize())
}
