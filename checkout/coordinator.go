/*
coordinator.go - Payment-gated slot commitment

PURPOSE:
  Bridges the payment provider and the conflict guard:

  BeginCheckout: read-only availability fail-fast, then a provider
  session. NO reservation happens here - an abandoned checkout must
  have zero side effects on availability, and it does by construction.

  VerifyAndCommit: the commit point. Only after the provider reports
  "paid" does the coordinator re-check availability and call the
  conflict guard. The payment round trip can take minutes, so losing
  the slot meanwhile is an accepted, explicit failure mode: it
  surfaces as *SlotLostError with the amount and provider transaction
  id an external refund process needs. It is never swallowed.

IDEMPOTENCE:
  A session that already committed returns its booking again; the
  mentor's earnings credit uses a transaction id derived from the
  session id, so the ledger rejects a second credit even if two
  verify calls race past the committed check.

EARNINGS SPLIT:
  On commit the mentor is credited their share of the payment under a
  fixed platform fee (config, percent). The split is not configurable
  per request at this layer.

SEE ALSO:
  - schedule/store.go: Reserve contract (the serialization point)
  - ledger/ledger.go: idempotent credit
*/
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/mentorbook/booking"
	"github.com/warp/mentorbook/ledger"
	"github.com/warp/mentorbook/notify"
	"github.com/warp/mentorbook/pkg/metrics"
	"github.com/warp/mentorbook/schedule"
)

// =============================================================================
// CHECKOUT SESSION - Local record of an in-flight checkout
// =============================================================================

type SessionStatus string

const (
	SessionCreated   SessionStatus = "created"
	SessionCommitted SessionStatus = "committed"
	SessionSlotLost  SessionStatus = "slot_lost"
)

// CheckoutSession is this subsystem's record of a provider session.
// SlotLost sessions are kept for the refund audit trail.
type CheckoutSession struct {
	ID           string          `json:"id"`
	MentorID     string          `json:"mentor_id"`
	UserID       string          `json:"user_id"`
	Date         string          `json:"date"`
	StartTime    string          `json:"start_time"`
	EndTime      string          `json:"end_time"`
	Amount       decimal.Decimal `json:"amount"`
	Status       SessionStatus   `json:"status"`
	BookingID    string          `json:"booking_id,omitempty"`
	ProviderTxID string          `json:"provider_tx_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// SessionStore persists checkout sessions.
type SessionStore interface {
	SaveSession(ctx context.Context, s CheckoutSession) error

	// SessionByID returns ErrSessionNotFound for unknown ids.
	SessionByID(ctx context.Context, id string) (CheckoutSession, error)

	UpdateSession(ctx context.Context, s CheckoutSession) error

	// MarkSessionSlotLost moves a session to slot_lost unless it is
	// already committed, atomically with the status check. Returns
	// whether the transition applied; false means a concurrent verify
	// committed the session first.
	MarkSessionSlotLost(ctx context.Context, id, providerTxID string) (bool, error)
}

// earningTransactionID is deterministic per session: the ledger-side
// idempotency key for the mentor's credit.
func earningTransactionID(sessionID string) string { return "TXN-EARN-" + sessionID }

// sessionBookingID is deterministic per session so a retried or
// concurrent verify produces the same booking identity and can
// recognize its own reservation on the slot.
func sessionBookingID(sessionID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("booking:"+sessionID)).String()
}

// =============================================================================
// COORDINATOR
// =============================================================================

// Coordinator runs the begin/verify checkout protocol.
type Coordinator struct {
	Provider Provider
	Slots    schedule.Store
	Resolver *schedule.Resolver
	Bookings booking.Store
	Ledger   *ledger.Ledger
	Sessions SessionStore
	Notifier notify.Notifier
	Logger   *zap.Logger
	Clock    func() time.Time

	// PlatformFeePercent is the platform's cut of each payment (0-100).
	PlatformFeePercent decimal.Decimal

	SuccessURL string
	CancelURL  string
}

// Config carries the wiring for NewCoordinator.
type Config struct {
	Provider           Provider
	Slots              schedule.Store
	Bookings           booking.Store
	Ledger             *ledger.Ledger
	Sessions           SessionStore
	Notifier           notify.Notifier
	Logger             *zap.Logger
	PlatformFeePercent decimal.Decimal
	SuccessURL         string
	CancelURL          string
}

func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Coordinator{
		Provider:           cfg.Provider,
		Slots:              cfg.Slots,
		Resolver:           schedule.NewResolver(cfg.Slots),
		Bookings:           cfg.Bookings,
		Ledger:             cfg.Ledger,
		Sessions:           cfg.Sessions,
		Notifier:           cfg.Notifier,
		Logger:             cfg.Logger,
		Clock:              time.Now,
		PlatformFeePercent: cfg.PlatformFeePercent,
		SuccessURL:         cfg.SuccessURL,
		CancelURL:          cfg.CancelURL,
	}
}

// BeginParams describes a candidate slot purchase.
type BeginParams struct {
	MentorID  string
	UserID    string
	Date      string
	StartTime string
	EndTime   string
	Amount    decimal.Decimal
}

// BeginResult is what the caller needs to send the user to the provider.
type BeginResult struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

// BeginCheckout fails fast on an obviously-taken slot (read-only check)
// and creates the provider session. The slot is NOT reserved.
func (c *Coordinator) BeginCheckout(ctx context.Context, p BeginParams) (BeginResult, error) {
	if _, err := schedule.ParseDate(p.Date); err != nil {
		return BeginResult{}, err
	}
	slot := schedule.TimeSlot{StartTime: p.StartTime, EndTime: p.EndTime}
	if err := slot.Validate(); err != nil {
		return BeginResult{}, err
	}
	if !p.Amount.IsPositive() {
		return BeginResult{}, ErrInvalidAmount
	}

	free, err := c.Resolver.SlotFree(ctx, p.MentorID, p.Date, p.StartTime, p.EndTime)
	if err != nil {
		return BeginResult{}, err
	}
	if !free {
		metrics.SlotConflicts.Inc()
		return BeginResult{}, &schedule.SlotConflictError{
			MentorID: p.MentorID, Date: p.Date, StartTime: p.StartTime, EndTime: p.EndTime,
		}
	}

	ps, err := c.Provider.CreateSession(ctx, CreateSessionParams{
		LineItem:   fmt.Sprintf("Mentor session %s %s-%s", p.Date, p.StartTime, p.EndTime),
		Amount:     p.Amount,
		SuccessURL: c.SuccessURL,
		CancelURL:  c.CancelURL,
		Metadata: map[string]string{
			MetaMentorID:  p.MentorID,
			MetaUserID:    p.UserID,
			MetaDate:      p.Date,
			MetaStartTime: p.StartTime,
			MetaEndTime:   p.EndTime,
		},
	})
	if err != nil {
		return BeginResult{}, fmt.Errorf("create provider session: %w", err)
	}

	cs := CheckoutSession{
		ID:        ps.ID,
		MentorID:  p.MentorID,
		UserID:    p.UserID,
		Date:      p.Date,
		StartTime: p.StartTime,
		EndTime:   p.EndTime,
		Amount:    p.Amount,
		Status:    SessionCreated,
		CreatedAt: c.Clock(),
	}
	if err := c.Sessions.SaveSession(ctx, cs); err != nil {
		return BeginResult{}, err
	}

	metrics.CheckoutSessionsStarted.Inc()
	return BeginResult{SessionID: ps.ID, RedirectURL: ps.RedirectURL}, nil
}

// VerifyAndCommit converts a paid session into a confirmed booking.
// Idempotent for an already-committed session.
func (c *Coordinator) VerifyAndCommit(ctx context.Context, sessionID, userID string) (booking.Booking, error) {
	cs, err := c.Sessions.SessionByID(ctx, sessionID)
	if err != nil {
		return booking.Booking{}, err
	}
	if cs.UserID != "" && userID != "" && cs.UserID != userID {
		return booking.Booking{}, ErrWrongUser
	}
	if cs.Status == SessionCommitted {
		return c.Bookings.BookingByID(ctx, cs.BookingID)
	}

	ps, err := c.Provider.RetrieveSession(ctx, sessionID)
	if err != nil {
		return booking.Booking{}, err
	}
	if ps.PaymentStatus != ProviderPaid {
		return booking.Booking{}, ErrPaymentNotConfirmed
	}

	bookingID := sessionBookingID(cs.ID)
	occ := schedule.Occupant{
		UserID:          cs.UserID,
		TaskReferenceID: bookingID,
		RoomToken:       uuid.NewString(),
	}
	if err := c.Slots.Reserve(ctx, cs.MentorID, cs.Date, cs.StartTime, cs.EndTime, occ); err != nil {
		if errors.Is(err, schedule.ErrSlotTaken) {
			return c.slotLost(ctx, cs, ps)
		}
		return booking.Booking{}, err
	}

	now := c.Clock()
	b := booking.Booking{
		ID:            bookingID,
		MentorID:      cs.MentorID,
		UserID:        cs.UserID,
		Date:          cs.Date,
		StartTime:     cs.StartTime,
		EndTime:       cs.EndTime,
		PaymentStatus: booking.PaymentCompleted,
		Status:        booking.StatusPending,
		TotalPrice:    cs.Amount,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := c.Bookings.SaveBooking(ctx, b); err != nil {
		// Undo the reservation so the slot is not stranded booked.
		if rerr := c.Slots.Release(ctx, cs.MentorID, cs.Date, cs.StartTime, cs.EndTime); rerr != nil {
			c.Logger.Error("booking save failed and slot release failed, slot stranded",
				zap.String("session_id", cs.ID), zap.Error(rerr))
		}
		return booking.Booking{}, err
	}

	share := c.mentorShare(cs.Amount)
	desc := fmt.Sprintf("earnings for session %s %s-%s", cs.Date, cs.StartTime, cs.EndTime)
	if _, err := c.Ledger.Credit(ctx, cs.MentorID, share, desc, earningTransactionID(cs.ID)); err != nil {
		if !errors.Is(err, ledger.ErrDuplicateTransaction) {
			// Booking stands; the missing credit must be reconciled from
			// the session record. Loud log, not a rollback.
			c.Logger.Error("booking committed but mentor credit failed",
				zap.String("session_id", cs.ID),
				zap.String("booking_id", b.ID),
				zap.Error(err))
		}
	}

	cs.Status = SessionCommitted
	cs.BookingID = b.ID
	cs.ProviderTxID = ps.ID
	if err := c.Sessions.UpdateSession(ctx, cs); err != nil {
		c.Logger.Error("booking committed but session record update failed",
			zap.String("session_id", cs.ID), zap.Error(err))
	}

	metrics.BookingsConfirmed.Inc()
	c.Notifier.Notify(ctx, cs.UserID,
		fmt.Sprintf("Your session on %s %s-%s is confirmed.", cs.Date, cs.StartTime, cs.EndTime))
	c.Notifier.Notify(ctx, cs.MentorID,
		fmt.Sprintf("New session booked on %s %s-%s.", cs.Date, cs.StartTime, cs.EndTime))
	return b, nil
}

// slotLost handles "payment succeeded but slot taken meanwhile". The
// occupant may be this very session: a concurrent verify that won the
// reserve, or an earlier verify that crashed between the booking save
// and the session record update. Both resolve to the existing booking,
// never a refund.
func (c *Coordinator) slotLost(ctx context.Context, cs CheckoutSession, ps ProviderSession) (booking.Booking, error) {
	b, ok, err := c.Bookings.BookingBySlot(ctx, cs.MentorID, cs.Date, cs.StartTime, cs.EndTime)
	if err == nil && ok && b.ID == sessionBookingID(cs.ID) {
		cs.Status = SessionCommitted
		cs.BookingID = b.ID
		cs.ProviderTxID = ps.ID
		if uerr := c.Sessions.UpdateSession(ctx, cs); uerr != nil {
			c.Logger.Error("booking stands but session record update failed",
				zap.String("session_id", cs.ID), zap.Error(uerr))
		}
		return b, nil
	}

	marked, err := c.Sessions.MarkSessionSlotLost(ctx, cs.ID, ps.ID)
	if err != nil {
		c.Logger.Error("failed to record slot-lost session",
			zap.String("session_id", cs.ID), zap.Error(err))
	}
	if err == nil && !marked {
		// The race went the other way: a concurrent verify of this
		// session committed after our reserve attempt failed.
		latest, lerr := c.Sessions.SessionByID(ctx, cs.ID)
		if lerr == nil && latest.Status == SessionCommitted {
			return c.Bookings.BookingByID(ctx, latest.BookingID)
		}
	}

	metrics.PaymentsLostSlot.Inc()
	c.Logger.Warn("payment confirmed but slot lost, refund required",
		zap.String("session_id", cs.ID),
		zap.String("provider_tx_id", ps.ID),
		zap.String("amount", cs.Amount.String()))

	return booking.Booking{}, &SlotLostError{
		SessionID:    cs.ID,
		ProviderTxID: ps.ID,
		Amount:       cs.Amount,
	}
}

// mentorShare applies the fixed platform fee split, rounded to cents.
func (c *Coordinator) mentorShare(amount decimal.Decimal) decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	keep := hundred.Sub(c.PlatformFeePercent)
	return amount.Mul(keep).Div(hundred).Round(2)
}
