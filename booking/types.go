/*
Package booking drives a confirmed session through its lifecycle.

PURPOSE:
  A Booking is a fact record created only after external payment
  confirmation (see package checkout). From there the state machine is:

    pending -> completed  (mentor marks the session done, with feedback)
    pending -> cancelled  (either party, mandatory reason)

  completed and cancelled are terminal; the only mutation allowed on a
  terminal booking is editing feedback on a completed one.

RESCHEDULE SUB-PROTOCOL:
  Either party may attach a RescheduleRequest to a pending booking.
  Requests are append-only: they are decided, never deleted, giving a
  full audit trail. Accepting one moves the booking to the new slot
  atomically with respect to availability: the new slot is reserved
  first, and only then is the old slot released. A lost race leaves the
  original booking completely unchanged.

DISPLAY STATE:
  upcoming/completed/cancelled shown in read views is a pure function
  of (status, paymentStatus, date+time, now), computed at query time
  and never persisted, to avoid clock-skew drift.
*/
package booking

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/mentorbook/schedule"
)

// =============================================================================
// STATUS ENUMS
// =============================================================================

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Party identifies which side of a booking acted.
type Party string

const (
	PartyUser   Party = "user"
	PartyMentor Party = "mentor"
)

type RescheduleStatus string

const (
	RescheduleOpen     RescheduleStatus = "pending"
	RescheduleAccepted RescheduleStatus = "accepted"
	RescheduleRejected RescheduleStatus = "rejected"
)

// =============================================================================
// BOOKING
// =============================================================================

// RescheduleRequest is one entry in a booking's append-only reschedule
// log. Requests are never deleted.
type RescheduleRequest struct {
	Requester    Party            `json:"requester"`
	NewDate      string           `json:"new_date"`
	NewStartTime string           `json:"new_start_time"`
	NewEndTime   string           `json:"new_end_time"`
	Reason       string           `json:"reason"`
	Status       RescheduleStatus `json:"status"`
	RequestedAt  time.Time        `json:"requested_at"`
}

// Booking is a confirmed session. The (MentorID, Date, StartTime,
// EndTime) tuple at creation time serves as its idempotent-lookup
// identity.
type Booking struct {
	ID       string `json:"id"`
	MentorID string `json:"mentor_id"`
	UserID   string `json:"user_id"`

	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`

	PaymentStatus PaymentStatus   `json:"payment_status"`
	Status        Status          `json:"status"`
	TotalPrice    decimal.Decimal `json:"total_price"`

	Feedback           string `json:"feedback,omitempty"`
	CancellationReason string `json:"cancellation_reason,omitempty"`

	Reschedules []RescheduleRequest `json:"reschedule_requests"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Participant reports whether actorID is a party to the booking, and
// which side they are on.
func (b Booking) Participant(actorID string) (Party, bool) {
	switch actorID {
	case b.UserID:
		return PartyUser, true
	case b.MentorID:
		return PartyMentor, true
	}
	return "", false
}

// SessionEnd returns the wall-clock end of the session in loc.
func (b Booking) SessionEnd(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(schedule.DateLayout+" 15:04", b.Date+" "+b.EndTime, loc)
}

// =============================================================================
// DISPLAY STATE - Derived, never stored
// =============================================================================

type DisplayState string

const (
	DisplayUpcoming  DisplayState = "upcoming"
	DisplayCompleted DisplayState = "completed"
	DisplayCancelled DisplayState = "cancelled"
)

// ComputeDisplayState derives the read-view state from stored facts and
// the caller's clock. A pending booking whose session end has passed
// reads as completed even before the mentor marks it done.
func ComputeDisplayState(b Booking, now time.Time) DisplayState {
	if b.Status == StatusCancelled || b.PaymentStatus == PaymentFailed {
		return DisplayCancelled
	}
	if b.Status == StatusCompleted {
		return DisplayCompleted
	}
	end, err := b.SessionEnd(now.Location())
	if err != nil || now.Before(end) {
		return DisplayUpcoming
	}
	return DisplayCompleted
}

// View pairs a booking with its derived display state for read paths.
type View struct {
	Booking
	DisplayState DisplayState `json:"display_state"`
}
