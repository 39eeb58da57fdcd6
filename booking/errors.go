/*
errors.go - Error types for the booking lifecycle
*/
package booking

import (
	"errors"
	"fmt"

	"github.com/warp/mentorbook/schedule"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrBookingNotFound is returned for unknown booking ids.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrInvalidState is returned for transitions out of a terminal or
	// mismatched state (e.g. completing a cancelled booking).
	ErrInvalidState = errors.New("invalid booking state for this action")

	// ErrNotParticipant is returned when the actor is neither the
	// booking's user nor its mentor.
	ErrNotParticipant = errors.New("actor is not a participant of this booking")

	// ErrMentorOnly is returned when a user attempts a mentor-only action.
	ErrMentorOnly = errors.New("only the mentor may perform this action")

	// ErrReasonRequired is returned when a cancellation has no reason.
	ErrReasonRequired = errors.New("cancellation reason required")

	// ErrRescheduleNotFound is returned for an unknown reschedule index.
	ErrRescheduleNotFound = errors.New("reschedule request not found")

	// ErrRescheduleResolved is returned when responding to a request that
	// was already accepted or rejected.
	ErrRescheduleResolved = errors.New("reschedule request already resolved")

	// ErrOwnRequest is returned when the requester tries to answer their
	// own reschedule request. Acceptance must be mutual.
	ErrOwnRequest = errors.New("cannot respond to own reschedule request")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// StateError reports which transition was refused.
type StateError struct {
	BookingID string
	Status    Status
	Action    string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s booking %s in status %q", e.Action, e.BookingID, e.Status)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

// RescheduleConflictError means the accepted target slot was taken in
// the meantime. The original booking is left unchanged; the user sees
// "slot no longer available".
type RescheduleConflictError struct {
	BookingID    string
	NewDate      string
	NewStartTime string
	NewEndTime   string
}

func (e *RescheduleConflictError) Error() string {
	return fmt.Sprintf("reschedule target %s %s-%s for booking %s is no longer available",
		e.NewDate, e.NewStartTime, e.NewEndTime, e.BookingID)
}

func (e *RescheduleConflictError) Unwrap() error { return schedule.ErrSlotTaken }
