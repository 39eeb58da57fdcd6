/*
errors.go - Error types for the scheduling domain

PURPOSE:
  Sentinel errors for control flow plus structured errors carrying
  context. Callers branch with errors.Is / errors.As; the API layer
  maps them to HTTP statuses.

  ErrSlotTaken vs ErrSlotNotFound matters: a taken slot is rendered to
  the user as "slot just taken", a missing slot as a not-found. The
  conflict guard must never collapse the two.
*/
package schedule

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMentorNotFound is returned when the mentor has no availability
	// record at all (no template and no override for the date in question).
	ErrMentorNotFound = errors.New("mentor not found")

	// ErrSlotNotFound is returned when the (date,start,end) tuple matches
	// no slot in the mentor's effective availability.
	ErrSlotNotFound = errors.New("slot not found")

	// ErrSlotTaken is returned when a reserve attempt loses the race: the
	// slot exists but its booked flag was already set. Expected outcome,
	// not a system failure.
	ErrSlotTaken = errors.New("slot already booked")

	// ErrInvalidClock is returned for malformed HH:mm strings.
	ErrInvalidClock = errors.New("invalid time of day")

	// ErrInvalidTimeRange is returned when end <= start.
	ErrInvalidTimeRange = errors.New("invalid time range")

	// ErrOverlappingSlots is returned when a day's slot list contains
	// intersecting ranges.
	ErrOverlappingSlots = errors.New("overlapping slots")

	// ErrInvalidDate is returned for malformed calendar dates.
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvalidDateRange is returned when a range query has to before from.
	ErrInvalidDateRange = errors.New("invalid date range: to before from")

	// ErrInvalidWeekday is returned for unknown weekly template keys.
	ErrInvalidWeekday = errors.New("invalid weekday")

	// ErrSlotNotBooked is returned when releasing or reviewing a slot that
	// is not currently booked.
	ErrSlotNotBooked = errors.New("slot not booked")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// SlotConflictError identifies exactly which reservation lost the race.
type SlotConflictError struct {
	MentorID  string
	Date      string
	StartTime string
	EndTime   string
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("slot %s %s-%s for mentor %s is already booked",
		e.Date, e.StartTime, e.EndTime, e.MentorID)
}

func (e *SlotConflictError) Unwrap() error { return ErrSlotTaken }

// TimeRangeError reports an end <= start violation.
type TimeRangeError struct {
	Start string
	End   string
}

func (e *TimeRangeError) Error() string {
	return fmt.Sprintf("invalid time range: %s-%s", e.Start, e.End)
}

func (e *TimeRangeError) Unwrap() error { return ErrInvalidTimeRange }

// OverlapError reports two intersecting slots in one day collection.
type OverlapError struct {
	First  string
	Second string
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("overlapping slots: %s and %s", e.First, e.Second)
}

func (e *OverlapError) Unwrap() error { return ErrOverlappingSlots }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsConflict reports whether err is a lost reservation race.
func IsConflict(err error) bool { return errors.Is(err, ErrSlotTaken) }

// IsNotFound reports whether err is a missing mentor or slot.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMentorNotFound) || errors.Is(err, ErrSlotNotFound)
}

// IsValidation reports whether err is invalid client input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidClock) ||
		errors.Is(err, ErrInvalidTimeRange) ||
		errors.Is(err, ErrOverlappingSlots) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrInvalidDateRange) ||
		errors.Is(err, ErrInvalidWeekday)
}
