/*
Package schedule models a mentor's bookable time.

PURPOSE:
  A mentor's availability is two layers of data:
  - WeeklyTemplate: recurring slots keyed by weekday name
  - DateOverride: a per-date slot list that entirely REPLACES the
    template for that date (all-or-nothing, never merged)

  The Resolver (resolver.go) computes the effective free view over a
  date range. The Store (store.go) owns persistence and the atomic
  reserve operation that prevents double-booking.

KEY TYPES IN THIS FILE:
  - TimeSlot: one bookable interval on one day, HH:mm wall-clock strings
  - WeeklyTemplate: weekday name -> ordered []TimeSlot
  - Occupant: who holds a booked slot
  - SlotReview: post-session review data written back to the slot

INVARIANTS:
  1. start < end is required; start == end is rejected
  2. Within one day's slot list, no two [start,end) ranges may overlap
  3. Overrides never expire; past overrides are a historical record

SEE ALSO:
  - resolver.go: effective availability over a date range
  - store.go: persistence contract including atomic Reserve
*/
package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// clockLayout is the wire format for slot times (zero-padded, 24h).
const clockLayout = "15:04"

// =============================================================================
// TIME SLOT
// =============================================================================

// ReviewStatus tracks the mentor's post-session review of a booked slot.
type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "pending"
	ReviewCompleted ReviewStatus = "completed"
)

// TimeSlot is a single bookable interval on a given day.
// Start and end are local wall-clock strings ("09:00", "17:30").
// The occupant fields are meaningful only when Booked is true.
type TimeSlot struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Booked    bool   `json:"booked"`

	// Set when the slot is reserved.
	OccupantUserID  string       `json:"occupant_user_id,omitempty"`
	TaskReferenceID string       `json:"task_reference_id,omitempty"`
	RoomToken       string       `json:"room_token,omitempty"`
	ReviewStatus    ReviewStatus `json:"review_status,omitempty"`

	// Set when the session is reviewed.
	PracticalScore *int   `json:"practical_score,omitempty"`
	TheoryScore    *int   `json:"theory_score,omitempty"`
	Feedback       string `json:"feedback,omitempty"`
}

// Validate checks the wall-clock format and the start < end invariant.
func (s TimeSlot) Validate() error {
	start, err := ParseClock(s.StartTime)
	if err != nil {
		return err
	}
	end, err := ParseClock(s.EndTime)
	if err != nil {
		return err
	}
	if start >= end {
		return &TimeRangeError{Start: s.StartTime, End: s.EndTime}
	}
	return nil
}

// Overlaps reports whether two slots' [start,end) ranges intersect.
// Both slots are assumed valid.
func (s TimeSlot) Overlaps(other TimeSlot) bool {
	aStart, _ := ParseClock(s.StartTime)
	aEnd, _ := ParseClock(s.EndTime)
	bStart, _ := ParseClock(other.StartTime)
	bEnd, _ := ParseClock(other.EndTime)
	return aStart < bEnd && bStart < aEnd
}

// ParseClock parses an HH:mm string into minutes since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Occupant identifies who holds a booked slot.
type Occupant struct {
	UserID          string
	TaskReferenceID string
	RoomToken       string
}

// SlotReview is the post-session data written back to a booked slot.
type SlotReview struct {
	Status         ReviewStatus
	PracticalScore *int
	TheoryScore    *int
	Feedback       string
}

// =============================================================================
// DAY COLLECTIONS
// =============================================================================

// ValidateDaySlots checks every slot in a single day's collection and the
// no-overlap invariant across the collection.
func ValidateDaySlots(slots []TimeSlot) error {
	for _, s := range slots {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	for i := 0; i < len(slots); i++ {
		for j := i + 1; j < len(slots); j++ {
			if slots[i].Overlaps(slots[j]) {
				return &OverlapError{
					First:  slots[i].StartTime + "-" + slots[i].EndTime,
					Second: slots[j].StartTime + "-" + slots[j].EndTime,
				}
			}
		}
	}
	return nil
}

// SortSlots orders a day's slots by start time, in place.
func SortSlots(slots []TimeSlot) {
	sort.Slice(slots, func(i, j int) bool {
		a, _ := ParseClock(slots[i].StartTime)
		b, _ := ParseClock(slots[j].StartTime)
		return a < b
	})
}

// FreeSlots returns the unbooked subset of a day's slots, in order.
func FreeSlots(slots []TimeSlot) []TimeSlot {
	free := make([]TimeSlot, 0, len(slots))
	for _, s := range slots {
		if !s.Booked {
			free = append(free, s)
		}
	}
	return free
}

// =============================================================================
// WEEKLY TEMPLATE
// =============================================================================

// WeeklyTemplate maps lowercase weekday names ("monday" .. "sunday") to an
// ordered slot list. Days absent from the map have no recurring availability.
type WeeklyTemplate map[string][]TimeSlot

var weekdayNames = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
}

// WeekdayName returns the lowercase template key for a weekday.
func WeekdayName(d time.Weekday) string {
	return strings.ToLower(d.String())
}

// Validate checks weekday keys and every day's slot collection.
func (t WeeklyTemplate) Validate() error {
	for day, slots := range t {
		if !weekdayNames[day] {
			return fmt.Errorf("%w: %q", ErrInvalidWeekday, day)
		}
		if err := ValidateDaySlots(slots); err != nil {
			return fmt.Errorf("weekday %s: %w", day, err)
		}
	}
	return nil
}

// ParseDate parses a calendar date in the wire format.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// DayAvailability is one element of a resolved date range.
type DayAvailability struct {
	Date      string     `json:"date"`
	Weekday   string     `json:"weekday"`
	FreeSlots []TimeSlot `json:"free_slots"`
}
