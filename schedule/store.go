/*
store.go - Persistence contract for availability data

PURPOSE:
  Defines the interface between scheduling logic and the database.
  Reserve is the conflict guard: the single serialization point for a
  (mentor,date,start,end) tuple. Implementations must make it ONE
  atomic conditional update at the storage layer, never a read-then-
  write pair in application code.

LAZY MATERIALIZATION:
  A date has no override document until the first edit or booking of
  that date. Reserve materializes the override from the weekly template
  inside the same atomic unit, then applies the booked=false condition.
  Exposing this as one operation removes the read-then-write race.

IMPLEMENTATIONS:
  - store/memory:   mutex-guarded maps (tests, dev)
  - store/sqlite:   conditional UPDATE inside an immediate transaction
  - store/postgres: conditional UPDATE; the row lock picks the winner

SEE ALSO:
  - resolver.go: read-only consumer of this interface
*/
package schedule

import "context"

// Store handles persistence of weekly templates and date overrides.
//
// Guarantee required of every implementation: of two concurrent Reserve
// calls for the same (mentor,date,start,end), exactly one succeeds and
// the other observes ErrSlotTaken.
type Store interface {
	// Template returns the mentor's weekly template.
	// Returns ErrMentorNotFound if the mentor has no availability record.
	Template(ctx context.Context, mentorID string) (WeeklyTemplate, error)

	// SaveTemplate replaces the mentor's weekly template.
	// Creates the mentor's availability record if absent.
	SaveTemplate(ctx context.Context, mentorID string, t WeeklyTemplate) error

	// Override returns the slot list for a specific date and whether an
	// override exists for it. (nil, false, nil) means "no override, fall
	// back to the template" - not an error.
	Override(ctx context.Context, mentorID, date string) ([]TimeSlot, bool, error)

	// SaveOverride replaces the override for one date. An empty slot list
	// is a valid override (the mentor closed the day).
	SaveOverride(ctx context.Context, mentorID, date string, slots []TimeSlot) error

	// Reserve atomically flips the matching slot's booked flag from false
	// to true and records the occupant, materializing the date's override
	// from the weekly template first if necessary.
	//
	// Failure modes are distinct by contract:
	//   ErrSlotTaken      - slot exists but was already booked
	//   ErrSlotNotFound   - no slot matches (date,start,end)
	//   ErrMentorNotFound - mentor has no availability at all
	Reserve(ctx context.Context, mentorID, date, start, end string, occ Occupant) error

	// Release flips a booked slot back to free and clears its occupant.
	// Returns ErrSlotNotBooked if the slot is not currently booked.
	Release(ctx context.Context, mentorID, date, start, end string) error

	// ReviewSlot records post-session review data on a booked slot.
	ReviewSlot(ctx context.Context, mentorID, date, start, end string, review SlotReview) error
}
