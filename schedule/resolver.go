/*
resolver.go - Effective availability over a date range

PURPOSE:
  Merges date overrides with the weekly template into the view a
  browsing user sees. For each date in the range:

    override exists  -> its unbooked slots, verbatim
    no override      -> the template entry for that weekday, unbooked only
    unknown weekday  -> empty list (not an error)

  Override is all-or-nothing per date; the two layers are never merged.

READ-ONLY:
  Resolve and SlotFree never mutate state, so they are safe under
  concurrent high-traffic browsing. Reservation is Store.Reserve's job.
*/
package schedule

import "context"

// Resolver computes the effective available/booked view for a mentor.
type Resolver struct {
	Store Store
}

// NewResolver creates a resolver over the given store.
func NewResolver(store Store) *Resolver {
	return &Resolver{Store: store}
}

// Resolve returns one DayAvailability per date, walking [from, to]
// inclusively. Dates are wire-format strings (DateLayout).
func (r *Resolver) Resolve(ctx context.Context, mentorID, from, to string) ([]DayAvailability, error) {
	fromDay, err := ParseDate(from)
	if err != nil {
		return nil, err
	}
	toDay, err := ParseDate(to)
	if err != nil {
		return nil, err
	}
	if toDay.Before(fromDay) {
		return nil, ErrInvalidDateRange
	}

	tmpl, err := r.Store.Template(ctx, mentorID)
	if err != nil {
		return nil, err
	}

	var days []DayAvailability
	for d := fromDay; !d.After(toDay); d = d.AddDate(0, 0, 1) {
		date := d.Format(DateLayout)
		weekday := WeekdayName(d.Weekday())

		slots, err := r.effectiveSlots(ctx, mentorID, date, weekday, tmpl)
		if err != nil {
			return nil, err
		}

		days = append(days, DayAvailability{
			Date:      date,
			Weekday:   weekday,
			FreeSlots: FreeSlots(slots),
		})
	}
	return days, nil
}

// SlotFree reports whether (date,start,end) is present and unbooked in the
// mentor's effective availability. Used by checkout for its read-only
// fail-fast check; it grants nothing.
func (r *Resolver) SlotFree(ctx context.Context, mentorID, date, start, end string) (bool, error) {
	day, err := ParseDate(date)
	if err != nil {
		return false, err
	}

	tmpl, err := r.Store.Template(ctx, mentorID)
	if err != nil {
		return false, err
	}

	slots, err := r.effectiveSlots(ctx, mentorID, date, WeekdayName(day.Weekday()), tmpl)
	if err != nil {
		return false, err
	}

	for _, s := range slots {
		if s.StartTime == start && s.EndTime == end {
			return !s.Booked, nil
		}
	}
	return false, ErrSlotNotFound
}

func (r *Resolver) effectiveSlots(ctx context.Context, mentorID, date, weekday string, tmpl WeeklyTemplate) ([]TimeSlot, error) {
	override, ok, err := r.Store.Override(ctx, mentorID, date)
	if err != nil {
		return nil, err
	}
	if ok {
		return override, nil
	}
	return tmpl[weekday], nil
}
