/*
store.go - Persistence contract for bookings
*/
package booking

import "context"

// Store persists bookings. A booking's reschedule log is part of the
// booking record and travels with it through Save/Update.
type Store interface {
	SaveBooking(ctx context.Context, b Booking) error

	// BookingByID returns ErrBookingNotFound for unknown ids.
	BookingByID(ctx context.Context, id string) (Booking, error)

	UpdateBooking(ctx context.Context, b Booking) error

	// BookingBySlot looks a booking up by its immutable creation identity
	// (mentor, date, start, end). ok=false means no booking holds that
	// slot; it is not an error.
	BookingBySlot(ctx context.Context, mentorID, date, start, end string) (Booking, bool, error)

	// BookingsByUser returns the user's bookings, newest session first.
	BookingsByUser(ctx context.Context, userID string) ([]Booking, error)

	// BookingsByMentor returns the mentor's bookings, newest session first.
	BookingsByMentor(ctx context.Context, mentorID string) ([]Booking, error)
}
