package booking_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/mentorbook/booking"
	"github.com/warp/mentorbook/schedule"
	"github.com/warp/mentorbook/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// 2026-09-07 is a Monday, 2026-09-08 a Tuesday.
const (
	monday  = "2026-09-07"
	tuesday = "2026-09-08"
)

// newTestBooking builds a service with a confirmed pending booking on
// Monday 10:00, the state checkout leaves behind.
func newTestBooking(t *testing.T) (*booking.Service, *memory.Store, booking.Booking) {
	t.Helper()
	store := memory.New()
	ctx := context.Background()

	tmpl := schedule.WeeklyTemplate{
		"monday": {
			{StartTime: "10:00", EndTime: "11:00"},
			{StartTime: "11:00", EndTime: "12:00"},
		},
		"tuesday": {
			{StartTime: "14:00", EndTime: "15:00"},
		},
	}
	require.NoError(t, store.SaveTemplate(ctx, "mentor-1", tmpl))

	b := booking.Booking{
		ID:            "bk-1",
		MentorID:      "mentor-1",
		UserID:        "user-1",
		Date:          monday,
		StartTime:     "10:00",
		EndTime:       "11:00",
		PaymentStatus: booking.PaymentCompleted,
		Status:        booking.StatusPending,
		TotalPrice:    decimal.RequireFromString("80.00"),
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	require.NoError(t, store.Reserve(ctx, b.MentorID, b.Date, b.StartTime, b.EndTime,
		schedule.Occupant{UserID: b.UserID, TaskReferenceID: b.ID, RoomToken: "room-1"}))
	require.NoError(t, store.SaveBooking(ctx, b))

	return booking.NewService(store, store, nil, nil), store, b
}

// =============================================================================
// CANCEL TESTS
// =============================================================================

func TestCancel_ByUser_FreesSlot(t *testing.T) {
	// GIVEN: A pending booking on Monday 10:00
	// WHEN: The user cancels with a reason
	// THEN: The booking is cancelled and the slot is sellable again

	svc, store, b := newTestBooking(t)
	ctx := context.Background()

	cancelled, err := svc.Cancel(ctx, b.ID, "user-1", "can't make it")
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, cancelled.Status)
	assert.Equal(t, "can't make it", cancelled.CancellationReason)

	resolver := schedule.NewResolver(store)
	free, err := resolver.SlotFree(ctx, "mentor-1", monday, "10:00", "11:00")
	require.NoError(t, err)
	assert.True(t, free, "cancelled slot should be sellable again")
}

func TestCancel_ByMentor_Allowed(t *testing.T) {
	svc, _, b := newTestBooking(t)

	cancelled, err := svc.Cancel(context.Background(), b.ID, "mentor-1", "double booked myself")
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, cancelled.Status)
}

func TestCancel_WithoutReason_Rejected(t *testing.T) {
	svc, _, b := newTestBooking(t)

	_, err := svc.Cancel(context.Background(), b.ID, "user-1", "")
	assert.ErrorIs(t, err, booking.ErrReasonRequired)
}

func TestCancel_ByOutsider_Rejected(t *testing.T) {
	svc, _, b := newTestBooking(t)

	_, err := svc.Cancel(context.Background(), b.ID, "someone-else", "nope")
	assert.ErrorIs(t, err, booking.ErrNotParticipant)
}

func TestCancel_CompletedBooking_Rejected(t *testing.T) {
	svc, _, b := newTestBooking(t)
	ctx := context.Background()

	_, err := svc.Complete(ctx, b.ID, "mentor-1", "went well", nil, nil)
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, b.ID, "user-1", "changed my mind")
	require.Error(t, err)
	assert.ErrorIs(t, err, booking.ErrInvalidState)

	var stateErr *booking.StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, booking.StatusCompleted, stateErr.Status)
}

// =============================================================================
// COMPLETE TESTS
// =============================================================================

func TestComplete_WritesReviewToSlot(t *testing.T) {
	svc, store, b := newTestBooking(t)
	ctx := context.Background()

	practical, theory := 8, 9
	done, err := svc.Complete(ctx, b.ID, "mentor-1", "solid progress", &practical, &theory)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCompleted, done.Status)
	assert.Equal(t, "solid progress", done.Feedback)

	slots, ok, err := store.Override(ctx, "mentor-1", monday)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "10:00", slots[0].StartTime)
	assert.Equal(t, schedule.ReviewCompleted, slots[0].ReviewStatus)
	require.NotNil(t, slots[0].PracticalScore)
	assert.Equal(t, 8, *slots[0].PracticalScore)
	assert.Equal(t, "solid progress", slots[0].Feedback)
}

func TestComplete_ByUser_Rejected(t *testing.T) {
	svc, _, b := newTestBooking(t)

	_, err := svc.Complete(context.Background(), b.ID, "user-1", "I had fun", nil, nil)
	assert.ErrorIs(t, err, booking.ErrMentorOnly)
}

func TestComplete_Twice_Rejected(t *testing.T) {
	svc, _, b := newTestBooking(t)
	ctx := context.Background()

	_, err := svc.Complete(ctx, b.ID, "mentor-1", "done", nil, nil)
	require.NoError(t, err)

	_, err = svc.Complete(ctx, b.ID, "mentor-1", "done again", nil, nil)
	assert.ErrorIs(t, err, booking.ErrInvalidState)
}

func TestUpdateFeedback_OnCompleted_Allowed(t *testing.T) {
	svc, _, b := newTestBooking(t)
	ctx := context.Background()

	_, err := svc.Complete(ctx, b.ID, "mentor-1", "first pass", nil, nil)
	require.NoError(t, err)

	updated, err := svc.UpdateFeedback(ctx, b.ID, "mentor-1", "revised notes")
	require.NoError(t, err)
	assert.Equal(t, "revised notes", updated.Feedback)
}

func TestUpdateFeedback_OnPending_Rejected(t *testing.T) {
	svc, _, b := newTestBooking(t)

	_, err := svc.UpdateFeedback(context.Background(), b.ID, "mentor-1", "too early")
	assert.ErrorIs(t, err, booking.ErrInvalidState)
}

// =============================================================================
// RESCHEDULE TESTS
// =============================================================================

func TestReschedule_AcceptMovesBooking(t *testing.T) {
	// GIVEN: The user proposes Tuesday 14:00 and the mentor accepts
	// THEN: The booking moves, the old slot frees up, the new one books

	svc, store, b := newTestBooking(t)
	ctx := context.Background()

	_, err := svc.RequestReschedule(ctx, b.ID, "user-1", tuesday, "14:00", "15:00", "conflict at work")
	require.NoError(t, err)

	moved, err := svc.RespondReschedule(ctx, b.ID, "mentor-1", 0, true)
	require.NoError(t, err)
	assert.Equal(t, tuesday, moved.Date)
	assert.Equal(t, "14:00", moved.StartTime)
	assert.Equal(t, booking.RescheduleAccepted, moved.Reschedules[0].Status)

	resolver := schedule.NewResolver(store)
	free, err := resolver.SlotFree(ctx, "mentor-1", monday, "10:00", "11:00")
	require.NoError(t, err)
	assert.True(t, free, "old slot should be released")

	free, err = resolver.SlotFree(ctx, "mentor-1", tuesday, "14:00", "15:00")
	require.NoError(t, err)
	assert.False(t, free, "new slot should be booked")
}

func TestReschedule_RejectKeepsBooking(t *testing.T) {
	svc, _, b := newTestBooking(t)
	ctx := context.Background()

	_, err := svc.RequestReschedule(ctx, b.ID, "mentor-1", tuesday, "14:00", "15:00", "clinic visit")
	require.NoError(t, err)

	kept, err := svc.RespondReschedule(ctx, b.ID, "user-1", 0, false)
	require.NoError(t, err)
	assert.Equal(t, monday, kept.Date)
	assert.Equal(t, booking.RescheduleRejected, kept.Reschedules[0].Status)
}

func TestReschedule_AcceptLosesRace_BookingUntouched(t *testing.T) {
	// GIVEN: An open reschedule to Tuesday 14:00, but that slot gets
	//        booked by someone else first
	// WHEN: The mentor accepts
	// THEN: Conflict error; the booking stays exactly where it was

	svc, store, b := newTestBooking(t)
	ctx := context.Background()

	_, err := svc.RequestReschedule(ctx, b.ID, "user-1", tuesday, "14:00", "15:00", "moving day")
	require.NoError(t, err)

	require.NoError(t, store.Reserve(ctx, "mentor-1", tuesday, "14:00", "15:00",
		schedule.Occupant{UserID: "user-2", TaskReferenceID: "bk-2"}))

	_, err = svc.RespondReschedule(ctx, b.ID, "mentor-1", 0, true)
	require.Error(t, err)
	assert.True(t, schedule.IsConflict(err))

	var conflict *booking.RescheduleConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, tuesday, conflict.NewDate)

	current, err := store.BookingByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, monday, current.Date)
	assert.Equal(t, "10:00", current.StartTime)
	assert.Equal(t, booking.RescheduleOpen, current.Reschedules[0].Status)
}

func TestReschedule_RequesterCannotRespond(t *testing.T) {
	svc, _, b := newTestBooking(t)
	ctx := context.Background()

	_, err := svc.RequestReschedule(ctx, b.ID, "user-1", tuesday, "14:00", "15:00", "trip")
	require.NoError(t, err)

	_, err = svc.RespondReschedule(ctx, b.ID, "user-1", 0, true)
	assert.ErrorIs(t, err, booking.ErrOwnRequest)
}

func TestReschedule_ResolvedRequest_CannotBeAnsweredAgain(t *testing.T) {
	svc, _, b := newTestBooking(t)
	ctx := context.Background()

	_, err := svc.RequestReschedule(ctx, b.ID, "user-1", tuesday, "14:00", "15:00", "trip")
	require.NoError(t, err)
	_, err = svc.RespondReschedule(ctx, b.ID, "mentor-1", 0, false)
	require.NoError(t, err)

	_, err = svc.RespondReschedule(ctx, b.ID, "mentor-1", 0, true)
	assert.ErrorIs(t, err, booking.ErrRescheduleResolved)
}

func TestReschedule_UnknownIndex(t *testing.T) {
	svc, _, b := newTestBooking(t)

	_, err := svc.RespondReschedule(context.Background(), b.ID, "mentor-1", 3, true)
	assert.ErrorIs(t, err, booking.ErrRescheduleNotFound)
}

func TestReschedule_OnCancelledBooking_Rejected(t *testing.T) {
	svc, _, b := newTestBooking(t)
	ctx := context.Background()

	_, err := svc.Cancel(ctx, b.ID, "user-1", "done with this")
	require.NoError(t, err)

	_, err = svc.RequestReschedule(ctx, b.ID, "user-1", tuesday, "14:00", "15:00", "why not")
	assert.ErrorIs(t, err, booking.ErrInvalidState)
}

// =============================================================================
// DISPLAY STATE TESTS
// =============================================================================

func TestDisplayState_DerivedFromClock(t *testing.T) {
	svc, _, b := newTestBooking(t)

	// Before the session: upcoming.
	svc.Clock = func() time.Time {
		return time.Date(2026, time.September, 7, 9, 0, 0, 0, time.UTC)
	}
	v, err := svc.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.DisplayUpcoming, v.DisplayState)

	// After the session end, still pending in storage: reads completed.
	svc.Clock = func() time.Time {
		return time.Date(2026, time.September, 7, 12, 0, 0, 0, time.UTC)
	}
	v, err = svc.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.DisplayCompleted, v.DisplayState)

	stored, err := svc.Bookings.BookingByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPending, stored.Status, "display state is never persisted")
}

func TestDisplayState_CancelledWins(t *testing.T) {
	svc, _, b := newTestBooking(t)
	ctx := context.Background()

	_, err := svc.Cancel(ctx, b.ID, "user-1", "no longer needed")
	require.NoError(t, err)

	v, err := svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.DisplayCancelled, v.DisplayState)
}
