/*
service.go - Booking lifecycle orchestration

PURPOSE:
  Enforces the state machine (pending -> completed | cancelled) and the
  reschedule sub-protocol, coordinating booking writes with the
  availability store's conflict guard.

ATOMICITY OF RESCHEDULE ACCEPT:
  The order of operations is reserve-new, move-booking, release-old.
  Reserving first means a lost race fails fast and touches nothing.
  Releasing last means the worst interleaving leaves the OLD slot
  briefly still marked booked (harmless: it only blocks a sale), never
  the booking split across two slots.

SIDE EFFECTS:
  Slot releases and review write-backs are best-effort with respect to
  the booking write: once the booking record has transitioned, a
  failing availability write is logged, not propagated, because the
  booking is the fact record.

SEE ALSO:
  - types.go: state machine definition
  - schedule/store.go: Reserve/Release contract
*/
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/mentorbook/notify"
	"github.com/warp/mentorbook/schedule"
)

// Service drives bookings through their lifecycle.
type Service struct {
	Bookings Store
	Slots    schedule.Store
	Notifier notify.Notifier
	Logger   *zap.Logger
	Clock    func() time.Time
}

// NewService wires the lifecycle service. Notifier and logger may be nil.
func NewService(bookings Store, slots schedule.Store, n notify.Notifier, logger *zap.Logger) *Service {
	if n == nil {
		n = notify.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Bookings: bookings,
		Slots:    slots,
		Notifier: n,
		Logger:   logger,
		Clock:    time.Now,
	}
}

// =============================================================================
// CANCEL / COMPLETE
// =============================================================================

// Cancel moves a pending booking to cancelled and frees its slot so
// the time becomes sellable again. Either party may cancel; a reason
// is mandatory.
func (s *Service) Cancel(ctx context.Context, bookingID, actorID, reason string) (Booking, error) {
	if reason == "" {
		return Booking{}, ErrReasonRequired
	}

	b, err := s.Bookings.BookingByID(ctx, bookingID)
	if err != nil {
		return Booking{}, err
	}
	party, ok := b.Participant(actorID)
	if !ok {
		return Booking{}, ErrNotParticipant
	}
	if b.Status != StatusPending {
		return Booking{}, &StateError{BookingID: b.ID, Status: b.Status, Action: "cancel"}
	}

	b.Status = StatusCancelled
	b.CancellationReason = reason
	b.UpdatedAt = s.Clock()
	if err := s.Bookings.UpdateBooking(ctx, b); err != nil {
		return Booking{}, err
	}

	if err := s.Slots.Release(ctx, b.MentorID, b.Date, b.StartTime, b.EndTime); err != nil {
		s.Logger.Warn("cancelled booking but slot release failed",
			zap.String("booking_id", b.ID), zap.Error(err))
	}

	s.notifyCounterparty(ctx, b, party,
		fmt.Sprintf("Your session on %s %s was cancelled: %s", b.Date, b.StartTime, reason))
	return b, nil
}

// Complete moves a pending booking to completed. Mentor only. Feedback
// and optional scores are written to the booking and mirrored onto the
// slot's review fields.
func (s *Service) Complete(ctx context.Context, bookingID, actorID, feedback string, practical, theory *int) (Booking, error) {
	b, err := s.Bookings.BookingByID(ctx, bookingID)
	if err != nil {
		return Booking{}, err
	}
	party, ok := b.Participant(actorID)
	if !ok {
		return Booking{}, ErrNotParticipant
	}
	if party != PartyMentor {
		return Booking{}, ErrMentorOnly
	}
	if b.Status != StatusPending {
		return Booking{}, &StateError{BookingID: b.ID, Status: b.Status, Action: "complete"}
	}

	b.Status = StatusCompleted
	b.Feedback = feedback
	b.UpdatedAt = s.Clock()
	if err := s.Bookings.UpdateBooking(ctx, b); err != nil {
		return Booking{}, err
	}

	review := schedule.SlotReview{
		Status:         schedule.ReviewCompleted,
		PracticalScore: practical,
		TheoryScore:    theory,
		Feedback:       feedback,
	}
	if err := s.Slots.ReviewSlot(ctx, b.MentorID, b.Date, b.StartTime, b.EndTime, review); err != nil {
		s.Logger.Warn("completed booking but slot review write failed",
			zap.String("booking_id", b.ID), zap.Error(err))
	}

	s.Notifier.Notify(ctx, b.UserID,
		fmt.Sprintf("Your session on %s %s was marked completed.", b.Date, b.StartTime))
	return b, nil
}

// UpdateFeedback edits feedback on a completed booking. This is the
// only mutation a terminal state admits.
func (s *Service) UpdateFeedback(ctx context.Context, bookingID, actorID, feedback string) (Booking, error) {
	b, err := s.Bookings.BookingByID(ctx, bookingID)
	if err != nil {
		return Booking{}, err
	}
	party, ok := b.Participant(actorID)
	if !ok {
		return Booking{}, ErrNotParticipant
	}
	if party != PartyMentor {
		return Booking{}, ErrMentorOnly
	}
	if b.Status != StatusCompleted {
		return Booking{}, &StateError{BookingID: b.ID, Status: b.Status, Action: "edit feedback on"}
	}

	b.Feedback = feedback
	b.UpdatedAt = s.Clock()
	if err := s.Bookings.UpdateBooking(ctx, b); err != nil {
		return Booking{}, err
	}
	return b, nil
}

// =============================================================================
// RESCHEDULE SUB-PROTOCOL
// =============================================================================

// RequestReschedule appends a pending reschedule request to a pending
// booking. Completed/cancelled bookings reject new requests.
func (s *Service) RequestReschedule(ctx context.Context, bookingID, actorID, newDate, newStart, newEnd, reason string) (Booking, error) {
	if _, err := schedule.ParseDate(newDate); err != nil {
		return Booking{}, err
	}
	target := schedule.TimeSlot{StartTime: newStart, EndTime: newEnd}
	if err := target.Validate(); err != nil {
		return Booking{}, err
	}

	b, err := s.Bookings.BookingByID(ctx, bookingID)
	if err != nil {
		return Booking{}, err
	}
	party, ok := b.Participant(actorID)
	if !ok {
		return Booking{}, ErrNotParticipant
	}
	if b.Status != StatusPending {
		return Booking{}, &StateError{BookingID: b.ID, Status: b.Status, Action: "reschedule"}
	}

	b.Reschedules = append(b.Reschedules, RescheduleRequest{
		Requester:    party,
		NewDate:      newDate,
		NewStartTime: newStart,
		NewEndTime:   newEnd,
		Reason:       reason,
		Status:       RescheduleOpen,
		RequestedAt:  s.Clock(),
	})
	b.UpdatedAt = s.Clock()
	if err := s.Bookings.UpdateBooking(ctx, b); err != nil {
		return Booking{}, err
	}

	s.notifyCounterparty(ctx, b, party,
		fmt.Sprintf("Reschedule requested for your session on %s %s -> %s %s.",
			b.Date, b.StartTime, newDate, newStart))
	return b, nil
}

// RespondReschedule decides the request at the given index. Only the
// counterparty of the requester may respond. Acceptance reserves the
// new slot before anything else; a conflict leaves the booking on its
// original slot, unchanged.
func (s *Service) RespondReschedule(ctx context.Context, bookingID, actorID string, index int, accept bool) (Booking, error) {
	b, err := s.Bookings.BookingByID(ctx, bookingID)
	if err != nil {
		return Booking{}, err
	}
	party, ok := b.Participant(actorID)
	if !ok {
		return Booking{}, ErrNotParticipant
	}
	if b.Status != StatusPending {
		return Booking{}, &StateError{BookingID: b.ID, Status: b.Status, Action: "respond to reschedule on"}
	}
	if index < 0 || index >= len(b.Reschedules) {
		return Booking{}, ErrRescheduleNotFound
	}
	req := b.Reschedules[index]
	if req.Status != RescheduleOpen {
		return Booking{}, ErrRescheduleResolved
	}
	if req.Requester == party {
		return Booking{}, ErrOwnRequest
	}

	if !accept {
		b.Reschedules[index].Status = RescheduleRejected
		b.UpdatedAt = s.Clock()
		if err := s.Bookings.UpdateBooking(ctx, b); err != nil {
			return Booking{}, err
		}
		s.notifyCounterparty(ctx, b, party, "Your reschedule request was declined.")
		return b, nil
	}

	// Reserve the new slot first. Losing the race here must not touch
	// the booking or the original slot.
	occ := schedule.Occupant{
		UserID:          b.UserID,
		TaskReferenceID: b.ID,
		RoomToken:       uuid.NewString(),
	}
	err = s.Slots.Reserve(ctx, b.MentorID, req.NewDate, req.NewStartTime, req.NewEndTime, occ)
	if err != nil {
		if errors.Is(err, schedule.ErrSlotTaken) {
			return Booking{}, &RescheduleConflictError{
				BookingID:    b.ID,
				NewDate:      req.NewDate,
				NewStartTime: req.NewStartTime,
				NewEndTime:   req.NewEndTime,
			}
		}
		return Booking{}, err
	}

	oldDate, oldStart, oldEnd := b.Date, b.StartTime, b.EndTime
	b.Reschedules[index].Status = RescheduleAccepted
	b.Date = req.NewDate
	b.StartTime = req.NewStartTime
	b.EndTime = req.NewEndTime
	b.UpdatedAt = s.Clock()
	if err := s.Bookings.UpdateBooking(ctx, b); err != nil {
		// Undo the reservation so the new slot is not stranded.
		if rerr := s.Slots.Release(ctx, b.MentorID, req.NewDate, req.NewStartTime, req.NewEndTime); rerr != nil {
			s.Logger.Error("reschedule rollback failed, new slot stranded booked",
				zap.String("booking_id", b.ID), zap.Error(rerr))
		}
		return Booking{}, err
	}

	if err := s.Slots.Release(ctx, b.MentorID, oldDate, oldStart, oldEnd); err != nil {
		s.Logger.Warn("rescheduled booking but old slot release failed",
			zap.String("booking_id", b.ID), zap.Error(err))
	}

	s.notifyCounterparty(ctx, b, party,
		fmt.Sprintf("Your session moved to %s %s-%s.", b.Date, b.StartTime, b.EndTime))
	return b, nil
}

// =============================================================================
// READ VIEWS
// =============================================================================

// ListForUser returns the user's bookings with derived display state.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]View, error) {
	bs, err := s.Bookings.BookingsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.views(bs), nil
}

// ListForMentor returns the mentor's bookings with derived display state.
func (s *Service) ListForMentor(ctx context.Context, mentorID string) ([]View, error) {
	bs, err := s.Bookings.BookingsByMentor(ctx, mentorID)
	if err != nil {
		return nil, err
	}
	return s.views(bs), nil
}

// Get returns one booking with derived display state.
func (s *Service) Get(ctx context.Context, bookingID string) (View, error) {
	b, err := s.Bookings.BookingByID(ctx, bookingID)
	if err != nil {
		return View{}, err
	}
	return View{Booking: b, DisplayState: ComputeDisplayState(b, s.Clock())}, nil
}

func (s *Service) views(bs []Booking) []View {
	now := s.Clock()
	views := make([]View, len(bs))
	for i, b := range bs {
		views[i] = View{Booking: b, DisplayState: ComputeDisplayState(b, now)}
	}
	return views
}

func (s *Service) notifyCounterparty(ctx context.Context, b Booking, actor Party, message string) {
	target := b.UserID
	if actor == PartyUser {
		target = b.MentorID
	}
	s.Notifier.Notify(ctx, target, message)
}
