/*
Package memory provides an in-memory implementation of every storage
interface in the subsystem (schedule, booking, checkout session,
ledger, payout). Used by tests and the dev loop.

All operations take a single mutex, which trivially satisfies the
conflict guard's exactly-one-winner guarantee: two concurrent Reserve
calls serialize, and the second sees booked=true.
*/
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/mentorbook/booking"
	"github.com/warp/mentorbook/checkout"
	"github.com/warp/mentorbook/ledger"
	"github.com/warp/mentorbook/schedule"
)

// Store implements schedule.Store, booking.Store, ledger.Store,
// ledger.PayoutStore and checkout.SessionStore.
type Store struct {
	mu sync.Mutex

	templates map[string]schedule.WeeklyTemplate
	overrides map[string]map[string][]schedule.TimeSlot

	bookings map[string]booking.Booking

	entries map[string][]ledger.Entry
	txnIDs  map[string]bool

	payouts     map[string]ledger.PayoutRequest
	payoutOrder []string

	sessions map[string]checkout.CheckoutSession
}

func New() *Store {
	return &Store{
		templates: make(map[string]schedule.WeeklyTemplate),
		overrides: make(map[string]map[string][]schedule.TimeSlot),
		bookings:  make(map[string]booking.Booking),
		entries:   make(map[string][]ledger.Entry),
		txnIDs:    make(map[string]bool),
		payouts:   make(map[string]ledger.PayoutRequest),
		sessions:  make(map[string]checkout.CheckoutSession),
	}
}

// =============================================================================
// schedule.Store
// =============================================================================

func (m *Store) Template(_ context.Context, mentorID string) (schedule.WeeklyTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.templates[mentorID]
	if !ok {
		return nil, schedule.ErrMentorNotFound
	}
	out := make(schedule.WeeklyTemplate, len(t))
	for day, slots := range t {
		out[day] = copySlots(slots)
	}
	return out, nil
}

func (m *Store) SaveTemplate(_ context.Context, mentorID string, t schedule.WeeklyTemplate) error {
	if err := t.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := make(schedule.WeeklyTemplate, len(t))
	for day, slots := range t {
		cp := copySlots(slots)
		schedule.SortSlots(cp)
		saved[day] = cp
	}
	m.templates[mentorID] = saved
	return nil
}

func (m *Store) Override(_ context.Context, mentorID, date string) ([]schedule.TimeSlot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slots, ok := m.overrides[mentorID][date]
	if !ok {
		return nil, false, nil
	}
	return copySlots(slots), true, nil
}

func (m *Store) SaveOverride(_ context.Context, mentorID, date string, slots []schedule.TimeSlot) error {
	if _, err := schedule.ParseDate(date); err != nil {
		return err
	}
	if err := schedule.ValidateDaySlots(slots); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.overrides[mentorID] == nil {
		m.overrides[mentorID] = make(map[string][]schedule.TimeSlot)
	}
	cp := copySlots(slots)
	schedule.SortSlots(cp)
	m.overrides[mentorID][date] = cp
	return nil
}

func (m *Store) Reserve(_ context.Context, mentorID, date, start, end string, occ schedule.Occupant) error {
	day, err := schedule.ParseDate(date)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	slots, ok := m.overrides[mentorID][date]
	if !ok {
		// Lazy materialization: first booking of this date copies the
		// weekly template into an override, atomically with the reserve.
		tmpl, hasTmpl := m.templates[mentorID]
		if !hasTmpl {
			return schedule.ErrMentorNotFound
		}
		slots = copySlots(tmpl[schedule.WeekdayName(day.Weekday())])
		if m.overrides[mentorID] == nil {
			m.overrides[mentorID] = make(map[string][]schedule.TimeSlot)
		}
		m.overrides[mentorID][date] = slots
	}

	for i, s := range slots {
		if s.StartTime != start || s.EndTime != end {
			continue
		}
		if s.Booked {
			return &schedule.SlotConflictError{MentorID: mentorID, Date: date, StartTime: start, EndTime: end}
		}
		slots[i].Booked = true
		slots[i].OccupantUserID = occ.UserID
		slots[i].TaskReferenceID = occ.TaskReferenceID
		slots[i].RoomToken = occ.RoomToken
		slots[i].ReviewStatus = schedule.ReviewPending
		return nil
	}
	return schedule.ErrSlotNotFound
}

func (m *Store) Release(_ context.Context, mentorID, date, start, end string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	slots, ok := m.overrides[mentorID][date]
	if !ok {
		return schedule.ErrSlotNotFound
	}
	for i, s := range slots {
		if s.StartTime != start || s.EndTime != end {
			continue
		}
		if !s.Booked {
			return schedule.ErrSlotNotBooked
		}
		slots[i] = schedule.TimeSlot{StartTime: s.StartTime, EndTime: s.EndTime}
		return nil
	}
	return schedule.ErrSlotNotFound
}

func (m *Store) ReviewSlot(_ context.Context, mentorID, date, start, end string, review schedule.SlotReview) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	slots, ok := m.overrides[mentorID][date]
	if !ok {
		return schedule.ErrSlotNotFound
	}
	for i, s := range slots {
		if s.StartTime != start || s.EndTime != end {
			continue
		}
		if !s.Booked {
			return schedule.ErrSlotNotBooked
		}
		slots[i].ReviewStatus = review.Status
		slots[i].PracticalScore = review.PracticalScore
		slots[i].TheoryScore = review.TheoryScore
		slots[i].Feedback = review.Feedback
		return nil
	}
	return schedule.ErrSlotNotFound
}

func copySlots(slots []schedule.TimeSlot) []schedule.TimeSlot {
	cp := make([]schedule.TimeSlot, len(slots))
	copy(cp, slots)
	return cp
}

// =============================================================================
// booking.Store
// =============================================================================

func (m *Store) SaveBooking(_ context.Context, b booking.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[b.ID] = copyBooking(b)
	return nil
}

func (m *Store) BookingByID(_ context.Context, id string) (booking.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return booking.Booking{}, booking.ErrBookingNotFound
	}
	return copyBooking(b), nil
}

func (m *Store) UpdateBooking(_ context.Context, b booking.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bookings[b.ID]; !ok {
		return booking.ErrBookingNotFound
	}
	m.bookings[b.ID] = copyBooking(b)
	return nil
}

func (m *Store) BookingBySlot(_ context.Context, mentorID, date, start, end string) (booking.Booking, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.bookings {
		if b.MentorID == mentorID && b.Date == date && b.StartTime == start && b.EndTime == end {
			return copyBooking(b), true, nil
		}
	}
	return booking.Booking{}, false, nil
}

func (m *Store) BookingsByUser(_ context.Context, userID string) ([]booking.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectBookings(func(b booking.Booking) bool { return b.UserID == userID }), nil
}

func (m *Store) BookingsByMentor(_ context.Context, mentorID string) ([]booking.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectBookings(func(b booking.Booking) bool { return b.MentorID == mentorID }), nil
}

func (m *Store) selectBookings(keep func(booking.Booking) bool) []booking.Booking {
	var out []booking.Booking
	for _, b := range m.bookings {
		if keep(b) {
			out = append(out, copyBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].StartTime > out[j].StartTime
	})
	return out
}

func copyBooking(b booking.Booking) booking.Booking {
	cp := b
	cp.Reschedules = make([]booking.RescheduleRequest, len(b.Reschedules))
	copy(cp.Reschedules, b.Reschedules)
	return cp
}

// =============================================================================
// ledger.Store
// =============================================================================

func (m *Store) AppendEntry(_ context.Context, e ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.txnIDs[e.TransactionID] {
		return ledger.ErrDuplicateTransaction
	}
	m.txnIDs[e.TransactionID] = true
	m.entries[e.MentorID] = append(m.entries[e.MentorID], e)
	return nil
}

func (m *Store) Entries(_ context.Context, mentorID string, p ledger.Page) ([]ledger.Entry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.entries[mentorID]
	total := len(all)

	// Newest first: entries were appended chronologically.
	newest := make([]ledger.Entry, total)
	for i, e := range all {
		newest[total-1-i] = e
	}

	start := p.Offset()
	if start >= total {
		return []ledger.Entry{}, total, nil
	}
	end := start + p.PerPage
	if end > total {
		end = total
	}
	return newest[start:end], total, nil
}

func (m *Store) Balance(_ context.Context, mentorID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	balance := decimal.Zero
	for _, e := range m.entries[mentorID] {
		switch e.Type {
		case ledger.EntryCredit:
			balance = balance.Add(e.Amount)
		case ledger.EntryDebit:
			balance = balance.Sub(e.Amount)
		}
	}
	return balance, nil
}

// =============================================================================
// ledger.PayoutStore
// =============================================================================

func (m *Store) SavePayout(_ context.Context, p ledger.PayoutRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.payouts[p.ID]; !ok {
		m.payoutOrder = append(m.payoutOrder, p.ID)
	}
	m.payouts[p.ID] = p
	return nil
}

func (m *Store) PayoutByID(_ context.Context, id string) (ledger.PayoutRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payouts[id]
	if !ok {
		return ledger.PayoutRequest{}, ledger.ErrPayoutNotFound
	}
	return p, nil
}

func (m *Store) UpdatePayout(_ context.Context, p ledger.PayoutRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.payouts[p.ID]; !ok {
		return ledger.ErrPayoutNotFound
	}
	m.payouts[p.ID] = p
	return nil
}

func (m *Store) Payouts(_ context.Context, status *ledger.PayoutStatus, p ledger.Page) ([]ledger.PayoutRequest, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []ledger.PayoutRequest
	for i := len(m.payoutOrder) - 1; i >= 0; i-- {
		req := m.payouts[m.payoutOrder[i]]
		if status != nil && req.Status != *status {
			continue
		}
		all = append(all, req)
	}

	total := len(all)
	start := p.Offset()
	if start >= total {
		return []ledger.PayoutRequest{}, total, nil
	}
	end := start + p.PerPage
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

// =============================================================================
// checkout.SessionStore
// =============================================================================

func (m *Store) SaveSession(_ context.Context, s checkout.CheckoutSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *Store) SessionByID(_ context.Context, id string) (checkout.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return checkout.CheckoutSession{}, checkout.ErrSessionNotFound
	}
	return s, nil
}

func (m *Store) UpdateSession(_ context.Context, s checkout.CheckoutSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; !ok {
		return checkout.ErrSessionNotFound
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *Store) MarkSessionSlotLost(_ context.Context, id, providerTxID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return false, checkout.ErrSessionNotFound
	}
	if s.Status == checkout.SessionCommitted {
		return false, nil
	}
	s.Status = checkout.SessionSlotLost
	s.ProviderTxID = providerTxID
	m.sessions[id] = s
	return true, nil
}
