/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements schedule.Store, booking.Store, ledger.Store,
  ledger.PayoutStore and checkout.SessionStore on a single database,
  so verify-and-commit never spans two storage engines.

CONFLICT GUARD:
  Reserve runs inside one transaction:
    1. materialize the date's override from the weekly template if the
       date has no override yet (first-booking-of-a-date path)
    2. UPDATE ... SET booked=1 WHERE ... AND booked=0
  RowsAffected distinguishes the winner; a follow-up existence check
  distinguishes "taken" from "no such slot". Combined with the write
  mutex this yields exactly-one-winner for concurrent reserves.

APPEND-ONLY LEDGER:
  ledger_entries has no UPDATE or DELETE path. transaction_id is the
  PRIMARY KEY; a duplicate insert maps to ErrDuplicateTransaction.
  Balance loads the mentor's entries in one statement and folds them
  with decimal, giving a point-in-time consistent snapshot.

WAL MODE:
  Opened with WAL so slot reads don't block during booking writes.

SEE ALSO:
  - schedule/store.go: the contract Reserve must satisfy
  - store/postgres: same schema on PostgreSQL
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/mentorbook/booking"
	"github.com/warp/mentorbook/checkout"
	"github.com/warp/mentorbook/ledger"
	"github.com/warp/mentorbook/schedule"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a SQLite store. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps an in-memory database coherent and
	// sidesteps SQLITE_BUSY under the write mutex.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schemaSQL := `
	CREATE TABLE IF NOT EXISTS availability_templates (
		mentor_id     TEXT PRIMARY KEY,
		template_json TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS override_days (
		mentor_id  TEXT NOT NULL,
		date       TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (mentor_id, date)
	);

	CREATE TABLE IF NOT EXISTS override_slots (
		mentor_id         TEXT NOT NULL,
		date              TEXT NOT NULL,
		start_time        TEXT NOT NULL,
		end_time          TEXT NOT NULL,
		booked            INTEGER NOT NULL DEFAULT 0,
		occupant_user_id  TEXT NOT NULL DEFAULT '',
		task_reference_id TEXT NOT NULL DEFAULT '',
		room_token        TEXT NOT NULL DEFAULT '',
		review_status     TEXT NOT NULL DEFAULT '',
		practical_score   INTEGER,
		theory_score      INTEGER,
		feedback          TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (mentor_id, date, start_time, end_time)
	);

	CREATE TABLE IF NOT EXISTS bookings (
		id                  TEXT PRIMARY KEY,
		mentor_id           TEXT NOT NULL,
		user_id             TEXT NOT NULL,
		date                TEXT NOT NULL,
		start_time          TEXT NOT NULL,
		end_time            TEXT NOT NULL,
		payment_status      TEXT NOT NULL,
		status              TEXT NOT NULL,
		total_price         TEXT NOT NULL,
		feedback            TEXT NOT NULL DEFAULT '',
		cancellation_reason TEXT NOT NULL DEFAULT '',
		reschedules_json    TEXT NOT NULL DEFAULT '[]',
		created_at          TEXT NOT NULL,
		updated_at          TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_bookings_mentor ON bookings(mentor_id, date);
	CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings(user_id, date);
	CREATE INDEX IF NOT EXISTS idx_bookings_slot ON bookings(mentor_id, date, start_time, end_time);

	-- Append-only. No UPDATE or DELETE statement in this package touches it.
	CREATE TABLE IF NOT EXISTS ledger_entries (
		transaction_id TEXT PRIMARY KEY,
		mentor_id      TEXT NOT NULL,
		entry_date     TEXT NOT NULL,
		description    TEXT NOT NULL,
		amount         TEXT NOT NULL,
		entry_type     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ledger_mentor ON ledger_entries(mentor_id, entry_date);

	CREATE TABLE IF NOT EXISTS payout_requests (
		id              TEXT PRIMARY KEY,
		mentor_id       TEXT NOT NULL,
		amount          TEXT NOT NULL,
		payment_method  TEXT NOT NULL,
		payment_details TEXT NOT NULL,
		status          TEXT NOT NULL,
		requested_at    TEXT NOT NULL,
		processed_at    TEXT,
		admin_notes     TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_payouts_status ON payout_requests(status, requested_at);

	CREATE TABLE IF NOT EXISTS checkout_sessions (
		id             TEXT PRIMARY KEY,
		mentor_id      TEXT NOT NULL,
		user_id        TEXT NOT NULL,
		date           TEXT NOT NULL,
		start_time     TEXT NOT NULL,
		end_time       TEXT NOT NULL,
		amount         TEXT NOT NULL,
		status         TEXT NOT NULL,
		booking_id     TEXT NOT NULL DEFAULT '',
		provider_tx_id TEXT NOT NULL DEFAULT '',
		created_at     TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schemaSQL)
	return err
}

// =============================================================================
// schedule.Store
// =============================================================================

func (s *Store) Template(ctx context.Context, mentorID string) (schedule.WeeklyTemplate, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT template_json FROM availability_templates WHERE mentor_id = ?`, mentorID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, schedule.ErrMentorNotFound
	}
	if err != nil {
		return nil, err
	}

	var t schedule.WeeklyTemplate
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("corrupt template for mentor %s: %w", mentorID, err)
	}
	return t, nil
}

func (s *Store) SaveTemplate(ctx context.Context, mentorID string, t schedule.WeeklyTemplate) error {
	if err := t.Validate(); err != nil {
		return err
	}
	for day := range t {
		schedule.SortSlots(t[day])
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO availability_templates (mentor_id, template_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(mentor_id) DO UPDATE SET template_json = excluded.template_json, updated_at = excluded.updated_at`,
		mentorID, string(raw), time.Now().UTC().Format(time.RFC3339))
	return err
}

func (s *Store) Override(ctx context.Context, mentorID, date string) ([]schedule.TimeSlot, bool, error) {
	var present int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM override_days WHERE mentor_id = ? AND date = ?`, mentorID, date).Scan(&present)
	if err != nil {
		return nil, false, err
	}
	if present == 0 {
		return nil, false, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT start_time, end_time, booked, occupant_user_id, task_reference_id,
		       room_token, review_status, practical_score, theory_score, feedback
		FROM override_slots
		WHERE mentor_id = ? AND date = ?
		ORDER BY start_time`, mentorID, date)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	slots, err := scanSlots(rows)
	if err != nil {
		return nil, false, err
	}
	return slots, true, nil
}

func (s *Store) SaveOverride(ctx context.Context, mentorID, date string, slots []schedule.TimeSlot) error {
	if _, err := schedule.ParseDate(date); err != nil {
		return err
	}
	if err := schedule.ValidateDaySlots(slots); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO override_days (mentor_id, date, created_at) VALUES (?, ?, ?)
		ON CONFLICT(mentor_id, date) DO NOTHING`,
		mentorID, date, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM override_slots WHERE mentor_id = ? AND date = ?`, mentorID, date); err != nil {
		return err
	}
	if err := insertSlots(ctx, tx, mentorID, date, slots); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Reserve(ctx context.Context, mentorID, date, start, end string, occ schedule.Occupant) error {
	day, err := schedule.ParseDate(date)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := materializeOverride(ctx, tx, mentorID, date, day); err != nil {
		return err
	}

	// Conditional update: the only line that prevents double-booking.
	res, err := tx.ExecContext(ctx, `
		UPDATE override_slots
		SET booked = 1, occupant_user_id = ?, task_reference_id = ?, room_token = ?, review_status = ?
		WHERE mentor_id = ? AND date = ? AND start_time = ? AND end_time = ? AND booked = 0`,
		occ.UserID, occ.TaskReferenceID, occ.RoomToken, string(schedule.ReviewPending),
		mentorID, date, start, end)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var present int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(1) FROM override_slots
			WHERE mentor_id = ? AND date = ? AND start_time = ? AND end_time = ?`,
			mentorID, date, start, end).Scan(&present); err != nil {
			return err
		}
		if present > 0 {
			return &schedule.SlotConflictError{MentorID: mentorID, Date: date, StartTime: start, EndTime: end}
		}
		return schedule.ErrSlotNotFound
	}
	return tx.Commit()
}

// materializeOverride copies the weekly template into override rows the
// first time a date is written, inside the caller's transaction.
func materializeOverride(ctx context.Context, tx *sql.Tx, mentorID, date string, day time.Time) error {
	var present int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM override_days WHERE mentor_id = ? AND date = ?`, mentorID, date).Scan(&present); err != nil {
		return err
	}
	if present > 0 {
		return nil
	}

	var raw string
	err := tx.QueryRowContext(ctx,
		`SELECT template_json FROM availability_templates WHERE mentor_id = ?`, mentorID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.ErrMentorNotFound
	}
	if err != nil {
		return err
	}
	var tmpl schedule.WeeklyTemplate
	if err := json.Unmarshal([]byte(raw), &tmpl); err != nil {
		return fmt.Errorf("corrupt template for mentor %s: %w", mentorID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO override_days (mentor_id, date, created_at) VALUES (?, ?, ?)`,
		mentorID, date, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return insertSlots(ctx, tx, mentorID, date, tmpl[schedule.WeekdayName(day.Weekday())])
}

func insertSlots(ctx context.Context, tx *sql.Tx, mentorID, date string, slots []schedule.TimeSlot) error {
	for _, slot := range slots {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO override_slots
				(mentor_id, date, start_time, end_time, booked, occupant_user_id,
				 task_reference_id, room_token, review_status, practical_score, theory_score, feedback)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			mentorID, date, slot.StartTime, slot.EndTime, boolToInt(slot.Booked),
			slot.OccupantUserID, slot.TaskReferenceID, slot.RoomToken, string(slot.ReviewStatus),
			slot.PracticalScore, slot.TheoryScore, slot.Feedback)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Release(ctx context.Context, mentorID, date, start, end string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE override_slots
		SET booked = 0, occupant_user_id = '', task_reference_id = '', room_token = '',
		    review_status = '', practical_score = NULL, theory_score = NULL, feedback = ''
		WHERE mentor_id = ? AND date = ? AND start_time = ? AND end_time = ? AND booked = 1`,
		mentorID, date, start, end)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.slotMissReason(ctx, mentorID, date, start, end)
	}
	return nil
}

func (s *Store) ReviewSlot(ctx context.Context, mentorID, date, start, end string, review schedule.SlotReview) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE override_slots
		SET review_status = ?, practical_score = ?, theory_score = ?, feedback = ?
		WHERE mentor_id = ? AND date = ? AND start_time = ? AND end_time = ? AND booked = 1`,
		string(review.Status), review.PracticalScore, review.TheoryScore, review.Feedback,
		mentorID, date, start, end)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.slotMissReason(ctx, mentorID, date, start, end)
	}
	return nil
}

// slotMissReason turns a zero-row update into the right sentinel.
func (s *Store) slotMissReason(ctx context.Context, mentorID, date, start, end string) error {
	var present int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM override_slots
		WHERE mentor_id = ? AND date = ? AND start_time = ? AND end_time = ?`,
		mentorID, date, start, end).Scan(&present); err != nil {
		return err
	}
	if present > 0 {
		return schedule.ErrSlotNotBooked
	}
	return schedule.ErrSlotNotFound
}

func scanSlots(rows *sql.Rows) ([]schedule.TimeSlot, error) {
	var slots []schedule.TimeSlot
	for rows.Next() {
		var (
			slot   schedule.TimeSlot
			booked int
			status string
			prac   sql.NullInt64
			theo   sql.NullInt64
		)
		if err := rows.Scan(&slot.StartTime, &slot.EndTime, &booked, &slot.OccupantUserID,
			&slot.TaskReferenceID, &slot.RoomToken, &status, &prac, &theo, &slot.Feedback); err != nil {
			return nil, err
		}
		slot.Booked = booked == 1
		slot.ReviewStatus = schedule.ReviewStatus(status)
		if prac.Valid {
			v := int(prac.Int64)
			slot.PracticalScore = &v
		}
		if theo.Valid {
			v := int(theo.Int64)
			slot.TheoryScore = &v
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// =============================================================================
// booking.Store
// =============================================================================

func (s *Store) SaveBooking(ctx context.Context, b booking.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reschedules, err := json.Marshal(b.Reschedules)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bookings
			(id, mentor_id, user_id, date, start_time, end_time, payment_status, status,
			 total_price, feedback, cancellation_reason, reschedules_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.MentorID, b.UserID, b.Date, b.StartTime, b.EndTime,
		string(b.PaymentStatus), string(b.Status), b.TotalPrice.String(),
		b.Feedback, b.CancellationReason, string(reschedules),
		b.CreatedAt.UTC().Format(time.RFC3339), b.UpdatedAt.UTC().Format(time.RFC3339))
	return err
}

func (s *Store) UpdateBooking(ctx context.Context, b booking.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reschedules, err := json.Marshal(b.Reschedules)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE bookings SET
			mentor_id = ?, user_id = ?, date = ?, start_time = ?, end_time = ?,
			payment_status = ?, status = ?, total_price = ?, feedback = ?,
			cancellation_reason = ?, reschedules_json = ?, updated_at = ?
		WHERE id = ?`,
		b.MentorID, b.UserID, b.Date, b.StartTime, b.EndTime,
		string(b.PaymentStatus), string(b.Status), b.TotalPrice.String(), b.Feedback,
		b.CancellationReason, string(reschedules), b.UpdatedAt.UTC().Format(time.RFC3339), b.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return booking.ErrBookingNotFound
	}
	return nil
}

const bookingColumns = `id, mentor_id, user_id, date, start_time, end_time, payment_status,
	status, total_price, feedback, cancellation_reason, reschedules_json, created_at, updated_at`

func (s *Store) BookingByID(ctx context.Context, id string) (booking.Booking, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Booking{}, booking.ErrBookingNotFound
	}
	return b, err
}

func (s *Store) BookingBySlot(ctx context.Context, mentorID, date, start, end string) (booking.Booking, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE mentor_id = ? AND date = ? AND start_time = ? AND end_time = ?
		ORDER BY created_at DESC LIMIT 1`, mentorID, date, start, end)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Booking{}, false, nil
	}
	if err != nil {
		return booking.Booking{}, false, err
	}
	return b, true, nil
}

func (s *Store) BookingsByUser(ctx context.Context, userID string) ([]booking.Booking, error) {
	return s.listBookings(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = ? ORDER BY date DESC, start_time DESC`, userID)
}

func (s *Store) BookingsByMentor(ctx context.Context, mentorID string) ([]booking.Booking, error) {
	return s.listBookings(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE mentor_id = ? ORDER BY date DESC, start_time DESC`, mentorID)
}

func (s *Store) listBookings(ctx context.Context, query string, arg any) ([]booking.Booking, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []booking.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (booking.Booking, error) {
	var (
		b                    booking.Booking
		payment, status      string
		price, reschedules   string
		createdAt, updatedAt string
	)
	err := row.Scan(&b.ID, &b.MentorID, &b.UserID, &b.Date, &b.StartTime, &b.EndTime,
		&payment, &status, &price, &b.Feedback, &b.CancellationReason, &reschedules,
		&createdAt, &updatedAt)
	if err != nil {
		return booking.Booking{}, err
	}

	b.PaymentStatus = booking.PaymentStatus(payment)
	b.Status = booking.Status(status)
	b.TotalPrice, err = decimal.NewFromString(price)
	if err != nil {
		return booking.Booking{}, fmt.Errorf("corrupt price on booking %s: %w", b.ID, err)
	}
	if err := json.Unmarshal([]byte(reschedules), &b.Reschedules); err != nil {
		return booking.Booking{}, fmt.Errorf("corrupt reschedule log on booking %s: %w", b.ID, err)
	}
	if b.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return booking.Booking{}, err
	}
	if b.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return booking.Booking{}, err
	}
	return b, nil
}

// =============================================================================
// ledger.Store
// =============================================================================

func (s *Store) AppendEntry(ctx context.Context, e ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (transaction_id, mentor_id, entry_date, description, amount, entry_type)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.TransactionID, e.MentorID, e.Date.UTC().Format(time.RFC3339),
		e.Description, e.Amount.String(), string(e.Type))
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ledger.ErrDuplicateTransaction
	}
	return err
}

func (s *Store) Entries(ctx context.Context, mentorID string, p ledger.Page) ([]ledger.Entry, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM ledger_entries WHERE mentor_id = ?`, mentorID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, mentor_id, entry_date, description, amount, entry_type
		FROM ledger_entries
		WHERE mentor_id = ?
		ORDER BY entry_date DESC, rowid DESC
		LIMIT ? OFFSET ?`, mentorID, p.PerPage, p.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []ledger.Entry{}
	for rows.Next() {
		var (
			e         ledger.Entry
			date      string
			amount    string
			entryType string
		)
		if err := rows.Scan(&e.TransactionID, &e.MentorID, &date, &e.Description, &amount, &entryType); err != nil {
			return nil, 0, err
		}
		if e.Date, err = time.Parse(time.RFC3339, date); err != nil {
			return nil, 0, err
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, 0, fmt.Errorf("corrupt amount on %s: %w", e.TransactionID, err)
		}
		e.Type = ledger.EntryType(entryType)
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// Balance folds the mentor's entries in decimal space. Always computed
// from the full history, never cached.
func (s *Store) Balance(ctx context.Context, mentorID string) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT amount, entry_type FROM ledger_entries WHERE mentor_id = ?`, mentorID)
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	balance := decimal.Zero
	for rows.Next() {
		var amount, entryType string
		if err := rows.Scan(&amount, &entryType); err != nil {
			return decimal.Zero, err
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return decimal.Zero, err
		}
		switch ledger.EntryType(entryType) {
		case ledger.EntryCredit:
			balance = balance.Add(d)
		case ledger.EntryDebit:
			balance = balance.Sub(d)
		}
	}
	return balance, rows.Err()
}

// =============================================================================
// ledger.PayoutStore
// =============================================================================

func (s *Store) SavePayout(ctx context.Context, p ledger.PayoutRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payout_requests
			(id, mentor_id, amount, payment_method, payment_details, status, requested_at, processed_at, admin_notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.MentorID, p.Amount.String(), p.PaymentMethod, p.PaymentDetails,
		string(p.Status), p.RequestedAt.UTC().Format(time.RFC3339), nullableTime(p.ProcessedAt), p.AdminNotes)
	return err
}

func (s *Store) PayoutByID(ctx context.Context, id string) (ledger.PayoutRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, mentor_id, amount, payment_method, payment_details, status, requested_at, processed_at, admin_notes
		FROM payout_requests WHERE id = ?`, id)
	p, err := scanPayout(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.PayoutRequest{}, ledger.ErrPayoutNotFound
	}
	return p, err
}

func (s *Store) UpdatePayout(ctx context.Context, p ledger.PayoutRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE payout_requests SET status = ?, processed_at = ?, admin_notes = ?
		WHERE id = ?`,
		string(p.Status), nullableTime(p.ProcessedAt), p.AdminNotes, p.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrPayoutNotFound
	}
	return nil
}

func (s *Store) Payouts(ctx context.Context, status *ledger.PayoutStatus, p ledger.Page) ([]ledger.PayoutRequest, int, error) {
	where := ""
	args := []any{}
	if status != nil {
		where = "WHERE status = ?"
		args = append(args, string(*status))
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM payout_requests `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, p.PerPage, p.Offset())
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mentor_id, amount, payment_method, payment_details, status, requested_at, processed_at, admin_notes
		FROM payout_requests `+where+`
		ORDER BY requested_at DESC
		LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []ledger.PayoutRequest{}
	for rows.Next() {
		req, err := scanPayout(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, req)
	}
	return out, total, rows.Err()
}

func scanPayout(row rowScanner) (ledger.PayoutRequest, error) {
	var (
		p           ledger.PayoutRequest
		amount      string
		status      string
		requestedAt string
		processedAt sql.NullString
	)
	err := row.Scan(&p.ID, &p.MentorID, &amount, &p.PaymentMethod, &p.PaymentDetails,
		&status, &requestedAt, &processedAt, &p.AdminNotes)
	if err != nil {
		return ledger.PayoutRequest{}, err
	}

	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return ledger.PayoutRequest{}, fmt.Errorf("corrupt amount on payout %s: %w", p.ID, err)
	}
	p.Status = ledger.PayoutStatus(status)
	if p.RequestedAt, err = time.Parse(time.RFC3339, requestedAt); err != nil {
		return ledger.PayoutRequest{}, err
	}
	if processedAt.Valid {
		t, err := time.Parse(time.RFC3339, processedAt.String)
		if err != nil {
			return ledger.PayoutRequest{}, err
		}
		p.ProcessedAt = &t
	}
	return p, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// =============================================================================
// checkout.SessionStore
// =============================================================================

func (s *Store) SaveSession(ctx context.Context, cs checkout.CheckoutSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkout_sessions
			(id, mentor_id, user_id, date, start_time, end_time, amount, status, booking_id, provider_tx_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cs.ID, cs.MentorID, cs.UserID, cs.Date, cs.StartTime, cs.EndTime,
		cs.Amount.String(), string(cs.Status), cs.BookingID, cs.ProviderTxID,
		cs.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

func (s *Store) SessionByID(ctx context.Context, id string) (checkout.CheckoutSession, error) {
	var (
		cs        checkout.CheckoutSession
		amount    string
		status    string
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, mentor_id, user_id, date, start_time, end_time, amount, status, booking_id, provider_tx_id, created_at
		FROM checkout_sessions WHERE id = ?`, id).Scan(
		&cs.ID, &cs.MentorID, &cs.UserID, &cs.Date, &cs.StartTime, &cs.EndTime,
		&amount, &status, &cs.BookingID, &cs.ProviderTxID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return checkout.CheckoutSession{}, checkout.ErrSessionNotFound
	}
	if err != nil {
		return checkout.CheckoutSession{}, err
	}

	if cs.Amount, err = decimal.NewFromString(amount); err != nil {
		return checkout.CheckoutSession{}, fmt.Errorf("corrupt amount on session %s: %w", cs.ID, err)
	}
	cs.Status = checkout.SessionStatus(status)
	if cs.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return checkout.CheckoutSession{}, err
	}
	return cs, nil
}

func (s *Store) UpdateSession(ctx context.Context, cs checkout.CheckoutSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE checkout_sessions SET status = ?, booking_id = ?, provider_tx_id = ?
		WHERE id = ?`,
		string(cs.Status), cs.BookingID, cs.ProviderTxID, cs.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return checkout.ErrSessionNotFound
	}
	return nil
}

// MarkSessionSlotLost is a conditional update in the same shape as
// Reserve: the status check and the write are one statement, so a
// session a concurrent verify already committed is never clobbered.
func (s *Store) MarkSessionSlotLost(ctx context.Context, id, providerTxID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE checkout_sessions SET status = ?, provider_tx_id = ?
		WHERE id = ? AND status != ?`,
		string(checkout.SessionSlotLost), providerTxID, id, string(checkout.SessionCommitted))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx,
		`SELECT 1 FROM checkout_sessions WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, checkout.ErrSessionNotFound
	}
	return false, err
}
