/*
Package postgres provides a PostgreSQL-backed implementation of the
storage interfaces, for deployments where a shared database serves
several API instances.

PURPOSE:
  Same schema shape as store/sqlite, on pgx. Migrations are embedded
  and applied with goose at startup, so the binary carries its own
  schema.

CONFLICT GUARD:
  Reserve locks the mentor's template row (SELECT ... FOR UPDATE),
  materializes the date's override if missing, then runs the
  conditional UPDATE ... WHERE booked = FALSE. Row locking makes the
  database pick exactly one winner across instances; no process-level
  mutex is needed here.

SEE ALSO:
  - store/sqlite: the single-node variant
  - store/postgres/migrations: goose migration files
*/
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/warp/mentorbook/booking"
	"github.com/warp/mentorbook/checkout"
	"github.com/warp/mentorbook/ledger"
	"github.com/warp/mentorbook/schedule"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

// Store implements all storage interfaces using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL and applies pending migrations.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	// goose works with *sql.DB, so borrow one from the pool.
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// =============================================================================
// schedule.Store
// =============================================================================

func (s *Store) Template(ctx context.Context, mentorID string) (schedule.WeeklyTemplate, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT template_json FROM availability_templates WHERE mentor_id = $1`, mentorID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, schedule.ErrMentorNotFound
	}
	if err != nil {
		return nil, err
	}

	var t schedule.WeeklyTemplate
	if err := json.Unmarshal(raw, &t); err != nil {
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

	_, err = s.pool.Exec(ctx, `
		INSERT INTO availability_templates (mentor_id, template_json, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (mentor_id) DO UPDATE SET template_json = EXCLUDED.template_json, updated_at = EXCLUDED.updated_at`,
		mentorID, raw, time.Now().UTC())
	return err
}

func (s *Store) Override(ctx context.Context, mentorID, date string) ([]schedule.TimeSlot, bool, error) {
	var present int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(1) FROM override_days WHERE mentor_id = $1 AND date = $2`, mentorID, date).Scan(&present)
	if err != nil {
		return nil, false, err
	}
	if present == 0 {
		return nil, false, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT start_time, end_time, booked, occupant_user_id, task_reference_id,
		       room_token, review_status, practical_score, theory_score, feedback
		FROM override_slots
		WHERE mentor_id = $1 AND date = $2
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

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO override_days (mentor_id, date, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (mentor_id, date) DO NOTHING`,
		mentorID, date, time.Now().UTC()); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM override_slots WHERE mentor_id = $1 AND date = $2`, mentorID, date); err != nil {
		return err
	}
	if err := insertSlots(ctx, tx, mentorID, date, slots); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Reserve(ctx context.Context, mentorID, date, start, end string, occ schedule.Occupant) error {
	day, err := schedule.ParseDate(date)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// The template row lock serializes materialization per mentor, so
	// two first-bookings of the same date cannot race the slot insert.
	var raw []byte
	err = tx.QueryRow(ctx,
		`SELECT template_json FROM availability_templates WHERE mentor_id = $1 FOR UPDATE`, mentorID).Scan(&raw)
	hasTemplate := err == nil
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	var present int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(1) FROM override_days WHERE mentor_id = $1 AND date = $2`, mentorID, date).Scan(&present); err != nil {
		return err
	}
	if present == 0 {
		if !hasTemplate {
			return schedule.ErrMentorNotFound
		}
		var tmpl schedule.WeeklyTemplate
		if err := json.Unmarshal(raw, &tmpl); err != nil {
			return fmt.Errorf("corrupt template for mentor %s: %w", mentorID, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO override_days (mentor_id, date, created_at) VALUES ($1, $2, $3)`,
			mentorID, date, time.Now().UTC()); err != nil {
			return err
		}
		if err := insertSlots(ctx, tx, mentorID, date, tmpl[schedule.WeekdayName(day.Weekday())]); err != nil {
			return err
		}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE override_slots
		SET booked = TRUE, occupant_user_id = $1, task_reference_id = $2, room_token = $3, review_status = $4
		WHERE mentor_id = $5 AND date = $6 AND start_time = $7 AND end_time = $8 AND booked = FALSE`,
		occ.UserID, occ.TaskReferenceID, occ.RoomToken, string(schedule.ReviewPending),
		mentorID, date, start, end)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var found int
		if err := tx.QueryRow(ctx, `
			SELECT COUNT(1) FROM override_slots
			WHERE mentor_id = $1 AND date = $2 AND start_time = $3 AND end_time = $4`,
			mentorID, date, start, end).Scan(&found); err != nil {
			return err
		}
		if found > 0 {
			return &schedule.SlotConflictError{MentorID: mentorID, Date: date, StartTime: start, EndTime: end}
		}
		return schedule.ErrSlotNotFound
	}
	return tx.Commit(ctx)
}

func insertSlots(ctx context.Context, tx pgx.Tx, mentorID, date string, slots []schedule.TimeSlot) error {
	for _, slot := range slots {
		_, err := tx.Exec(ctx, `
			INSERT INTO override_slots
				(mentor_id, date, start_time, end_time, booked, occupant_user_id,
				 task_reference_id, room_token, review_status, practical_score, theory_score, feedback)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			mentorID, date, slot.StartTime, slot.EndTime, slot.Booked,
			slot.OccupantUserID, slot.TaskReferenceID, slot.RoomToken, string(slot.ReviewStatus),
			slot.PracticalScore, slot.TheoryScore, slot.Feedback)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Release(ctx context.Context, mentorID, date, start, end string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE override_slots
		SET booked = FALSE, occupant_user_id = '', task_reference_id = '', room_token = '',
		    review_status = '', practical_score = NULL, theory_score = NULL, feedback = ''
		WHERE mentor_id = $1 AND date = $2 AND start_time = $3 AND end_time = $4 AND booked = TRUE`,
		mentorID, date, start, end)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.slotMissReason(ctx, mentorID, date, start, end)
	}
	return nil
}

func (s *Store) ReviewSlot(ctx context.Context, mentorID, date, start, end string, review schedule.SlotReview) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE override_slots
		SET review_status = $1, practical_score = $2, theory_score = $3, feedback = $4
		WHERE mentor_id = $5 AND date = $6 AND start_time = $7 AND end_time = $8 AND booked = TRUE`,
		string(review.Status), review.PracticalScore, review.TheoryScore, review.Feedback,
		mentorID, date, start, end)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.slotMissReason(ctx, mentorID, date, start, end)
	}
	return nil
}

func (s *Store) slotMissReason(ctx context.Context, mentorID, date, start, end string) error {
	var present int
	if err := s.pool.QueryRow(ctx, `
		SELECT COUNT(1) FROM override_slots
		WHERE mentor_id = $1 AND date = $2 AND start_time = $3 AND end_time = $4`,
		mentorID, date, start, end).Scan(&present); err != nil {
		return err
	}
	if present > 0 {
		return schedule.ErrSlotNotBooked
	}
	return schedule.ErrSlotNotFound
}

func scanSlots(rows pgx.Rows) ([]schedule.TimeSlot, error) {
	var slots []schedule.TimeSlot
	for rows.Next() {
		var (
			slot   schedule.TimeSlot
			status string
			prac   *int
			theo   *int
		)
		if err := rows.Scan(&slot.StartTime, &slot.EndTime, &slot.Booked, &slot.OccupantUserID,
			&slot.TaskReferenceID, &slot.RoomToken, &status, &prac, &theo, &slot.Feedback); err != nil {
			return nil, err
		}
		slot.ReviewStatus = schedule.ReviewStatus(status)
		slot.PracticalScore = prac
		slot.TheoryScore = theo
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// =============================================================================
// booking.Store
// =============================================================================

func (s *Store) SaveBooking(ctx context.Context, b booking.Booking) error {
	reschedules, err := json.Marshal(b.Reschedules)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO bookings
			(id, mentor_id, user_id, date, start_time, end_time, payment_status, status,
			 total_price, feedback, cancellation_reason, reschedules_json, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		b.ID, b.MentorID, b.UserID, b.Date, b.StartTime, b.EndTime,
		string(b.PaymentStatus), string(b.Status), b.TotalPrice.String(),
		b.Feedback, b.CancellationReason, reschedules, b.CreatedAt.UTC(), b.UpdatedAt.UTC())
	return err
}

func (s *Store) UpdateBooking(ctx context.Context, b booking.Booking) error {
	reschedules, err := json.Marshal(b.Reschedules)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE bookings SET
			mentor_id = $1, user_id = $2, date = $3, start_time = $4, end_time = $5,
			payment_status = $6, status = $7, total_price = $8, feedback = $9,
			cancellation_reason = $10, reschedules_json = $11, updated_at = $12
		WHERE id = $13`,
		b.MentorID, b.UserID, b.Date, b.StartTime, b.EndTime,
		string(b.PaymentStatus), string(b.Status), b.TotalPrice.String(), b.Feedback,
		b.CancellationReason, reschedules, b.UpdatedAt.UTC(), b.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrBookingNotFound
	}
	return nil
}

const bookingColumns = `id, mentor_id, user_id, date, start_time, end_time, payment_status,
	status, total_price::text, feedback, cancellation_reason, reschedules_json, created_at, updated_at`

func (s *Store) BookingByID(ctx context.Context, id string) (booking.Booking, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.Booking{}, booking.ErrBookingNotFound
	}
	return b, err
}

func (s *Store) BookingBySlot(ctx context.Context, mentorID, date, start, end string) (booking.Booking, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE mentor_id = $1 AND date = $2 AND start_time = $3 AND end_time = $4
		ORDER BY created_at DESC LIMIT 1`, mentorID, date, start, end)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.Booking{}, false, nil
	}
	if err != nil {
		return booking.Booking{}, false, err
	}
	return b, true, nil
}

func (s *Store) BookingsByUser(ctx context.Context, userID string) ([]booking.Booking, error) {
	return s.listBookings(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = $1 ORDER BY date DESC, start_time DESC`, userID)
}

func (s *Store) BookingsByMentor(ctx context.Context, mentorID string) ([]booking.Booking, error) {
	return s.listBookings(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE mentor_id = $1 ORDER BY date DESC, start_time DESC`, mentorID)
}

func (s *Store) listBookings(ctx context.Context, query string, arg any) ([]booking.Booking, error) {
	rows, err := s.pool.Query(ctx, query, arg)
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

func scanBooking(row pgx.Row) (booking.Booking, error) {
	var (
		b               booking.Booking
		payment, status string
		price           string
		reschedules     []byte
	)
	err := row.Scan(&b.ID, &b.MentorID, &b.UserID, &b.Date, &b.StartTime, &b.EndTime,
		&payment, &status, &price, &b.Feedback, &b.CancellationReason, &reschedules,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return booking.Booking{}, err
	}

	b.PaymentStatus = booking.PaymentStatus(payment)
	b.Status = booking.Status(status)
	b.TotalPrice, err = decimal.NewFromString(price)
	if err != nil {
		return booking.Booking{}, fmt.Errorf("corrupt price on booking %s: %w", b.ID, err)
	}
	if err := json.Unmarshal(reschedules, &b.Reschedules); err != nil {
		return booking.Booking{}, fmt.Errorf("corrupt reschedule log on booking %s: %w", b.ID, err)
	}
	return b, nil
}

// =============================================================================
// ledger.Store
// =============================================================================

func (s *Store) AppendEntry(ctx context.Context, e ledger.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ledger_entries (transaction_id, mentor_id, entry_date, description, amount, entry_type)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.TransactionID, e.MentorID, e.Date.UTC(), e.Description, e.Amount.String(), string(e.Type))
	if isUniqueViolation(err) {
		return ledger.ErrDuplicateTransaction
	}
	return err
}

func (s *Store) Entries(ctx context.Context, mentorID string, p ledger.Page) ([]ledger.Entry, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(1) FROM ledger_entries WHERE mentor_id = $1`, mentorID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT transaction_id, mentor_id, entry_date, description, amount::text, entry_type
		FROM ledger_entries
		WHERE mentor_id = $1
		ORDER BY entry_date DESC, transaction_id DESC
		LIMIT $2 OFFSET $3`, mentorID, p.PerPage, p.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []ledger.Entry{}
	for rows.Next() {
		var (
			e         ledger.Entry
			amount    string
			entryType string
		)
		if err := rows.Scan(&e.TransactionID, &e.MentorID, &e.Date, &e.Description, &amount, &entryType); err != nil {
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

func (s *Store) Balance(ctx context.Context, mentorID string) (decimal.Decimal, error) {
	var raw string
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE WHEN entry_type = 'credit' THEN amount ELSE -amount END), 0)::text
		FROM ledger_entries WHERE mentor_id = $1`, mentorID).Scan(&raw)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

// =============================================================================
// ledger.PayoutStore
// =============================================================================

func (s *Store) SavePayout(ctx context.Context, p ledger.PayoutRequest) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payout_requests
			(id, mentor_id, amount, payment_method, payment_details, status, requested_at, processed_at, admin_notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.MentorID, p.Amount.String(), p.PaymentMethod, p.PaymentDetails,
		string(p.Status), p.RequestedAt.UTC(), p.ProcessedAt, p.AdminNotes)
	return err
}

func (s *Store) PayoutByID(ctx context.Context, id string) (ledger.PayoutRequest, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, mentor_id, amount::text, payment_method, payment_details, status, requested_at, processed_at, admin_notes
		FROM payout_requests WHERE id = $1`, id)
	p, err := scanPayout(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.PayoutRequest{}, ledger.ErrPayoutNotFound
	}
	return p, err
}

func (s *Store) UpdatePayout(ctx context.Context, p ledger.PayoutRequest) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE payout_requests SET status = $1, processed_at = $2, admin_notes = $3
		WHERE id = $4`,
		string(p.Status), p.ProcessedAt, p.AdminNotes, p.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrPayoutNotFound
	}
	return nil
}

func (s *Store) Payouts(ctx context.Context, status *ledger.PayoutStatus, p ledger.Page) ([]ledger.PayoutRequest, int, error) {
	where := ""
	args := []any{}
	if status != nil {
		where = "WHERE status = $1"
		args = append(args, string(*status))
	}

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(1) FROM payout_requests `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := fmt.Sprintf("LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, p.PerPage, p.Offset())
	rows, err := s.pool.Query(ctx, `
		SELECT id, mentor_id, amount::text, payment_method, payment_details, status, requested_at, processed_at, admin_notes
		FROM payout_requests `+where+`
		ORDER BY requested_at DESC `+limit, args...)
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

func scanPayout(row pgx.Row) (ledger.PayoutRequest, error) {
	var (
		p      ledger.PayoutRequest
		amount string
		status string
	)
	err := row.Scan(&p.ID, &p.MentorID, &amount, &p.PaymentMethod, &p.PaymentDetails,
		&status, &p.RequestedAt, &p.ProcessedAt, &p.AdminNotes)
	if err != nil {
		return ledger.PayoutRequest{}, err
	}

	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return ledger.PayoutRequest{}, fmt.Errorf("corrupt amount on payout %s: %w", p.ID, err)
	}
	p.Status = ledger.PayoutStatus(status)
	return p, nil
}

// =============================================================================
// checkout.SessionStore
// =============================================================================

func (s *Store) SaveSession(ctx context.Context, cs checkout.CheckoutSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO checkout_sessions
			(id, mentor_id, user_id, date, start_time, end_time, amount, status, booking_id, provider_tx_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		cs.ID, cs.MentorID, cs.UserID, cs.Date, cs.StartTime, cs.EndTime,
		cs.Amount.String(), string(cs.Status), cs.BookingID, cs.ProviderTxID, cs.CreatedAt.UTC())
	return err
}

func (s *Store) SessionByID(ctx context.Context, id string) (checkout.CheckoutSession, error) {
	var (
		cs     checkout.CheckoutSession
		amount string
		status string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, mentor_id, user_id, date, start_time, end_time, amount::text, status, booking_id, provider_tx_id, created_at
		FROM checkout_sessions WHERE id = $1`, id).Scan(
		&cs.ID, &cs.MentorID, &cs.UserID, &cs.Date, &cs.StartTime, &cs.EndTime,
		&amount, &status, &cs.BookingID, &cs.ProviderTxID, &cs.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return checkout.CheckoutSession{}, checkout.ErrSessionNotFound
	}
	if err != nil {
		return checkout.CheckoutSession{}, err
	}

	if cs.Amount, err = decimal.NewFromString(amount); err != nil {
		return checkout.CheckoutSession{}, fmt.Errorf("corrupt amount on session %s: %w", cs.ID, err)
	}
	cs.Status = checkout.SessionStatus(status)
	return cs, nil
}

func (s *Store) UpdateSession(ctx context.Context, cs checkout.CheckoutSession) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE checkout_sessions SET status = $1, booking_id = $2, provider_tx_id = $3
		WHERE id = $4`,
		string(cs.Status), cs.BookingID, cs.ProviderTxID, cs.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return checkout.ErrSessionNotFound
	}
	return nil
}

// MarkSessionSlotLost refuses to overwrite a committed session; the
// status check and the write are a single statement.
func (s *Store) MarkSessionSlotLost(ctx context.Context, id, providerTxID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE checkout_sessions SET status = $1, provider_tx_id = $2
		WHERE id = $3 AND status != $4`,
		string(checkout.SessionSlotLost), providerTxID, id, string(checkout.SessionCommitted))
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists int
	err = s.pool.QueryRow(ctx,
		`SELECT 1 FROM checkout_sessions WHERE id = $1`, id).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, checkout.ErrSessionNotFound
	}
	return false, err
}
