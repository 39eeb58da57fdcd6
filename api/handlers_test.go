package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/mentorbook/api"
	"github.com/warp/mentorbook/booking"
	"github.com/warp/mentorbook/checkout"
	"github.com/warp/mentorbook/ledger"
	"github.com/warp/mentorbook/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// 2026-09-07 is a Monday.
const monday = "2026-09-07"

type fixture struct {
	router   http.Handler
	provider *checkout.StaticProvider
}

func newTestAPI(t *testing.T) *fixture {
	t.Helper()

	st := memory.New()
	logger := zap.NewNop()
	provider := checkout.NewStaticProvider()

	ledgerSvc := ledger.New(st)
	payouts := ledger.NewPayoutService(ledgerSvc, st, nil, logger)
	bookings := booking.NewService(st, st, nil, logger)
	co := checkout.NewCoordinator(checkout.Config{
		Provider:           provider,
		Slots:              st,
		Bookings:           st,
		Ledger:             ledgerSvc,
		Sessions:           st,
		Logger:             logger,
		PlatformFeePercent: decimal.NewFromInt(20),
		SuccessURL:         "http://localhost:3000/success",
		CancelURL:          "http://localhost:3000/cancel",
	})

	h := api.NewHandler(st, bookings, co, ledgerSvc, payouts, logger)
	return &fixture{router: api.NewRouter(h), provider: provider}
}

// do performs a request with actor identity headers and returns the recorder.
func (f *fixture) do(t *testing.T, method, path string, body any, actorID, role string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actorID != "" {
		req.Header.Set("X-Actor-ID", actorID)
	}
	if role != "" {
		req.Header.Set("X-Actor-Role", role)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), "body: %s", rec.Body.String())
	return out
}

// saveTemplate gives mentor-1 two Monday slots via the API.
func (f *fixture) saveTemplate(t *testing.T) {
	t.Helper()
	rec := f.do(t, http.MethodPut, "/api/mentors/mentor-1/availability/template", map[string]any{
		"template": map[string]any{
			"monday": []map[string]string{
				{"start_time": "10:00", "end_time": "11:00"},
				{"start_time": "11:00", "end_time": "12:00"},
			},
		},
	}, "mentor-1", "mentor")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// purchase runs the full begin/pay/verify flow and returns the booking.
func (f *fixture) purchase(t *testing.T, userID string) booking.Booking {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/api/checkout", map[string]string{
		"mentor_id":  "mentor-1",
		"date":       monday,
		"start_time": "10:00",
		"end_time":   "11:00",
		"amount":     "80.00",
	}, userID, "user")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	begin := decodeBody[checkout.BeginResult](t, rec)

	f.provider.MarkPaid(begin.SessionID)

	rec = f.do(t, http.MethodPost, "/api/checkout/"+begin.SessionID+"/verify", nil, userID, "user")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[booking.Booking](t, rec)
}

// =============================================================================
// AVAILABILITY TESTS
// =============================================================================

func TestAPI_TemplateAndSlots(t *testing.T) {
	// GIVEN: A mentor who saved a weekly template
	// WHEN: A user asks for slots over a week
	// THEN: Monday shows the template slots, other days are empty

	f := newTestAPI(t)
	f.saveTemplate(t)

	rec := f.do(t, http.MethodGet,
		"/api/mentors/mentor-1/slots?from=2026-09-07&to=2026-09-09", nil, "user-1", "user")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	days := decodeBody[[]map[string]any](t, rec)
	require.Len(t, days, 3)
	assert.Equal(t, monday, days[0]["date"])
	assert.Len(t, days[0]["free_slots"], 2)
	assert.Empty(t, days[1]["free_slots"])
}

func TestAPI_Slots_MissingRange(t *testing.T) {
	f := newTestAPI(t)
	f.saveTemplate(t)

	rec := f.do(t, http.MethodGet, "/api/mentors/mentor-1/slots", nil, "user-1", "user")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_Slots_UnknownMentor(t *testing.T) {
	f := newTestAPI(t)

	rec := f.do(t, http.MethodGet,
		"/api/mentors/nobody/slots?from=2026-09-07&to=2026-09-08", nil, "user-1", "user")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_SaveOverride(t *testing.T) {
	f := newTestAPI(t)
	f.saveTemplate(t)

	rec := f.do(t, http.MethodPut, "/api/mentors/mentor-1/availability/overrides/"+monday,
		map[string]any{
			"slots": []map[string]string{{"start_time": "16:00", "end_time": "17:00"}},
		}, "mentor-1", "mentor")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet,
		"/api/mentors/mentor-1/slots?from=2026-09-07&to=2026-09-07", nil, "user-1", "user")
	require.Equal(t, http.StatusOK, rec.Code)
	days := decodeBody[[]map[string]any](t, rec)
	require.Len(t, days, 1)
	// The override replaced the entire day, not merged with the template.
	require.Len(t, days[0]["free_slots"], 1)
}

func TestAPI_SaveAvailability_OwnerOnly(t *testing.T) {
	// GIVEN: mentor-1 has a template with two Monday slots
	// WHEN: A different actor tries to rewrite the template or a day
	// THEN: Both writes are rejected and the slots are untouched

	f := newTestAPI(t)
	f.saveTemplate(t)

	rec := f.do(t, http.MethodPut, "/api/mentors/mentor-1/availability/template", map[string]any{
		"template": map[string]any{},
	}, "user-evil", "user")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/mentors/mentor-1/availability/overrides/"+monday,
		map[string]any{"slots": []map[string]string{}}, "mentor-2", "mentor")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet,
		"/api/mentors/mentor-1/slots?from=2026-09-07&to=2026-09-07", nil, "user-1", "user")
	require.Equal(t, http.StatusOK, rec.Code)
	days := decodeBody[[]map[string]any](t, rec)
	require.Len(t, days, 1)
	assert.Len(t, days[0]["free_slots"], 2)
}

// =============================================================================
// CHECKOUT TESTS
// =============================================================================

func TestAPI_CheckoutFlow(t *testing.T) {
	// GIVEN: An available Monday slot
	// WHEN: A user begins checkout, pays, and verifies
	// THEN: The booking exists and the mentor is credited 80% of the price

	f := newTestAPI(t)
	f.saveTemplate(t)

	b := f.purchase(t, "user-1")
	assert.Equal(t, "user-1", b.UserID)
	assert.Equal(t, booking.StatusPending, b.Status)
	assert.Equal(t, monday, b.Date)

	rec := f.do(t, http.MethodGet, "/api/mentors/mentor-1/balance", nil, "mentor-1", "mentor")
	require.Equal(t, http.StatusOK, rec.Code)
	balance := decodeBody[map[string]string](t, rec)
	assert.True(t, decimal.RequireFromString(balance["balance"]).Equal(decimal.RequireFromString("64")),
		"got balance %s", balance["balance"])

	rec = f.do(t, http.MethodGet, "/api/mentors/mentor-1/transactions", nil, "mentor-1", "mentor")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 1, page["total"])
}

func TestAPI_Verify_BeforePayment(t *testing.T) {
	f := newTestAPI(t)
	f.saveTemplate(t)

	rec := f.do(t, http.MethodPost, "/api/checkout", map[string]string{
		"mentor_id":  "mentor-1",
		"date":       monday,
		"start_time": "10:00",
		"end_time":   "11:00",
		"amount":     "80.00",
	}, "user-1", "user")
	require.Equal(t, http.StatusCreated, rec.Code)
	begin := decodeBody[checkout.BeginResult](t, rec)

	rec = f.do(t, http.MethodPost, "/api/checkout/"+begin.SessionID+"/verify", nil, "user-1", "user")
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestAPI_Checkout_SlotAlreadyBooked(t *testing.T) {
	f := newTestAPI(t)
	f.saveTemplate(t)
	f.purchase(t, "user-1")

	rec := f.do(t, http.MethodPost, "/api/checkout", map[string]string{
		"mentor_id":  "mentor-1",
		"date":       monday,
		"start_time": "10:00",
		"end_time":   "11:00",
		"amount":     "80.00",
	}, "user-2", "user")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_Checkout_InvalidAmount(t *testing.T) {
	f := newTestAPI(t)
	f.saveTemplate(t)

	rec := f.do(t, http.MethodPost, "/api/checkout", map[string]string{
		"mentor_id":  "mentor-1",
		"date":       monday,
		"start_time": "10:00",
		"end_time":   "11:00",
		"amount":     "not-a-number",
	}, "user-1", "user")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_Verify_PaidButSlotLost(t *testing.T) {
	// GIVEN: Two users paid for the same slot
	// WHEN: The second one verifies after the first committed
	// THEN: 409 with the refundable flag and provider transaction id

	f := newTestAPI(t)
	f.saveTemplate(t)

	begin := func(userID string) string {
		rec := f.do(t, http.MethodPost, "/api/checkout", map[string]string{
			"mentor_id":  "mentor-1",
			"date":       monday,
			"start_time": "10:00",
			"end_time":   "11:00",
			"amount":     "80.00",
		}, userID, "user")
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		return decodeBody[checkout.BeginResult](t, rec).SessionID
	}
	first := begin("user-1")
	second := begin("user-2")
	f.provider.MarkPaid(first)
	f.provider.MarkPaid(second)

	rec := f.do(t, http.MethodPost, "/api/checkout/"+first+"/verify", nil, "user-1", "user")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/checkout/"+second+"/verify", nil, "user-2", "user")
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	envelope := decodeBody[api.ErrorResponse](t, rec)
	assert.True(t, envelope.Refundable)
	assert.NotEmpty(t, envelope.ProviderTxID)
	assert.True(t, decimal.RequireFromString(envelope.Amount).Equal(decimal.RequireFromString("80")))
}

// =============================================================================
// BOOKING TESTS
// =============================================================================

func TestAPI_CancelBooking(t *testing.T) {
	f := newTestAPI(t)
	f.saveTemplate(t)
	b := f.purchase(t, "user-1")

	rec := f.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/cancel",
		map[string]string{"reason": "schedule conflict"}, "user-1", "user")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeBody[booking.Booking](t, rec)
	assert.Equal(t, booking.StatusCancelled, got.Status)

	// The slot is sellable again.
	rec = f.do(t, http.MethodGet,
		"/api/mentors/mentor-1/slots?from=2026-09-07&to=2026-09-07", nil, "user-2", "user")
	require.Equal(t, http.StatusOK, rec.Code)
	days := decodeBody[[]map[string]any](t, rec)
	assert.Len(t, days[0]["free_slots"], 2)
}

func TestAPI_CancelBooking_ReasonRequired(t *testing.T) {
	f := newTestAPI(t)
	f.saveTemplate(t)
	b := f.purchase(t, "user-1")

	rec := f.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/cancel",
		map[string]string{"reason": ""}, "user-1", "user")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_CancelBooking_Outsider(t *testing.T) {
	f := newTestAPI(t)
	f.saveTemplate(t)
	b := f.purchase(t, "user-1")

	rec := f.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/cancel",
		map[string]string{"reason": "not mine"}, "user-9", "user")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_CompleteBooking_MentorOnly(t *testing.T) {
	f := newTestAPI(t)
	f.saveTemplate(t)
	b := f.purchase(t, "user-1")

	rec := f.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/complete",
		map[string]any{"feedback": "solid work", "practical_score": 8, "theory_score": 9},
		"user-1", "user")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/complete",
		map[string]any{"feedback": "solid work", "practical_score": 8, "theory_score": 9},
		"mentor-1", "mentor")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeBody[booking.Booking](t, rec)
	assert.Equal(t, booking.StatusCompleted, got.Status)
}

func TestAPI_ListBookings_ByRole(t *testing.T) {
	f := newTestAPI(t)
	f.saveTemplate(t)
	f.purchase(t, "user-1")

	rec := f.do(t, http.MethodGet, "/api/bookings", nil, "user-1", "user")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]map[string]any](t, rec), 1)

	rec = f.do(t, http.MethodGet, "/api/bookings", nil, "mentor-1", "mentor")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]map[string]any](t, rec), 1)

	rec = f.do(t, http.MethodGet, "/api/bookings", nil, "user-9", "user")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]map[string]any](t, rec))
}

func TestAPI_RescheduleFlow(t *testing.T) {
	// GIVEN: A paid booking on Monday 10:00
	// WHEN: The user proposes Monday 11:00 and the mentor accepts
	// THEN: The booking moves and the old slot frees up

	f := newTestAPI(t)
	f.saveTemplate(t)
	b := f.purchase(t, "user-1")

	rec := f.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/reschedule", map[string]string{
		"new_date":       monday,
		"new_start_time": "11:00",
		"new_end_time":   "12:00",
		"reason":         "meeting moved",
	}, "user-1", "user")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The proposer cannot answer their own request.
	rec = f.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/reschedule/0/respond",
		map[string]bool{"accept": true}, "user-1", "user")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/bookings/"+b.ID+"/reschedule/0/respond",
		map[string]bool{"accept": true}, "mentor-1", "mentor")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeBody[booking.Booking](t, rec)
	assert.Equal(t, "11:00", got.StartTime)
}

// =============================================================================
// PAYOUT TESTS
// =============================================================================

func TestAPI_PayoutFlow(t *testing.T) {
	// GIVEN: A mentor with 64 in earnings
	// WHEN: They request a 50 payout and an admin resolves it as paid
	// THEN: The request moves to paid and the hold stays debited

	f := newTestAPI(t)
	f.saveTemplate(t)
	f.purchase(t, "user-1")

	rec := f.do(t, http.MethodPost, "/api/payouts", map[string]string{
		"amount":          "50.00",
		"payment_method":  "paypal",
		"payment_details": "mentor@example.com",
	}, "mentor-1", "mentor")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	payout := decodeBody[api.PayoutDTO](t, rec)
	assert.Equal(t, "pending", payout.Status)

	// Listing is admin-only.
	rec = f.do(t, http.MethodGet, "/api/payouts", nil, "mentor-1", "mentor")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/payouts?status=pending", nil, "admin-1", "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 1, page["total"])

	rec = f.do(t, http.MethodPost, "/api/payouts/"+payout.ID+"/resolve",
		map[string]string{"status": "paid", "notes": "wire sent"}, "admin-1", "admin")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resolved := decodeBody[api.PayoutDTO](t, rec)
	assert.Equal(t, "paid", resolved.Status)
	assert.NotEmpty(t, resolved.ProcessedAt)

	// Balance reflects the spent hold.
	rec = f.do(t, http.MethodGet, "/api/mentors/mentor-1/balance", nil, "mentor-1", "mentor")
	require.Equal(t, http.StatusOK, rec.Code)
	balance := decodeBody[map[string]string](t, rec)
	assert.True(t, decimal.RequireFromString(balance["balance"]).Equal(decimal.RequireFromString("14")),
		"got balance %s", balance["balance"])

	// Already resolved.
	rec = f.do(t, http.MethodPost, "/api/payouts/"+payout.ID+"/resolve",
		map[string]string{"status": "rejected", "notes": ""}, "admin-1", "admin")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_Payout_InsufficientBalance(t *testing.T) {
	f := newTestAPI(t)
	f.saveTemplate(t)
	f.purchase(t, "user-1")

	rec := f.do(t, http.MethodPost, "/api/payouts", map[string]string{
		"amount":          "1000.00",
		"payment_method":  "paypal",
		"payment_details": "mentor@example.com",
	}, "mentor-1", "mentor")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_ResolvePayout_AdminOnly(t *testing.T) {
	f := newTestAPI(t)

	rec := f.do(t, http.MethodPost, "/api/payouts/po-1/resolve",
		map[string]string{"status": "paid"}, "mentor-1", "mentor")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// =============================================================================
// MISC
// =============================================================================

func TestAPI_Healthz(t *testing.T) {
	f := newTestAPI(t)

	rec := f.do(t, http.MethodGet, "/healthz", nil, "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_GetBooking_Unknown(t *testing.T) {
	f := newTestAPI(t)

	rec := f.do(t, http.MethodGet, "/api/bookings/missing", nil, "user-1", "user")
	require.Equal(t, http.StatusNotFound, rec.Code)
	envelope := decodeBody[api.ErrorResponse](t, rec)
	assert.Equal(t, "Not found", envelope.Error)
}
