/*
handlers.go - HTTP API handlers for the mentor booking subsystem

PURPOSE:
  Exposes scheduling, checkout, booking lifecycle, and the mentor
  ledger via REST. Handles HTTP request/response, JSON serialization,
  and delegates to domain logic.

ENDPOINTS:
  Availability:
    GET    /api/mentors/{id}/slots                    Free slots in a date range
    GET    /api/mentors/{id}/availability/template    Weekly template
    PUT    /api/mentors/{id}/availability/template    Replace weekly template
    PUT    /api/mentors/{id}/availability/overrides/{date}  Replace one date

  Checkout:
    POST   /api/checkout                   Start a payment-gated purchase
    POST   /api/checkout/{sessionID}/verify  Verify payment, commit booking

  Bookings:
    GET    /api/bookings                   List for the calling actor
    GET    /api/bookings/{id}              Booking detail
    POST   /api/bookings/{id}/cancel       Cancel with mandatory reason
    POST   /api/bookings/{id}/complete     Mentor marks done, with review
    PUT    /api/bookings/{id}/feedback     Edit feedback on a completed session
    POST   /api/bookings/{id}/reschedule   Propose a new slot
    POST   /api/bookings/{id}/reschedule/{index}/respond  Accept or reject

  Ledger:
    GET    /api/mentors/{id}/balance       Derived balance
    GET    /api/mentors/{id}/transactions  Paged earnings history
    POST   /api/payouts                    Request a withdrawal
    GET    /api/payouts                    List payout requests (admin)
    POST   /api/payouts/{id}/resolve       Mark paid or rejected (admin)

REQUEST FLOW:
  1. Parse HTTP request
  2. Call domain logic (schedule, checkout, booking, ledger)
  3. Serialize response
  4. Map domain errors to HTTP status

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 402: Payment not confirmed yet
  - 403: Actor is not allowed to act on this resource
  - 404: Resource not found
  - 409: Conflict (slot taken, invalid state, insufficient balance)
  - 500: Internal errors
  The paid-but-slot-lost conflict additionally carries refundable=true
  with the provider transaction id and amount.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/mentorbook/booking"
	"github.com/warp/mentorbook/checkout"
	"github.com/warp/mentorbook/ledger"
	"github.com/warp/mentorbook/schedule"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Slots    schedule.Store
	Resolver *schedule.Resolver
	Bookings *booking.Service
	Checkout *checkout.Coordinator
	Ledger   *ledger.Ledger
	Payouts  *ledger.PayoutService
	Logger   *zap.Logger
}

// NewHandler creates a handler with the given dependencies.
func NewHandler(slots schedule.Store, bookings *booking.Service, co *checkout.Coordinator,
	l *ledger.Ledger, payouts *ledger.PayoutService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Slots:    slots,
		Resolver: schedule.NewResolver(slots),
		Bookings: bookings,
		Checkout: co,
		Ledger:   l,
		Payouts:  payouts,
		Logger:   logger,
	}
}

// =============================================================================
// AVAILABILITY HANDLERS
// =============================================================================

// GetSlots returns free slots for a mentor over a date range.
func (h *Handler) GetSlots(w http.ResponseWriter, r *http.Request) {
	mentorID := chi.URLParam(r, "id")
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to query parameters are required (YYYY-MM-DD)", nil)
		return
	}

	days, err := h.Resolver.Resolve(r.Context(), mentorID, from, to)
	if err != nil {
		h.writeDomainError(w, err, "Failed to resolve availability")
		return
	}
	writeJSON(w, http.StatusOK, days)
}

// GetTemplate returns a mentor's weekly availability template.
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.Slots.Template(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err, "Failed to get template")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// SaveTemplate replaces a mentor's weekly availability template.
func (h *Handler) SaveTemplate(w http.ResponseWriter, r *http.Request) {
	mentorID := chi.URLParam(r, "id")
	if actorID(r) != mentorID {
		writeError(w, http.StatusForbidden, "Availability can only be changed by its mentor", nil)
		return
	}
	var req SaveTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	t := make(schedule.WeeklyTemplate, len(req.Template))
	for day, slots := range req.Template {
		t[day] = fromSlotRequests(slots)
	}
	if err := h.Slots.SaveTemplate(r.Context(), mentorID, t); err != nil {
		h.writeDomainError(w, err, "Failed to save template")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// SaveOverride replaces a single date's slots, detaching it from the
// weekly template.
func (h *Handler) SaveOverride(w http.ResponseWriter, r *http.Request) {
	mentorID := chi.URLParam(r, "id")
	date := chi.URLParam(r, "date")
	if actorID(r) != mentorID {
		writeError(w, http.StatusForbidden, "Availability can only be changed by its mentor", nil)
		return
	}

	var req SaveOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	slots := fromSlotRequests(req.Slots)
	if err := h.Slots.SaveOverride(r.Context(), mentorID, date, slots); err != nil {
		h.writeDomainError(w, err, "Failed to save override")
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

func fromSlotRequests(reqs []SlotRequest) []schedule.TimeSlot {
	slots := make([]schedule.TimeSlot, len(reqs))
	for i, s := range reqs {
		slots[i] = schedule.TimeSlot{StartTime: s.StartTime, EndTime: s.EndTime}
	}
	return slots
}

// =============================================================================
// CHECKOUT HANDLERS
// =============================================================================

// BeginCheckout starts a payment-gated slot purchase. No reservation
// happens here; the slot is only checked to fail fast.
func (h *Handler) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	var req BeginCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	result, err := h.Checkout.BeginCheckout(r.Context(), checkout.BeginParams{
		MentorID:  req.MentorID,
		UserID:    actorID(r),
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Amount:    amount,
	})
	if err != nil {
		h.writeDomainError(w, err, "Failed to start checkout")
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// VerifyCheckout re-checks payment with the provider and, if paid,
// reserves the slot and creates the booking. Safe to call repeatedly.
func (h *Handler) VerifyCheckout(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	b, err := h.Checkout.VerifyAndCommit(r.Context(), sessionID, actorID(r))
	if err != nil {
		h.writeDomainError(w, err, "Failed to verify checkout")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// =============================================================================
// BOOKING HANDLERS
// =============================================================================

// ListBookings returns the calling actor's bookings: the mentor role
// sees their mentor-side sessions, everyone else their purchases.
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	var (
		views []booking.View
		err   error
	)
	if actorRole(r) == RoleMentor {
		views, err = h.Bookings.ListForMentor(r.Context(), actorID(r))
	} else {
		views, err = h.Bookings.ListForUser(r.Context(), actorID(r))
	}
	if err != nil {
		h.writeDomainError(w, err, "Failed to list bookings")
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// GetBooking returns one booking with its derived display state.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	v, err := h.Bookings.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err, "Failed to get booking")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// CancelBooking cancels a pending booking and releases its slot.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	var req CancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	b, err := h.Bookings.Cancel(r.Context(), chi.URLParam(r, "id"), actorID(r), req.Reason)
	if err != nil {
		h.writeDomainError(w, err, "Failed to cancel booking")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// CompleteBooking marks a session done, with the mentor's review.
func (h *Handler) CompleteBooking(w http.ResponseWriter, r *http.Request) {
	var req CompleteBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	b, err := h.Bookings.Complete(r.Context(), chi.URLParam(r, "id"), actorID(r),
		req.Feedback, req.PracticalScore, req.TheoryScore)
	if err != nil {
		h.writeDomainError(w, err, "Failed to complete booking")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// UpdateFeedback edits feedback on an already-completed session.
func (h *Handler) UpdateFeedback(w http.ResponseWriter, r *http.Request) {
	var req UpdateFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	b, err := h.Bookings.UpdateFeedback(r.Context(), chi.URLParam(r, "id"), actorID(r), req.Feedback)
	if err != nil {
		h.writeDomainError(w, err, "Failed to update feedback")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// RequestReschedule proposes moving a pending booking to a new slot.
func (h *Handler) RequestReschedule(w http.ResponseWriter, r *http.Request) {
	var req RescheduleRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	b, err := h.Bookings.RequestReschedule(r.Context(), chi.URLParam(r, "id"), actorID(r),
		req.NewDate, req.NewStartTime, req.NewEndTime, req.Reason)
	if err != nil {
		h.writeDomainError(w, err, "Failed to request reschedule")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// RespondReschedule lets the counterparty accept or reject a proposal.
func (h *Handler) RespondReschedule(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid reschedule index", err)
		return
	}
	var req RespondRescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	b, err := h.Bookings.RespondReschedule(r.Context(), chi.URLParam(r, "id"), actorID(r), index, req.Accept)
	if err != nil {
		h.writeDomainError(w, err, "Failed to respond to reschedule")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// GetBalance returns the mentor's derived balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	mentorID := chi.URLParam(r, "id")
	balance, err := h.Ledger.Balance(r.Context(), mentorID)
	if err != nil {
		h.writeDomainError(w, err, "Failed to get balance")
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{MentorID: mentorID, Balance: balance.String()})
}

// GetTransactions returns a newest-first page of ledger entries.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	mentorID := chi.URLParam(r, "id")
	page := parsePage(r)

	entries, total, err := h.Ledger.Transactions(r.Context(), mentorID, page)
	if err != nil {
		h.writeDomainError(w, err, "Failed to get transactions")
		return
	}

	dtos := make([]TransactionDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toTransactionDTO(e)
	}
	writeJSON(w, http.StatusOK, PagedResponse{
		Items: dtos, Total: total, Page: page.Page, PerPage: page.PerPage,
	})
}

// RequestPayout asks to withdraw part of the calling mentor's balance.
func (h *Handler) RequestPayout(w http.ResponseWriter, r *http.Request) {
	var req RequestPayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	p, err := h.Payouts.RequestPayout(r.Context(), actorID(r), amount, req.PaymentMethod, req.PaymentDetails)
	if err != nil {
		h.writeDomainError(w, err, "Failed to request payout")
		return
	}
	writeJSON(w, http.StatusCreated, toPayoutDTO(p))
}

// ListPayouts returns payout requests, optionally filtered by status.
func (h *Handler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	if actorRole(r) != RoleAdmin {
		writeError(w, http.StatusForbidden, "Admin role required", nil)
		return
	}

	var status *ledger.PayoutStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := ledger.PayoutStatus(raw)
		status = &s
	}
	page := parsePage(r)

	payouts, total, err := h.Payouts.ListPayouts(r.Context(), status, page)
	if err != nil {
		h.writeDomainError(w, err, "Failed to list payouts")
		return
	}

	dtos := make([]PayoutDTO, len(payouts))
	for i, p := range payouts {
		dtos[i] = toPayoutDTO(p)
	}
	writeJSON(w, http.StatusOK, PagedResponse{
		Items: dtos, Total: total, Page: page.Page, PerPage: page.PerPage,
	})
}

// ResolvePayout marks a pending payout paid or rejected. Rejection
// restores the held amount to the mentor's balance.
func (h *Handler) ResolvePayout(w http.ResponseWriter, r *http.Request) {
	if actorRole(r) != RoleAdmin {
		writeError(w, http.StatusForbidden, "Admin role required", nil)
		return
	}
	var req ResolvePayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.Payouts.ResolvePayout(r.Context(), chi.URLParam(r, "id"),
		ledger.PayoutStatus(req.Status), req.Notes)
	if err != nil {
		h.writeDomainError(w, err, "Failed to resolve payout")
		return
	}
	writeJSON(w, http.StatusOK, toPayoutDTO(p))
}

// =============================================================================
// HELPERS
// =============================================================================

func parsePage(r *http.Request) ledger.Page {
	p := ledger.Page{}
	p.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	p.PerPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	return p.Normalize()
}

// writeDomainError maps domain errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error, fallback string) {
	var slotLost *checkout.SlotLostError
	if errors.As(err, &slotLost) {
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:        "Payment succeeded but the slot is no longer available",
			Details:      err.Error(),
			Refundable:   true,
			ProviderTxID: slotLost.ProviderTxID,
			Amount:       slotLost.Amount.String(),
		})
		return
	}

	switch {
	case errors.Is(err, checkout.ErrPaymentNotConfirmed):
		writeError(w, http.StatusPaymentRequired, "Payment not confirmed yet", err)

	case errors.Is(err, checkout.ErrWrongUser),
		errors.Is(err, booking.ErrNotParticipant),
		errors.Is(err, booking.ErrMentorOnly),
		errors.Is(err, booking.ErrOwnRequest):
		writeError(w, http.StatusForbidden, "Not allowed", err)

	case schedule.IsConflict(err):
		writeError(w, http.StatusConflict, "Slot is no longer available", err)

	case errors.Is(err, booking.ErrInvalidState),
		errors.Is(err, booking.ErrRescheduleResolved),
		errors.Is(err, ledger.ErrPayoutResolved),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrDuplicateTransaction):
		writeError(w, http.StatusConflict, "Conflict", err)

	case schedule.IsNotFound(err),
		errors.Is(err, booking.ErrBookingNotFound),
		errors.Is(err, booking.ErrRescheduleNotFound),
		errors.Is(err, ledger.ErrPayoutNotFound),
		errors.Is(err, checkout.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)

	case schedule.IsValidation(err),
		errors.Is(err, booking.ErrReasonRequired),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrMentorRequired),
		errors.Is(err, ledger.ErrInvalidPayoutMethod),
		errors.Is(err, ledger.ErrInvalidResolution),
		errors.Is(err, checkout.ErrInvalidAmount),
		errors.Is(err, schedule.ErrSlotNotBooked):
		writeError(w, http.StatusBadRequest, "Invalid request", err)

	default:
		h.Logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, fallback, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
