/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types
  decouple the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done in the domain packages, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/mentorbook/ledger"
)

// =============================================================================
// SCHEDULE TYPES
// =============================================================================

// SlotRequest is one slot in a template or override payload.
type SlotRequest struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// SaveTemplateRequest maps lowercase weekday names to slots.
type SaveTemplateRequest struct {
	Template map[string][]SlotRequest `json:"template"`
}

// SaveOverrideRequest replaces a single date's slots.
type SaveOverrideRequest struct {
	Slots []SlotRequest `json:"slots"`
}

// =============================================================================
// CHECKOUT TYPES
// =============================================================================

type BeginCheckoutRequest struct {
	MentorID  string `json:"mentor_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Amount    string `json:"amount"`
}

// =============================================================================
// BOOKING TYPES
// =============================================================================

type CancelBookingRequest struct {
	Reason string `json:"reason"`
}

type CompleteBookingRequest struct {
	Feedback       string `json:"feedback"`
	PracticalScore *int   `json:"practical_score,omitempty"`
	TheoryScore    *int   `json:"theory_score,omitempty"`
}

type UpdateFeedbackRequest struct {
	Feedback string `json:"feedback"`
}

type RescheduleRequestBody struct {
	NewDate      string `json:"new_date"`
	NewStartTime string `json:"new_start_time"`
	NewEndTime   string `json:"new_end_time"`
	Reason       string `json:"reason"`
}

type RespondRescheduleRequest struct {
	Accept bool `json:"accept"`
}

// =============================================================================
// LEDGER TYPES
// =============================================================================

type BalanceDTO struct {
	MentorID string `json:"mentor_id"`
	Balance  string `json:"balance"`
}

type TransactionDTO struct {
	TransactionID string `json:"transaction_id"`
	Date          string `json:"date"`
	Description   string `json:"description"`
	Amount        string `json:"amount"`
	Type          string `json:"type"`
}

func toTransactionDTO(e ledger.Entry) TransactionDTO {
	return TransactionDTO{
		TransactionID: e.TransactionID,
		Date:          e.Date.Format(time.RFC3339),
		Description:   e.Description,
		Amount:        e.Amount.String(),
		Type:          string(e.Type),
	}
}

type RequestPayoutRequest struct {
	Amount         string `json:"amount"`
	PaymentMethod  string `json:"payment_method"`
	PaymentDetails string `json:"payment_details"`
}

type ResolvePayoutRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

type PayoutDTO struct {
	ID             string `json:"id"`
	MentorID       string `json:"mentor_id"`
	Amount         string `json:"amount"`
	PaymentMethod  string `json:"payment_method"`
	PaymentDetails string `json:"payment_details"`
	Status         string `json:"status"`
	RequestedAt    string `json:"requested_at"`
	ProcessedAt    string `json:"processed_at,omitempty"`
	AdminNotes     string `json:"admin_notes,omitempty"`
}

func toPayoutDTO(p ledger.PayoutRequest) PayoutDTO {
	dto := PayoutDTO{
		ID:             p.ID,
		MentorID:       p.MentorID,
		Amount:         p.Amount.String(),
		PaymentMethod:  p.PaymentMethod,
		PaymentDetails: p.PaymentDetails,
		Status:         string(p.Status),
		RequestedAt:    p.RequestedAt.Format(time.RFC3339),
		AdminNotes:     p.AdminNotes,
	}
	if p.ProcessedAt != nil {
		dto.ProcessedAt = p.ProcessedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// LIST / ERROR WRAPPERS
// =============================================================================

// PagedResponse wraps a page of results with the total row count.
type PagedResponse struct {
	Items   any `json:"items"`
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// ErrorResponse is the JSON error envelope. Refundable is set only on
// the paid-but-slot-lost conflict so the client knows a refund is due.
type ErrorResponse struct {
	Error        string `json:"error"`
	Details      string `json:"details,omitempty"`
	Refundable   bool   `json:"refundable,omitempty"`
	ProviderTxID string `json:"provider_tx_id,omitempty"`
	Amount       string `json:"amount,omitempty"`
}

func parseAmount(raw string) (decimal.Decimal, error) {
	return decimal.NewFromString(raw)
}
