/*
provider.go - External payment provider contract

PURPOSE:
  The payment gateway is an external collaborator; only its call/return
  contract lives here. The provider is stateless with respect to this
  domain, so the slot identity (mentor, date, start, end) rides along
  in session metadata and comes back on retrieval.

  paymentStatus == "paid" is the sole trust signal for committing a
  reservation.
*/
package checkout

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Provider payment statuses as reported by RetrieveSession.
const (
	ProviderPaid   = "paid"
	ProviderUnpaid = "unpaid"
)

// Metadata keys carried through the provider round trip.
const (
	MetaMentorID  = "mentor_id"
	MetaUserID    = "user_id"
	MetaDate      = "date"
	MetaStartTime = "start_time"
	MetaEndTime   = "end_time"
)

// CreateSessionParams describes one line item for the provider.
type CreateSessionParams struct {
	LineItem   string
	Amount     decimal.Decimal
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// ProviderSession is the provider's view of a checkout session.
type ProviderSession struct {
	ID            string
	RedirectURL   string
	PaymentStatus string
	AmountTotal   decimal.Decimal
	Metadata      map[string]string
}

// Provider is the external payment gateway contract.
type Provider interface {
	CreateSession(ctx context.Context, p CreateSessionParams) (ProviderSession, error)
	RetrieveSession(ctx context.Context, id string) (ProviderSession, error)
}

// =============================================================================
// STATIC PROVIDER - In-process fake for dev mode and tests
// =============================================================================

// StaticProvider simulates the gateway in memory. Sessions start
// unpaid; tests and the dev loop flip them with MarkPaid.
type StaticProvider struct {
	mu       sync.Mutex
	sessions map[string]ProviderSession
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{sessions: make(map[string]ProviderSession)}
}

func (p *StaticProvider) CreateSession(_ context.Context, params CreateSessionParams) (ProviderSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := "cs_" + uuid.NewString()
	s := ProviderSession{
		ID:            id,
		RedirectURL:   "https://pay.example.test/session/" + id,
		PaymentStatus: ProviderUnpaid,
		AmountTotal:   params.Amount,
		Metadata:      params.Metadata,
	}
	p.sessions[id] = s
	return s, nil
}

func (p *StaticProvider) RetrieveSession(_ context.Context, id string) (ProviderSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[id]
	if !ok {
		return ProviderSession{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// MarkPaid simulates the user completing payment on the provider side.
func (p *StaticProvider) MarkPaid(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.sessions[id]; ok {
		s.PaymentStatus = ProviderPaid
		p.sessions[id] = s
	}
}
