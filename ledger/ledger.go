/*
Package ledger maintains a mentor's earnings as an append-only ledger.

PURPOSE:
  Every credit and debit is an immutable Entry. Balance is always the
  fold of all entries for a mentor - never stored redundantly, so it
  cannot drift. Corrections are new offsetting entries, never edits.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. UNIQUE TransactionID: the idempotency seam. A retried credit with
     the same id is rejected, so a checkout verified twice cannot pay
     the mentor twice.
  3. The ledger enforces NO balance sufficiency. That is the payout
     workflow's invariant (payout.go); keeping the ledger a dumb log
     keeps it auditable.

BALANCE:
  balance(mentor) = sum(credits) - sum(debits), computed by the store
  as a point-in-time consistent fold (one snapshot read), never a
  running counter subject to lost updates.

SEE ALSO:
  - payout.go: the only writer of debit entries
  - store/sqlite, store/postgres, store/memory: Store implementations
*/
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ENTRY - One immutable ledger line
// =============================================================================

type EntryType string

const (
	EntryCredit EntryType = "credit"
	EntryDebit  EntryType = "debit"
)

// Entry is a single append-only ledger line. Amount is always >= 0;
// direction lives in Type.
type Entry struct {
	MentorID      string          `json:"mentor_id"`
	Date          time.Time       `json:"date"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	Type          EntryType       `json:"type"`
	TransactionID string          `json:"transaction_id"`
}

// NewTransactionID builds a human-readable unique id, e.g.
// "TXN-20250110-9F2C41AB".
func NewTransactionID(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("TXN-%s-%s", at.Format("20060102"), suffix)
}

// =============================================================================
// STORE - Persistence contract (append-only)
// =============================================================================

// Page is 1-based pagination for ledger history and payout listings.
type Page struct {
	Page    int
	PerPage int
}

// Normalize clamps paging parameters to sane defaults.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = 20
	}
	if p.PerPage > 100 {
		p.PerPage = 100
	}
	return p
}

// Offset returns the number of entries to skip.
func (p Page) Offset() int { return (p.Page - 1) * p.PerPage }

// Store persists ledger entries. Append-only: no update or delete
// operations exist on entries.
type Store interface {
	// AppendEntry persists one entry. Returns ErrDuplicateTransaction if
	// the TransactionID already exists.
	AppendEntry(ctx context.Context, e Entry) error

	// Entries returns a page of the mentor's entries, newest first,
	// plus the total count.
	Entries(ctx context.Context, mentorID string, p Page) ([]Entry, int, error)

	// Balance computes sum(credits) - sum(debits) for the mentor as a
	// single consistent snapshot.
	Balance(ctx context.Context, mentorID string) (decimal.Decimal, error)
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger is the append-only credit/debit record per mentor.
type Ledger struct {
	Store Store
	Clock func() time.Time
}

// New creates a ledger over the given store.
func New(store Store) *Ledger {
	return &Ledger{Store: store, Clock: time.Now}
}

// Credit appends a credit entry. transactionID may be empty, in which
// case a fresh one is generated; pass a deterministic id to make the
// write idempotent.
func (l *Ledger) Credit(ctx context.Context, mentorID string, amount decimal.Decimal, description, transactionID string) (Entry, error) {
	return l.append(ctx, mentorID, amount, description, transactionID, EntryCredit)
}

// Debit appends a debit entry. The ledger does not check sufficiency;
// callers coordinate via Balance before debiting.
func (l *Ledger) Debit(ctx context.Context, mentorID string, amount decimal.Decimal, description, transactionID string) (Entry, error) {
	return l.append(ctx, mentorID, amount, description, transactionID, EntryDebit)
}

func (l *Ledger) append(ctx context.Context, mentorID string, amount decimal.Decimal, description, transactionID string, typ EntryType) (Entry, error) {
	if mentorID == "" {
		return Entry{}, ErrMentorRequired
	}
	if !amount.IsPositive() {
		return Entry{}, &AmountError{Amount: amount}
	}

	now := l.Clock()
	if transactionID == "" {
		transactionID = NewTransactionID(now)
	}

	e := Entry{
		MentorID:      mentorID,
		Date:          now,
		Description:   description,
		Amount:        amount,
		Type:          typ,
		TransactionID: transactionID,
	}
	if err := l.Store.AppendEntry(ctx, e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Balance returns the mentor's derived balance.
func (l *Ledger) Balance(ctx context.Context, mentorID string) (decimal.Decimal, error) {
	return l.Store.Balance(ctx, mentorID)
}

// Transactions returns a page of the mentor's history, newest first,
// plus the total entry count.
func (l *Ledger) Transactions(ctx context.Context, mentorID string, p Page) ([]Entry, int, error) {
	return l.Store.Entries(ctx, mentorID, p.Normalize())
}
