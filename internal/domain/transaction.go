package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionStatus represents the progress of a Lightning-to-mobile-money transfer
type TransactionStatus string

const (
	// StatusPending is a legacy alias of StatusInvoiceGenerated kept for display.
	// The reconciliation engine never moves a transaction into it.
	StatusPending            TransactionStatus = "pending"
	StatusInvoiceGenerated   TransactionStatus = "invoice_generated"
	StatusPaid               TransactionStatus = "paid"
	StatusSendingMobileMoney TransactionStatus = "sending_mobile_money"
	StatusCompleted          TransactionStatus = "completed"
	StatusFailed             TransactionStatus = "failed"
)

// InFlightStatuses are the statuses the batch sweep scans for
var InFlightStatuses = []TransactionStatus{
	StatusInvoiceGenerated,
	StatusPaid,
	StatusSendingMobileMoney,
}

// transitions lists, for every status, the statuses it may move to.
// Anything not listed is a backward or sideways move and is rejected.
var transitions = map[TransactionStatus][]TransactionStatus{
	StatusInvoiceGenerated:   {StatusPaid, StatusFailed},
	StatusPaid:               {StatusSendingMobileMoney, StatusFailed},
	StatusSendingMobileMoney: {StatusCompleted, StatusFailed},
}

// IsValid reports whether s is one of the known statuses
func (s TransactionStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusInvoiceGenerated, StatusPaid,
		StatusSendingMobileMoney, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition can leave s
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next respects the forward-only graph
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// InvoiceSource tags where an invoice (and everything downstream of it) lives.
// Dispatch on this field is explicit; ids are never inspected for prefixes.
type InvoiceSource string

const (
	InvoiceSourceLive      InvoiceSource = "live"
	InvoiceSourceSimulated InvoiceSource = "simulated"
)

// IsValid reports whether the source is known
func (s InvoiceSource) IsValid() bool {
	return s == InvoiceSourceLive || s == InvoiceSourceSimulated
}

// Transaction is the unit of work: one invoice paid in BTC, one payout in fiat
type Transaction struct {
	ID                   uuid.UUID
	Status               TransactionStatus
	RecipientPhone       string
	NetworkID            int             // 0 when the user did not pick a network
	Amount               decimal.Decimal // fiat, in Currency units
	Currency             string
	AmountCrypto         decimal.Decimal // BTC, derived at creation
	InvoiceID            string
	InvoiceString        string
	InvoiceSource        InvoiceSource
	ExpiresAt            time.Time
	PaidAt               *time.Time // NULL until invoice_generated -> paid
	MobileMoneyReference string     // empty until a payout was initiated successfully
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Validate ensures a freshly issued transaction holds every creation-time field
func (t *Transaction) Validate() error {
	if t.ID == uuid.Nil {
		return errors.New("transaction ID cannot be empty")
	}
	if !t.Status.IsValid() {
		return errors.New("transaction status is invalid")
	}
	if strings.TrimSpace(t.RecipientPhone) == "" {
		return errors.New("recipient phone cannot be empty")
	}
	if t.Amount.LessThanOrEqual(decimal.Zero) {
		return errors.New("transaction amount must be positive")
	}
	if t.AmountCrypto.IsNegative() {
		return errors.New("crypto amount cannot be negative")
	}
	if t.InvoiceID == "" || t.InvoiceString == "" {
		return errors.New("transaction must reference an invoice")
	}
	if !t.InvoiceSource.IsValid() {
		return errors.New("invoice source must be live or simulated")
	}
	if t.ExpiresAt.IsZero() {
		return errors.New("transaction must have an expiry")
	}
	return nil
}

// IsExpired reports whether the invoice deadline has passed at now
func (t *Transaction) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// HasPayoutReference reports whether a payout was already initiated
func (t *Transaction) HasPayoutReference() bool {
	return t.MobileMoneyReference != ""
}

// IsSimulated reports whether the transaction never touches the live provider
func (t *Transaction) IsSimulated() bool {
	return t.InvoiceSource == InvoiceSourceSimulated
}

// TimeRemaining returns how long the invoice stays payable, zero once expired
// or once the invoice left invoice_generated
func (t *Transaction) TimeRemaining(now time.Time) time.Duration {
	if t.Status != StatusInvoiceGenerated && t.Status != StatusPending {
		return 0
	}
	if remaining := t.ExpiresAt.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

// StatusUpdate is the delta written together with a status change.
// Nil / empty fields leave the stored value untouched.
type StatusUpdate struct {
	Status               TransactionStatus
	PaidAt               *time.Time
	MobileMoneyReference string
	UpdatedAt            time.Time
}

// Apply copies the delta onto t, honouring the set-once fields
func (u StatusUpdate) Apply(t *Transaction) {
	t.Status = u.Status
	if u.PaidAt != nil && t.PaidAt == nil {
		paidAt := *u.PaidAt
		t.PaidAt = &paidAt
	}
	if u.MobileMoneyReference != "" && t.MobileMoneyReference == "" {
		t.MobileMoneyReference = u.MobileMoneyReference
	}
	if !u.UpdatedAt.IsZero() {
		t.UpdatedAt = u.UpdatedAt
	}
}
