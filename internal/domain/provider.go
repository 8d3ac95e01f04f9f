package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceRequest asks the provider for a Lightning invoice worth Amount fiat
type InvoiceRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Description string
}

// Invoice is the provider's answer to an InvoiceRequest
type Invoice struct {
	ID             string
	PaymentRequest string // bolt11 string shown to the payer
	AmountCrypto   decimal.Decimal
	ExpiresAt      time.Time
	Source         InvoiceSource
}

// IsSimulated reports whether the invoice was generated locally
func (i *Invoice) IsSimulated() bool {
	return i.Source == InvoiceSourceSimulated
}

// InvoiceRef identifies an invoice together with where it lives
type InvoiceRef struct {
	ID     string
	Source InvoiceSource
}

// InvoiceCheck is the provider's view of an invoice.
// Status carries the raw provider vocabulary (PAID, PENDING, EXPIRED, INVALID, ...).
type InvoiceCheck struct {
	Paid   bool
	Status string
}

// PayoutRequest asks the provider to send Amount fiat to Phone.
// Reference is our idempotency reference, sent upstream as externalReference.
type PayoutRequest struct {
	Phone     string
	Amount    decimal.Decimal
	Currency  string
	Reference string
	Source    InvoiceSource
}

// PayoutResult is the outcome of a payout initiation
type PayoutResult struct {
	Success          bool
	PaymentReference string
	Error            string
}

// PayoutRef identifies an initiated payout together with where it lives
type PayoutRef struct {
	Reference string
	Source    InvoiceSource
}

// PayoutStatus is the normalised payout state
type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "pending"
	PayoutCompleted PayoutStatus = "completed"
	PayoutFailed    PayoutStatus = "failed"
)

// PayoutCheck is the provider's view of an initiated payout
type PayoutCheck struct {
	Status PayoutStatus
}

// ProviderGateway wraps the external payment network.
// Errors returned wrap either ErrUpstreamAuth or ErrUpstreamTransient.
type ProviderGateway interface {
	// IssueInvoice creates a Lightning invoice for the request
	IssueInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error)

	// CheckInvoicePaid asks whether the invoice has been paid
	CheckInvoicePaid(ctx context.Context, ref InvoiceRef) (*InvoiceCheck, error)

	// InitiatePayout sends the mobile-money payout. It is never retried internally.
	InitiatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error)

	// CheckPayoutStatus asks how an initiated payout is progressing
	CheckPayoutStatus(ctx context.Context, ref PayoutRef) (*PayoutCheck, error)
}
