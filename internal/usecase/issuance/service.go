package issuance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/lnmomo-backend/internal/domain"
)

// IssueInput represents the input for issuing a new invoice
type IssueInput struct {
	Phone     string
	Amount    decimal.Decimal // fiat
	NetworkID int             // optional
}

// IssueResult is what the payer needs to settle the invoice
type IssueResult struct {
	TransactionID uuid.UUID
	InvoiceID     string
	InvoiceString string
	AmountCrypto  decimal.Decimal
	ExpiresAt     time.Time
	IsSimulated   bool
}

// Settings are the issuance knobs taken from configuration
type Settings struct {
	Currency    string
	Description string
	DialCode    string
	MaxAmount   decimal.Decimal // zero means unbounded
}

// Service issues Lightning invoices and records the matching transactions
type Service struct {
	TransactionRepo domain.TransactionRepository
	Gateway         domain.ProviderGateway
	Catalog         domain.NetworkCatalog
	Publisher       domain.EventPublisher

	settings Settings
	now      func() time.Time
	logger   *slog.Logger
}

// NewService creates a new issuance service. publisher may be nil.
func NewService(
	transactionRepo domain.TransactionRepository,
	gateway domain.ProviderGateway,
	catalog domain.NetworkCatalog,
	publisher domain.EventPublisher,
	settings Settings,
	logger *slog.Logger,
) *Service {
	if settings.Currency == "" {
		settings.Currency = "XAF"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		TransactionRepo: transactionRepo,
		Gateway:         gateway,
		Catalog:         catalog,
		Publisher:       publisher,
		settings:        settings,
		now:             func() time.Time { return time.Now().UTC() },
		logger:          logger,
	}
}

// WithClock replaces the time source; used by tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Issue creates an invoice for input and records it as invoice_generated.
// Logic:
//  1. Canonicalise and validate the phone, the amount and the optional network
//  2. Ask the gateway for an invoice (the router falls back to a simulated one)
//  3. Insert the transaction and announce it on the event channel
//
// Validation failures return a *domain.ValidationError and mutate nothing.
func (s *Service) Issue(ctx context.Context, input IssueInput) (*IssueResult, error) {
	phone := domain.CanonicalPhone(input.Phone, s.settings.DialCode)
	if err := domain.ValidatePhone(phone); err != nil {
		return nil, err
	}

	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.NewValidationError("amount", "must be positive")
	}
	if s.settings.MaxAmount.IsPositive() && input.Amount.GreaterThan(s.settings.MaxAmount) {
		return nil, domain.NewValidationError("amount", fmt.Sprintf("must not exceed %s", s.settings.MaxAmount))
	}
	if err := domain.ValidateAmountScale(input.Amount, s.settings.Currency); err != nil {
		return nil, err
	}

	if input.NetworkID != 0 {
		if input.NetworkID < 0 {
			return nil, domain.NewValidationError("network", "network ID must be positive")
		}
		if s.Catalog == nil {
			return nil, domain.NewValidationError("network", "no mobile networks are configured")
		}
		if _, ok := s.Catalog.Get(input.NetworkID); !ok {
			return nil, domain.NewValidationError("network", fmt.Sprintf("unknown network %d", input.NetworkID))
		}
	}

	invoice, err := s.Gateway.IssueInvoice(ctx, domain.InvoiceRequest{
		Amount:      input.Amount,
		Currency:    s.settings.Currency,
		Description: s.settings.Description,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to issue invoice: %w", err)
	}

	now := s.now()
	tx := &domain.Transaction{
		ID:             uuid.New(),
		Status:         domain.StatusInvoiceGenerated,
		RecipientPhone: phone,
		NetworkID:      input.NetworkID,
		Amount:         input.Amount,
		Currency:       s.settings.Currency,
		AmountCrypto:   invoice.AmountCrypto,
		InvoiceID:      invoice.ID,
		InvoiceString:  invoice.PaymentRequest,
		InvoiceSource:  invoice.Source,
		ExpiresAt:      invoice.ExpiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.TransactionRepo.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	s.logger.Info("invoice issued",
		"transaction_id", tx.ID,
		"invoice_id", tx.InvoiceID,
		"invoice_source", tx.InvoiceSource,
		"amount", tx.Amount.String(),
		"expires_at", tx.ExpiresAt,
	)

	if s.Publisher != nil {
		s.Publisher.Publish(ctx, domain.NewTransitionEvent(tx, "", now))
	}

	return &IssueResult{
		TransactionID: tx.ID,
		InvoiceID:     tx.InvoiceID,
		InvoiceString: tx.InvoiceString,
		AmountCrypto:  tx.AmountCrypto,
		ExpiresAt:     tx.ExpiresAt,
		IsSimulated:   tx.IsSimulated(),
	}, nil
}
