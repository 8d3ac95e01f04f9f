// Package simulated issues and settles invoices locally so the whole flow
// can be exercised without the live provider.
package simulated

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/lnmomo-backend/internal/domain"
)

const (
	StatusInvalid = "INVALID"
	StatusExpired = "EXPIRED"
	StatusPaid    = "PAID"
	StatusPending = "PENDING"
)

// Config tunes the simulation
type Config struct {
	Rate              decimal.Decimal // BTC per fiat unit
	MinExpiry         time.Duration
	MaxExpiry         time.Duration
	RampUp            time.Duration // age at which the organic pay chance peaks
	PayoutSuccessRate float64
}

type invoiceState struct {
	created   time.Time
	expiresAt time.Time
	paid      bool
	amount    decimal.Decimal
}

// Source implements domain.ProviderGateway for simulated invoices and payouts.
// All state lives in process memory.
type Source struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	now      func() time.Time
	rand     *rand.Rand
	invoices map[string]*invoiceState
	payouts  map[string]domain.PayoutRequest
}

// Option customises a Source
type Option func(*Source)

// WithClock injects the time source
func WithClock(now func() time.Time) Option {
	return func(s *Source) { s.now = now }
}

// WithRand injects the randomness source
func WithRand(r *rand.Rand) Option {
	return func(s *Source) { s.rand = r }
}

// NewSource creates a simulated gateway
func NewSource(cfg Config, logger *slog.Logger, opts ...Option) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Source{
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		invoices: make(map[string]*invoiceState),
		payouts:  make(map[string]domain.PayoutRequest),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueInvoice generates an invoice string that looks like bolt11
func (s *Source) IssueInvoice(ctx context.Context, req domain.InvoiceRequest) (*domain.Invoice, error) {
	if !req.Amount.IsPositive() {
		return nil, domain.NewValidationError("amount", "must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	amountBtc := req.Amount.Mul(s.cfg.Rate)
	sats := amountBtc.Mul(decimal.NewFromInt(100_000_000)).IntPart()

	expiry := s.cfg.MinExpiry
	if window := s.cfg.MaxExpiry - s.cfg.MinExpiry; window > 0 {
		// Whole minutes, inclusive of both ends
		minutes := int64(window / time.Minute)
		expiry += time.Duration(s.rand.Int63n(minutes+1)) * time.Minute
	}

	id := "sim-" + uuid.NewString()
	paymentRequest := fmt.Sprintf("lnbc%d%x%s%s", sats, now.Unix(), s.hex(64), s.hex(128))

	s.invoices[id] = &invoiceState{
		created:   now,
		expiresAt: now.Add(expiry),
		amount:    req.Amount,
	}

	s.logger.Info("issued simulated invoice", "invoice_id", id, "amount", req.Amount.String(), "expiry", expiry)

	return &domain.Invoice{
		ID:             id,
		PaymentRequest: paymentRequest,
		AmountCrypto:   amountBtc,
		ExpiresAt:      now.Add(expiry),
		Source:         domain.InvoiceSourceSimulated,
	}, nil
}

func (s *Source) hex(n int) string {
	const digits = "0123456789abcdef"
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(digits[s.rand.Intn(16)])
	}
	return b.String()
}

// CheckInvoicePaid simulates a payer: the chance of payment grows with the
// invoice's age and, once paid, the invoice stays paid
func (s *Source) CheckInvoicePaid(ctx context.Context, ref domain.InvoiceRef) (*domain.InvoiceCheck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.invoices[ref.ID]
	if !ok {
		return &domain.InvoiceCheck{Paid: false, Status: StatusInvalid}, nil
	}

	now := s.now()
	if state.paid {
		return &domain.InvoiceCheck{Paid: true, Status: StatusPaid}, nil
	}
	if now.After(state.expiresAt) {
		return &domain.InvoiceCheck{Paid: false, Status: StatusExpired}, nil
	}

	if s.rand.Float64() < s.payChance(now.Sub(state.created)) {
		state.paid = true
		return &domain.InvoiceCheck{Paid: true, Status: StatusPaid}, nil
	}
	return &domain.InvoiceCheck{Paid: false, Status: StatusPending}, nil
}

// payChance is min(age/rampUp, 1) * 0.4 + U(0, 0.2)
func (s *Source) payChance(age time.Duration) float64 {
	ramp := 1.0
	if s.cfg.RampUp > 0 {
		ramp = math.Min(float64(age)/float64(s.cfg.RampUp), 1)
	}
	return math.Max(ramp, 0)*0.4 + s.rand.Float64()*0.2
}

// MarkPaid flips a simulated invoice to paid. It reports false for unknown
// or expired invoices.
func (s *Source) MarkPaid(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.invoices[id]
	if !ok {
		return false
	}
	if !state.paid && s.now().After(state.expiresAt) {
		return false
	}
	state.paid = true
	return true
}

// InitiatePayout always succeeds and records the payout
func (s *Source) InitiatePayout(ctx context.Context, req domain.PayoutRequest) (*domain.PayoutResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reference := "sim-momo-" + uuid.NewString()
	s.payouts[reference] = req

	s.logger.Info("initiated simulated payout",
		"reference", reference,
		"external_reference", req.Reference,
		"amount", req.Amount.String(),
	)
	return &domain.PayoutResult{Success: true, PaymentReference: reference}, nil
}

// CheckPayoutStatus completes a payout with probability PayoutSuccessRate,
// otherwise it is still pending
func (s *Source) CheckPayoutStatus(ctx context.Context, ref domain.PayoutRef) (*domain.PayoutCheck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rand.Float64() < s.cfg.PayoutSuccessRate {
		return &domain.PayoutCheck{Status: domain.PayoutCompleted}, nil
	}
	return &domain.PayoutCheck{Status: domain.PayoutPending}, nil
}

// Payouts returns the number of payouts initiated so far
func (s *Source) Payouts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payouts)
}
