package simulated

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/lnmomo-backend/internal/domain"
	"github.com/simaogato/lnmomo-backend/internal/logging"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func newSource(c *clock, payoutSuccess float64) *Source {
	cfg := Config{
		Rate:              decimal.RequireFromString("0.0000000021"),
		MinExpiry:         8 * time.Minute,
		MaxExpiry:         12 * time.Minute,
		RampUp:            time.Minute,
		PayoutSuccessRate: payoutSuccess,
	}
	return NewSource(cfg, logging.Discard(), WithClock(c.Now), WithRand(rand.New(rand.NewSource(42))))
}

func issue(t *testing.T, s *Source, amount int64) *domain.Invoice {
	t.Helper()
	invoice, err := s.IssueInvoice(context.Background(), domain.InvoiceRequest{Amount: decimal.NewFromInt(amount), Currency: "XAF"})
	require.NoError(t, err)
	return invoice
}

func TestSource_IssueInvoice(t *testing.T) {
	c := &clock{now: time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)}
	s := newSource(c, 0.8)

	invoice := issue(t, s, 1000)

	assert.True(t, strings.HasPrefix(invoice.ID, "sim-"))
	assert.Equal(t, domain.InvoiceSourceSimulated, invoice.Source)
	assert.True(t, invoice.AmountCrypto.Equal(decimal.RequireFromString("0.0000021")))
	assert.True(t, strings.HasPrefix(invoice.PaymentRequest, "lnbc210"))
	// lnbc + sats + hex unix time + 64 + 128 hex chars
	assert.Len(t, invoice.PaymentRequest, len("lnbc210")+len("67af30c0")+64+128)

	expiry := invoice.ExpiresAt.Sub(c.now)
	assert.GreaterOrEqual(t, expiry, 8*time.Minute)
	assert.LessOrEqual(t, expiry, 12*time.Minute)
	assert.Zero(t, expiry%time.Minute)

	_, err := s.IssueInvoice(context.Background(), domain.InvoiceRequest{Amount: decimal.Zero})
	assert.True(t, domain.IsValidation(err))
}

func TestSource_CheckInvoicePaid_UnknownAndExpired(t *testing.T) {
	c := &clock{now: time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)}
	s := newSource(c, 0.8)
	ctx := context.Background()

	check, err := s.CheckInvoicePaid(ctx, domain.InvoiceRef{ID: "sim-unknown", Source: domain.InvoiceSourceSimulated})
	require.NoError(t, err)
	assert.False(t, check.Paid)
	assert.Equal(t, StatusInvalid, check.Status)

	invoice := issue(t, s, 1000)
	c.now = invoice.ExpiresAt.Add(time.Second)

	check, err = s.CheckInvoicePaid(ctx, domain.InvoiceRef{ID: invoice.ID})
	require.NoError(t, err)
	assert.False(t, check.Paid)
	assert.Equal(t, StatusExpired, check.Status)
	assert.False(t, s.MarkPaid(invoice.ID))
}

func TestSource_MarkPaidIsSticky(t *testing.T) {
	c := &clock{now: time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)}
	s := newSource(c, 0.8)
	ctx := context.Background()
	invoice := issue(t, s, 1000)

	assert.True(t, s.MarkPaid(invoice.ID))
	assert.False(t, s.MarkPaid("sim-unknown"))

	for i := 0; i < 5; i++ {
		check, err := s.CheckInvoicePaid(ctx, domain.InvoiceRef{ID: invoice.ID})
		require.NoError(t, err)
		assert.True(t, check.Paid)
		assert.Equal(t, StatusPaid, check.Status)
	}
}

func TestSource_PayChanceGrowsWithAge(t *testing.T) {
	c := &clock{now: time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)}
	s := newSource(c, 0.8)
	ctx := context.Background()

	fraction := func(age time.Duration) float64 {
		const n = 2000
		ids := make([]string, n)
		start := c.now
		for i := range ids {
			ids[i] = issue(t, s, 1000).ID
		}
		c.now = start.Add(age)
		paid := 0
		for _, id := range ids {
			check, err := s.CheckInvoicePaid(ctx, domain.InvoiceRef{ID: id})
			require.NoError(t, err)
			if check.Paid {
				paid++
			}
		}
		return float64(paid) / n
	}

	// Fresh invoices: chance is U(0,0.2), so about 10% pay on first check
	fresh := fraction(0)
	assert.InDelta(t, 0.10, fresh, 0.04)

	// Past the ramp-up: 0.4 + U(0,0.2), about half pay
	aged := fraction(2 * time.Minute)
	assert.InDelta(t, 0.50, aged, 0.05)
}

func TestSource_Payouts(t *testing.T) {
	c := &clock{now: time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)}
	ctx := context.Background()

	always := newSource(c, 1)
	result, err := always.InitiatePayout(ctx, domain.PayoutRequest{Phone: "237670000000", Amount: decimal.NewFromInt(1000), Reference: "tx-1"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, strings.HasPrefix(result.PaymentReference, "sim-momo-"))
	assert.Equal(t, 1, always.Payouts())

	check, err := always.CheckPayoutStatus(ctx, domain.PayoutRef{Reference: result.PaymentReference})
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutCompleted, check.Status)

	never := newSource(c, 0)
	check, err = never.CheckPayoutStatus(ctx, domain.PayoutRef{Reference: "sim-momo-x"})
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutPending, check.Status)
}
