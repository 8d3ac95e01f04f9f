package reconcile

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/simaogato/lnmomo-backend/internal/domain"
)

func TestDecideExpiry(t *testing.T) {
	now := time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		status    domain.TransactionStatus
		expiresAt time.Time
		want      bool
	}{
		{"unpaid and expired", domain.StatusInvoiceGenerated, now.Add(-time.Second), true},
		{"unpaid at the deadline", domain.StatusInvoiceGenerated, now, false},
		{"unpaid and live", domain.StatusInvoiceGenerated, now.Add(time.Minute), false},
		{"paid after the deadline is not expired", domain.StatusPaid, now.Add(-time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := &domain.Transaction{Status: tt.status, ExpiresAt: tt.expiresAt}
			step, expired := decideExpiry(tx, now)
			assert.Equal(t, tt.want, expired)
			if tt.want {
				assert.Equal(t, domain.StatusFailed, step.To)
			}
		})
	}
}

func TestDecideInvoiceCheck(t *testing.T) {
	now := time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)

	step := decideInvoiceCheck(&domain.InvoiceCheck{Paid: true, Status: "PAID"}, nil, now)
	assert.Equal(t, domain.StatusPaid, step.To)
	if assert.NotNil(t, step.Update.PaidAt) {
		assert.Equal(t, now, *step.Update.PaidAt)
	}

	step = decideInvoiceCheck(&domain.InvoiceCheck{Paid: false, Status: "EXPIRED"}, nil, now)
	assert.False(t, step.Changes())
	assert.Equal(t, "invoice not paid yet (EXPIRED)", step.Message)

	step = decideInvoiceCheck(nil, domain.ErrUpstreamTransient, now)
	assert.False(t, step.Changes())
}

func TestDecidePayoutInitiation(t *testing.T) {
	tests := []struct {
		name    string
		result  *domain.PayoutResult
		err     error
		want    domain.TransactionStatus
		wantRef string
		message string
	}{
		{
			name:    "success with reference completes",
			result:  &domain.PayoutResult{Success: true, PaymentReference: "momo-1"},
			want:    domain.StatusCompleted,
			wantRef: "momo-1",
			message: "mobile money sent",
		},
		{
			name:    "success without reference fails",
			result:  &domain.PayoutResult{Success: true},
			want:    domain.StatusFailed,
			message: "payout failed: no payment reference returned",
		},
		{
			name:    "rejection fails with upstream reason",
			result:  &domain.PayoutResult{Success: false, Error: "insufficient float"},
			want:    domain.StatusFailed,
			message: "payout failed: insufficient float",
		},
		{
			name:    "transport error fails",
			err:     errors.New("i/o timeout"),
			want:    domain.StatusFailed,
			message: "payout failed: i/o timeout",
		},
		{
			name:    "nil result fails",
			want:    domain.StatusFailed,
			message: "payout failed: empty response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := decidePayoutInitiation(tt.result, tt.err)
			assert.Equal(t, tt.want, step.To)
			assert.Equal(t, tt.wantRef, step.Update.MobileMoneyReference)
			assert.Equal(t, tt.message, step.Message)
		})
	}
}

func TestDecidePayoutStatus(t *testing.T) {
	tests := []struct {
		name  string
		check *domain.PayoutCheck
		err   error
		want  domain.TransactionStatus
	}{
		{"completed", &domain.PayoutCheck{Status: domain.PayoutCompleted}, nil, domain.StatusCompleted},
		{"failed", &domain.PayoutCheck{Status: domain.PayoutFailed}, nil, domain.StatusFailed},
		{"pending", &domain.PayoutCheck{Status: domain.PayoutPending}, nil, ""},
		{"unknown", &domain.PayoutCheck{Status: "refunded"}, nil, ""},
		{"error", nil, domain.ErrUpstreamTransient, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := decidePayoutStatus(tt.check, tt.err)
			assert.Equal(t, tt.want, step.To)
			assert.Empty(t, step.Update.MobileMoneyReference, "polling never writes a reference")
		})
	}
}
