package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/lnmomo-backend/internal/domain"
	"github.com/simaogato/lnmomo-backend/internal/logging"
)

// MockGateway is a mock implementation of domain.ProviderGateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) IssueInvoice(ctx context.Context, req domain.InvoiceRequest) (*domain.Invoice, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Invoice), args.Error(1)
}

func (m *MockGateway) CheckInvoicePaid(ctx context.Context, ref domain.InvoiceRef) (*domain.InvoiceCheck, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.InvoiceCheck), args.Error(1)
}

func (m *MockGateway) InitiatePayout(ctx context.Context, req domain.PayoutRequest) (*domain.PayoutResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PayoutResult), args.Error(1)
}

func (m *MockGateway) CheckPayoutStatus(ctx context.Context, ref domain.PayoutRef) (*domain.PayoutCheck, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PayoutCheck), args.Error(1)
}

func TestRouter_IssueInvoice_FallsBackToSimulated(t *testing.T) {
	live := new(MockGateway)
	sim := new(MockGateway)
	router := NewRouter(live, sim, false, logging.Discard())
	req := domain.InvoiceRequest{Amount: decimal.NewFromInt(1000), Currency: "XAF"}

	live.On("IssueInvoice", mock.Anything, req).Return(nil, domain.ErrUpstreamTransient)
	sim.On("IssueInvoice", mock.Anything, req).Return(&domain.Invoice{ID: "sim-1", Source: domain.InvoiceSourceSimulated}, nil)

	invoice, err := router.IssueInvoice(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, invoice.IsSimulated())

	live.AssertExpectations(t)
	sim.AssertExpectations(t)
}

func TestRouter_IssueInvoice_LiveSuccess(t *testing.T) {
	live := new(MockGateway)
	sim := new(MockGateway)
	router := NewRouter(live, sim, false, logging.Discard())
	req := domain.InvoiceRequest{Amount: decimal.NewFromInt(1000), Currency: "XAF"}

	live.On("IssueInvoice", mock.Anything, req).Return(&domain.Invoice{ID: "inv-1", Source: domain.InvoiceSourceLive}, nil)

	invoice, err := router.IssueInvoice(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "inv-1", invoice.ID)
	sim.AssertNotCalled(t, "IssueInvoice", mock.Anything, mock.Anything)
}

func TestRouter_SimulateOnlySkipsLive(t *testing.T) {
	live := new(MockGateway)
	sim := new(MockGateway)
	router := NewRouter(live, sim, true, logging.Discard())
	req := domain.InvoiceRequest{Amount: decimal.NewFromInt(500)}

	sim.On("IssueInvoice", mock.Anything, req).Return(&domain.Invoice{ID: "sim-2", Source: domain.InvoiceSourceSimulated}, nil)

	_, err := router.IssueInvoice(context.Background(), req)
	require.NoError(t, err)
	live.AssertNotCalled(t, "IssueInvoice", mock.Anything, mock.Anything)
}

func TestRouter_DispatchesOnSource(t *testing.T) {
	live := new(MockGateway)
	sim := new(MockGateway)
	router := NewRouter(live, sim, false, logging.Discard())
	ctx := context.Background()

	// A live invoice whose id happens to look simulated still goes live
	liveRef := domain.InvoiceRef{ID: "mock-123", Source: domain.InvoiceSourceLive}
	live.On("CheckInvoicePaid", mock.Anything, liveRef).Return(&domain.InvoiceCheck{Paid: true, Status: "PAID"}, nil)

	simPayout := domain.PayoutRequest{Phone: "237670000000", Reference: "tx-1", Source: domain.InvoiceSourceSimulated}
	sim.On("InitiatePayout", mock.Anything, simPayout).Return(&domain.PayoutResult{Success: true, PaymentReference: "sim-momo-1"}, nil)

	liveStatus := domain.PayoutRef{Reference: "momo-9", Source: domain.InvoiceSourceLive}
	live.On("CheckPayoutStatus", mock.Anything, liveStatus).Return(&domain.PayoutCheck{Status: domain.PayoutCompleted}, nil)

	check, err := router.CheckInvoicePaid(ctx, liveRef)
	require.NoError(t, err)
	assert.True(t, check.Paid)

	result, err := router.InitiatePayout(ctx, simPayout)
	require.NoError(t, err)
	assert.Equal(t, "sim-momo-1", result.PaymentReference)

	status, err := router.CheckPayoutStatus(ctx, liveStatus)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutCompleted, status.Status)

	live.AssertExpectations(t)
	sim.AssertExpectations(t)
}

func TestRouter_UnknownOrUnavailableSource(t *testing.T) {
	sim := new(MockGateway)
	router := NewRouter(nil, sim, false, logging.Discard())
	ctx := context.Background()

	_, err := router.CheckInvoicePaid(ctx, domain.InvoiceRef{ID: "x", Source: "carrier-pigeon"})
	assert.True(t, domain.IsValidation(err))

	_, err = router.CheckPayoutStatus(ctx, domain.PayoutRef{Reference: "x", Source: domain.InvoiceSourceLive})
	assert.True(t, errors.Is(err, domain.ErrUpstreamTransient))
}
