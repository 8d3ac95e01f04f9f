package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/simaogato/lnmomo-backend/internal/domain"
)

// Router implements domain.ProviderGateway by dispatching on InvoiceSource.
// Live may be nil, in which case every invoice is simulated.
type Router struct {
	live         domain.ProviderGateway
	simulated    domain.ProviderGateway
	simulateOnly bool
	logger       *slog.Logger
}

// NewRouter creates a dispatching gateway
func NewRouter(live, simulated domain.ProviderGateway, simulateOnly bool, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		live:         live,
		simulated:    simulated,
		simulateOnly: simulateOnly || live == nil,
		logger:       logger,
	}
}

// IssueInvoice asks the live provider first and falls back to a simulated
// invoice when every live attempt fails
func (r *Router) IssueInvoice(ctx context.Context, req domain.InvoiceRequest) (*domain.Invoice, error) {
	if !r.simulateOnly {
		invoice, err := r.live.IssueInvoice(ctx, req)
		if err == nil {
			return invoice, nil
		}
		r.logger.Warn("live invoice issuance failed, falling back to simulated invoice",
			"amount", req.Amount.String(),
			"error", err,
		)
	}
	return r.simulated.IssueInvoice(ctx, req)
}

// CheckInvoicePaid dispatches on ref.Source
func (r *Router) CheckInvoicePaid(ctx context.Context, ref domain.InvoiceRef) (*domain.InvoiceCheck, error) {
	gw, err := r.route(ref.Source)
	if err != nil {
		return nil, err
	}
	return gw.CheckInvoicePaid(ctx, ref)
}

// InitiatePayout dispatches on req.Source
func (r *Router) InitiatePayout(ctx context.Context, req domain.PayoutRequest) (*domain.PayoutResult, error) {
	gw, err := r.route(req.Source)
	if err != nil {
		return nil, err
	}
	return gw.InitiatePayout(ctx, req)
}

// CheckPayoutStatus dispatches on ref.Source
func (r *Router) CheckPayoutStatus(ctx context.Context, ref domain.PayoutRef) (*domain.PayoutCheck, error) {
	gw, err := r.route(ref.Source)
	if err != nil {
		return nil, err
	}
	return gw.CheckPayoutStatus(ctx, ref)
}

func (r *Router) route(source domain.InvoiceSource) (domain.ProviderGateway, error) {
	switch source {
	case domain.InvoiceSourceLive:
		if r.live == nil {
			return nil, fmt.Errorf("live provider is not configured: %w", domain.ErrUpstreamTransient)
		}
		return r.live, nil
	case domain.InvoiceSourceSimulated:
		return r.simulated, nil
	default:
		return nil, domain.NewValidationError("invoice_source", fmt.Sprintf("unknown source %q", source))
	}
}
