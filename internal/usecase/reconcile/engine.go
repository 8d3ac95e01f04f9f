// Package reconcile moves a transaction forward through its state machine by
// comparing the persisted status with what the payment provider reports.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/simaogato/lnmomo-backend/internal/domain"
)

const defaultLeaseTTL = 30 * time.Second

// Engine runs one reconciliation pass per call.
// Every status change is a conditional write, so any number of engines may
// reconcile the same transaction concurrently and at most one of them
// initiates the payout.
type Engine struct {
	repo      domain.TransactionRepository
	gateway   domain.ProviderGateway
	publisher domain.EventPublisher
	locker    domain.Locker
	leaseTTL  time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// Option customises an Engine
type Option func(*Engine)

// WithPublisher announces every persisted transition
func WithPublisher(p domain.EventPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithLocker serialises invocations per transaction with a short lease
func WithLocker(l domain.Locker, ttl time.Duration) Option {
	return func(e *Engine) {
		e.locker = l
		if ttl > 0 {
			e.leaseTTL = ttl
		}
	}
}

// WithClock injects the time source used for expiry and timestamps
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a reconciliation engine
func NewEngine(repo domain.TransactionRepository, gateway domain.ProviderGateway, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		repo:     repo,
		gateway:  gateway,
		leaseTTL: defaultLeaseTTL,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reconcile advances tx as far as the provider allows in a single invocation.
// Logic:
// 1. Take the per-transaction lease when a locker is configured; a busy lease skips
// 2. invoice_generated: fail when expired, otherwise ask whether the invoice was paid
// 3. paid: persist sending_mobile_money first, then initiate the payout exactly once
// 4. sending_mobile_money with a reference: poll the payout status
// 5. Terminal and legacy statuses are left alone
// A lost conditional write reloads the row and stops without further side effects.
func (e *Engine) Reconcile(ctx context.Context, tx *domain.Transaction) (*Outcome, error) {
	out := &Outcome{Transaction: tx, InitialStatus: tx.Status}

	if e.locker != nil && !tx.Status.IsTerminal() {
		release, err := e.locker.Acquire(ctx, tx.ID.String(), e.leaseTTL)
		switch {
		case errors.Is(err, domain.ErrLeaseHeld):
			out.Skipped = true
			out.Message = "reconciliation already in progress"
			return out, nil
		case err != nil:
			// Conditional writes keep this safe without the lease
			e.logger.Warn("lease unavailable, reconciling without it", "transaction_id", tx.ID, "error", err)
		default:
			defer release()
		}
	}

	if err := e.run(ctx, out); err != nil {
		return out, err
	}
	return out, nil
}

func (e *Engine) run(ctx context.Context, out *Outcome) error {
	for {
		cur := out.Transaction
		log := e.logger.With("transaction_id", cur.ID, "status", cur.Status)

		switch cur.Status {
		case domain.StatusCompleted, domain.StatusFailed:
			if out.Message == "" {
				out.Message = fmt.Sprintf("transaction already %s", cur.Status)
			}
			return nil

		case domain.StatusPending:
			out.Message = "legacy pending status is not reconciled"
			return nil

		case domain.StatusInvoiceGenerated:
			now := e.now()
			if step, expired := decideExpiry(cur, now); expired {
				if _, err := e.apply(ctx, out, step); err != nil {
					return err
				}
				return nil
			}

			check, err := e.gateway.CheckInvoicePaid(ctx, domain.InvoiceRef{ID: cur.InvoiceID, Source: cur.InvoiceSource})
			if err != nil {
				log.Warn("invoice status check failed", "invoice_id", cur.InvoiceID, "error", err)
			}
			step := decideInvoiceCheck(check, err, now)
			if !step.Changes() {
				out.Message = step.Message
				return nil
			}
			if applied, err := e.apply(ctx, out, step); err != nil || !applied {
				return err
			}

		case domain.StatusPaid:
			if cur.HasPayoutReference() {
				out.Message = "payout already initiated"
				return nil
			}
			return e.sendPayout(ctx, out)

		case domain.StatusSendingMobileMoney:
			if !cur.HasPayoutReference() {
				out.Message = "payout in flight without reference"
				return nil
			}

			check, err := e.gateway.CheckPayoutStatus(ctx, domain.PayoutRef{Reference: cur.MobileMoneyReference, Source: cur.InvoiceSource})
			if err != nil {
				log.Warn("payout status check failed", "reference", cur.MobileMoneyReference, "error", err)
			}
			step := decidePayoutStatus(check, err)
			if !step.Changes() {
				out.Message = step.Message
				return nil
			}
			if applied, err := e.apply(ctx, out, step); err != nil || !applied {
				return err
			}

		default:
			return domain.NewValidationError("status", fmt.Sprintf("unknown status %q", cur.Status))
		}
	}
}

// sendPayout claims the payout by persisting sending_mobile_money, and only
// the caller whose conditional write succeeded talks to the provider
func (e *Engine) sendPayout(ctx context.Context, out *Outcome) error {
	claimed, err := e.apply(ctx, out, Step{To: domain.StatusSendingMobileMoney, Message: "sending mobile money"})
	if err != nil || !claimed {
		return err
	}

	cur := out.Transaction
	result, err := e.gateway.InitiatePayout(ctx, domain.PayoutRequest{
		Phone:     cur.RecipientPhone,
		Amount:    cur.Amount,
		Currency:  cur.Currency,
		Reference: cur.ID.String(),
		Source:    cur.InvoiceSource,
	})
	if err != nil {
		e.logger.Error("payout initiation failed", "transaction_id", cur.ID, "error", err)
	}

	// The outcome of a payout that left the building must be recorded even if the caller gave up
	step := decidePayoutInitiation(result, err)
	if _, err := e.apply(context.WithoutCancel(ctx), out, step); err != nil {
		if step.Update.MobileMoneyReference != "" {
			e.logger.Error("payout sent but its reference could not be stored",
				"transaction_id", cur.ID,
				"reference", step.Update.MobileMoneyReference,
				"error", err,
			)
		}
		return err
	}
	return nil
}

// apply persists step with a conditional write on the current status.
// It reports false when another writer moved the transaction first; the
// outcome then carries the reloaded state.
func (e *Engine) apply(ctx context.Context, out *Outcome, step Step) (bool, error) {
	cur := out.Transaction
	at := e.now()

	update := step.Update
	update.Status = step.To
	update.UpdatedAt = at

	updated, err := e.repo.UpdateStatus(ctx, cur.ID, cur.Status, update)
	if errors.Is(err, domain.ErrStatusConflict) {
		e.logger.Info("transaction moved concurrently, reloading",
			"transaction_id", cur.ID,
			"expected", cur.Status,
			"wanted", step.To,
		)
		fresh, gerr := e.repo.GetByID(ctx, cur.ID)
		if gerr != nil {
			return false, fmt.Errorf("failed to reload transaction %s: %w", cur.ID, gerr)
		}
		out.Transaction = fresh
		out.Message = "transaction was updated concurrently"
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to persist %s -> %s: %w", cur.Status, step.To, err)
	}

	event := domain.NewTransitionEvent(updated, cur.Status, at)
	out.Transitions = append(out.Transitions, event)
	if step.To == domain.StatusPaid {
		out.PaidAt = updated.PaidAt
	}
	if cur.MobileMoneyReference == "" && updated.MobileMoneyReference != "" {
		out.MobileMoneyReference = updated.MobileMoneyReference
	}
	out.Transaction = updated
	out.Message = step.Message

	e.logger.Info("transaction transitioned",
		"transaction_id", updated.ID,
		"from", cur.Status,
		"to", updated.Status,
		"invoice_source", updated.InvoiceSource,
	)
	if e.publisher != nil {
		e.publisher.Publish(ctx, event)
	}
	return true, nil
}
