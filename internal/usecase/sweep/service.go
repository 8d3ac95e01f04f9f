// Package sweep reconciles every in-flight transaction in one pass
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/simaogato/lnmomo-backend/internal/domain"
	"github.com/simaogato/lnmomo-backend/internal/usecase/reconcile"
)

// Reconciler is the engine entry point the sweep drives
type Reconciler interface {
	Reconcile(ctx context.Context, tx *domain.Transaction) (*reconcile.Outcome, error)
}

// Result is the per-transaction line of a sweep report
type Result struct {
	TransactionID        uuid.UUID                `json:"transactionId"`
	InitialStatus        domain.TransactionStatus `json:"initialStatus"`
	Status               domain.TransactionStatus `json:"status"`
	Changed              bool                     `json:"changed"`
	PaidAt               *time.Time               `json:"paidAt,omitempty"`
	MobileMoneyReference string                   `json:"mobileMoneyReference,omitempty"`
	Message              string                   `json:"message,omitempty"`
	Error                string                   `json:"error,omitempty"`
}

// Report summarises one sweep
type Report struct {
	ProcessedCount int      `json:"processedCount"`
	ChangedCount   int      `json:"changedCount"`
	FailedCount    int      `json:"failedCount"`
	Results        []Result `json:"results"`
}

// Service is the batch driver
type Service struct {
	TransactionRepo domain.TransactionRepository
	Engine          Reconciler

	workers     int
	itemTimeout time.Duration
	logger      *slog.Logger
}

// NewService creates a sweep service.
// workers <= 0 falls back to sequential processing; itemTimeout <= 0 disables the per-item deadline.
func NewService(transactionRepo domain.TransactionRepository, engine Reconciler, workers int, itemTimeout time.Duration, logger *slog.Logger) *Service {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		TransactionRepo: transactionRepo,
		Engine:          engine,
		workers:         workers,
		itemTimeout:     itemTimeout,
		logger:          logger,
	}
}

// Run reconciles every transaction in an in-flight status, oldest first.
// A failure on one transaction is recorded in its Result and never aborts
// the rest. Only a failure to list the candidates is returned as an error.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	pending, err := s.TransactionRepo.ListByStatus(ctx, domain.InFlightStatuses...)
	if err != nil {
		return nil, fmt.Errorf("failed to list in-flight transactions: %w", err)
	}

	started := time.Now()
	results := make([]Result, len(pending))
	s.run(ctx, len(pending), func(idx int) {
		results[idx] = s.reconcileOne(ctx, pending[idx])
	})

	report := &Report{Results: make([]Result, 0, len(results))}
	for _, r := range results {
		if r.TransactionID == uuid.Nil {
			// never dispatched: the sweep was cancelled first
			continue
		}
		report.ProcessedCount++
		if r.Changed {
			report.ChangedCount++
		}
		if r.Error != "" {
			report.FailedCount++
		}
		report.Results = append(report.Results, r)
	}

	s.logger.Info("sweep finished",
		"candidates", len(pending),
		"processed", report.ProcessedCount,
		"changed", report.ChangedCount,
		"failed", report.FailedCount,
		"duration", time.Since(started),
	)
	return report, ctx.Err()
}

func (s *Service) reconcileOne(ctx context.Context, tx *domain.Transaction) (result Result) {
	result = Result{
		TransactionID: tx.ID,
		InitialStatus: tx.Status,
		Status:        tx.Status,
	}

	itemCtx := ctx
	if s.itemTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, s.itemTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("reconciliation panicked", "transaction_id", tx.ID, "panic", r)
			result.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	out, err := s.Engine.Reconcile(itemCtx, tx)
	if out != nil {
		result.Status = out.Status()
		result.Changed = out.Changed()
		result.PaidAt = out.PaidAt
		result.MobileMoneyReference = out.MobileMoneyReference
		result.Message = out.Message
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("reconciliation timed out", "transaction_id", tx.ID, "timeout", s.itemTimeout)
		} else {
			s.logger.Error("reconciliation failed", "transaction_id", tx.ID, "error", err)
		}
		result.Error = err.Error()
	}
	return result
}

// run fans indices out to a fixed pool of workers and stops handing out
// new work once ctx is done
func (s *Service) run(ctx context.Context, total int, workerFn func(idx int)) {
	if total == 0 {
		return
	}
	indexCh := make(chan int)
	var wg sync.WaitGroup

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indexCh {
				workerFn(idx)
			}
		}()
	}

Loop:
	for i := 0; i < total; i++ {
		select {
		case indexCh <- i:
		case <-ctx.Done():
			break Loop
		}
	}
	close(indexCh)
	wg.Wait()
}
