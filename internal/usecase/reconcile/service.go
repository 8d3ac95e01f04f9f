package reconcile

import (
	"context"

	"github.com/google/uuid"

	"github.com/simaogato/lnmomo-backend/internal/domain"
)

// Service is the on-demand driver: one transaction, one engine pass
type Service struct {
	TransactionRepo domain.TransactionRepository
	Engine          *Engine
}

// NewService creates a new on-demand reconciliation service
func NewService(transactionRepo domain.TransactionRepository, engine *Engine) *Service {
	return &Service{
		TransactionRepo: transactionRepo,
		Engine:          engine,
	}
}

// Check loads the transaction and reconciles it once.
// Returns domain.ErrNotFound (wrapped) for an unknown id.
func (s *Service) Check(ctx context.Context, id uuid.UUID) (*Outcome, error) {
	tx, err := s.TransactionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Engine.Reconcile(ctx, tx)
}

// Get returns the persisted transaction without reconciling it
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return s.TransactionRepo.GetByID(ctx, id)
}
