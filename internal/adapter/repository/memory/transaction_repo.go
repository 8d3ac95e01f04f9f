// Package memory is an in-process transaction store used by tests, the
// demo mode and the simulate-only deployments without Postgres.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/simaogato/lnmomo-backend/internal/domain"
)

// TransactionRepository implements domain.TransactionRepository over a map.
// Every method copies in and out so callers never share state with the store.
type TransactionRepository struct {
	mu  sync.RWMutex
	txs map[uuid.UUID]*domain.Transaction
	now func() time.Time
}

// NewTransactionRepository creates an empty store
func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{
		txs: make(map[uuid.UUID]*domain.Transaction),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func clone(tx *domain.Transaction) *domain.Transaction {
	c := *tx
	if tx.PaidAt != nil {
		paidAt := *tx.PaidAt
		c.PaidAt = &paidAt
	}
	return &c
}

// GetByID retrieves a transaction by its ID
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, ok := r.txs[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	return clone(tx), nil
}

// Create inserts a new transaction
func (r *TransactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	if err := tx.Validate(); err != nil {
		return domain.NewValidationError("transaction", err.Error())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.txs[tx.ID]; exists {
		return &domain.PersistenceError{Op: "create transaction", Err: fmt.Errorf("duplicate id %s", tx.ID)}
	}
	r.txs[tx.ID] = clone(tx)
	return nil
}

// UpdateStatus applies update only when the stored status still equals from
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from domain.TransactionStatus, update domain.StatusUpdate) (*domain.Transaction, error) {
	if !from.CanTransitionTo(update.Status) {
		return nil, fmt.Errorf("%s -> %s: %w", from, update.Status, domain.ErrInvalidTransition)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.txs[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	if tx.Status != from {
		return nil, fmt.Errorf("transaction %s expected %s, found %s: %w", id, from, tx.Status, domain.ErrStatusConflict)
	}

	if update.UpdatedAt.IsZero() {
		update.UpdatedAt = r.now()
	}
	update.Apply(tx)
	return clone(tx), nil
}

// ListByStatus returns matching transactions ordered by creation time
func (r *TransactionRepository) ListByStatus(ctx context.Context, statuses ...domain.TransactionStatus) ([]*domain.Transaction, error) {
	wanted := make(map[domain.TransactionStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}

	r.mu.RLock()
	result := make([]*domain.Transaction, 0)
	for _, tx := range r.txs {
		if wanted[tx.Status] {
			result = append(result, clone(tx))
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.String() < result[j].ID.String()
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// Ping always succeeds
func (r *TransactionRepository) Ping(ctx context.Context) error {
	return nil
}

// Len returns the number of stored transactions
func (r *TransactionRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.txs)
}
