package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TransactionRepository defines the interface for transaction persistence operations
type TransactionRepository interface {
	// GetByID retrieves a transaction by its ID
	// Returns ErrNotFound (wrapped) if no row exists
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// Create inserts a new transaction
	Create(ctx context.Context, tx *Transaction) error

	// UpdateStatus writes update only if the persisted status still equals from.
	// Returns ErrStatusConflict (wrapped) when another writer moved the status first,
	// and ErrNotFound (wrapped) when the row does not exist.
	// PaidAt and MobileMoneyReference are only written when still unset.
	UpdateStatus(ctx context.Context, id uuid.UUID, from TransactionStatus, update StatusUpdate) (*Transaction, error)

	// ListByStatus returns every transaction whose status is in statuses,
	// oldest first
	ListByStatus(ctx context.Context, statuses ...TransactionStatus) ([]*Transaction, error)

	// Ping verifies the store is reachable
	Ping(ctx context.Context) error
}

// NetworkCatalog exposes the mobile-money networks a payout can target
type NetworkCatalog interface {
	// List returns every network, sorted by country then name
	List() []MobileNetwork

	// Get retrieves a network by ID
	Get(id int) (MobileNetwork, bool)
}

// Locker hands out short per-transaction leases so only one reconciliation
// runs against a transaction at a time
type Locker interface {
	// Acquire takes the lease for key or returns ErrLeaseHeld.
	// The returned release func is safe to call once the work is done.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// EventPublisher receives every status transition the system performs
type EventPublisher interface {
	Publish(ctx context.Context, event TransitionEvent)
}
