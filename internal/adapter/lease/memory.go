package lease

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/simaogato/lnmomo-backend/internal/domain"
)

type entry struct {
	owner     string
	expiresAt time.Time
}

// MemoryLocker implements domain.Locker inside a single process
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]entry
	now    func() time.Time
}

// NewMemoryLocker creates an in-process locker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{leases: make(map[string]entry), now: time.Now}
}

// Acquire takes the lease for key for at most ttl
func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if held, ok := l.leases[key]; ok && now.Before(held.expiresAt) {
		return nil, fmt.Errorf("lease %s: %w", key, domain.ErrLeaseHeld)
	}

	owner := uuid.NewString()
	l.leases[key] = entry{owner: owner, expiresAt: now.Add(ttl)}

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if held, ok := l.leases[key]; ok && held.owner == owner {
			delete(l.leases, key)
		}
	}, nil
}
