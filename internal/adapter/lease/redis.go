// Package lease hands out short per-transaction leases so that only one
// reconciliation runs against a transaction at a time.
package lease

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/simaogato/lnmomo-backend/internal/domain"
)

// releaseScript deletes the key only while it still holds our owner token,
// so an expired lease taken over by someone else is left alone
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

const releaseTimeout = 2 * time.Second

// RedisLocker implements domain.Locker with SET NX PX
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// NewRedisLocker creates a locker storing leases under prefix
func NewRedisLocker(client redis.UniversalClient, prefix string, logger *slog.Logger) *RedisLocker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLocker{client: client, prefix: prefix, logger: logger}
}

// Acquire takes the lease for key for at most ttl
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	redisKey := l.prefix + key
	owner := uuid.NewString()

	ok, err := l.client.SetNX(ctx, redisKey, owner, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("lease %s: %w", key, domain.ErrLeaseHeld)
	}

	release := func() {
		// The caller's context may already be cancelled; the release must still go out
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{redisKey}, owner).Err(); err != nil {
			l.logger.Warn("failed to release lease", "key", key, "error", err)
		}
	}
	return release, nil
}
