package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mohammed-shakir/zonegrid/internal/core/observability"
)

// releaseScript deletes the lease only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AcquireGridLease takes the cross-process grid generation lease for a
// warehouse. ok is false when another holder owns it. The returned release
// func is safe to call after the lease expired.
func (s *Store) AcquireGridLease(ctx context.Context, warehouseID string, ttl time.Duration) (func(context.Context) error, bool, error) {
	key := gridLeaseKey(warehouseID)
	token := uuid.NewString()

	start := time.Now()
	ok, err := s.cli.rdb.SetNX(ctx, key, token, ttl).Result()
	observability.ObserveStoreOp("lease_acquire", err, time.Since(start).Seconds())
	if err != nil {
		return nil, false, fmt.Errorf("redis lease %q: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		start := time.Now()
		err := releaseScript.Run(ctx, s.cli.rdb, []string{key}, token).Err()
		if errors.Is(err, redis.Nil) {
			err = nil
		}
		observability.ObserveStoreOp("lease_release", err, time.Since(start).Seconds())
		if err != nil {
			return fmt.Errorf("redis lease release %q: %w", key, err)
		}
		return nil
	}
	return release, true, nil
}
