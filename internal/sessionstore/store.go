package sessionstore

import (
	"context"
	"time"

	"storefront-backend/internal/logging"
	"storefront-backend/internal/models"
)

// Store is a payment session coordinator backed by Redis or process memory.
type Store interface {
	AcquireLinkGuard(ctx context.Context, sessionID string, ttl time.Duration) (bool, error)
	Publish(ctx context.Context, event models.SessionEvent) error
	Subscribe(ctx context.Context, sessionID string) (<-chan models.SessionEvent, func(), error)
	Close() error
}

// Open connects to Redis at redisURL. An empty URL or an unreachable server
// falls back to a MemoryStore, which only coordinates a single instance.
func Open(ctx context.Context, redisURL, keyPrefix string) Store {
	if redisURL == "" {
		logging.Warn().Msg("REDIS_URL not set, using in-process session store")
		return NewMemoryStore()
	}

	store, err := NewRedisStore(ctx, redisURL, keyPrefix)
	if err != nil {
		logging.Warn().Err(err).Msg("Redis unavailable, using in-process session store")
		return NewMemoryStore()
	}
	return store
}
