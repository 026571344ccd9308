// Package sessionstore coordinates payment sessions across API instances:
// a once-only guard for payment link creation and a pub/sub channel that
// carries session state changes to websocket listeners.
package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"storefront-backend/internal/logging"
	"storefront-backend/internal/models"
)

// RedisStore implements the guard and notifier on Redis.
//
// Key format:
//   - link guard: {prefix}:link:{session_id}
//   - events:     {prefix}:events:{session_id}
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL, keyPrefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreWithClient(client, keyPrefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "storefront"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) linkKey(sessionID string) string {
	return fmt.Sprintf("%s:link:%s", s.keyPrefix, sessionID)
}

func (s *RedisStore) eventsChannel(sessionID string) string {
	return fmt.Sprintf("%s:events:%s", s.keyPrefix, sessionID)
}

// AcquireLinkGuard returns true for exactly one caller per session until ttl elapses.
func (s *RedisStore) AcquireLinkGuard(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.linkKey(sessionID), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire link guard: %w", err)
	}
	return ok, nil
}

// Publish announces a session state change.
func (s *RedisStore) Publish(ctx context.Context, event models.SessionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}
	if err := s.client.Publish(ctx, s.eventsChannel(event.SessionID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish session event: %w", err)
	}
	return nil
}

// Subscribe streams events for one session until ctx ends or cancel is called.
func (s *RedisStore) Subscribe(ctx context.Context, sessionID string) (<-chan models.SessionEvent, func(), error) {
	subCtx, cancel := context.WithCancel(ctx)

	pubsub := s.client.Subscribe(subCtx, s.eventsChannel(sessionID))
	if _, err := pubsub.Receive(subCtx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to session events: %w", err)
	}

	events := make(chan models.SessionEvent, 4)
	go func() {
		defer func() {
			_ = pubsub.Close()
			close(events)
		}()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev models.SessionEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logging.Warn().Err(err).Str("session_id", sessionID).Msg("Dropping malformed session event")
					continue
				}
				select {
				case events <- ev:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return events, cancel, nil
}

// Ping checks connectivity for health reporting.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
