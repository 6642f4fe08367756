// Package redis stores idempotency keys for order placement.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xenking/kart-checkout/internal/domain/idempotency"
)

const (
	keyPrefix = "idem:order:"
	// pendingMarker holds the key while the first request is still running.
	pendingMarker = "-"
)

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

var _ idempotency.Store = (*IdempotencyStore)(nil)

// IdempotencyStore implements idempotency.Store with SETNX records that
// expire after a TTL.
type IdempotencyStore struct {
	client goredis.Cmdable
	ttl    time.Duration
}

// NewIdempotencyStore creates a store whose records expire after ttl.
func NewIdempotencyStore(client goredis.Cmdable, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl}
}

func recordKey(userID, key string) string {
	return keyPrefix + userID + ":" + key
}

// Begin claims key for userID with a pending marker.
func (s *IdempotencyStore) Begin(ctx context.Context, userID, key string) (string, error) {
	k := recordKey(userID, key)

	ok, err := s.client.SetNX(ctx, k, pendingMarker, s.ttl).Result()
	if err != nil {
		return "", errors.Wrap(err, "redis setnx")
	}
	if ok {
		return "", nil
	}

	v, err := s.client.Get(ctx, k).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			// Expired or released between the two calls.
			return "", idempotency.ErrInProgress
		}
		return "", errors.Wrap(err, "redis get")
	}
	if v == pendingMarker {
		return "", idempotency.ErrInProgress
	}
	return v, nil
}

// Complete overwrites the pending marker with the order ID.
func (s *IdempotencyStore) Complete(ctx context.Context, userID, key, orderID string) error {
	if err := s.client.Set(ctx, recordKey(userID, key), orderID, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

// Release deletes the record.
func (s *IdempotencyStore) Release(ctx context.Context, userID, key string) error {
	if err := s.client.Del(ctx, recordKey(userID, key)).Err(); err != nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}
