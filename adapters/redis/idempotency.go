package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AshkanYarmoradi/go-reservo"
)

// DefaultIdempotencyPrefix is prepended to every idempotency key.
const DefaultIdempotencyPrefix = "reservo:idem:"

var _ reservo.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore keeps idempotency records as JSON with a Redis TTL
// matching the record expiry, so Redis evicts them without a cleanup loop.
type IdempotencyStore struct {
	client redis.UniversalClient
	prefix string
}

// NewIdempotencyStore creates an IdempotencyStore using client.
func NewIdempotencyStore(client redis.UniversalClient) *IdempotencyStore {
	return &IdempotencyStore{client: client, prefix: DefaultIdempotencyPrefix}
}

func (s *IdempotencyStore) key(k string) string {
	return s.prefix + k
}

// Store records that a command was processed. Already expired records are
// not written.
func (s *IdempotencyStore) Store(ctx context.Context, record *reservo.IdempotencyRecord) error {
	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("reservo/redis: encode idempotency record: %w", err)
	}
	if err := s.client.Set(ctx, s.key(record.Key), data, ttl).Err(); err != nil {
		return fmt.Errorf("reservo/redis: store idempotency record: %w", err)
	}
	return nil
}

// Get returns the record for key, or nil if none exists.
func (s *IdempotencyStore) Get(ctx context.Context, key string) (*reservo.IdempotencyRecord, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reservo/redis: get idempotency record: %w", err)
	}

	var record reservo.IdempotencyRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("reservo/redis: decode idempotency record: %w", err)
	}
	if record.IsExpired() {
		return nil, nil
	}
	return &record, nil
}

// Delete removes the record for key.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}
