// Package redis provides Redis-backed reservo collaborators: a StateStore
// holding one encoded state per aggregate key and an IdempotencyStore.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AshkanYarmoradi/go-reservo"
)

// DefaultKeyPrefix is prepended to every aggregate key.
const DefaultKeyPrefix = "reservo:state:"

// ErrEmptyKey is returned when setting state under an empty key.
var ErrEmptyKey = errors.New("reservo/redis: empty aggregate key")

var _ reservo.StateStore = (*StateStore)(nil)

// StateStore keeps aggregate state as codec-encoded strings.
type StateStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	codec  reservo.Codec
}

// Option configures a StateStore.
type Option func(*StateStore)

// WithKeyPrefix sets the key prefix. An empty prefix stores states at the
// bare aggregate key.
func WithKeyPrefix(prefix string) Option {
	return func(s *StateStore) {
		s.prefix = prefix
	}
}

// WithTTL expires states after d. Zero keeps them forever.
//
// The stored state is the only copy of an aggregate, so an expired key
// reads back as missing and the next command decides against an empty
// state. Use a non-zero TTL only for disposable aggregates.
func WithTTL(d time.Duration) Option {
	return func(s *StateStore) {
		if d < 0 {
			d = 0
		}
		s.ttl = d
	}
}

// WithCodec sets the state codec.
func WithCodec(codec reservo.Codec) Option {
	return func(s *StateStore) {
		s.codec = codec
	}
}

// NewStateStore creates a StateStore using client.
func NewStateStore(client redis.UniversalClient, opts ...Option) *StateStore {
	s := &StateStore{
		client: client,
		prefix: DefaultKeyPrefix,
		codec:  reservo.NewJSONCodec(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewClient parses a redis:// URL and returns a client.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("reservo/redis: parse url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (s *StateStore) key(aggregateKey string) string {
	return s.prefix + aggregateKey
}

// Get returns the state at key or an empty map. An entry that no longer
// decodes is returned as a map carrying the error marker.
func (s *StateStore) Get(ctx context.Context, key string) (reservo.StateMap, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return reservo.EmptyState(), nil
	}
	if err != nil {
		return reservo.StateMap{}, fmt.Errorf("reservo/redis: get %s: %w", key, err)
	}

	state, err := s.codec.DecodeState(data)
	if err != nil {
		return reservo.ErrorState(err.Error()), nil
	}
	return state, nil
}

// Set replaces the state at key and returns it.
func (s *StateStore) Set(ctx context.Context, key string, state reservo.StateMap) (reservo.StateMap, error) {
	if key == "" {
		return reservo.StateMap{}, ErrEmptyKey
	}

	data, err := s.codec.EncodeState(state)
	if err != nil {
		return reservo.StateMap{}, err
	}
	if err := s.client.Set(ctx, s.key(key), data, s.ttl).Err(); err != nil {
		return reservo.StateMap{}, fmt.Errorf("reservo/redis: set %s: %w", key, err)
	}
	return state, nil
}

// Delete removes the state at key.
func (s *StateStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("reservo/redis: delete %s: %w", key, err)
	}
	return nil
}

// Ping checks the connection.
func (s *StateStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
