// Package memory provides in-memory implementations of the reservo
// collaborators. They are intended for testing and development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/AshkanYarmoradi/go-reservo"
)

// Ensure StateStore implements reservo.StateStore.
var _ reservo.StateStore = (*StateStore)(nil)

// StateStore is a thread-safe map of aggregate key to state.
type StateStore struct {
	mu     sync.RWMutex
	states map[string]reservo.StateMap
	codec  reservo.Codec
	raw    map[string][]byte
	closed bool
}

// Option configures a StateStore.
type Option func(*StateStore)

// WithCodec stores states encoded with codec instead of as values. A state
// that no longer decodes is returned as a map carrying the error marker.
func WithCodec(codec reservo.Codec) Option {
	return func(s *StateStore) {
		s.codec = codec
	}
}

// NewStateStore creates an empty StateStore.
func NewStateStore(opts ...Option) *StateStore {
	s := &StateStore{
		states: make(map[string]reservo.StateMap),
		raw:    make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the state stored at key, or an empty map.
func (s *StateStore) Get(ctx context.Context, key string) (reservo.StateMap, error) {
	if err := ctx.Err(); err != nil {
		return reservo.StateMap{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return reservo.StateMap{}, ErrStoreClosed
	}

	if s.codec == nil {
		return s.states[key], nil
	}

	data, ok := s.raw[key]
	if !ok {
		return reservo.EmptyState(), nil
	}
	state, err := s.codec.DecodeState(data)
	if err != nil {
		return reservo.ErrorState(err.Error()), nil
	}
	return state, nil
}

// Set replaces the state at key and returns it.
func (s *StateStore) Set(ctx context.Context, key string, state reservo.StateMap) (reservo.StateMap, error) {
	if err := ctx.Err(); err != nil {
		return reservo.StateMap{}, err
	}
	if key == "" {
		return reservo.StateMap{}, ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return reservo.StateMap{}, ErrStoreClosed
	}

	if s.codec == nil {
		s.states[key] = state
		return state, nil
	}

	data, err := s.codec.EncodeState(state)
	if err != nil {
		return reservo.StateMap{}, err
	}
	s.raw[key] = data
	return state, nil
}

// SetRaw stores pre-encoded bytes at key. It only has an effect when the
// store uses a codec and is meant for simulating corrupted entries.
func (s *StateStore) SetRaw(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw[key] = data
}

// Keys returns the stored keys in sorted order.
func (s *StateStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.states)+len(s.raw))
	for k := range s.states {
		keys = append(keys, k)
	}
	for k := range s.raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored states.
func (s *StateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states) + len(s.raw)
}

// Ping reports whether the store is usable.
func (s *StateStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Subsequent calls fail with ErrStoreClosed.
func (s *StateStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Reset clears all states.
func (s *StateStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = make(map[string]reservo.StateMap)
	s.raw = make(map[string][]byte)
}
