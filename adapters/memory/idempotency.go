package memory

import (
	"context"
	"sync"
	"time"

	"github.com/AshkanYarmoradi/go-reservo"
)

// Ensure interface compliance at compile time
var _ reservo.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore is an in-memory reservo.IdempotencyStore. Records do not
// survive a restart.
type IdempotencyStore struct {
	mu      sync.RWMutex
	records map[string]*reservo.IdempotencyRecord

	// cleanupInterval is how often to run automatic cleanup
	cleanupInterval time.Duration
	// maxAge is the maximum age of records to keep
	maxAge         time.Duration
	stopCleanup    chan struct{}
	closeOnce      sync.Once
	cleanupStarted chan struct{}
}

// IdempotencyStoreOption configures an IdempotencyStore
type IdempotencyStoreOption func(*IdempotencyStore)

// WithCleanupInterval sets the interval for automatic cleanup.
// Set to 0 to disable automatic cleanup.
func WithCleanupInterval(interval time.Duration) IdempotencyStoreOption {
	return func(s *IdempotencyStore) {
		s.cleanupInterval = interval
	}
}

// WithMaxAge sets the maximum age for records.
func WithMaxAge(maxAge time.Duration) IdempotencyStoreOption {
	return func(s *IdempotencyStore) {
		s.maxAge = maxAge
	}
}

// NewIdempotencyStore creates a new in-memory IdempotencyStore.
func NewIdempotencyStore(opts ...IdempotencyStoreOption) *IdempotencyStore {
	s := &IdempotencyStore{
		records:        make(map[string]*reservo.IdempotencyRecord),
		maxAge:         24 * time.Hour,
		stopCleanup:    make(chan struct{}),
		cleanupStarted: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cleanupInterval > 0 {
		go s.startCleanup()
		<-s.cleanupStarted
	} else {
		close(s.cleanupStarted)
	}

	return s
}

func (s *IdempotencyStore) startCleanup() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	close(s.cleanupStarted)

	for {
		select {
		case <-ticker.C:
			_, _ = s.Cleanup(context.Background(), s.maxAge)
		case <-s.stopCleanup:
			return
		}
	}
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (s *IdempotencyStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}

// Store saves a copy of record.
func (s *IdempotencyStore) Store(ctx context.Context, record *reservo.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.Key] = copyRecord(record)
	return nil
}

// Get returns a copy of the record at key, or nil if it is missing or expired.
func (s *IdempotencyStore) Get(ctx context.Context, key string) (*reservo.IdempotencyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[key]
	if !ok || record.IsExpired() {
		return nil, nil
	}
	return copyRecord(record), nil
}

// Delete removes the record at key.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key)
	return nil
}

// Cleanup removes records older than olderThan or already expired and
// returns how many were removed.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	var count int64

	for key, record := range s.records {
		if record.ProcessedAt.Before(cutoff) || record.IsExpired() {
			delete(s.records, key)
			count++
		}
	}

	return count, nil
}

// Len returns the number of records in the store.
func (s *IdempotencyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func copyRecord(r *reservo.IdempotencyRecord) *reservo.IdempotencyRecord {
	cp := *r
	cp.Result = append([]byte(nil), r.Result...)
	return &cp
}
