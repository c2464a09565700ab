package reservo

import (
	"context"
	"time"
)

// IdempotencyStore tracks processed commands to prevent duplicate processing.
type IdempotencyStore interface {
	// Store records that a command was processed.
	Store(ctx context.Context, record *IdempotencyRecord) error

	// Get retrieves the idempotency record for a key.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) (*IdempotencyRecord, error)

	// Delete removes an idempotency record.
	Delete(ctx context.Context, key string) error
}

// IdempotencyRecord stores information about a processed command.
type IdempotencyRecord struct {
	// Key is the idempotency key.
	Key string `json:"key"`

	// CommandKind is the kind of the processed command.
	CommandKind string `json:"commandKind"`

	// AggregateKey is the key the command was handled against.
	AggregateKey string `json:"aggregateKey"`

	// Outcome is one of the Outcome* labels.
	Outcome string `json:"outcome"`

	// Result is the encoded Result, see MarshalResult.
	Result []byte `json:"result,omitempty"`

	// ProcessedAt is when the command was processed.
	ProcessedAt time.Time `json:"processedAt"`

	// ExpiresAt is when the record should expire.
	ExpiresAt time.Time `json:"expiresAt"`
}

// IsExpired returns true if the record has expired.
func (r *IdempotencyRecord) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}

// IdempotencyReplayError indicates a command was already processed but its
// stored result could not be replayed.
type IdempotencyReplayError struct {
	Key     string
	Message string
}

func (e *IdempotencyReplayError) Error() string {
	if e.Message != "" {
		return "reservo: command already processed with key " + e.Key + ": " + e.Message
	}
	return "reservo: command already processed with key " + e.Key
}

func (e *IdempotencyReplayError) Is(target error) bool {
	return target == ErrCommandAlreadyProcessed
}

func (e *IdempotencyReplayError) Unwrap() error {
	return ErrCommandAlreadyProcessed
}

// NewIdempotencyRecord creates a new IdempotencyRecord from a Result.
func NewIdempotencyRecord(key, aggregateKey string, cmd Command, result Result, ttl time.Duration) (*IdempotencyRecord, error) {
	data, err := MarshalResult(result)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &IdempotencyRecord{
		Key:          key,
		CommandKind:  cmd.Kind,
		AggregateKey: aggregateKey,
		Outcome:      OutcomeOf(result, nil),
		Result:       data,
		ProcessedAt:  now,
		ExpiresAt:    now.Add(ttl),
	}, nil
}

// IdempotencyRecordToResult decodes the stored Result.
func IdempotencyRecordToResult(r *IdempotencyRecord) (Result, error) {
	result, err := UnmarshalResult(r.Result)
	if err != nil {
		return nil, &IdempotencyReplayError{Key: r.Key, Message: err.Error()}
	}
	return result, nil
}

// CommandIDKey derives the idempotency key from the command kind and id.
func CommandIDKey(cmd Command) string {
	return cmd.Kind + ":" + cmd.ID.String()
}

// IdempotencyConfig configures the idempotency middleware.
type IdempotencyConfig struct {
	// Store is the idempotency store to use.
	Store IdempotencyStore

	// TTL is how long to keep idempotency records.
	// Default is 24 hours.
	TTL time.Duration

	// KeyGenerator generates idempotency keys from commands.
	// If nil, CommandIDKey is used.
	KeyGenerator func(Command) string

	// StoreBusinessFailures determines if business failures are recorded.
	// Technical failures are never recorded so they can be retried.
	StoreBusinessFailures bool

	// SkipKinds is a list of command kinds to skip idempotency checking.
	SkipKinds []string

	// Logger receives store errors. Defaults to a no-op logger.
	Logger Logger
}

// DefaultIdempotencyConfig returns a default idempotency configuration.
func DefaultIdempotencyConfig(store IdempotencyStore) IdempotencyConfig {
	return IdempotencyConfig{
		Store:                 store,
		TTL:                   24 * time.Hour,
		KeyGenerator:          CommandIDKey,
		StoreBusinessFailures: true,
	}
}

// IdempotencyMiddleware replays the stored result for commands that were
// already handled instead of deciding again.
func IdempotencyMiddleware(config IdempotencyConfig) Middleware {
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}
	if config.KeyGenerator == nil {
		config.KeyGenerator = CommandIDKey
	}
	if config.Logger == nil {
		config.Logger = &noopLogger{}
	}

	skipSet := make(map[string]bool, len(config.SkipKinds))
	for _, k := range config.SkipKinds {
		skipSet[k] = true
	}

	return func(next HandleFunc) HandleFunc {
		return func(ctx context.Context, key string, cmd Command) (Result, error) {
			if skipSet[cmd.Kind] {
				return next(ctx, key, cmd)
			}

			idemKey := config.KeyGenerator(cmd)

			record, err := config.Store.Get(ctx, idemKey)
			if err != nil {
				// Store unavailable: process without deduplication.
				config.Logger.Warn("Idempotency lookup failed",
					"key", idemKey,
					"error", err,
				)
				return next(ctx, key, cmd)
			}

			if record != nil && !record.IsExpired() {
				config.Logger.Debug("Replaying processed command",
					"key", idemKey,
					"outcome", record.Outcome,
				)
				return IdempotencyRecordToResult(record)
			}

			result, cmdErr := next(ctx, key, cmd)

			outcome := OutcomeOf(result, cmdErr)
			shouldStore := outcome == OutcomeSuccess ||
				(config.StoreBusinessFailures && outcome == OutcomeBusiness)
			if shouldStore {
				rec, err := NewIdempotencyRecord(idemKey, key, cmd, result, config.TTL)
				if err == nil {
					err = config.Store.Store(ctx, rec)
				}
				if err != nil {
					config.Logger.Warn("Idempotency record not stored",
						"key", idemKey,
						"error", err,
					)
				}
			}

			return result, cmdErr
		}
	}
}
