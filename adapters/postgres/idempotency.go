package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/AshkanYarmoradi/go-reservo"
)

// Ensure interface compliance at compile time
var _ reservo.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore provides a PostgreSQL implementation of reservo.IdempotencyStore.
type IdempotencyStore struct {
	db     *sqlx.DB
	schema string
	table  string
}

// IdempotencyStoreOption configures an IdempotencyStore
type IdempotencyStoreOption func(*IdempotencyStore)

// WithIdempotencySchema sets the PostgreSQL schema for the idempotency table.
func WithIdempotencySchema(schema string) IdempotencyStoreOption {
	return func(s *IdempotencyStore) {
		s.schema = schema
	}
}

// WithIdempotencyTable sets the table name for idempotency records.
func WithIdempotencyTable(table string) IdempotencyStoreOption {
	return func(s *IdempotencyStore) {
		s.table = table
	}
}

// NewIdempotencyStore creates a new PostgreSQL IdempotencyStore.
func NewIdempotencyStore(db *sqlx.DB, opts ...IdempotencyStoreOption) *IdempotencyStore {
	s := &IdempotencyStore{
		db:     db,
		schema: DefaultSchema,
		table:  "idempotency",
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *IdempotencyStore) fullTableName() string {
	return qualifiedTable(s.schema, s.table)
}

// Migrate creates the idempotency table if it doesn't exist.
func (s *IdempotencyStore) Migrate(ctx context.Context) error {
	if err := validateIdentifier(s.schema, "schema"); err != nil {
		return err
	}
	if err := validateIdentifier(s.table, "table"); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `CREATE SCHEMA IF NOT EXISTS `+pq.QuoteIdentifier(s.schema)); err != nil {
		return fmt.Errorf("reservo/postgres: failed to create schema: %w", err)
	}

	tableQ := s.fullTableName()
	query := `
		CREATE TABLE IF NOT EXISTS ` + tableQ + ` (
			key           VARCHAR(255) PRIMARY KEY,
			command_kind  VARCHAR(255) NOT NULL,
			aggregate_key VARCHAR(500) NOT NULL,
			outcome       VARCHAR(50) NOT NULL,
			result        BYTEA,
			processed_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at    TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS ` + pq.QuoteIdentifier("idx_"+s.table+"_expires_at") + ` ON ` + tableQ + ` (expires_at);
	`

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("reservo/postgres: failed to create idempotency table: %w", err)
	}
	return nil
}

type idempotencyRow struct {
	Key          string    `db:"key"`
	CommandKind  string    `db:"command_kind"`
	AggregateKey string    `db:"aggregate_key"`
	Outcome      string    `db:"outcome"`
	Result       []byte    `db:"result"`
	ProcessedAt  time.Time `db:"processed_at"`
	ExpiresAt    time.Time `db:"expires_at"`
}

// Store saves an idempotency record, replacing any record with the same key.
func (s *IdempotencyStore) Store(ctx context.Context, record *reservo.IdempotencyRecord) error {
	query := `
		INSERT INTO ` + s.fullTableName() + ` (
			key, command_kind, aggregate_key, outcome, result, processed_at, expires_at
		) VALUES (:key, :command_kind, :aggregate_key, :outcome, :result, :processed_at, :expires_at)
		ON CONFLICT (key) DO UPDATE SET
			command_kind = EXCLUDED.command_kind,
			aggregate_key = EXCLUDED.aggregate_key,
			outcome = EXCLUDED.outcome,
			result = EXCLUDED.result,
			processed_at = EXCLUDED.processed_at,
			expires_at = EXCLUDED.expires_at
	`

	row := idempotencyRow{
		Key:          record.Key,
		CommandKind:  record.CommandKind,
		AggregateKey: record.AggregateKey,
		Outcome:      record.Outcome,
		Result:       record.Result,
		ProcessedAt:  record.ProcessedAt,
		ExpiresAt:    record.ExpiresAt,
	}
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("reservo/postgres: failed to store idempotency record: %w", err)
	}
	return nil
}

// Get retrieves an idempotency record by key.
// Returns nil, nil if the record doesn't exist or is expired.
func (s *IdempotencyStore) Get(ctx context.Context, key string) (*reservo.IdempotencyRecord, error) {
	query := `
		SELECT key, command_kind, aggregate_key, outcome, result, processed_at, expires_at
		FROM ` + s.fullTableName() + `
		WHERE key = $1 AND expires_at > NOW()
	`

	var row idempotencyRow
	err := s.db.GetContext(ctx, &row, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reservo/postgres: failed to get idempotency record: %w", err)
	}

	return &reservo.IdempotencyRecord{
		Key:          row.Key,
		CommandKind:  row.CommandKind,
		AggregateKey: row.AggregateKey,
		Outcome:      row.Outcome,
		Result:       row.Result,
		ProcessedAt:  row.ProcessedAt,
		ExpiresAt:    row.ExpiresAt,
	}, nil
}

// Delete removes an idempotency record by key.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM `+s.fullTableName()+` WHERE key = $1`, key); err != nil {
		return fmt.Errorf("reservo/postgres: failed to delete idempotency record: %w", err)
	}
	return nil
}

// Cleanup removes expired records and returns how many were deleted.
func (s *IdempotencyStore) Cleanup(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM `+s.fullTableName()+` WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("reservo/postgres: failed to cleanup idempotency records: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reservo/postgres: failed to get affected rows: %w", err)
	}
	return count, nil
}

// Count returns the total number of records in the store.
func (s *IdempotencyStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM `+s.fullTableName()); err != nil {
		return 0, fmt.Errorf("reservo/postgres: failed to count idempotency records: %w", err)
	}
	return count, nil
}
