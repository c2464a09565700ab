// Package postgres provides a PostgreSQL implementation of the reservo state
// store and idempotency store.
//
// Connections go through sqlx. Both the pgx stdlib driver ("pgx") and lib/pq
// ("postgres") are registered; pick one with Open.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/AshkanYarmoradi/go-reservo"
)

// Supported driver names.
const (
	DriverPgx = "pgx"
	DriverPQ  = "postgres"
)

// Defaults for schema and table names.
const (
	DefaultSchema = "reservo"
	DefaultTable  = "states"
)

var (
	// ErrStoreClosed is returned when using a closed store.
	ErrStoreClosed = errors.New("reservo/postgres: store is closed")

	// ErrEmptyKey is returned when setting state under an empty key.
	ErrEmptyKey = errors.New("reservo/postgres: empty aggregate key")

	// ErrUnsupportedDriver is returned by Open for unknown drivers.
	ErrUnsupportedDriver = errors.New("reservo/postgres: unsupported driver")
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// validateIdentifier checks if a name is a valid PostgreSQL identifier.
func validateIdentifier(name, kind string) error {
	if name == "" {
		return fmt.Errorf("reservo/postgres: %s name cannot be empty", kind)
	}
	if len(name) > 63 {
		return fmt.Errorf("reservo/postgres: %s name exceeds 63 characters", kind)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("reservo/postgres: %s name contains invalid characters", kind)
	}
	return nil
}

func qualifiedTable(schema, table string) string {
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)
}

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPoolConfig returns the pool settings used when none are given.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    25,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// Open connects with the given driver and checks the connection.
func Open(ctx context.Context, driver, dsn string, pool PoolConfig) (*sqlx.DB, error) {
	if driver == "" {
		driver = DriverPgx
	}
	if driver != DriverPgx && driver != DriverPQ {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("reservo/postgres: failed to open database: %w", err)
	}

	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("reservo/postgres: failed to ping database: %w", err)
	}
	return db, nil
}

var _ reservo.StateStore = (*StateStore)(nil)

// StateStore keeps one row per aggregate key holding the codec-encoded state.
// There is no version column; concurrent writers to one key are last-write-wins.
type StateStore struct {
	db     *sqlx.DB
	schema string
	table  string
	codec  reservo.Codec
	closed bool
}

// Option configures a StateStore.
type Option func(*StateStore)

// WithSchema sets the database schema name.
func WithSchema(schema string) Option {
	return func(s *StateStore) {
		s.schema = schema
	}
}

// WithTable sets the state table name.
func WithTable(table string) Option {
	return func(s *StateStore) {
		s.table = table
	}
}

// WithCodec sets the state codec.
func WithCodec(codec reservo.Codec) Option {
	return func(s *StateStore) {
		s.codec = codec
	}
}

// NewStateStore creates a StateStore on db.
func NewStateStore(db *sqlx.DB, opts ...Option) *StateStore {
	s := &StateStore{
		db:     db,
		schema: DefaultSchema,
		table:  DefaultTable,
		codec:  reservo.NewJSONCodec(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StateStore) fullTableName() string {
	return qualifiedTable(s.schema, s.table)
}

// Migrate creates the schema and table if they do not exist.
func (s *StateStore) Migrate(ctx context.Context) error {
	if err := validateIdentifier(s.schema, "schema"); err != nil {
		return err
	}
	if err := validateIdentifier(s.table, "table"); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `CREATE SCHEMA IF NOT EXISTS `+pq.QuoteIdentifier(s.schema)); err != nil {
		return fmt.Errorf("reservo/postgres: failed to create schema: %w", err)
	}

	query := `
		CREATE TABLE IF NOT EXISTS ` + s.fullTableName() + ` (
			key        VARCHAR(500) PRIMARY KEY,
			codec      VARCHAR(50) NOT NULL,
			data       BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("reservo/postgres: failed to create state table: %w", err)
	}
	return nil
}

type stateRow struct {
	Key       string    `db:"key"`
	Codec     string    `db:"codec"`
	Data      []byte    `db:"data"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Get returns the state at key, or an empty map. A row that no longer
// decodes, or was written with another codec, is returned as a map carrying
// the error marker.
func (s *StateStore) Get(ctx context.Context, key string) (reservo.StateMap, error) {
	if s.closed {
		return reservo.StateMap{}, ErrStoreClosed
	}

	var row stateRow
	err := s.db.GetContext(ctx, &row,
		`SELECT key, codec, data, updated_at FROM `+s.fullTableName()+` WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return reservo.EmptyState(), nil
	}
	if err != nil {
		return reservo.StateMap{}, fmt.Errorf("reservo/postgres: failed to load state %s: %w", key, err)
	}

	if row.Codec != s.codec.Name() {
		return reservo.ErrorState(fmt.Sprintf("state %s was written with codec %s, store uses %s", key, row.Codec, s.codec.Name())), nil
	}
	state, err := s.codec.DecodeState(row.Data)
	if err != nil {
		return reservo.ErrorState(err.Error()), nil
	}
	return state, nil
}

// Set upserts the state at key and returns it.
func (s *StateStore) Set(ctx context.Context, key string, state reservo.StateMap) (reservo.StateMap, error) {
	if s.closed {
		return reservo.StateMap{}, ErrStoreClosed
	}
	if key == "" {
		return reservo.StateMap{}, ErrEmptyKey
	}

	data, err := s.codec.EncodeState(state)
	if err != nil {
		return reservo.StateMap{}, err
	}

	query := `
		INSERT INTO ` + s.fullTableName() + ` (key, codec, data, updated_at)
		VALUES (:key, :codec, :data, :updated_at)
		ON CONFLICT (key) DO UPDATE SET
			codec = EXCLUDED.codec,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`
	row := stateRow{Key: key, Codec: s.codec.Name(), Data: data, UpdatedAt: time.Now().UTC()}
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return reservo.StateMap{}, fmt.Errorf("reservo/postgres: failed to save state %s: %w", key, err)
	}
	return state, nil
}

// Keys returns all stored keys in order.
func (s *StateStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := s.db.SelectContext(ctx, &keys, `SELECT key FROM `+s.fullTableName()+` ORDER BY key`); err != nil {
		return nil, fmt.Errorf("reservo/postgres: failed to list keys: %w", err)
	}
	return keys, nil
}

// Ping checks the database connection.
func (s *StateStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close marks the store closed. The caller owns db.
func (s *StateStore) Close() error {
	s.closed = true
	return nil
}

// IsUndefinedTable reports whether err is Postgres "relation does not exist",
// which means Migrate has not run.
func IsUndefinedTable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P01"
	}
	var coded interface{ SQLState() string }
	if errors.As(err, &coded) {
		return coded.SQLState() == "42P01"
	}
	return false
}
