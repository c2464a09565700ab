// Package containers locates the backing services used by reservo
// integration tests. It works with an already running docker compose
// setup or with explicit connection strings from the environment, and
// skips the calling test when a service cannot be reached.
package containers

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// TB is the subset of testing.TB used by the helpers.
type TB interface {
	Helper()
	Skip(args ...interface{})
	Skipf(format string, args ...interface{})
}

// PostgresContainer describes a reachable PostgreSQL server.
type PostgresContainer struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
	connStr  string
}

// PostgresOption configures a PostgreSQL lookup.
type PostgresOption func(*postgresConfig)

type postgresConfig struct {
	database string
	user     string
	password string
	port     string
	wait     time.Duration
}

// WithPostgresDatabase sets the database name.
func WithPostgresDatabase(database string) PostgresOption {
	return func(c *postgresConfig) {
		c.database = database
	}
}

// WithPostgresWait bounds how long to wait for the server.
func WithPostgresWait(d time.Duration) PostgresOption {
	return func(c *postgresConfig) {
		c.wait = d
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// defaultPostgresConfig reads POSTGRES_DB, POSTGRES_USER, POSTGRES_PASSWORD
// and POSTGRES_PORT with defaults matching docker-compose.test.yml.
func defaultPostgresConfig() *postgresConfig {
	return &postgresConfig{
		database: getEnvOrDefault("POSTGRES_DB", "reservo_test"),
		user:     getEnvOrDefault("POSTGRES_USER", "postgres"),
		password: getEnvOrDefault("POSTGRES_PASSWORD", "postgres"),
		port:     getEnvOrDefault("POSTGRES_PORT", "5432"),
		wait:     10 * time.Second,
	}
}

// StartPostgres returns a reachable PostgreSQL server or skips t.
// TEST_DATABASE_URL, when set, wins over the POSTGRES_* variables.
// Integration tests are skipped in short mode.
func StartPostgres(t TB, opts ...PostgresOption) *PostgresContainer {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
		return nil
	}

	cfg := defaultPostgresConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	container := &PostgresContainer{
		Host:     "localhost",
		Port:     cfg.port,
		Database: cfg.database,
		User:     cfg.user,
		Password: cfg.password,
		connStr:  os.Getenv("TEST_DATABASE_URL"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.wait)
	defer cancel()

	if err := waitForPostgres(ctx, container.ConnectionString()); err != nil {
		t.Skipf("PostgreSQL not available (set TEST_DATABASE_URL or run docker-compose -f docker-compose.test.yml up -d): %v", err)
		return nil
	}
	return container
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresContainer) ConnectionString() string {
	if c.connStr != "" {
		return c.connStr
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database,
	)
}

// SchemaName returns a schema name unique to this run.
func SchemaName(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func waitForPostgres(ctx context.Context, connStr string) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var lastErr error
	for {
		db, err := sql.Open("pgx", connStr)
		if err == nil {
			err = db.PingContext(ctx)
			db.Close()
			if err == nil {
				return nil
			}
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return lastErr
		case <-ticker.C:
		}
	}
}

// KafkaBrokers returns the brokers listed in TEST_KAFKA_BROKERS or skips t
// when none is set or the first one does not accept connections.
func KafkaBrokers(t TB) []string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
		return nil
	}

	raw := os.Getenv("TEST_KAFKA_BROKERS")
	if raw == "" {
		t.Skip("TEST_KAFKA_BROKERS not set")
		return nil
	}
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		t.Skip("TEST_KAFKA_BROKERS is empty")
		return nil
	}

	conn, err := net.DialTimeout("tcp", brokers[0], 2*time.Second)
	if err != nil {
		t.Skipf("Kafka not available at %s: %v", brokers[0], err)
		return nil
	}
	conn.Close()
	return brokers
}
