// Package config holds the reservo service configuration: a YAML file
// overridden by RESERVO_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the default config file name.
const ConfigFileName = "reservo.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RESERVO_"

// Supported drivers and codecs.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverAzTables = "aztables"

	BrokerMemory  = "memory"
	BrokerKafka   = "kafka"
	BrokerSNS     = "sns"
	BrokerAzQueue = "azqueue"
	BrokerWebhook = "webhook"

	CodecJSON     = "json"
	CodecMsgpack  = "msgpack"
	CodecProtobuf = "protobuf"
)

// Config is the reservo service configuration.
type Config struct {
	// Version of the config file format
	Version string `yaml:"version"`

	Server      ServerConfig      `yaml:"server" envPrefix:"SERVER_"`
	Log         LogConfig         `yaml:"log" envPrefix:"LOG_"`
	State       StateConfig       `yaml:"state" envPrefix:"STATE_"`
	Broker      BrokerConfig      `yaml:"broker" envPrefix:"BROKER_"`
	Idempotency IdempotencyConfig `yaml:"idempotency" envPrefix:"IDEMPOTENCY_"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

// ServerConfig configures the HTTP admission endpoint.
type ServerConfig struct {
	Addr           string        `yaml:"addr" env:"ADDR"`
	CommandTimeout time.Duration `yaml:"command_timeout" env:"COMMAND_TIMEOUT"`
}

// LogConfig configures logrus.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// StateConfig selects and configures the state store.
type StateConfig struct {
	// Driver is one of memory, redis, postgres, aztables
	Driver string `yaml:"driver" env:"DRIVER"`

	// Codec is one of json, msgpack, protobuf
	Codec string `yaml:"codec" env:"CODEC"`

	Redis    RedisConfig    `yaml:"redis" envPrefix:"REDIS_"`
	Postgres PostgresConfig `yaml:"postgres" envPrefix:"POSTGRES_"`
	AzTables AzTablesConfig `yaml:"aztables" envPrefix:"AZTABLES_"`
}

// RedisConfig configures the Redis state and idempotency stores.
type RedisConfig struct {
	URL       string `yaml:"url,omitempty" env:"URL"`
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// TTL expires aggregate state; zero keeps it. See Warnings.
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// PostgresConfig configures the Postgres state and idempotency stores.
type PostgresConfig struct {
	DSN    string `yaml:"dsn,omitempty" env:"DSN"`
	Driver string `yaml:"driver" env:"DRIVER"`
	Schema string `yaml:"schema" env:"SCHEMA"`
	Table  string `yaml:"table" env:"TABLE"`
}

// AzTablesConfig configures the Azure Table state store.
type AzTablesConfig struct {
	ConnectionString string `yaml:"connection_string,omitempty" env:"CONNECTION_STRING"`
	Table            string `yaml:"table" env:"TABLE"`
}

// BrokerConfig selects where events and failures are published and where
// commands are consumed from.
type BrokerConfig struct {
	// Driver is one of memory, kafka, sns, azqueue, webhook
	Driver string `yaml:"driver" env:"DRIVER"`

	Kafka   KafkaConfig   `yaml:"kafka" envPrefix:"KAFKA_"`
	SNS     SNSConfig     `yaml:"sns" envPrefix:"SNS_"`
	AzQueue AzQueueConfig `yaml:"azqueue" envPrefix:"AZQUEUE_"`
	Webhook WebhookConfig `yaml:"webhook" envPrefix:"WEBHOOK_"`
}

// KafkaConfig configures the Kafka publisher and command consumer.
type KafkaConfig struct {
	Brokers      []string `yaml:"brokers" env:"BROKERS" envSeparator:","`
	EventTopic   string   `yaml:"event_topic" env:"EVENT_TOPIC"`
	ErrorTopic   string   `yaml:"error_topic" env:"ERROR_TOPIC"`
	CommandTopic string   `yaml:"command_topic" env:"COMMAND_TOPIC"`
	GroupID      string   `yaml:"group_id" env:"GROUP_ID"`
}

// SNSConfig configures the SNS publisher.
type SNSConfig struct {
	Region        string `yaml:"region" env:"REGION"`
	EventTopicARN string `yaml:"event_topic_arn,omitempty" env:"EVENT_TOPIC_ARN"`
	ErrorTopicARN string `yaml:"error_topic_arn,omitempty" env:"ERROR_TOPIC_ARN"`
}

// AzQueueConfig configures the Azure Storage queue publisher and consumer.
type AzQueueConfig struct {
	ConnectionString string `yaml:"connection_string,omitempty" env:"CONNECTION_STRING"`
	EventQueue       string `yaml:"event_queue" env:"EVENT_QUEUE"`
	ErrorQueue       string `yaml:"error_queue" env:"ERROR_QUEUE"`
	CommandQueue     string `yaml:"command_queue" env:"COMMAND_QUEUE"`
}

// WebhookConfig configures the HTTP publisher.
type WebhookConfig struct {
	EventURL string        `yaml:"event_url,omitempty" env:"EVENT_URL"`
	ErrorURL string        `yaml:"error_url,omitempty" env:"ERROR_URL"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// IdempotencyConfig configures command deduplication. Records are kept in
// the state driver's backend.
type IdempotencyConfig struct {
	Enabled bool          `yaml:"enabled" env:"ENABLED"`
	TTL     time.Duration `yaml:"ttl" env:"TTL"`
}

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	Metrics     bool   `yaml:"metrics" env:"METRICS"`
	Tracing     bool   `yaml:"tracing" env:"TRACING"`
}

// DefaultConfig returns a configuration that runs entirely in memory.
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Server: ServerConfig{
			Addr:           ":8080",
			CommandTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		State: StateConfig{
			Driver: DriverMemory,
			Codec:  CodecJSON,
			Redis: RedisConfig{
				KeyPrefix: "reservo:state:",
			},
			Postgres: PostgresConfig{
				Driver: "pgx",
				Schema: "reservo",
				Table:  "states",
			},
			AzTables: AzTablesConfig{
				Table: "ReservoStates",
			},
		},
		Broker: BrokerConfig{
			Driver: BrokerMemory,
			Kafka: KafkaConfig{
				Brokers:      []string{"localhost:9092"},
				EventTopic:   "events-topic",
				ErrorTopic:   "errors-topic",
				CommandTopic: "reservation-events",
				GroupID:      "reservation-event-consumer-group",
			},
			SNS: SNSConfig{
				Region: "us-east-1",
			},
			AzQueue: AzQueueConfig{
				EventQueue:   "reservation-events",
				ErrorQueue:   "reservation-errors",
				CommandQueue: "reservation-commands",
			},
			Webhook: WebhookConfig{
				Timeout: 30 * time.Second,
			},
		},
		Idempotency: IdempotencyConfig{
			Enabled: true,
			TTL:     24 * time.Hour,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "reservo",
			Metrics:     true,
		},
	}
}

// Load reads ConfigFileName from dir. A missing file yields the defaults.
// Environment overrides are applied in both cases.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFileName)
	cfg, err := LoadFile(path)
	if os.IsNotExist(err) {
		cfg = DefaultConfig()
		if err := ApplyEnv(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return cfg, err
}

// LoadFile reads a config file on top of the defaults and applies
// environment overrides.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any RESERVO_* variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}
	return nil
}

// FindConfig searches dir and its parents for ConfigFileName and returns
// the directory it was found in. It returns os.ErrNotExist at the root.
func FindConfig(dir string) (string, *Config, error) {
	current := dir
	for {
		path := filepath.Join(current, ConfigFileName)
		if _, err := os.Stat(path); err == nil {
			cfg, err := LoadFile(path)
			if err != nil {
				return "", nil, err
			}
			return current, cfg, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", nil, os.ErrNotExist
		}
		current = parent
	}
}

// Save saves the configuration to the specified directory
func (c *Config) Save(dir string) error {
	path := filepath.Join(dir, ConfigFileName)
	return c.SaveFile(path)
}

// SaveFile saves the configuration to a specific file path
func (c *Config) SaveFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Exists checks if a config file exists in the directory
func Exists(dir string) bool {
	path := filepath.Join(dir, ConfigFileName)
	_, err := os.Stat(path)
	return err == nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Validate returns every problem found; an empty slice means the
// configuration is usable.
func (c *Config) Validate() []string {
	var errors []string

	if c.Server.Addr == "" {
		errors = append(errors, "server.addr is required")
	}

	switch c.State.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.State.Redis.URL == "" {
			errors = append(errors, "state.redis.url is required for redis driver")
		}
	case DriverPostgres:
		if c.State.Postgres.DSN == "" {
			errors = append(errors, "state.postgres.dsn is required for postgres driver")
		}
		if !oneOf(c.State.Postgres.Driver, "pgx", "postgres") {
			errors = append(errors, "state.postgres.driver must be 'pgx' or 'postgres'")
		}
	case DriverAzTables:
		if c.State.AzTables.ConnectionString == "" {
			errors = append(errors, "state.aztables.connection_string is required for aztables driver")
		}
	default:
		errors = append(errors, "state.driver must be one of memory, redis, postgres, aztables")
	}

	if !oneOf(c.State.Codec, CodecJSON, CodecMsgpack, CodecProtobuf) {
		errors = append(errors, "state.codec must be one of json, msgpack, protobuf")
	}

	switch c.Broker.Driver {
	case BrokerMemory:
	case BrokerKafka:
		if len(c.Broker.Kafka.Brokers) == 0 {
			errors = append(errors, "broker.kafka.brokers is required for kafka driver")
		}
	case BrokerSNS:
		if c.Broker.SNS.EventTopicARN == "" || c.Broker.SNS.ErrorTopicARN == "" {
			errors = append(errors, "broker.sns topic ARNs are required for sns driver")
		}
	case BrokerAzQueue:
		if c.Broker.AzQueue.ConnectionString == "" {
			errors = append(errors, "broker.azqueue.connection_string is required for azqueue driver")
		}
	case BrokerWebhook:
		if c.Broker.Webhook.EventURL == "" || c.Broker.Webhook.ErrorURL == "" {
			errors = append(errors, "broker.webhook urls are required for webhook driver")
		}
	default:
		errors = append(errors, "broker.driver must be one of memory, kafka, sns, azqueue, webhook")
	}

	if c.Idempotency.Enabled && c.Idempotency.TTL <= 0 {
		errors = append(errors, "idempotency.ttl must be positive")
	}

	if !oneOf(c.Log.Format, "text", "json") {
		errors = append(errors, "log.format must be 'text' or 'json'")
	}

	return errors
}

// Warnings returns settings that are usable but likely to lose data.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.State.Driver == DriverRedis && c.State.Redis.TTL > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"state.redis.ttl is %s: Redis evicts aggregate state after it, set 0 to keep state", c.State.Redis.TTL))
	}
	return warnings
}
