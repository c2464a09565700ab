package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AshkanYarmoradi/go-reservo"
	"github.com/AshkanYarmoradi/go-reservo/adapters/aztables"
	"github.com/AshkanYarmoradi/go-reservo/adapters/memory"
	"github.com/AshkanYarmoradi/go-reservo/adapters/postgres"
	"github.com/AshkanYarmoradi/go-reservo/adapters/redis"
	"github.com/AshkanYarmoradi/go-reservo/broker/azqueue"
	"github.com/AshkanYarmoradi/go-reservo/broker/kafka"
	"github.com/AshkanYarmoradi/go-reservo/broker/sns"
	"github.com/AshkanYarmoradi/go-reservo/broker/webhook"
	"github.com/AshkanYarmoradi/go-reservo/cli/config"
	"github.com/AshkanYarmoradi/go-reservo/logging"
	"github.com/AshkanYarmoradi/go-reservo/middleware/metrics"
	"github.com/AshkanYarmoradi/go-reservo/middleware/tracing"
	"github.com/AshkanYarmoradi/go-reservo/serializer/msgpack"
	"github.com/AshkanYarmoradi/go-reservo/serializer/protobuf"
)

// connectTimeout bounds the connectivity check made while wiring a backend.
const connectTimeout = 5 * time.Second

// pinger is implemented by state stores that can check their backend.
type pinger interface {
	Ping(ctx context.Context) error
}

// Runtime holds the collaborators built from a configuration.
type Runtime struct {
	Config       *config.Config
	Logger       *log.Logger
	Codec        reservo.Codec
	States       reservo.StateStore
	Events       reservo.EventSink
	Failures     reservo.ErrorSink
	Idempotency  reservo.IdempotencyStore
	Registry     *prometheus.Registry
	Orchestrator *reservo.Orchestrator

	// Sink is set when the broker driver is memory.
	Sink *memory.Sink

	kafka   *kafka.Publisher
	azqueue *azqueue.Publisher
	pinger  pinger
	closers []func() error
}

// NewRuntime validates cfg and connects every backend it names. Trace spans
// are written to traceOut when tracing is enabled.
func NewRuntime(ctx context.Context, cfg *config.Config, traceOut io.Writer) (*Runtime, error) {
	ctx = ensureContext(ctx)
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", errs[0])
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	rt := &Runtime{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}

	steps := []func(context.Context) error{
		rt.buildCodec,
		rt.buildStateStore,
		rt.buildBroker,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}

	if err := rt.buildOrchestrator(traceOut); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

// ensureContext returns the provided context or a background context if nil.
func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func (rt *Runtime) onClose(fn func() error) {
	rt.closers = append(rt.closers, fn)
}

// Close releases every backend in reverse order of creation.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// Ping checks the state backend. Stores without a health check report nil.
func (rt *Runtime) Ping(ctx context.Context) error {
	if rt.pinger == nil {
		return nil
	}
	return rt.pinger.Ping(ctx)
}

// Handle runs cmd through the orchestrator.
func (rt *Runtime) Handle(ctx context.Context, key string, cmd reservo.Command) (reservo.Result, error) {
	return rt.Orchestrator.Handle(ctx, key, cmd)
}

// NewCodec returns the codec registered under name.
func NewCodec(name string) (reservo.Codec, error) {
	switch name {
	case "", config.CodecJSON:
		return reservo.NewJSONCodec(), nil
	case config.CodecMsgpack:
		return msgpack.NewCodec(), nil
	case config.CodecProtobuf:
		return protobuf.NewCodec(), nil
	default:
		return nil, fmt.Errorf("unsupported codec: %s", name)
	}
}

func (rt *Runtime) buildCodec(context.Context) error {
	codec, err := NewCodec(rt.Config.State.Codec)
	if err != nil {
		return err
	}
	rt.Codec = codec
	return nil
}

func (rt *Runtime) buildStateStore(ctx context.Context) error {
	cfg := rt.Config.State

	switch cfg.Driver {
	case config.DriverMemory:
		store := memory.NewStateStore(memory.WithCodec(rt.Codec))
		rt.States, rt.pinger = store, store
		rt.onClose(store.Close)
		if rt.Config.Idempotency.Enabled {
			idem := memory.NewIdempotencyStore(memory.WithMaxAge(rt.Config.Idempotency.TTL))
			rt.Idempotency = idem
			rt.onClose(idem.Close)
		}

	case config.DriverRedis:
		client, err := redis.NewClient(cfg.Redis.URL)
		if err != nil {
			return err
		}
		rt.onClose(client.Close)
		store := redis.NewStateStore(client,
			redis.WithKeyPrefix(cfg.Redis.KeyPrefix),
			redis.WithTTL(cfg.Redis.TTL),
			redis.WithCodec(rt.Codec),
		)
		if err := pingWithTimeout(ctx, store); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		rt.States, rt.pinger = store, store
		if rt.Config.Idempotency.Enabled {
			rt.Idempotency = redis.NewIdempotencyStore(client)
		}

	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.Postgres.Driver, os.ExpandEnv(cfg.Postgres.DSN), postgres.DefaultPoolConfig())
		if err != nil {
			return err
		}
		rt.onClose(db.Close)
		store := postgres.NewStateStore(db,
			postgres.WithSchema(cfg.Postgres.Schema),
			postgres.WithTable(cfg.Postgres.Table),
			postgres.WithCodec(rt.Codec),
		)
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		rt.States, rt.pinger = store, store
		if rt.Config.Idempotency.Enabled {
			idem := postgres.NewIdempotencyStore(db, postgres.WithIdempotencySchema(cfg.Postgres.Schema))
			if err := idem.Migrate(ctx); err != nil {
				return err
			}
			rt.Idempotency = idem
		}

	case config.DriverAzTables:
		table, err := aztables.NewTable(os.ExpandEnv(cfg.AzTables.ConnectionString), cfg.AzTables.Table)
		if err != nil {
			return err
		}
		rt.States = aztables.NewStateStore(table, aztables.WithCodec(rt.Codec))
		if rt.Config.Idempotency.Enabled {
			idem := memory.NewIdempotencyStore(memory.WithMaxAge(rt.Config.Idempotency.TTL))
			rt.Idempotency = idem
			rt.onClose(idem.Close)
		}

	default:
		return fmt.Errorf("unsupported state driver: %s", cfg.Driver)
	}
	return nil
}

func pingWithTimeout(ctx context.Context, p pinger) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	return p.Ping(ctx)
}

func (rt *Runtime) buildBroker(ctx context.Context) error {
	cfg := rt.Config.Broker

	switch cfg.Driver {
	case config.BrokerMemory:
		sink := memory.NewSink()
		rt.Sink = sink
		rt.Events, rt.Failures = sink, sink

	case config.BrokerKafka:
		pub := kafka.New(
			kafka.WithBrokers(cfg.Kafka.Brokers...),
			kafka.WithTopics(cfg.Kafka.EventTopic, cfg.Kafka.ErrorTopic),
			kafka.WithCodec(rt.Codec),
			kafka.WithPropagator(rt.propagator()),
		)
		rt.onClose(pub.Close)
		rt.kafka = pub
		rt.Events, rt.Failures = pub, pub

	case config.BrokerSNS:
		pub, err := sns.NewFromEnvironment(ctx, cfg.SNS.Region,
			sns.WithTopics(cfg.SNS.EventTopicARN, cfg.SNS.ErrorTopicARN))
		if err != nil {
			return err
		}
		rt.Events, rt.Failures = pub, pub

	case config.BrokerAzQueue:
		connStr := os.ExpandEnv(cfg.AzQueue.ConnectionString)
		events, err := azqueue.NewQueue(connStr, cfg.AzQueue.EventQueue)
		if err != nil {
			return err
		}
		failures, err := azqueue.NewQueue(connStr, cfg.AzQueue.ErrorQueue)
		if err != nil {
			return err
		}
		pub := azqueue.NewPublisher(events, failures, azqueue.WithCodec(rt.Codec))
		rt.azqueue = pub
		rt.Events, rt.Failures = pub, pub

	case config.BrokerWebhook:
		pub := webhook.New(
			webhook.WithEndpoints(cfg.Webhook.EventURL, cfg.Webhook.ErrorURL),
			webhook.WithTimeout(cfg.Webhook.Timeout),
		)
		rt.Events, rt.Failures = pub, pub

	default:
		return fmt.Errorf("unsupported broker driver: %s", cfg.Driver)
	}
	return nil
}

// buildOrchestrator assembles the middleware chain, recovery outermost and
// retry innermost.
func (rt *Runtime) buildOrchestrator(traceOut io.Writer) error {
	cfg := rt.Config
	logger := logging.Adapt(rt.Logger)

	states, events, failures := rt.States, rt.Events, rt.Failures
	chain := []reservo.Middleware{
		reservo.RecoveryMiddleware(),
		reservo.CorrelationIDMiddleware(),
		reservo.NewLoggingMiddleware(logger).Middleware(),
	}

	if cfg.Telemetry.Metrics {
		m := metrics.New(metrics.WithMetricsServiceName(cfg.Telemetry.ServiceName))
		if err := m.Register(rt.Registry); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		chain = append(chain, m.CommandMiddleware())
		states = m.WrapStateStore(states)
		events = m.WrapEventSink(events)
		failures = m.WrapErrorSink(failures)
	}

	if cfg.Telemetry.Tracing {
		if traceOut == nil {
			traceOut = os.Stderr
		}
		provider, err := tracing.NewStdoutProvider(traceOut, cfg.Telemetry.ServiceName)
		if err != nil {
			return err
		}
		rt.onClose(shutdownProvider(provider))
		tracer := tracing.NewTracer(
			tracing.WithTracerProvider(provider),
			tracing.WithServiceName(cfg.Telemetry.ServiceName),
		)
		chain = append(chain, tracing.CommandMiddleware(tracer))
		states = tracing.WrapStateStore(states, tracer)
		events = tracing.WrapEventSink(events, tracer)
		failures = tracing.WrapErrorSink(failures, tracer)
	}

	if cfg.Server.CommandTimeout > 0 {
		chain = append(chain, reservo.TimeoutMiddleware(cfg.Server.CommandTimeout))
	}

	if rt.Idempotency != nil {
		idem := reservo.DefaultIdempotencyConfig(rt.Idempotency)
		idem.TTL = cfg.Idempotency.TTL
		idem.Logger = logger
		chain = append(chain, reservo.IdempotencyMiddleware(idem))
	}

	chain = append(chain, reservo.RetryMiddleware(reservo.DefaultRetryConfig()))

	rt.Orchestrator = reservo.NewOrchestrator(
		reservo.StaticResolver(states), events, failures, states,
		reservo.WithLogger(logger),
		reservo.WithMiddleware(chain...),
	)
	return nil
}

func shutdownProvider(tp *sdktrace.TracerProvider) func() error {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		return tp.Shutdown(ctx)
	}
}

// CommandSender writes admitted commands to the command transport instead
// of handling them in process.
type CommandSender interface {
	Send(ctx context.Context, key string, cmd reservo.Command) error
}

type azqueueSender struct {
	pub   *azqueue.Publisher
	queue azqueue.Queue
}

func (s azqueueSender) Send(ctx context.Context, _ string, cmd reservo.Command) error {
	return s.pub.SendCommand(ctx, s.queue, cmd)
}

// CommandSender returns the producer for the configured command transport.
// Only the kafka and azqueue brokers carry commands.
func (rt *Runtime) CommandSender() (CommandSender, error) {
	switch {
	case rt.kafka != nil:
		return kafka.NewCommandProducer(rt.kafka, rt.Config.Broker.Kafka.CommandTopic), nil
	case rt.azqueue != nil:
		cfg := rt.Config.Broker.AzQueue
		q, err := azqueue.NewQueue(os.ExpandEnv(cfg.ConnectionString), cfg.CommandQueue)
		if err != nil {
			return nil, err
		}
		return azqueueSender{pub: rt.azqueue, queue: q}, nil
	default:
		return nil, fmt.Errorf("broker driver %s does not carry commands", rt.Config.Broker.Driver)
	}
}

// CommandConsumer is a long-running command source.
type CommandConsumer interface {
	Run(ctx context.Context, handle reservo.HandleFunc) error
}

// propagator returns the trace propagator for broker headers, or nil to
// defer to the global one when tracing is off.
func (rt *Runtime) propagator() propagation.TextMapPropagator {
	if rt.Config.Telemetry.Tracing {
		return tracing.Propagator()
	}
	return nil
}

// CommandConsumer returns the consumer for the configured command transport.
func (rt *Runtime) CommandConsumer() (CommandConsumer, error) {
	logger := logging.Adapt(rt.Logger)
	cfg := rt.Config.Broker

	switch cfg.Driver {
	case config.BrokerKafka:
		c := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:    cfg.Kafka.Brokers,
			Topic:      cfg.Kafka.CommandTopic,
			GroupID:    cfg.Kafka.GroupID,
			Codec:      rt.Codec,
			Logger:     logger,
			Propagator: rt.propagator(),
		})
		rt.onClose(c.Close)
		return c, nil
	case config.BrokerAzQueue:
		q, err := azqueue.NewQueue(os.ExpandEnv(cfg.AzQueue.ConnectionString), cfg.AzQueue.CommandQueue)
		if err != nil {
			return nil, err
		}
		return azqueue.NewConsumer(q,
			azqueue.WithConsumerCodec(rt.Codec),
			azqueue.WithLogger(logger),
		), nil
	default:
		return nil, fmt.Errorf("broker driver %s does not carry commands", cfg.Driver)
	}
}

// loadConfig finds the configuration. An explicit path must exist; otherwise
// the nearest reservo.yaml at or above the working directory is used, and the
// defaults when there is none.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	_, cfg, err := config.FindConfig(cwd)
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.DefaultConfig()
		if err := config.ApplyEnv(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return cfg, err
}
