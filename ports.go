package reservo

import "context"

// StateStore reads and writes materialized aggregate state.
// Get returns an empty map when the key is absent. Implementations may
// report a broken entry either as an error or as a map carrying the error
// marker.
type StateStore interface {
	Get(ctx context.Context, key string) (StateMap, error)
	Set(ctx context.Context, key string, state StateMap) (StateMap, error)
}

// EventSink publishes events. Events sharing a key must stay in order.
type EventSink interface {
	PublishEvent(ctx context.Context, key string, evt Event) error
}

// ErrorSink publishes failures.
type ErrorSink interface {
	PublishFailure(ctx context.Context, key string, failure *Failure) error
}

// StateResolver picks the store to read state from for a command.
type StateResolver func(cmd Command) StateStore

// StaticResolver resolves every command to store.
func StaticResolver(store StateStore) StateResolver {
	return func(Command) StateStore { return store }
}

// KindResolver routes commands by kind, falling back to fallback.
func KindResolver(routes map[string]StateStore, fallback StateStore) StateResolver {
	return func(cmd Command) StateStore {
		if s, ok := routes[cmd.Kind]; ok {
			return s
		}
		return fallback
	}
}

// StateStoreFuncs adapts a pair of functions to StateStore.
type StateStoreFuncs struct {
	GetFunc func(ctx context.Context, key string) (StateMap, error)
	SetFunc func(ctx context.Context, key string, state StateMap) (StateMap, error)
}

// Get implements StateStore.
func (f StateStoreFuncs) Get(ctx context.Context, key string) (StateMap, error) {
	return f.GetFunc(ctx, key)
}

// Set implements StateStore.
func (f StateStoreFuncs) Set(ctx context.Context, key string, state StateMap) (StateMap, error) {
	return f.SetFunc(ctx, key, state)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, key string, evt Event) error

// PublishEvent implements EventSink.
func (f EventSinkFunc) PublishEvent(ctx context.Context, key string, evt Event) error {
	return f(ctx, key, evt)
}

// ErrorSinkFunc adapts a function to ErrorSink.
type ErrorSinkFunc func(ctx context.Context, key string, failure *Failure) error

// PublishFailure implements ErrorSink.
func (f ErrorSinkFunc) PublishFailure(ctx context.Context, key string, failure *Failure) error {
	return f(ctx, key, failure)
}

// Logger defines the logging interface used by the orchestrator and middleware.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// noopLogger is a no-op logger implementation.
type noopLogger struct{}

func (l *noopLogger) Debug(msg string, args ...interface{}) {}
func (l *noopLogger) Info(msg string, args ...interface{})  {}
func (l *noopLogger) Warn(msg string, args ...interface{})  {}
func (l *noopLogger) Error(msg string, args ...interface{}) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { return &noopLogger{} }
