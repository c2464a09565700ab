package reservo

import (
	"context"
	"errors"
	"runtime/debug"
	"time"
)

// RecoveryMiddleware recovers from panics in the handle chain and returns
// them as technical failures.
func RecoveryMiddleware() Middleware {
	return func(next HandleFunc) HandleFunc {
		return func(ctx context.Context, key string, cmd Command) (result Result, err error) {
			defer func() {
				if r := recover(); r != nil {
					panicErr := NewPanicError(cmd.Kind, r, string(debug.Stack()))
					result = NewTechnicalFailure(cmd, ErrorState(panicErr.Error()))
					err = panicErr
				}
			}()
			return next(ctx, key, cmd)
		}
	}
}

// LoggingMiddleware logs command handling.
type LoggingMiddleware struct {
	logger Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware.
func NewLoggingMiddleware(logger Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger}
}

// Middleware returns the middleware function.
func (m *LoggingMiddleware) Middleware() Middleware {
	return func(next HandleFunc) HandleFunc {
		return func(ctx context.Context, key string, cmd Command) (Result, error) {
			start := time.Now()

			m.logger.Info("Dispatching command",
				"kind", cmd.Kind,
				"key", key,
				"commandId", cmd.ID,
			)

			result, err := next(ctx, key, cmd)

			duration := time.Since(start)

			if err != nil {
				m.logger.Error("Command failed",
					"kind", cmd.Kind,
					"key", key,
					"duration", duration,
					"error", err,
				)
			} else if f, ok := AsFailure(result); ok {
				m.logger.Warn("Command rejected",
					"kind", cmd.Kind,
					"key", key,
					"duration", duration,
					"errorType", f.ErrorType,
					"error", f.Message(),
				)
			} else {
				var events int
				if s, ok := AsSuccess(result); ok {
					events = len(s.Events)
				}
				m.logger.Info("Command completed",
					"kind", cmd.Kind,
					"key", key,
					"duration", duration,
					"events", events,
				)
			}

			return result, err
		}
	}
}

// TimeoutMiddleware bounds the time the caller waits for Handle.
// Collaborator calls already in flight keep running.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandleFunc) HandleFunc {
		return func(ctx context.Context, key string, cmd Command) (Result, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type outcome struct {
				result Result
				err    error
			}
			done := make(chan outcome, 1)
			go func() {
				r, err := next(ctx, key, cmd)
				done <- outcome{r, err}
			}()

			select {
			case out := <-done:
				return out.result, out.err
			case <-ctx.Done():
				return NewTechnicalFailure(cmd, ErrorState(ctx.Err().Error())), ctx.Err()
			}
		}
	}
}

// RetryConfig configures RetryMiddleware.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the first one).
	MaxAttempts int

	// InitialDelay is the initial delay between retries.
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration

	// Multiplier is the factor by which the delay increases on each retry.
	Multiplier float64

	// ShouldRetry determines if an error should be retried.
	// If nil, IsRetryable is used.
	ShouldRetry func(err error) bool
}

// DefaultRetryConfig returns a default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		ShouldRetry:  nil,
	}
}

// IsRetryable reports whether err is a collaborator fault raised before
// anything was published or stored. Only a failed state read qualifies: a
// fault in publish_event, set_state or publish_failure leaves events or
// failures on the sinks, and running Handle again would publish them a
// second time under new ids.
func IsRetryable(err error) bool {
	var cerr *CollaboratorError
	return errors.As(err, &cerr) && cerr.Operation == OpGetState
}

// RetryMiddleware retries Handle when it ends in a technical failure.
// Business failures are returned immediately since they repeat for the
// same state.
func RetryMiddleware(config RetryConfig) Middleware {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 5 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 1.0
	}
	if config.ShouldRetry == nil {
		config.ShouldRetry = IsRetryable
	}

	return func(next HandleFunc) HandleFunc {
		return func(ctx context.Context, key string, cmd Command) (Result, error) {
			var lastResult Result
			var lastErr error
			delay := config.InitialDelay

			for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
				lastResult, lastErr = next(ctx, key, cmd)

				f, failed := AsFailure(lastResult)
				if lastErr == nil && (!failed || f.IsBusiness()) {
					return lastResult, nil
				}
				if attempt == config.MaxAttempts {
					break
				}

				errToCheck := lastErr
				if errToCheck == nil {
					errToCheck = f
				}
				if !config.ShouldRetry(errToCheck) {
					break
				}

				select {
				case <-ctx.Done():
					return NewTechnicalFailure(cmd, ErrorState(ctx.Err().Error())), ctx.Err()
				case <-time.After(delay):
				}

				delay = time.Duration(float64(delay) * config.Multiplier)
				if delay > config.MaxDelay {
					delay = config.MaxDelay
				}
			}

			return lastResult, lastErr
		}
	}
}

// MetricsCollector records command outcomes.
type MetricsCollector interface {
	// RecordCommand records one Handle call. outcome is "success",
	// "business", "technical" or "error".
	RecordCommand(kind string, duration time.Duration, outcome string, events int)
}

// Outcome labels passed to MetricsCollector.
const (
	OutcomeSuccess   = "success"
	OutcomeBusiness  = "business"
	OutcomeTechnical = "technical"
	OutcomeError     = "error"
)

// OutcomeOf classifies a Handle result for metrics and tracing.
func OutcomeOf(result Result, err error) string {
	if err != nil {
		return OutcomeError
	}
	if f, ok := AsFailure(result); ok {
		if f.IsBusiness() {
			return OutcomeBusiness
		}
		return OutcomeTechnical
	}
	return OutcomeSuccess
}

// MetricsMiddleware creates middleware that records metrics.
func MetricsMiddleware(collector MetricsCollector) Middleware {
	return func(next HandleFunc) HandleFunc {
		return func(ctx context.Context, key string, cmd Command) (Result, error) {
			start := time.Now()
			result, err := next(ctx, key, cmd)

			var events int
			if s, ok := AsSuccess(result); ok {
				events = len(s.Events)
			}
			collector.RecordCommand(cmd.Kind, time.Since(start), OutcomeOf(result, err), events)

			return result, err
		}
	}
}

// correlationIDKey is the context key for correlation ID.
type correlationIDKey struct{}

// CorrelationIDFromContext returns the correlation ID from context.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID returns a context with the correlation ID set.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationIDMiddleware ensures a correlation ID is in context. Without
// one the command ID is used.
func CorrelationIDMiddleware() Middleware {
	return func(next HandleFunc) HandleFunc {
		return func(ctx context.Context, key string, cmd Command) (Result, error) {
			if CorrelationIDFromContext(ctx) == "" {
				ctx = WithCorrelationID(ctx, cmd.ID.String())
			}
			return next(ctx, key, cmd)
		}
	}
}

// ConditionalMiddleware applies middleware only if the condition is true.
func ConditionalMiddleware(condition func(Command) bool, middleware Middleware) Middleware {
	return func(next HandleFunc) HandleFunc {
		wrapped := middleware(next)
		return func(ctx context.Context, key string, cmd Command) (Result, error) {
			if condition(cmd) {
				return wrapped(ctx, key, cmd)
			}
			return next(ctx, key, cmd)
		}
	}
}

// KindMiddleware applies middleware only for specific command kinds.
func KindMiddleware(kinds []string, middleware Middleware) Middleware {
	kindSet := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		kindSet[k] = true
	}

	return ConditionalMiddleware(func(cmd Command) bool {
		return kindSet[cmd.Kind]
	}, middleware)
}
