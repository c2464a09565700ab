package reservo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Collaborator operation names recorded on CollaboratorError.
const (
	OpGetState       = "get_state"
	OpPublishEvent   = "publish_event"
	OpPublishFailure = "publish_failure"
	OpSetState       = "set_state"
)

// DecideFunc is the signature of a decision function.
type DecideFunc func(state StateMap, cmd Command) (Result, error)

// HandleFunc is the signature of Orchestrator.Handle and of every link in
// a middleware chain.
type HandleFunc func(ctx context.Context, key string, cmd Command) (Result, error)

// Middleware wraps a HandleFunc with additional functionality.
type Middleware func(next HandleFunc) HandleFunc

// Chain applies middleware to h so they execute in the order given.
func Chain(h HandleFunc, middleware ...Middleware) HandleFunc {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}

// Orchestrator loads state, decides, then publishes and persists through
// its collaborators.
type Orchestrator struct {
	resolver StateResolver
	events   EventSink
	failures ErrorSink
	states   StateStore
	decide   DecideFunc
	logger   Logger

	mu         sync.RWMutex
	middleware []Middleware
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithDecider sets the Decider used for decisions.
func WithDecider(d Decider) OrchestratorOption {
	return func(o *Orchestrator) {
		o.decide = d.Decide
	}
}

// WithDecideFunc replaces the decision function entirely.
func WithDecideFunc(fn DecideFunc) OrchestratorOption {
	return func(o *Orchestrator) {
		o.decide = fn
	}
}

// WithLogger sets a custom logger.
func WithLogger(l Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithMiddleware adds middleware around Handle.
func WithMiddleware(middleware ...Middleware) OrchestratorOption {
	return func(o *Orchestrator) {
		o.middleware = append(o.middleware, middleware...)
	}
}

// NewOrchestrator creates an Orchestrator. resolver picks the store state is
// read from; states receives the projected state.
func NewOrchestrator(resolver StateResolver, events EventSink, failures ErrorSink, states StateStore, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		resolver: resolver,
		events:   events,
		failures: failures,
		states:   states,
		decide:   Decider{}.Decide,
		logger:   &noopLogger{},
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Use adds middleware. Middleware is executed in the order it was added.
func (o *Orchestrator) Use(middleware ...Middleware) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.middleware = append(o.middleware, middleware...)
}

// Handle runs cmd against the aggregate at key through the middleware chain.
func (o *Orchestrator) Handle(ctx context.Context, key string, cmd Command) (Result, error) {
	o.mu.RLock()
	middleware := make([]Middleware, len(o.middleware))
	copy(middleware, o.middleware)
	o.mu.RUnlock()

	return Chain(o.handle, middleware...)(ctx, key, cmd)
}

func (o *Orchestrator) handle(ctx context.Context, key string, cmd Command) (Result, error) {
	if o.resolver == nil || o.events == nil || o.failures == nil || o.states == nil {
		return NewTechnicalFailure(cmd, ErrorState(ErrNilCollaborator.Error())), ErrNilCollaborator
	}

	// In-flight collaborator calls outlive a caller that gives up.
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	store := o.resolver(cmd)
	if store == nil {
		return NewTechnicalFailure(cmd, ErrorState(ErrNilCollaborator.Error())), ErrNilCollaborator
	}

	state, err := store.Get(ctx, key)
	if err != nil {
		state = ErrorState(fmt.Errorf("%w: %v", ErrStateRead, err).Error()).
			WithString("operation", OpGetState)
	}

	// A broken state is reported and the decision still runs against it.
	if state.HasErrorMarker() {
		o.logger.Warn("State read failed, continuing with broken state",
			"kind", cmd.Kind,
			"key", key,
			"error", state.ErrorMessage(),
		)
		if err := o.failures.PublishFailure(ctx, key, NewTechnicalFailure(cmd, state)); err != nil {
			return o.fault(ctx, key, cmd, OpPublishFailure, err)
		}
	}

	result, err := o.decide(state, cmd)
	if err != nil {
		failure := technicalFailureFromError(cmd, err)
		o.logger.Error("Decision failed",
			"kind", cmd.Kind,
			"key", key,
			"error", err,
		)
		if perr := o.failures.PublishFailure(ctx, key, failure); perr != nil {
			return o.fault(ctx, key, cmd, OpPublishFailure, perr)
		}
		return failure, nil
	}

	switch r := result.(type) {
	case Success:
		if err := o.publishAll(ctx, key, r.Events); err != nil {
			return o.fault(ctx, key, cmd, OpPublishEvent, err)
		}
		if err := o.persistAll(ctx, key, cmd, state, r.Events); err != nil {
			return o.faultFrom(ctx, key, cmd, err)
		}
		o.logger.Debug("Command handled",
			"kind", cmd.Kind,
			"key", key,
			"events", len(r.Events),
			"duration", time.Since(start),
		)

	case *Failure:
		if err := o.failures.PublishFailure(ctx, key, r); err != nil {
			return o.fault(ctx, key, cmd, OpPublishFailure, err)
		}
		o.logger.Debug("Command rejected",
			"kind", cmd.Kind,
			"key", key,
			"errorType", r.ErrorType,
			"error", r.Message(),
		)

	default:
		return nil, fmt.Errorf("reservo: decision returned unsupported result %T", result)
	}

	return result, nil
}

// publishAll publishes every event concurrently and waits for all of them.
func (o *Orchestrator) publishAll(ctx context.Context, key string, events []Event) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, evt := range events {
		evt := evt
		g.Go(func() error {
			return o.events.PublishEvent(gctx, key, evt)
		})
	}
	return g.Wait()
}

// persistAll projects every event against the same pre-decision state and
// persists the results concurrently. Projections that cannot be stored are
// reported to the error sink instead.
func (o *Orchestrator) persistAll(ctx context.Context, key string, cmd Command, state StateMap, events []Event) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, evt := range events {
		evt := evt
		g.Go(func() error {
			projected, err := Project(state, evt)
			switch {
			case err != nil:
				o.logger.Error("Projection failed",
					"event", evt.Kind,
					"key", key,
					"error", err,
				)
				if perr := o.failures.PublishFailure(gctx, key, technicalFailureFromError(cmd, err)); perr != nil {
					return NewCollaboratorError(OpPublishFailure, key, perr)
				}
			case projected.HasErrorMarker():
				failure := &Failure{Input: cmd, ErrorType: BusinessError, Errors: projected}
				if perr := o.failures.PublishFailure(gctx, key, failure); perr != nil {
					return NewCollaboratorError(OpPublishFailure, key, perr)
				}
			default:
				if _, serr := o.states.Set(gctx, key, projected); serr != nil {
					return NewCollaboratorError(OpSetState, key, serr)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// fault reports a collaborator failure as a technical failure. The failure
// is also published on a best-effort basis unless the error sink itself
// is what failed.
func (o *Orchestrator) fault(ctx context.Context, key string, cmd Command, op string, cause error) (Result, error) {
	return o.faultFrom(ctx, key, cmd, NewCollaboratorError(op, key, cause))
}

func (o *Orchestrator) faultFrom(ctx context.Context, key string, cmd Command, err error) (Result, error) {
	var cerr *CollaboratorError
	if !errors.As(err, &cerr) {
		cerr = NewCollaboratorError(OpSetState, key, err)
	}

	failure := technicalFailureFromError(cmd, cerr)
	failure.Errors = failure.Errors.WithString("operation", cerr.Operation)
	o.logger.Error("Collaborator failed",
		"kind", cmd.Kind,
		"key", key,
		"operation", cerr.Operation,
		"error", cerr.Cause,
	)

	if cerr.Operation != OpPublishFailure {
		if perr := o.failures.PublishFailure(ctx, key, failure); perr != nil {
			o.logger.Warn("Could not report collaborator failure",
				"key", key,
				"error", perr,
			)
		}
	}

	return failure, cerr
}
