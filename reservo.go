// Package reservo provides an event-sourced aggregate engine for users and
// reservations.
//
// The engine is split in three parts. Decide turns a command and the current
// aggregate state into either events or a failure. Project folds one event
// into a new state. The Orchestrator loads state, decides, publishes and
// persists through injected collaborators.
//
// # Quick Start
//
// Wire the orchestrator with the in-memory adapters for development:
//
//	import (
//	    "github.com/AshkanYarmoradi/go-reservo"
//	    "github.com/AshkanYarmoradi/go-reservo/adapters/memory"
//	)
//
//	states := memory.NewStateStore()
//	sink := memory.NewSink()
//	orch := reservo.NewOrchestrator(reservo.StaticResolver(states), sink, sink, states)
//
// Build a command and handle it:
//
//	cmd := reservo.NewCommand(reservo.CreateUser, "u1", reservo.NewStateMap(map[string]reservo.Value{
//	    reservo.FieldUserID:   reservo.String("u1"),
//	    reservo.FieldUsername: reservo.String("bob"),
//	    reservo.FieldEmail:    reservo.String("b@x.com"),
//	    reservo.FieldRoles:    reservo.Strings("Admin"),
//	}))
//
//	result, err := orch.Handle(ctx, cmd.AggregateKey, cmd)
//
// # Pure Functions
//
// Decide and Project perform no I/O and can be used directly:
//
//	result, err := reservo.Decide(reservo.EmptyState(), cmd)
//	if success, ok := result.(reservo.Success); ok {
//	    next, err := reservo.Project(reservo.EmptyState(), success.Events[0])
//	}
//
// # Middleware
//
// Wrap Handle with middleware for logging, retries, idempotency and metrics:
//
//	handle := reservo.Chain(orch.Handle,
//	    reservo.RecoveryMiddleware(),
//	    reservo.NewLoggingMiddleware(logger).Middleware(),
//	    reservo.IdempotencyMiddleware(reservo.DefaultIdempotencyConfig(memory.NewIdempotencyStore())),
//	)
package reservo

// Version returns the library version string.
func Version() string {
	return "0.3.0"
}
