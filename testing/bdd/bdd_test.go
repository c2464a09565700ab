package bdd

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-reservo"
	"github.com/AshkanYarmoradi/go-reservo/adapters/memory"
)

// =============================================================================
// Mock Testing Helper
// =============================================================================

// mockT is a mock testing.TB that captures test failures for testing BDD functions
type mockT struct {
	testing.TB
	failed  bool
	message string
	fatal   bool
}

func (m *mockT) Helper() {}

func (m *mockT) Errorf(format string, args ...interface{}) {
	m.failed = true
	m.message = format
}

func (m *mockT) Fatalf(format string, args ...interface{}) {
	m.failed = true
	m.fatal = true
	m.message = format
	runtime.Goexit()
}

func (m *mockT) Fatal(args ...interface{}) {
	m.failed = true
	m.fatal = true
	if len(args) > 0 {
		if msg, ok := args[0].(string); ok {
			m.message = msg
		}
	}
	runtime.Goexit()
}

// runWithMockT runs a function with a mockT and returns whether it failed
func runWithMockT(fn func(*mockT)) *mockT {
	mt := &mockT{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(mt)
	}()
	<-done
	return mt
}

// =============================================================================
// Fixtures
// =============================================================================

var (
	userID = "6f1c2a8e-3b44-4c1e-9d5a-2f7b8c9d0e1f"
	now    = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	fixed  = reservo.Decider{
		Now:   func() time.Time { return now },
		NewID: func() uuid.UUID { return uuid.MustParse("00000000-0000-0000-0000-000000000001") },
	}
)

func userData() reservo.StateMap {
	return reservo.NewStateMap(map[string]reservo.Value{
		reservo.FieldUserID:   reservo.String(userID),
		reservo.FieldUsername: reservo.String("ana"),
		reservo.FieldEmail:    reservo.String("ana@example.com"),
		reservo.FieldRoles:    reservo.Strings("guest"),
	})
}

func createUser() reservo.Command {
	return reservo.NewCommand(reservo.CreateUser, userID, userData())
}

func deleteUser() reservo.Command {
	return reservo.NewCommand(reservo.DeleteUser, userID, reservo.NewStateMap(map[string]reservo.Value{
		reservo.FieldUserID: reservo.String(userID),
	}))
}

func userCreated() reservo.Event {
	return reservo.NewEvent(reservo.UserCreated, userID, userData().WithString(reservo.FieldStatus, reservo.StatusActive))
}

// =============================================================================
// TestFixture
// =============================================================================

func TestTestFixture(t *testing.T) {
	t.Run("create user on empty state", func(t *testing.T) {
		GivenNothing(t).
			WithDecider(fixed).
			When(createUser()).
			Then(reservo.UserCreated).
			ThenEventHas(0, reservo.FieldStatus, reservo.String(reservo.StatusActive)).
			ThenState(userData().WithString(reservo.FieldStatus, reservo.StatusActive))
	})

	t.Run("history is folded before deciding", func(t *testing.T) {
		Given(t, reservo.EmptyState(), userCreated()).
			When(createUser()).
			ThenFails(reservo.BusinessError, "already exists")
	})

	t.Run("delete then delete again", func(t *testing.T) {
		Given(t, reservo.EmptyState(), userCreated()).
			When(deleteUser()).
			Then(reservo.UserDeleted).
			ThenStateHas(reservo.FieldStatus, reservo.String(reservo.StatusDeleted))

		deleted := userData().WithString(reservo.FieldStatus, reservo.StatusDeleted)
		Given(t, deleted).
			When(deleteUser()).
			ThenFails(reservo.BusinessError, "already deleted")
	})

	t.Run("unknown kind is a business failure", func(t *testing.T) {
		GivenNothing(t).
			When(reservo.NewCommand("Teleport", userID, reservo.EmptyState())).
			ThenFails(reservo.BusinessError, "Unknown command type: Teleport")
	})

	t.Run("missing field is a technical failure", func(t *testing.T) {
		GivenNothing(t).
			When(reservo.NewCommand(reservo.CreateUser, userID, reservo.EmptyState())).
			ThenFails(reservo.TechnicalError, "")
	})

	t.Run("result is exposed", func(t *testing.T) {
		f := GivenNothing(t).When(createUser())
		assert.True(t, reservo.IsSuccess(f.Result()))
	})
}

func TestTestFixture_Failures(t *testing.T) {
	tests := []struct {
		name  string
		run   func(TB)
		fatal bool
	}{
		{
			name:  "Then before When",
			run:   func(tb TB) { GivenNothing(tb).Then(reservo.UserCreated) },
			fatal: true,
		},
		{
			name: "Then on failure",
			run: func(tb TB) {
				Given(tb, reservo.EmptyState(), userCreated()).When(createUser()).Then(reservo.UserCreated)
			},
			fatal: true,
		},
		{
			name:  "wrong event count",
			run:   func(tb TB) { GivenNothing(tb).When(createUser()).Then(reservo.UserCreated, reservo.UserDeleted) },
			fatal: true,
		},
		{
			name: "wrong event kind",
			run:  func(tb TB) { GivenNothing(tb).When(createUser()).Then(reservo.UserDeleted) },
		},
		{
			name: "unexpected events",
			run:  func(tb TB) { GivenNothing(tb).When(createUser()).ThenNoEvents() },
		},
		{
			name: "wrong event field",
			run: func(tb TB) {
				GivenNothing(tb).When(createUser()).ThenEventHas(0, reservo.FieldUsername, reservo.String("bo"))
			},
		},
		{
			name:  "ThenFails on success",
			run:   func(tb TB) { GivenNothing(tb).When(createUser()).ThenFails(reservo.BusinessError, "") },
			fatal: true,
		},
		{
			name: "ThenFails wrong type",
			run: func(tb TB) {
				Given(tb, reservo.EmptyState(), userCreated()).When(createUser()).ThenFails(reservo.TechnicalError, "")
			},
		},
		{
			name: "ThenFails wrong message",
			run: func(tb TB) {
				Given(tb, reservo.EmptyState(), userCreated()).When(createUser()).ThenFails(reservo.BusinessError, "nope")
			},
		},
		{
			name: "wrong state",
			run:  func(tb TB) { GivenNothing(tb).When(createUser()).ThenState(reservo.EmptyState()) },
		},
		{
			name: "wrong state field",
			run: func(tb TB) {
				GivenNothing(tb).When(createUser()).ThenStateHas(reservo.FieldStatus, reservo.String(reservo.StatusDeleted))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mt := runWithMockT(func(m *mockT) { tt.run(m) })
			assert.True(t, mt.failed)
			assert.Equal(t, tt.fatal, mt.fatal)
		})
	}
}

// =============================================================================
// HandlerTestFixture
// =============================================================================

func newOrchestrator(states reservo.StateStore, sink *memory.Sink) *reservo.Orchestrator {
	return reservo.NewOrchestrator(reservo.StaticResolver(states), sink, sink, states)
}

func TestHandlerTestFixture(t *testing.T) {
	t.Run("succeeds and persists", func(t *testing.T) {
		states := memory.NewStateStore()
		sink := memory.NewSink()

		GivenHandler(t, newOrchestrator(states, sink).Handle).
			When(createUser()).
			ThenSucceeds()

		state, err := states.Get(context.Background(), userID)
		require.NoError(t, err)
		assert.True(t, state.StatusIs(reservo.StatusActive))
		assert.Len(t, sink.EventsFor(userID), 1)
	})

	t.Run("business failure", func(t *testing.T) {
		states := memory.NewStateStore()
		sink := memory.NewSink()
		orch := newOrchestrator(states, sink)

		f := GivenHandler(t, orch.Handle).WithContext(context.Background())
		f.When(createUser()).ThenSucceeds()
		f.When(createUser()).ThenFails(reservo.BusinessError)
		assert.Len(t, sink.Failures(), 1)
	})

	t.Run("collaborator fault", func(t *testing.T) {
		states := reservo.StateStoreFuncs{
			GetFunc: func(ctx context.Context, key string) (reservo.StateMap, error) {
				return reservo.EmptyState(), nil
			},
			SetFunc: func(ctx context.Context, key string, state reservo.StateMap) (reservo.StateMap, error) {
				return reservo.StateMap{}, errors.New("disk full")
			},
		}
		orch := reservo.NewOrchestrator(reservo.StaticResolver(states), memory.NewSink(), memory.NewSink(), states)

		f := GivenHandler(t, orch.Handle).When(createUser())
		f.ThenCollaboratorFault(reservo.OpSetState)

		_, err := f.Result()
		assert.ErrorIs(t, err, reservo.ErrCollaborator)
	})
}

func TestHandlerTestFixture_Failures(t *testing.T) {
	failing := func(ctx context.Context, key string, cmd reservo.Command) (reservo.Result, error) {
		return nil, reservo.NewCollaboratorError(reservo.OpPublishEvent, key, errors.New("broker down"))
	}
	rejecting := func(ctx context.Context, key string, cmd reservo.Command) (reservo.Result, error) {
		return reservo.NewBusinessFailure(cmd, "no"), nil
	}
	accepting := func(ctx context.Context, key string, cmd reservo.Command) (reservo.Result, error) {
		return reservo.Success{}, nil
	}

	tests := []struct {
		name  string
		run   func(TB)
		fatal bool
	}{
		{"ThenSucceeds before When", func(tb TB) { GivenHandler(tb, accepting).ThenSucceeds() }, true},
		{"ThenSucceeds on error", func(tb TB) { GivenHandler(tb, failing).When(createUser()).ThenSucceeds() }, true},
		{"ThenSucceeds on failure", func(tb TB) { GivenHandler(tb, rejecting).When(createUser()).ThenSucceeds() }, true},
		{"ThenFails on success", func(tb TB) { GivenHandler(tb, accepting).When(createUser()).ThenFails(reservo.BusinessError) }, true},
		{"ThenFails wrong type", func(tb TB) { GivenHandler(tb, rejecting).When(createUser()).ThenFails(reservo.TechnicalError) }, false},
		{"fault without error", func(tb TB) { GivenHandler(tb, accepting).When(createUser()).ThenCollaboratorFault(reservo.OpSetState) }, true},
		{"fault in other op", func(tb TB) { GivenHandler(tb, failing).When(createUser()).ThenCollaboratorFault(reservo.OpSetState) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mt := runWithMockT(func(m *mockT) { tt.run(m) })
			assert.True(t, mt.failed)
			assert.Equal(t, tt.fatal, mt.fatal)
		})
	}
}
