// Package bdd provides BDD-style test fixtures for reservo decisions.
// It enables Given-When-Then tests of Decide and Project against plain
// state, and of a HandleFunc wired to real or fake collaborators.
package bdd

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AshkanYarmoradi/go-reservo"
)

// TB is an alias for testing.TB interface to allow mocking in tests
type TB = testing.TB

// TestFixture runs a single decision against a given state.
type TestFixture struct {
	t        TB
	decider  reservo.Decider
	state    reservo.StateMap
	history  []reservo.Event
	command  reservo.Command
	result   reservo.Result
	executed bool
}

// Given starts a fixture from state with history folded on top of it.
func Given(t TB, state reservo.StateMap, history ...reservo.Event) *TestFixture {
	t.Helper()
	return &TestFixture{t: t, state: state, history: history}
}

// GivenNothing starts a fixture from the empty state.
func GivenNothing(t TB) *TestFixture {
	t.Helper()
	return Given(t, reservo.EmptyState())
}

// WithDecider sets the Decider, typically to pin Now and NewID.
func (f *TestFixture) WithDecider(d reservo.Decider) *TestFixture {
	f.decider = d
	return f
}

// When decides cmd. A decision error is recorded as a technical failure,
// the way the orchestrator reports it.
func (f *TestFixture) When(cmd reservo.Command) *TestFixture {
	f.t.Helper()

	state, err := reservo.Fold(f.state, f.history...)
	if err != nil {
		f.t.Fatalf("Failed to fold given events: %v", err)
	}
	f.state = state
	f.history = nil
	f.command = cmd

	result, err := f.decider.Decide(f.state, cmd)
	if err != nil {
		result = reservo.NewTechnicalFailure(cmd, reservo.ErrorState(err.Error()))
	}
	f.result = result
	f.executed = true
	return f
}

func (f *TestFixture) mustHaveRun(step string) {
	f.t.Helper()
	if !f.executed {
		f.t.Fatal("bdd: " + step + "() must be called after When() - no command was decided")
	}
}

func (f *TestFixture) success() reservo.Success {
	f.t.Helper()
	success, ok := reservo.AsSuccess(f.result)
	if !ok {
		failure, _ := reservo.AsFailure(f.result)
		f.t.Fatalf("Expected success but got %s: %s", failure.ErrorType, failure.Message())
	}
	return success
}

// Then asserts the decision succeeded with events of the given kinds, in order.
func (f *TestFixture) Then(kinds ...string) *TestFixture {
	f.t.Helper()
	f.mustHaveRun("Then")

	events := f.success().Events
	if len(events) != len(kinds) {
		f.t.Fatalf("Expected %d events, got %d.\nExpected: %v\nActual: %v",
			len(kinds), len(events), kinds, eventKinds(events))
	}
	for i, kind := range kinds {
		if events[i].Kind != kind {
			f.t.Errorf("Event %d mismatch:\nExpected: %s\nActual: %s", i, kind, events[i].Kind)
		}
		if events[i].AggregateKey != f.command.AggregateKey {
			f.t.Errorf("Event %d key %q, expected %q", i, events[i].AggregateKey, f.command.AggregateKey)
		}
	}
	return f
}

// ThenNoEvents asserts the decision succeeded without events.
func (f *TestFixture) ThenNoEvents() *TestFixture {
	f.t.Helper()
	f.mustHaveRun("ThenNoEvents")

	if events := f.success().Events; len(events) > 0 {
		f.t.Errorf("Expected no events, got %d: %v", len(events), eventKinds(events))
	}
	return f
}

// ThenEventHas asserts event i carries field with value want.
func (f *TestFixture) ThenEventHas(i int, field string, want reservo.Value) *TestFixture {
	f.t.Helper()
	f.mustHaveRun("ThenEventHas")

	events := f.success().Events
	if i >= len(events) {
		f.t.Fatalf("Expected at least %d events, got %d", i+1, len(events))
	}
	got, ok := events[i].Data.Get(field)
	if !ok {
		f.t.Errorf("Event %d (%s) has no field %q", i, events[i].Kind, field)
		return f
	}
	if !got.Equal(want) {
		f.t.Errorf("Event %d field %q:\nExpected: %s\nActual: %s", i, field, want.Text(), got.Text())
	}
	return f
}

// ThenFails asserts the decision failed with errType and a message
// containing substring. An empty substring matches any message.
func (f *TestFixture) ThenFails(errType reservo.ErrorType, substring string) {
	f.t.Helper()
	f.mustHaveRun("ThenFails")

	failure, ok := reservo.AsFailure(f.result)
	if !ok {
		f.t.Fatal("Expected failure but got success")
	}
	if failure.ErrorType != errType {
		f.t.Errorf("Expected %s, got %s: %s", errType, failure.ErrorType, failure.Message())
	}
	if !strings.Contains(failure.Message(), substring) {
		f.t.Errorf("Expected failure containing %q, got %q", substring, failure.Message())
	}
}

// ThenState asserts that folding the produced events over the given state
// yields expected.
func (f *TestFixture) ThenState(expected reservo.StateMap) {
	f.t.Helper()
	f.mustHaveRun("ThenState")

	next, err := reservo.Fold(f.state, f.success().Events...)
	if err != nil {
		f.t.Fatalf("Projection failed: %v", err)
	}
	if !next.Equal(expected) {
		f.t.Errorf("State mismatch:\nExpected: %v\nActual: %v", expected.ToMap(), next.ToMap())
	}
}

// ThenStateHas asserts the folded state carries field with value want.
func (f *TestFixture) ThenStateHas(field string, want reservo.Value) *TestFixture {
	f.t.Helper()
	f.mustHaveRun("ThenStateHas")

	next, err := reservo.Fold(f.state, f.success().Events...)
	if err != nil {
		f.t.Fatalf("Projection failed: %v", err)
	}
	got, ok := next.Get(field)
	if !ok || !got.Equal(want) {
		f.t.Errorf("State field %q:\nExpected: %s\nActual: %s", field, want.Text(), got.Text())
	}
	return f
}

// Result returns the recorded decision.
func (f *TestFixture) Result() reservo.Result {
	return f.result
}

func eventKinds(events []reservo.Event) []string {
	kinds := make([]string, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	return kinds
}

// HandlerTestFixture provides BDD-style testing of a HandleFunc, usually an
// Orchestrator's Handle with its middleware.
type HandlerTestFixture struct {
	t        TB
	ctx      context.Context
	handle   reservo.HandleFunc
	result   reservo.Result
	err      error
	executed bool
}

// GivenHandler creates a fixture dispatching to handle.
func GivenHandler(t TB, handle reservo.HandleFunc) *HandlerTestFixture {
	t.Helper()
	return &HandlerTestFixture{t: t, ctx: context.Background(), handle: handle}
}

// WithContext sets a custom context for the command execution.
func (f *HandlerTestFixture) WithContext(ctx context.Context) *HandlerTestFixture {
	f.ctx = ctx
	return f
}

// When handles cmd at its aggregate key.
func (f *HandlerTestFixture) When(cmd reservo.Command) *HandlerTestFixture {
	f.t.Helper()
	f.result, f.err = f.handle(f.ctx, cmd.AggregateKey, cmd)
	f.executed = true
	return f
}

// ThenSucceeds asserts the command was handled successfully.
func (f *HandlerTestFixture) ThenSucceeds() *HandlerTestFixture {
	f.t.Helper()

	if !f.executed {
		f.t.Fatal("bdd: ThenSucceeds() must be called after When() - no command was handled")
	}
	if f.err != nil {
		f.t.Fatalf("Expected success but got error: %v", f.err)
	}
	if failure, ok := reservo.AsFailure(f.result); ok {
		f.t.Fatalf("Expected success result but got %s: %s", failure.ErrorType, failure.Message())
	}
	return f
}

// ThenFails asserts the command was rejected with errType and no error.
func (f *HandlerTestFixture) ThenFails(errType reservo.ErrorType) *HandlerTestFixture {
	f.t.Helper()

	if !f.executed {
		f.t.Fatal("bdd: ThenFails() must be called after When() - no command was handled")
	}
	if f.err != nil {
		f.t.Fatalf("Expected a failure result but got error: %v", f.err)
	}
	failure, ok := reservo.AsFailure(f.result)
	if !ok {
		f.t.Fatal("Expected failure but got success")
	}
	if failure.ErrorType != errType {
		f.t.Errorf("Expected %s, got %s: %s", errType, failure.ErrorType, failure.Message())
	}
	return f
}

// ThenCollaboratorFault asserts the handler failed because the collaborator
// behind op failed.
func (f *HandlerTestFixture) ThenCollaboratorFault(op string) {
	f.t.Helper()

	if !f.executed {
		f.t.Fatal("bdd: ThenCollaboratorFault() must be called after When() - no command was handled")
	}
	if f.err == nil {
		f.t.Fatal("Expected collaborator fault but got no error")
	}

	var cerr *reservo.CollaboratorError
	if !errors.As(f.err, &cerr) {
		f.t.Fatalf("Expected collaborator fault, got %v", f.err)
	}
	if cerr.Operation != op {
		f.t.Errorf("Expected fault in %s, got %s", op, cerr.Operation)
	}
}

// Result returns the recorded result and error.
func (f *HandlerTestFixture) Result() (reservo.Result, error) {
	return f.result, f.err
}
