package reservo

// test_helpers_test.go contains shared test doubles and utilities for reservo package tests.

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Shared Test Logger
// =============================================================================

// testLogger is a shared test implementation of Logger.
type testLogger struct {
	mu        sync.Mutex
	debugLogs []string
	infoLogs  []string
	warnLogs  []string
	errorLogs []string
}

func newTestLogger() *testLogger {
	return &testLogger{}
}

func (l *testLogger) Debug(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugLogs = append(l.debugLogs, msg)
}

func (l *testLogger) Info(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infoLogs = append(l.infoLogs, msg)
}

func (l *testLogger) Warn(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnLogs = append(l.warnLogs, msg)
}

func (l *testLogger) Error(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorLogs = append(l.errorLogs, msg)
}

func (l *testLogger) warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warnLogs...)
}

// =============================================================================
// Shared Test Collaborators
// =============================================================================

// testStore is a StateStore backed by a map that records every Set call.
type testStore struct {
	mu     sync.Mutex
	states map[string]StateMap
	sets   []StateMap
	getErr error
	setErr error
}

func newTestStore() *testStore {
	return &testStore{states: make(map[string]StateMap)}
}

func (s *testStore) Get(ctx context.Context, key string) (StateMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return StateMap{}, s.getErr
	}
	return s.states[key], nil
}

func (s *testStore) Set(ctx context.Context, key string, state StateMap) (StateMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return StateMap{}, s.setErr
	}
	s.states[key] = state
	s.sets = append(s.sets, state)
	return state, nil
}

func (s *testStore) seed(key string, state StateMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key] = state
}

func (s *testStore) setCalls() []StateMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StateMap(nil), s.sets...)
}

// testSink records published events and failures.
type testSink struct {
	mu         sync.Mutex
	events     []Event
	failures   []*Failure
	eventErr   error
	failureErr error
}

func newTestSink() *testSink {
	return &testSink{}
}

func (s *testSink) PublishEvent(ctx context.Context, key string, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eventErr != nil {
		return s.eventErr
	}
	s.events = append(s.events, evt)
	return nil
}

func (s *testSink) PublishFailure(ctx context.Context, key string, f *Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failureErr != nil {
		return s.failureErr
	}
	s.failures = append(s.failures, f)
	return nil
}

func (s *testSink) publishedEvents() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *testSink) publishedFailures() []*Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Failure(nil), s.failures...)
}

// =============================================================================
// Fixtures
// =============================================================================

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

// fixedDecider mints deterministic timestamps and sequential ids.
func fixedDecider() Decider {
	var mu sync.Mutex
	var n byte
	return Decider{
		Now: func() time.Time { return fixedNow },
		NewID: func() uuid.UUID {
			mu.Lock()
			defer mu.Unlock()
			n++
			return uuid.UUID{15: n}
		},
	}
}

func createUserCommand(userID string) Command {
	return NewCommand(CreateUser, userID, NewStateMap(map[string]Value{
		FieldUserID:   String(userID),
		FieldUsername: String("bob"),
		FieldEmail:    String("b@x.com"),
		FieldRoles:    Strings("Admin"),
	}))
}

func createReservationCommand(reservationID string) Command {
	return NewCommand(CreateReservation, reservationID, NewStateMap(map[string]Value{
		FieldReservationID:     String(reservationID),
		FieldUserID:            String("u1"),
		FieldMoment:            Time(fixedNow.Add(48 * time.Hour)),
		FieldAdditionalDetails: MapValue(NewStateMap(map[string]Value{"table": String("12")})),
	}))
}
