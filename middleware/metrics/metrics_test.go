package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-reservo"
	"github.com/AshkanYarmoradi/go-reservo/adapters/memory"
)

func TestNew(t *testing.T) {
	t.Run("creates metrics with defaults", func(t *testing.T) {
		m := New()

		assert.Equal(t, "reservo", m.namespace)
		assert.Equal(t, "unknown", m.serviceName)
	})

	t.Run("with custom options", func(t *testing.T) {
		m := New(
			WithNamespace("custom"),
			WithSubsystem("engine"),
			WithMetricsServiceName("reservations"),
		)

		assert.Equal(t, "custom", m.namespace)
		assert.Equal(t, "engine", m.subsystem)
		assert.Equal(t, "reservations", m.serviceName)
	})
}

func TestMetrics_Register(t *testing.T) {
	t.Run("registers with custom registry", func(t *testing.T) {
		m := New()
		registry := prometheus.NewRegistry()

		require.NoError(t, m.Register(registry))
		assert.Len(t, m.Collectors(), 8)
	})

	t.Run("returns error on duplicate registration", func(t *testing.T) {
		m := New()
		registry := prometheus.NewRegistry()

		require.NoError(t, m.Register(registry))
		require.Error(t, m.Register(registry))
	})
}

func createUser(key string) reservo.Command {
	return reservo.NewCommand(reservo.CreateUser, key, reservo.NewStateMap(map[string]reservo.Value{
		reservo.FieldUserID:   reservo.String(key),
		reservo.FieldUsername: reservo.String("bob"),
		reservo.FieldEmail:    reservo.String("b@x.com"),
		reservo.FieldRoles:    reservo.Strings("Admin"),
	}))
}

func TestMetrics_CommandMiddleware(t *testing.T) {
	ctx := context.Background()
	m := New(WithMetricsServiceName("svc"))
	store := memory.NewStateStore()
	sink := memory.NewSink()

	orch := reservo.NewOrchestrator(
		reservo.StaticResolver(m.WrapStateStore(store)),
		m.WrapEventSink(sink),
		m.WrapErrorSink(sink),
		m.WrapStateStore(store),
		reservo.WithMiddleware(m.CommandMiddleware()),
	)

	cmd := createUser("u1")
	_, err := orch.Handle(ctx, "u1", cmd)
	require.NoError(t, err)
	_, err = orch.Handle(ctx, "u1", cmd)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsTotal().WithLabelValues("svc", reservo.CreateUser, reservo.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsTotal().WithLabelValues("svc", reservo.CreateUser, reservo.OutcomeBusiness)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CommandsInFlight().WithLabelValues("svc", reservo.CreateUser)))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished().WithLabelValues("svc", reservo.UserCreated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FailuresPublished().WithLabelValues("svc", string(reservo.BusinessError))))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationsTotal().WithLabelValues("svc", reservo.OpGetState, StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal().WithLabelValues("svc", reservo.OpSetState, StatusSuccess)))
}

func TestMetrics_RecordsCollaboratorErrors(t *testing.T) {
	ctx := context.Background()
	m := New()
	store := memory.NewStateStore()
	sink := memory.NewSink()
	broken := reservo.EventSinkFunc(func(ctx context.Context, key string, evt reservo.Event) error {
		return errors.New("broker down")
	})

	orch := reservo.NewOrchestrator(
		reservo.StaticResolver(store),
		m.WrapEventSink(broken),
		sink,
		store,
		reservo.WithMiddleware(m.CommandMiddleware()),
	)

	_, err := orch.Handle(ctx, "u1", createUser("u1"))
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal().WithLabelValues("unknown", "collaborator_"+reservo.OpPublishEvent)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal().WithLabelValues("unknown", reservo.OpPublishEvent, StatusError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsTotal().WithLabelValues("unknown", reservo.CreateUser, reservo.OutcomeError)))
}

func TestErrorTypeName(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{reservo.NewCollaboratorError(reservo.OpSetState, "k", errors.New("x")), "collaborator_set_state"},
		{reservo.NewPanicError("k", "boom", ""), "handler_panicked"},
		{reservo.ErrNilCollaborator, "nil_collaborator"},
		{context.DeadlineExceeded, "timeout"},
		{errors.New("other"), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, errorTypeName(tt.err))
		})
	}
}
