package memory

import (
	"context"
	"testing"
	"time"

	"github.com/AshkanYarmoradi/go-reservo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateStore(t *testing.T) {
	ctx := context.Background()

	t.Run("missing key is empty", func(t *testing.T) {
		store := NewStateStore()

		state, err := store.Get(ctx, "nope")
		require.NoError(t, err)
		assert.True(t, state.IsEmpty())
	})

	t.Run("set then get", func(t *testing.T) {
		store := NewStateStore()
		state := reservo.EmptyState().WithString(reservo.FieldStatus, reservo.StatusCreated)

		stored, err := store.Set(ctx, "r1", state)
		require.NoError(t, err)
		assert.True(t, state.Equal(stored))

		got, err := store.Get(ctx, "r1")
		require.NoError(t, err)
		assert.True(t, got.StatusIs(reservo.StatusCreated))
		assert.Equal(t, []string{"r1"}, store.Keys())
	})

	t.Run("empty key", func(t *testing.T) {
		_, err := NewStateStore().Set(ctx, "", reservo.EmptyState())
		assert.ErrorIs(t, err, ErrEmptyKey)
	})

	t.Run("closed", func(t *testing.T) {
		store := NewStateStore()
		require.NoError(t, store.Close())

		_, err := store.Get(ctx, "r1")
		assert.ErrorIs(t, err, ErrStoreClosed)
		assert.ErrorIs(t, store.Ping(ctx), ErrStoreClosed)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := NewStateStore().Get(cctx, "r1")
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("reset", func(t *testing.T) {
		store := NewStateStore()
		_, err := store.Set(ctx, "r1", reservo.EmptyState())
		require.NoError(t, err)

		store.Reset()
		assert.Equal(t, 0, store.Len())
	})
}

func TestStateStore_WithCodec(t *testing.T) {
	ctx := context.Background()
	store := NewStateStore(WithCodec(reservo.NewJSONCodec()))

	t.Run("round trips through the codec", func(t *testing.T) {
		state := reservo.NewStateMap(map[string]reservo.Value{
			reservo.FieldReservationID: reservo.String("r1"),
			reservo.FieldMoment:        reservo.Time(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)),
		})
		_, err := store.Set(ctx, "r1", state)
		require.NoError(t, err)

		got, err := store.Get(ctx, "r1")
		require.NoError(t, err)
		assert.True(t, state.Equal(got))
	})

	t.Run("corrupt entries carry the error marker", func(t *testing.T) {
		store.SetRaw("r2", []byte("not json"))

		got, err := store.Get(ctx, "r2")
		require.NoError(t, err)
		assert.True(t, got.HasErrorMarker())
	})
}

func TestSink(t *testing.T) {
	ctx := context.Background()

	t.Run("records events per key in order", func(t *testing.T) {
		sink := NewSink()
		a := reservo.NewEvent(reservo.ReservationCreated, "r1", reservo.EmptyState())
		b := reservo.NewEvent(reservo.ReservationHeld, "r1", reservo.EmptyState())
		c := reservo.NewEvent(reservo.UserCreated, "u1", reservo.EmptyState())

		for _, evt := range []reservo.Event{a, b, c} {
			require.NoError(t, sink.PublishEvent(ctx, evt.AggregateKey, evt))
		}

		assert.Len(t, sink.Events(), 3)
		assert.Equal(t, []string{reservo.ReservationCreated, reservo.ReservationHeld}, reservo.EventTypes(sink.EventsFor("r1")))
	})

	t.Run("records failures", func(t *testing.T) {
		sink := NewSink()
		cmd := reservo.NewCommand(reservo.DeleteUser, "u1", reservo.EmptyState())
		require.NoError(t, sink.PublishFailure(ctx, "u1", reservo.NewBusinessFailure(cmd, "nope")))

		failures := sink.Failures()
		require.Len(t, failures, 1)
		assert.Equal(t, "u1", failures[0].Key)
		assert.Equal(t, "nope", failures[0].Failure.Message())

		sink.Reset()
		assert.Empty(t, sink.Failures())
	})

	t.Run("subscribers receive new events", func(t *testing.T) {
		sink := NewSink()
		subCtx, cancel := context.WithCancel(ctx)
		ch := sink.Subscribe(subCtx, 1)

		evt := reservo.NewEvent(reservo.UserDeleted, "u1", reservo.EmptyState())
		require.NoError(t, sink.PublishEvent(ctx, "u1", evt))

		select {
		case got := <-ch:
			assert.Equal(t, evt.ID, got.ID)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}

		cancel()
		assert.Eventually(t, func() bool {
			_, open := <-ch
			return !open
		}, time.Second, 10*time.Millisecond)
	})
}

func TestOrchestratorWithMemoryCollaborators(t *testing.T) {
	ctx := context.Background()
	store := NewStateStore()
	sink := NewSink()
	orch := reservo.NewOrchestrator(reservo.StaticResolver(store), sink, sink, store)

	cmd := reservo.NewCommand(reservo.CreateUser, "u1", reservo.NewStateMap(map[string]reservo.Value{
		reservo.FieldUserID:   reservo.String("u1"),
		reservo.FieldUsername: reservo.String("bob"),
		reservo.FieldEmail:    reservo.String("b@x.com"),
		reservo.FieldRoles:    reservo.Strings("Admin"),
	}))

	result, err := orch.Handle(ctx, "u1", cmd)
	require.NoError(t, err)
	assert.True(t, reservo.IsSuccess(result))

	again, err := orch.Handle(ctx, "u1", cmd)
	require.NoError(t, err)
	assert.False(t, reservo.IsSuccess(again))

	assert.Len(t, sink.EventsFor("u1"), 1)
	assert.Len(t, sink.Failures(), 1)
}
