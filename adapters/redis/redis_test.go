package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-reservo"
	"github.com/AshkanYarmoradi/go-reservo/adapters/memory"
	"github.com/AshkanYarmoradi/go-reservo/serializer/msgpack"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func sampleState() reservo.StateMap {
	return reservo.NewStateMap(map[string]reservo.Value{
		reservo.FieldUserID:    reservo.String("u1"),
		reservo.FieldUsername:  reservo.String("bob"),
		reservo.FieldRoles:     reservo.Strings("Admin", "Guest"),
		reservo.FieldUpdatedOn: reservo.Time(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)),
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

func TestStateStore(t *testing.T) {
	ctx := context.Background()

	t.Run("missing key is empty", func(t *testing.T) {
		_, client := newTestClient(t)
		state, err := NewStateStore(client).Get(ctx, "nobody")
		require.NoError(t, err)
		assert.True(t, state.IsEmpty())
	})

	t.Run("set then get round trips", func(t *testing.T) {
		mr, client := newTestClient(t)
		store := NewStateStore(client)

		stored, err := store.Set(ctx, "u1", sampleState())
		require.NoError(t, err)
		assert.True(t, stored.Equal(sampleState()))
		assert.True(t, mr.Exists(DefaultKeyPrefix+"u1"))

		got, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, got.Equal(sampleState()))
	})

	t.Run("bare key without prefix", func(t *testing.T) {
		mr, client := newTestClient(t)
		store := NewStateStore(client, WithKeyPrefix(""))

		_, err := store.Set(ctx, "u1", sampleState())
		require.NoError(t, err)
		assert.True(t, mr.Exists("u1"))
	})

	t.Run("msgpack codec", func(t *testing.T) {
		_, client := newTestClient(t)
		store := NewStateStore(client, WithCodec(msgpack.NewCodec()))

		_, err := store.Set(ctx, "u1", sampleState())
		require.NoError(t, err)
		got, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, got.Equal(sampleState()))
	})

	t.Run("ttl expires state", func(t *testing.T) {
		mr, client := newTestClient(t)
		store := NewStateStore(client, WithTTL(time.Minute))

		_, err := store.Set(ctx, "u1", sampleState())
		require.NoError(t, err)
		mr.FastForward(2 * time.Minute)

		got, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, got.IsEmpty())
	})

	t.Run("zero ttl keeps state", func(t *testing.T) {
		mr, client := newTestClient(t)
		store := NewStateStore(client, WithTTL(0))

		_, err := store.Set(ctx, "u1", sampleState())
		require.NoError(t, err)
		mr.FastForward(365 * 24 * time.Hour)

		got, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, got.Equal(sampleState()))
	})

	t.Run("corrupt entry becomes error marker", func(t *testing.T) {
		mr, client := newTestClient(t)
		require.NoError(t, mr.Set(DefaultKeyPrefix+"u1", "{not json"))

		got, err := NewStateStore(client).Get(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, got.HasErrorMarker())
	})

	t.Run("empty key is rejected", func(t *testing.T) {
		_, client := newTestClient(t)
		_, err := NewStateStore(client).Set(ctx, "", sampleState())
		assert.ErrorIs(t, err, ErrEmptyKey)
	})

	t.Run("connection errors are wrapped", func(t *testing.T) {
		mr, client := newTestClient(t)
		mr.Close()

		_, err := NewStateStore(client).Get(ctx, "u1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reservo/redis")
	})

	t.Run("delete and ping", func(t *testing.T) {
		_, client := newTestClient(t)
		store := NewStateStore(client)
		require.NoError(t, store.Ping(ctx))

		_, err := store.Set(ctx, "u1", sampleState())
		require.NoError(t, err)
		require.NoError(t, store.Delete(ctx, "u1"))

		got, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, got.IsEmpty())
	})
}

func TestStateStore_WithOrchestrator(t *testing.T) {
	ctx := context.Background()
	_, client := newTestClient(t)
	store := NewStateStore(client)
	sink := memory.NewSink()
	orch := reservo.NewOrchestrator(reservo.StaticResolver(store), sink, sink, store)

	result, err := orch.Handle(ctx, "u1", createUser("u1"))
	require.NoError(t, err)
	assert.True(t, reservo.IsSuccess(result))

	state, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	username, err := state.LookupString(reservo.FieldUsername)
	require.NoError(t, err)
	assert.Equal(t, "bob", username)

	result, err = orch.Handle(ctx, "u1", createUser("u1"))
	require.NoError(t, err)
	failure, ok := reservo.AsFailure(result)
	require.True(t, ok)
	assert.True(t, failure.IsBusiness())
}

func TestNewClient(t *testing.T) {
	mr, _ := newTestClient(t)

	client, err := NewClient("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Ping(context.Background()).Err())

	_, err = NewClient("not-a-url")
	assert.Error(t, err)
}
