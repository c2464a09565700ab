package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-reservo"
)

func TestIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	cmd := createUser("u1")
	success := reservo.Success{Events: []reservo.Event{reservo.NewEvent(reservo.UserCreated, "u1", reservo.EmptyState())}}

	t.Run("missing key returns nil", func(t *testing.T) {
		_, client := newTestClient(t)
		record, err := NewIdempotencyStore(client).Get(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, record)
	})

	t.Run("store then get", func(t *testing.T) {
		_, client := newTestClient(t)
		store := NewIdempotencyStore(client)
		record, err := reservo.NewIdempotencyRecord(reservo.CommandIDKey(cmd), "u1", cmd, success, time.Hour)
		require.NoError(t, err)

		require.NoError(t, store.Store(ctx, record))
		got, err := store.Get(ctx, record.Key)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, reservo.CreateUser, got.CommandKind)
		assert.Equal(t, "u1", got.AggregateKey)
		assert.Equal(t, reservo.OutcomeSuccess, got.Outcome)

		result, err := reservo.UnmarshalResult(got.Result)
		require.NoError(t, err)
		replayed, ok := reservo.AsSuccess(result)
		require.True(t, ok)
		assert.Equal(t, success.Events[0].ID, replayed.Events[0].ID)
	})

	t.Run("redis ttl evicts records", func(t *testing.T) {
		mr, client := newTestClient(t)
		store := NewIdempotencyStore(client)
		record, err := reservo.NewIdempotencyRecord("k", "u1", cmd, success, time.Minute)
		require.NoError(t, err)

		require.NoError(t, store.Store(ctx, record))
		assert.True(t, mr.Exists(DefaultIdempotencyPrefix+"k"))
		mr.FastForward(2 * time.Minute)
		assert.False(t, mr.Exists(DefaultIdempotencyPrefix+"k"))
	})

	t.Run("expired records are not written", func(t *testing.T) {
		mr, client := newTestClient(t)
		store := NewIdempotencyStore(client)
		record, err := reservo.NewIdempotencyRecord("k", "u1", cmd, success, time.Minute)
		require.NoError(t, err)
		record.ExpiresAt = time.Now().Add(-time.Second)

		require.NoError(t, store.Store(ctx, record))
		assert.False(t, mr.Exists(DefaultIdempotencyPrefix+"k"))
	})

	t.Run("delete", func(t *testing.T) {
		_, client := newTestClient(t)
		store := NewIdempotencyStore(client)
		record, err := reservo.NewIdempotencyRecord("k", "u1", cmd, success, time.Hour)
		require.NoError(t, err)
		require.NoError(t, store.Store(ctx, record))

		require.NoError(t, store.Delete(ctx, "k"))
		got, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("corrupt record is an error", func(t *testing.T) {
		mr, client := newTestClient(t)
		require.NoError(t, mr.Set(DefaultIdempotencyPrefix+"k", "garbage"))

		_, err := NewIdempotencyStore(client).Get(ctx, "k")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode idempotency record")
	})

	t.Run("backs the idempotency middleware", func(t *testing.T) {
		_, client := newTestClient(t)
		calls := 0
		handler := func(ctx context.Context, key string, c reservo.Command) (reservo.Result, error) {
			calls++
			return success, nil
		}
		mw := reservo.IdempotencyMiddleware(reservo.DefaultIdempotencyConfig(NewIdempotencyStore(client)))
		wrapped := mw(handler)

		_, err := wrapped(ctx, "u1", cmd)
		require.NoError(t, err)
		_, err = wrapped(ctx, "u1", cmd)
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})
}
