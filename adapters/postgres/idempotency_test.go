package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-reservo"
)

func TestIdempotencyStore_Integration(t *testing.T) {
	db := getTestDB(t, DriverPgx)
	ctx := context.Background()
	store := NewIdempotencyStore(db, WithIdempotencySchema(testSchema(t, db)))
	require.NoError(t, store.Migrate(ctx))

	cmd := createUser("u1")
	success := reservo.Success{Events: []reservo.Event{reservo.NewEvent(reservo.UserCreated, "u1", reservo.EmptyState())}}

	t.Run("missing key returns nil", func(t *testing.T) {
		record, err := store.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, record)
	})

	t.Run("store and get", func(t *testing.T) {
		record, err := reservo.NewIdempotencyRecord(reservo.CommandIDKey(cmd), "u1", cmd, success, time.Hour)
		require.NoError(t, err)
		require.NoError(t, store.Store(ctx, record))
		require.NoError(t, store.Store(ctx, record))

		got, err := store.Get(ctx, record.Key)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, reservo.CreateUser, got.CommandKind)
		assert.Equal(t, reservo.OutcomeSuccess, got.Outcome)

		result, err := reservo.UnmarshalResult(got.Result)
		require.NoError(t, err)
		assert.True(t, reservo.IsSuccess(result))
	})

	t.Run("expired records are hidden and cleaned", func(t *testing.T) {
		record, err := reservo.NewIdempotencyRecord("expired", "u1", cmd, success, time.Hour)
		require.NoError(t, err)
		record.ExpiresAt = time.Now().Add(-time.Minute)
		require.NoError(t, store.Store(ctx, record))

		got, err := store.Get(ctx, "expired")
		require.NoError(t, err)
		assert.Nil(t, got)

		deleted, err := store.Cleanup(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, reservo.CommandIDKey(cmd)))
		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestNewIdempotencyStore_Options(t *testing.T) {
	s := NewIdempotencyStore(nil, WithIdempotencySchema("app"), WithIdempotencyTable("dedupe"))
	assert.Equal(t, `"app"."dedupe"`, s.fullTableName())

	err := NewIdempotencyStore(nil, WithIdempotencyTable("")).Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be empty")
}
