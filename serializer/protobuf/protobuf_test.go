package protobuf

import (
	"testing"
	"time"

	"github.com/AshkanYarmoradi/go-reservo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func sampleState() reservo.StateMap {
	return reservo.NewStateMap(map[string]reservo.Value{
		reservo.FieldUserID:      reservo.String("u1"),
		reservo.FieldRoles:       reservo.Strings("Admin"),
		reservo.FieldHoldUntil:   reservo.Time(time.Date(2024, 3, 11, 8, 30, 0, 0, time.UTC)),
		reservo.FieldIsAvailable: reservo.Bool(false),
		"guests":                 reservo.Int(1 << 60),
		reservo.FieldDetails: reservo.MapValue(reservo.NewStateMap(map[string]reservo.Value{
			"note": reservo.String("window seat"),
		})),
	})
}

func TestCodec(t *testing.T) {
	codec := NewCodec()
	assert.Equal(t, "protobuf", codec.Name())

	t.Run("state keeps int64 precision", func(t *testing.T) {
		data, err := codec.EncodeState(sampleState())
		require.NoError(t, err)

		got, err := codec.DecodeState(data)
		require.NoError(t, err)
		assert.True(t, sampleState().Equal(got), "got %s", got)

		guests, err := got.LookupInt("guests")
		require.NoError(t, err)
		assert.Equal(t, int64(1<<60), guests)
	})

	t.Run("command", func(t *testing.T) {
		cmd := reservo.NewCommand(reservo.UpdateReservation, "r1", sampleState())

		data, err := codec.EncodeCommand(cmd)
		require.NoError(t, err)

		got, err := codec.DecodeCommand(data)
		require.NoError(t, err)
		assert.Equal(t, cmd.ID, got.ID)
		assert.Equal(t, cmd.AggregateKey, got.AggregateKey)
		assert.True(t, cmd.Data.Equal(got.Data))
	})

	t.Run("failure", func(t *testing.T) {
		cmd := reservo.NewCommand(reservo.DeleteUser, "u1", reservo.EmptyState())
		f := reservo.NewTechnicalFailure(cmd, reservo.ErrorState("boom").WithString("field", reservo.FieldUserID))

		data, err := codec.EncodeFailure(f)
		require.NoError(t, err)

		got, err := codec.DecodeFailure(data)
		require.NoError(t, err)
		assert.True(t, got.IsTechnical())
		assert.True(t, f.Errors.Equal(got.Errors))
	})

	t.Run("readable as a plain Struct", func(t *testing.T) {
		evt := reservo.NewEvent(reservo.UserDeleted, "u1", reservo.EmptyState())
		data, err := codec.EncodeEvent(evt)
		require.NoError(t, err)

		var s structpb.Struct
		require.NoError(t, proto.Unmarshal(data, &s))
		assert.Equal(t, reservo.UserDeleted, s.Fields["kind"].GetStringValue())
		assert.Equal(t, evt.ID.String(), s.Fields["id"].GetStringValue())
	})
}

func TestCodec_Errors(t *testing.T) {
	codec := NewCodec()

	_, err := codec.DecodeState(nil)
	assert.ErrorIs(t, err, reservo.ErrEmptyData)

	_, err = codec.DecodeState([]byte{0xff, 0xff, 0xff})
	assert.ErrorIs(t, err, ErrNotStruct)
}
