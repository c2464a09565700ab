package azqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-reservo"
	"github.com/AshkanYarmoradi/go-reservo/serializer/msgpack"
)

type fakeQueue struct {
	mu         sync.Mutex
	messages   []*azqueue.DequeuedMessage
	deleted    []string
	enqueueErr error
	ttls       []*int32
	seq        int
}

func (f *fakeQueue) EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueueErr != nil {
		return azqueue.EnqueueMessagesResponse{}, f.enqueueErr
	}
	f.seq++
	id := fmt.Sprintf("m%d", f.seq)
	receipt := "r" + id
	count := int64(1)
	f.messages = append(f.messages, &azqueue.DequeuedMessage{
		MessageID:    &id,
		PopReceipt:   &receipt,
		MessageText:  &content,
		DequeueCount: &count,
	})
	if o != nil {
		f.ttls = append(f.ttls, o.TimeToLive)
	}
	return azqueue.EnqueueMessagesResponse{}, nil
}

func (f *fakeQueue) DequeueMessage(ctx context.Context, o *azqueue.DequeueMessageOptions) (azqueue.DequeueMessagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return azqueue.DequeueMessagesResponse{}, nil
	}
	msg := f.messages[0]
	f.messages = f.messages[1:]
	return azqueue.DequeueMessagesResponse{Messages: []*azqueue.DequeuedMessage{msg}}, nil
}

func (f *fakeQueue) DeleteMessage(ctx context.Context, messageID string, popReceipt string, o *azqueue.DeleteMessageOptions) (azqueue.DeleteMessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return azqueue.DeleteMessageResponse{}, nil
}

func (f *fakeQueue) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.messages))
	for i, m := range f.messages {
		out[i] = *m.MessageText
	}
	return out
}

func (f *fakeQueue) deletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func createUser(key string) reservo.Command {
	return reservo.NewCommand(reservo.CreateUser, key, reservo.NewStateMap(map[string]reservo.Value{
		reservo.FieldUserID:   reservo.String(key),
		reservo.FieldUsername: reservo.String("bob"),
		reservo.FieldEmail:    reservo.String("b@x.com"),
		reservo.FieldRoles:    reservo.Strings("Admin"),
	}))
}

func TestPublisher(t *testing.T) {
	t.Run("events and failures go to their queues", func(t *testing.T) {
		events, failures := &fakeQueue{}, &fakeQueue{}
		p := NewPublisher(events, failures)
		evt := reservo.NewEvent(reservo.UserCreated, "u1", reservo.EmptyState().WithString(reservo.FieldUserID, "u1"))

		require.NoError(t, p.PublishEvent(context.Background(), "u1", evt))
		require.NoError(t, p.PublishFailure(context.Background(), "u1", reservo.NewBusinessFailure(createUser("u1"), "User already exists")))

		require.Len(t, events.texts(), 1)
		require.Len(t, failures.texts(), 1)

		decoded, err := reservo.NewJSONCodec().DecodeEvent([]byte(events.texts()[0]))
		require.NoError(t, err)
		assert.Equal(t, evt.ID, decoded.ID)

		failure, err := reservo.NewJSONCodec().DecodeFailure([]byte(failures.texts()[0]))
		require.NoError(t, err)
		assert.Equal(t, "User already exists", failure.Message())
	})

	t.Run("binary codecs are base64 encoded", func(t *testing.T) {
		events := &fakeQueue{}
		codec := msgpack.NewCodec()
		p := NewPublisher(events, nil, WithCodec(codec))
		evt := reservo.NewEvent(reservo.UserCreated, "u1", reservo.EmptyState())

		require.NoError(t, p.PublishEvent(context.Background(), "u1", evt))

		raw, err := decodeText(codec, events.texts()[0])
		require.NoError(t, err)
		decoded, err := codec.DecodeEvent(raw)
		require.NoError(t, err)
		assert.Equal(t, evt.ID, decoded.ID)
	})

	t.Run("message ttl", func(t *testing.T) {
		events := &fakeQueue{}
		p := NewPublisher(events, nil, WithMessageTTL(time.Hour))

		require.NoError(t, p.PublishEvent(context.Background(), "u1", reservo.NewEvent(reservo.UserCreated, "u1", reservo.EmptyState())))
		require.Len(t, events.ttls, 1)
		assert.Equal(t, int32(3600), *events.ttls[0])
	})

	t.Run("missing queue", func(t *testing.T) {
		p := NewPublisher(&fakeQueue{}, nil)
		err := p.PublishFailure(context.Background(), "u1", reservo.NewBusinessFailure(createUser("u1"), "x"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no failure queue")
	})

	t.Run("enqueue error is wrapped", func(t *testing.T) {
		p := NewPublisher(&fakeQueue{enqueueErr: errors.New("throttled")}, nil)
		err := p.PublishEvent(context.Background(), "u1", reservo.NewEvent(reservo.UserCreated, "u1", reservo.EmptyState()))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reservo/azqueue: enqueue event")
	})
}

func TestConsumer_Run(t *testing.T) {
	t.Run("handles and deletes commands", func(t *testing.T) {
		commands := &fakeQueue{}
		cmd := createUser("u1")
		require.NoError(t, NewPublisher(nil, nil).SendCommand(context.Background(), commands, cmd))

		ctx, cancel := context.WithCancel(context.Background())
		var gotKey string
		handle := func(ctx context.Context, key string, c reservo.Command) (reservo.Result, error) {
			gotKey = key
			cancel()
			return reservo.Success{}, nil
		}

		require.NoError(t, NewConsumer(commands, WithPollInterval(time.Millisecond)).Run(ctx, handle))
		assert.Equal(t, "u1", gotKey)
		assert.Equal(t, []string{"m1"}, commands.deletedIDs())
	})

	t.Run("deletes undecodable messages", func(t *testing.T) {
		commands := &fakeQueue{}
		_, _ = commands.EnqueueMessage(context.Background(), "not json", nil)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		calls := 0
		handle := func(ctx context.Context, key string, c reservo.Command) (reservo.Result, error) {
			calls++
			return reservo.Success{}, nil
		}

		require.NoError(t, NewConsumer(commands, WithPollInterval(time.Millisecond)).Run(ctx, handle))
		assert.Zero(t, calls)
		assert.Equal(t, []string{"m1"}, commands.deletedIDs())
	})

	t.Run("keeps messages on collaborator faults", func(t *testing.T) {
		commands := &fakeQueue{}
		require.NoError(t, NewPublisher(nil, nil).SendCommand(context.Background(), commands, createUser("u1")))

		ctx, cancel := context.WithCancel(context.Background())
		handle := func(ctx context.Context, key string, c reservo.Command) (reservo.Result, error) {
			cancel()
			return reservo.NewTechnicalFailure(c, reservo.ErrorState("down")),
				reservo.NewCollaboratorError(reservo.OpGetState, key, errors.New("down"))
		}

		require.NoError(t, NewConsumer(commands, WithPollInterval(time.Millisecond)).Run(ctx, handle))
		assert.Empty(t, commands.deletedIDs())
	})

	t.Run("drops poison messages", func(t *testing.T) {
		commands := &fakeQueue{}
		require.NoError(t, NewPublisher(nil, nil).SendCommand(context.Background(), commands, createUser("u1")))
		count := int64(9)
		commands.messages[0].DequeueCount = &count

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		calls := 0
		handle := func(ctx context.Context, key string, c reservo.Command) (reservo.Result, error) {
			calls++
			return reservo.Success{}, nil
		}

		require.NoError(t, NewConsumer(commands, WithPollInterval(time.Millisecond), WithMaxDequeueCount(3)).Run(ctx, handle))
		assert.Zero(t, calls)
		assert.Equal(t, []string{"m1"}, commands.deletedIDs())
	})
}
