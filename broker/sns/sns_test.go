package sns

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-reservo"
)

const (
	eventTopic     = "arn:aws:sns:us-east-1:123456789:reservation-events.fifo"
	errorTopic     = "arn:aws:sns:us-east-1:123456789:reservation-errors"
	standardEvents = "arn:aws:sns:us-east-1:123456789:reservation-events"
)

// mockSNSClient implements SNSClient for testing.
type mockSNSClient struct {
	publishCalls []*sns.PublishInput
	publishErr   error
}

func (m *mockSNSClient) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.publishCalls = append(m.publishCalls, params)
	if m.publishErr != nil {
		return nil, m.publishErr
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-123")}, nil
}

func createUser(key string) reservo.Command {
	return reservo.NewCommand(reservo.CreateUser, key, reservo.EmptyState().WithString(reservo.FieldUserID, key))
}

func TestPublisher_PublishEvent(t *testing.T) {
	t.Run("fifo topic uses the aggregate key as group id", func(t *testing.T) {
		mock := &mockSNSClient{}
		p := New(WithSNSClient(mock), WithTopics(eventTopic, errorTopic))
		evt := reservo.NewEvent(reservo.UserCreated, "u1", reservo.EmptyState().WithString(reservo.FieldUserID, "u1"))

		require.NoError(t, p.PublishEvent(context.Background(), "u1", evt))
		require.Len(t, mock.publishCalls, 1)

		call := mock.publishCalls[0]
		assert.Equal(t, eventTopic, *call.TopicArn)
		assert.Equal(t, "u1", *call.MessageGroupId)
		assert.Equal(t, evt.ID.String(), *call.MessageDeduplicationId)
		assert.Equal(t, reservo.UserCreated, *call.MessageAttributes["kind"].StringValue)

		decoded, err := reservo.NewJSONCodec().DecodeEvent([]byte(*call.Message))
		require.NoError(t, err)
		assert.Equal(t, evt.ID, decoded.ID)
	})

	t.Run("standard topic has no group id", func(t *testing.T) {
		mock := &mockSNSClient{}
		p := New(WithSNSClient(mock), WithTopics(standardEvents, errorTopic))

		require.NoError(t, p.PublishEvent(context.Background(), "u1", reservo.NewEvent(reservo.UserCreated, "u1", reservo.EmptyState())))
		assert.Nil(t, mock.publishCalls[0].MessageGroupId)
		assert.Nil(t, mock.publishCalls[0].MessageDeduplicationId)
	})

	t.Run("carries the correlation id", func(t *testing.T) {
		mock := &mockSNSClient{}
		p := New(WithSNSClient(mock), WithTopics(eventTopic, errorTopic))
		ctx := reservo.WithCorrelationID(context.Background(), "corr-1")

		require.NoError(t, p.PublishEvent(ctx, "u1", reservo.NewEvent(reservo.UserCreated, "u1", reservo.EmptyState())))
		assert.Equal(t, "corr-1", *mock.publishCalls[0].MessageAttributes["correlation-id"].StringValue)
	})
}

func TestPublisher_PublishFailure(t *testing.T) {
	mock := &mockSNSClient{}
	p := New(WithSNSClient(mock), WithTopics(eventTopic, errorTopic))
	failure := reservo.NewBusinessFailure(createUser("u1"), "User already exists")

	require.NoError(t, p.PublishFailure(context.Background(), "u1", failure))
	require.Len(t, mock.publishCalls, 1)

	call := mock.publishCalls[0]
	assert.Equal(t, errorTopic, *call.TopicArn)
	assert.Equal(t, string(reservo.BusinessError), *call.MessageAttributes["error-type"].StringValue)

	decoded, err := reservo.NewJSONCodec().DecodeFailure([]byte(*call.Message))
	require.NoError(t, err)
	assert.Equal(t, "User already exists", decoded.Message())
}

func TestPublisher_Errors(t *testing.T) {
	evt := reservo.NewEvent(reservo.UserCreated, "u1", reservo.EmptyState())

	t.Run("no client", func(t *testing.T) {
		p := New(WithTopics(eventTopic, errorTopic))
		assert.ErrorIs(t, p.PublishEvent(context.Background(), "u1", evt), ErrNoClient)
	})

	t.Run("no topic", func(t *testing.T) {
		p := New(WithSNSClient(&mockSNSClient{}))
		assert.ErrorIs(t, p.PublishEvent(context.Background(), "u1", evt), ErrNoTopic)
	})

	t.Run("client error is wrapped", func(t *testing.T) {
		mock := &mockSNSClient{publishErr: errors.New("throttled")}
		p := New(WithSNSClient(mock), WithTopics(eventTopic, errorTopic))

		err := p.PublishEvent(context.Background(), "u1", evt)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reservo/sns")
		assert.Contains(t, err.Error(), "throttled")
	})
}

func TestPublisher_OrchestratorCollaboratorFault(t *testing.T) {
	mock := &mockSNSClient{publishErr: errors.New("throttled")}
	p := New(WithSNSClient(mock), WithTopics(eventTopic, errorTopic))
	store := reservo.StateStoreFuncs{
		GetFunc: func(ctx context.Context, key string) (reservo.StateMap, error) { return reservo.EmptyState(), nil },
		SetFunc: func(ctx context.Context, key string, s reservo.StateMap) (reservo.StateMap, error) { return s, nil },
	}
	orch := reservo.NewOrchestrator(reservo.StaticResolver(store), p, p, store)

	cmd := reservo.NewCommand(reservo.CreateUser, "u1", reservo.NewStateMap(map[string]reservo.Value{
		reservo.FieldUserID:   reservo.String("u1"),
		reservo.FieldUsername: reservo.String("bob"),
		reservo.FieldEmail:    reservo.String("b@x.com"),
		reservo.FieldRoles:    reservo.Strings("Admin"),
	}))
	result, err := orch.Handle(context.Background(), "u1", cmd)
	require.Error(t, err)
	assert.ErrorIs(t, err, reservo.ErrCollaborator)

	failure, ok := reservo.AsFailure(result)
	require.True(t, ok)
	assert.True(t, failure.IsTechnical())
	// event publish then best-effort failure publish
	assert.Len(t, mock.publishCalls, 2)
}
