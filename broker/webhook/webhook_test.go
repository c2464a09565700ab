package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-reservo"
	"github.com/AshkanYarmoradi/go-reservo/serializer/msgpack"
)

type captured struct {
	path    string
	headers http.Header
	body    []byte
}

func newRecordingServer(t *testing.T, status int) (*httptest.Server, func() []captured) {
	t.Helper()
	var mu sync.Mutex
	var requests []captured

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, captured{path: r.URL.Path, headers: r.Header.Clone(), body: body})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)

	return server, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), requests...)
	}
}

func createUser(key string) reservo.Command {
	return reservo.NewCommand(reservo.CreateUser, key, reservo.EmptyState().WithString(reservo.FieldUserID, key))
}

func TestPublisher_PublishEvent(t *testing.T) {
	server, requests := newRecordingServer(t, http.StatusAccepted)
	p := New(WithEndpoints(server.URL+"/events", server.URL+"/errors"))
	ctx := reservo.WithCorrelationID(context.Background(), "corr-1")
	evt := reservo.NewEvent(reservo.UserCreated, "u1", reservo.EmptyState().WithString(reservo.FieldUserID, "u1"))

	require.NoError(t, p.PublishEvent(ctx, "u1", evt))

	got := requests()
	require.Len(t, got, 1)
	assert.Equal(t, "/events", got[0].path)
	assert.Equal(t, "application/json", got[0].headers.Get("Content-Type"))
	assert.Equal(t, reservo.UserCreated, got[0].headers.Get(HeaderKind))
	assert.Equal(t, "u1", got[0].headers.Get(HeaderKey))
	assert.Equal(t, evt.ID.String(), got[0].headers.Get(HeaderID))
	assert.Equal(t, "corr-1", got[0].headers.Get(HeaderCorrelationID))

	decoded, err := reservo.NewJSONCodec().DecodeEvent(got[0].body)
	require.NoError(t, err)
	assert.Equal(t, evt.ID, decoded.ID)
}

func TestPublisher_PublishFailure(t *testing.T) {
	server, requests := newRecordingServer(t, http.StatusOK)
	p := New(WithEndpoints(server.URL+"/events", server.URL+"/errors"))
	failure := reservo.NewBusinessFailure(createUser("u1"), "User already exists")

	require.NoError(t, p.PublishFailure(context.Background(), "u1", failure))

	got := requests()
	require.Len(t, got, 1)
	assert.Equal(t, "/errors", got[0].path)
	assert.Equal(t, string(reservo.BusinessError), got[0].headers.Get(HeaderErrorType))
	assert.Empty(t, got[0].headers.Get(HeaderCorrelationID))
}

func TestPublisher_Codec(t *testing.T) {
	server, requests := newRecordingServer(t, http.StatusOK)
	p := New(WithEndpoints(server.URL, server.URL), WithCodec(msgpack.NewCodec()))
	evt := reservo.NewEvent(reservo.UserCreated, "u1", reservo.EmptyState())

	require.NoError(t, p.PublishEvent(context.Background(), "u1", evt))

	got := requests()
	require.Len(t, got, 1)
	assert.Equal(t, "application/x-msgpack", got[0].headers.Get("Content-Type"))
	decoded, err := msgpack.NewCodec().DecodeEvent(got[0].body)
	require.NoError(t, err)
	assert.Equal(t, evt.ID, decoded.ID)
}

func TestPublisher_StatusCodes(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr string
	}{
		{"399 is accepted", 399, ""},
		{"400 is a client error", http.StatusBadRequest, "client error 400"},
		{"404 is a client error", http.StatusNotFound, "client error 404"},
		{"500 is a server error", http.StatusInternalServerError, "server error 500"},
		{"503 is a server error", http.StatusServiceUnavailable, "server error 503"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newRecordingServer(t, tt.status)
			p := New(WithEndpoints(server.URL, server.URL))

			err := p.PublishEvent(context.Background(), "u1", reservo.NewEvent(reservo.UserCreated, "u1", reservo.EmptyState()))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPublisher_DefaultHeaders(t *testing.T) {
	server, requests := newRecordingServer(t, http.StatusOK)
	p := New(
		WithEndpoints(server.URL, server.URL),
		WithDefaultHeaders(map[string]string{"Authorization": "Bearer token"}),
	)

	require.NoError(t, p.PublishFailure(context.Background(), "u1", reservo.NewBusinessFailure(createUser("u1"), "nope")))
	assert.Equal(t, "Bearer token", requests()[0].headers.Get("Authorization"))
}

func TestPublisher_NoURL(t *testing.T) {
	p := New()
	err := p.PublishEvent(context.Background(), "u1", reservo.NewEvent(reservo.UserCreated, "u1", reservo.EmptyState()))
	assert.ErrorIs(t, err, ErrNoURL)
}

func TestPublisher_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer server.Close()

	p := New(WithEndpoints(server.URL, server.URL))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.PublishEvent(ctx, "u1", reservo.NewEvent(reservo.UserCreated, "u1", reservo.EmptyState()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestPublisher_Options(t *testing.T) {
	client := &http.Client{}
	assert.Same(t, client, New(WithHTTPClient(client)).client)
	assert.Equal(t, 5*time.Second, New(WithTimeout(5*time.Second)).client.Timeout)
}
