package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AshkanYarmoradi/go-reservo"
	"github.com/AshkanYarmoradi/go-reservo/adapters/memory"
)

const userID = "5f0c7a8e-2b44-4d0f-9f4e-0c8a8f3b6d11"

func quietLogger() *log.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

type fixture struct {
	server *Server
	states *memory.StateStore
	sink   *memory.Sink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	states := memory.NewStateStore(memory.WithCodec(reservo.NewJSONCodec()))
	sink := memory.NewSink()
	orch := reservo.NewOrchestrator(reservo.StaticResolver(states), sink, sink, states)
	return &fixture{
		server: New(orch.Handle, WithStateStore(states), WithLogger(quietLogger())),
		states: states,
		sink:   sink,
	}
}

func do(s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const createUserBody = `{"kind":"CreateUser","data":{"userId":"` + userID + `","username":"bob","password":"pw","email":"b@x.com","roles":["Admin"]}}`

func TestPostCommand_Success(t *testing.T) {
	f := newFixture(t)

	rec := do(f.server, http.MethodPost, "/command", createUserBody, map[string]string{HeaderCorrelationID: "corr-7"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "corr-7", rec.Header().Get(HeaderCorrelationID))
	body := decode(t, rec)
	assert.Equal(t, reservo.OutcomeSuccess, body["outcome"])
	events, ok := body["events"].([]interface{})
	require.True(t, ok)
	require.Len(t, events, 1)
	assert.Equal(t, reservo.UserCreated, events[0].(map[string]interface{})["kind"])

	require.Len(t, f.sink.Events(), 1)
	state, err := f.states.Get(context.Background(), userID)
	require.NoError(t, err)
	status, _ := state.LookupString(reservo.FieldStatus)
	assert.Equal(t, reservo.StatusActive, status)
}

func TestPostCommand_Codes(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", `{"kind":`, http.StatusBadRequest},
		{"missing kind", `{"data":{}}`, http.StatusBadRequest},
		{"validation failure", `{"kind":"DeleteUser","data":{"userId":"nope"}}`, http.StatusBadRequest},
		{"unknown kind reaches the core", `{"kind":"Teleport","data":{"userId":"u1"}}`, http.StatusUnprocessableEntity},
		{"undecided kind is still validated", `{"kind":"MoveReservation","data":{"userId":"u1"}}`, http.StatusBadRequest},
		{"undecided kind reaches the core", `{"kind":"MoveReservation","data":{"reservationId":"b8a1e2d4-9c37-4f12-8e55-7d2f1c0a9b33","userId":"5f0c7a8e-2b44-4d0f-9f4e-0c8a8f3b6d11","moment":"2026-03-01T18:00:00Z","channel":"Web"}}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := do(f.server, http.MethodPost, "/command", tt.body, nil)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestPostCommand_ValidationErrors(t *testing.T) {
	f := newFixture(t)

	rec := do(f.server, http.MethodPost, "/command", `{"kind":"DeleteUser","data":{}}`, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, []interface{}{"Attr 'userId' is missing.", "Attr 'userId' must be of type uuid."}, body["errors"])
	assert.Empty(t, f.sink.Events())
	assert.Empty(t, f.sink.Failures())
}

func TestPostCommand_BusinessFailure(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, do(f.server, http.MethodPost, "/command", createUserBody, nil).Code)

	rec := do(f.server, http.MethodPost, "/command", createUserBody, nil)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, reservo.OutcomeBusiness, body["outcome"])
	assert.NotNil(t, body["failure"])
	assert.Len(t, f.sink.Failures(), 1)
}

func TestPostCommand_HandlerErrors(t *testing.T) {
	tests := []struct {
		name   string
		handle reservo.HandleFunc
		status int
	}{
		{
			name: "collaborator fault",
			handle: func(ctx context.Context, key string, cmd reservo.Command) (reservo.Result, error) {
				return reservo.NewTechnicalFailure(cmd, reservo.ErrorState("down")),
					reservo.NewCollaboratorError(reservo.OpPublishEvent, key, errors.New("down"))
			},
			status: http.StatusServiceUnavailable,
		},
		{
			name: "unexpected error",
			handle: func(ctx context.Context, key string, cmd reservo.Command) (reservo.Result, error) {
				return nil, errors.New("boom")
			},
			status: http.StatusInternalServerError,
		},
		{
			name: "technical failure",
			handle: func(ctx context.Context, key string, cmd reservo.Command) (reservo.Result, error) {
				return reservo.NewTechnicalFailure(cmd, reservo.ErrorState("bad field")), nil
			},
			status: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.handle, WithLogger(quietLogger()))
			rec := do(s, http.MethodPost, "/command", createUserBody, nil)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestPostCommand_RequestIDIsCorrelation(t *testing.T) {
	var got string
	s := New(func(ctx context.Context, key string, cmd reservo.Command) (reservo.Result, error) {
		got = reservo.CorrelationIDFromContext(ctx)
		return reservo.Success{}, nil
	}, WithLogger(quietLogger()))

	rec := do(s, http.MethodPost, "/command", createUserBody, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, got)
	assert.Equal(t, got, rec.Header().Get(HeaderCorrelationID))
}

func TestGetState(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, do(f.server, http.MethodPost, "/command", createUserBody, nil).Code)

	t.Run("found", func(t *testing.T) {
		rec := do(f.server, http.MethodGet, "/state/"+userID, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, userID, body["key"])
		assert.NotNil(t, body["state"])
	})

	t.Run("missing", func(t *testing.T) {
		rec := do(f.server, http.MethodGet, "/state/"+uuid.NewString(), "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("corrupt", func(t *testing.T) {
		f.states.SetRaw("broken", []byte("{"))
		rec := do(f.server, http.MethodGet, "/state/broken", "", nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("no store", func(t *testing.T) {
		s := New(nil, WithLogger(quietLogger()))
		rec := do(s, http.MethodGet, "/state/x", "", nil)
		assert.Equal(t, http.StatusNotImplemented, rec.Code)
	})
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusOK, do(f.server, http.MethodGet, "/healthz", "", nil).Code)

	require.NoError(t, f.states.Close())
	assert.Equal(t, http.StatusServiceUnavailable, do(f.server, http.MethodGet, "/healthz", "", nil).Code)
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)
	do(f.server, http.MethodPost, "/command", createUserBody, nil)

	rec := do(f.server, http.MethodGet, "/metrics", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reservo_http_requests_total")
}
