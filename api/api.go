// Package api exposes the reservo admission endpoint over HTTP with echo.
//
// POST /command takes {"kind": ..., "data": {...}}, validates it against the
// admission table, builds a command and hands it to the configured handler.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/AshkanYarmoradi/go-reservo"
	"github.com/AshkanYarmoradi/go-reservo/admission"
)

const commandMaxSize = 1 << 20

// HeaderCorrelationID carries the caller's correlation id.
const HeaderCorrelationID = "X-Correlation-Id"

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires the admission routes onto an echo instance.
type Server struct {
	echo     *echo.Echo
	handle   reservo.HandleFunc
	states   reservo.StateStore
	schema   admission.Schema
	builder  admission.Builder
	log      *log.Logger
	registry *prometheus.Registry
}

// Option configures a Server.
type Option func(*Server)

// WithStateStore enables GET /state/:key and the store health check.
func WithStateStore(store reservo.StateStore) Option {
	return func(s *Server) {
		s.states = store
	}
}

// WithLogger sets the logrus logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		s.log = logger
	}
}

// WithRegistry sets the registry served on /metrics. HTTP metrics are
// registered on it as well.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = registry
	}
}

// WithSchema replaces the admission table.
func WithSchema(schema admission.Schema) Option {
	return func(s *Server) {
		s.schema = schema
	}
}

// WithBuilder sets the command builder.
func WithBuilder(b admission.Builder) Option {
	return func(s *Server) {
		s.builder = b
	}
}

// New creates a Server dispatching admitted commands to handle.
func New(handle reservo.HandleFunc, opts ...Option) *Server {
	s := &Server{
		echo:   echo.New(),
		handle: handle,
		schema: admission.CommandSchema,
		log:    log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "reservo",
		Subsystem:  "http",
		Registerer: s.registry,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))

	s.echo.POST("/command", s.postCommand)
	s.echo.GET("/state/:key", s.getState)
	s.echo.GET("/healthz", s.healthz)
	s.echo.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: s.registry}))
	return s
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Registry returns the metrics registry.
func (s *Server) Registry() *prometheus.Registry { return s.registry }

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

type commandRequest struct {
	Kind string                 `json:"kind"`
	Data map[string]interface{} `json:"data"`
}

type validationResponse struct {
	Errors []string `json:"errors"`
}

type commandResponse struct {
	Command reservo.Command  `json:"command"`
	Outcome string           `json:"outcome"`
	Events  []reservo.Event  `json:"events,omitempty"`
	Failure *reservo.Failure `json:"failure,omitempty"`
	Error   string           `json:"error,omitempty"`
}

func writeJSON(c echo.Context, status int, v interface{}) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return c.String(http.StatusInternalServerError, "failed to encode response")
	}
	return c.Blob(status, echo.MIMEApplicationJSONCharsetUTF8, data)
}

func (s *Server) postCommand(c echo.Context) error {
	lr := io.LimitReader(c.Request().Body, commandMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)

	var req commandRequest
	if err := dec.Decode(&req); err != nil || req.Kind == "" {
		return writeJSON(c, http.StatusBadRequest, validationResponse{Errors: []string{"invalid body"}})
	}

	validation := s.schema.Validate(req.Kind, req.Data)
	if !validation.Valid {
		s.log.WithFields(log.Fields{"kind": req.Kind, "errors": validation.Errors}).Debug("command rejected")
		return writeJSON(c, http.StatusBadRequest, validationResponse{Errors: validation.Errors})
	}

	cmd, err := s.builder.BuildCommand(req.Kind, req.Data)
	if err != nil {
		return writeJSON(c, http.StatusBadRequest, validationResponse{Errors: []string{err.Error()}})
	}

	ctx := c.Request().Context()
	corr := c.Request().Header.Get(HeaderCorrelationID)
	if corr == "" {
		corr = c.Response().Header().Get(echo.HeaderXRequestID)
	}
	if corr != "" {
		ctx = reservo.WithCorrelationID(ctx, corr)
		c.Response().Header().Set(HeaderCorrelationID, corr)
	}

	result, err := s.handle(ctx, cmd.AggregateKey, cmd)
	resp := commandResponse{Command: cmd, Outcome: reservo.OutcomeOf(result, err)}
	if success, ok := reservo.AsSuccess(result); ok {
		resp.Events = success.Events
	}
	if failure, ok := reservo.AsFailure(result); ok {
		resp.Failure = failure
	}

	status := http.StatusOK
	switch {
	case errors.Is(err, reservo.ErrCollaborator):
		status = http.StatusServiceUnavailable
		resp.Error = err.Error()
	case err != nil:
		status = http.StatusInternalServerError
		resp.Error = err.Error()
	case resp.Failure != nil && resp.Failure.IsBusiness():
		status = http.StatusUnprocessableEntity
	case resp.Failure != nil:
		status = http.StatusInternalServerError
	}

	entry := s.log.WithFields(log.Fields{"command": cmd.String(), "outcome": resp.Outcome, "status": status})
	if err != nil {
		entry.WithError(err).Error("command failed")
	} else {
		entry.Debug("command handled")
	}
	return writeJSON(c, status, resp)
}

type stateResponse struct {
	Key   string           `json:"key"`
	State reservo.StateMap `json:"state"`
}

func (s *Server) getState(c echo.Context) error {
	if s.states == nil {
		return c.String(http.StatusNotImplemented, "no state store configured")
	}
	key := c.Param("key")
	state, err := s.states.Get(c.Request().Context(), key)
	if err != nil {
		s.log.WithError(err).WithField("key", key).Error("state read failed")
		return c.String(http.StatusServiceUnavailable, err.Error())
	}
	if state.HasErrorMarker() {
		return c.String(http.StatusInternalServerError, state.ErrorMessage())
	}
	if state.IsEmpty() {
		return c.NoContent(http.StatusNotFound)
	}
	return writeJSON(c, http.StatusOK, stateResponse{Key: key, State: state})
}

func (s *Server) healthz(c echo.Context) error {
	if p, ok := s.states.(Pinger); ok {
		if err := p.Ping(c.Request().Context()); err != nil {
			return c.String(http.StatusServiceUnavailable, err.Error())
		}
	}
	return c.NoContent(http.StatusOK)
}
