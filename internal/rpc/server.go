package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ai-servis/core/internal/logging"
	"github.com/ai-servis/core/internal/rpc/transport"
)

// DefaultMaxConcurrentHandlers caps in-flight handler invocations per
// server. Excess requests wait in arrival order per connection.
const DefaultMaxConcurrentHandlers = 64

// NotificationHandler consumes a notification or event method. No
// response is produced.
type NotificationHandler func(ctx context.Context, method string, params map[string]any)

// Server dispatches incoming request envelopes to registered tools.
// One Server may serve many transports concurrently.
type Server struct {
	name   string
	tools  *ToolRegistry
	logger zerolog.Logger

	sem      chan struct{}
	onNotify NotificationHandler

	wg sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithMaxConcurrentHandlers overrides the handler concurrency cap.
func WithMaxConcurrentHandlers(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.sem = make(chan struct{}, n)
		}
	}
}

// WithNotificationHandler installs a consumer for notification and
// event envelopes.
func WithNotificationHandler(h NotificationHandler) ServerOption {
	return func(s *Server) { s.onNotify = h }
}

// NewServer creates a server around a tool registry.
func NewServer(name string, tools *ToolRegistry, logger zerolog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		name:   name,
		tools:  tools,
		logger: logger.With().Str("component", "rpc-server").Str("server", name).Logger(),
		sem:    make(chan struct{}, DefaultMaxConcurrentHandlers),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tools exposes the registry so callers can add tools after
// construction.
func (s *Server) Tools() *ToolRegistry { return s.tools }

// Handle processes one envelope synchronously. Returns nil when the
// envelope requires no response (notifications, events, responses).
func (s *Server) Handle(ctx context.Context, env *Envelope) *Envelope {
	switch env.Type {
	case TypeRequest:
		return s.handleRequest(ctx, env)
	case TypeNotification, TypeEvent:
		if s.onNotify != nil {
			params, err := env.ParamsMap()
			if err != nil {
				s.logger.Warn().Str("method", env.Method).Err(err).Msg("dropping notification with bad params")
				return nil
			}
			s.onNotify(ctx, env.Method, params)
		}
		return nil
	default:
		// Responses arriving at a server have no pending request here.
		s.logger.Debug().Str("type", string(env.Type)).Msg("ignoring envelope")
		return nil
	}
}

func (s *Server) handleRequest(ctx context.Context, env *Envelope) (resp *Envelope) {
	defer func() {
		if r := recover(); r != nil {
			logging.RecoverPanic(s.logger, "handler", map[string]any{
				"method": env.Method,
				"id":     env.ID,
			})
			resp = NewErrorResponse(env.ID, Errorf(CodeHandlerError, "handler panic in %s", env.Method))
		}
	}()

	if env.Method == "list_tools" {
		out, err := NewResult(env.ID, map[string]any{"tools": s.tools.Descriptors()})
		if err != nil {
			return NewErrorResponse(env.ID, err)
		}
		return out
	}

	tool, ok := s.tools.Get(env.Method)
	if !ok {
		return NewErrorResponse(env.ID, Errorf(CodeMethodNotFound, "no tool named %s", env.Method))
	}

	params, err := env.ParamsMap()
	if err != nil {
		return NewErrorResponse(env.ID, err)
	}
	if err := tool.Validate(params); err != nil {
		return NewErrorResponse(env.ID, err)
	}

	result, err := tool.Handler(ctx, params)
	if err != nil {
		return NewErrorResponse(env.ID, err)
	}
	out, err := NewResult(env.ID, result)
	if err != nil {
		return NewErrorResponse(env.ID, Errorf(CodeProcessingError, "marshal result for %s: %v", env.Method, err))
	}
	return out
}

// Serve reads envelopes from t until the transport closes or ctx is
// canceled. Handler invocations run concurrently under the server-wide
// cap; acquisition happens in the read loop, so requests from one
// connection start in arrival order. Responses are written as handlers
// finish and may interleave.
func (s *Server) Serve(ctx context.Context, t transport.Transport) error {
	defer s.wg.Wait()

	for {
		payload, err := t.Receive(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			s.logger.Warn().Err(err).Msg("dropping malformed envelope")
			continue
		}

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return nil
		}

		s.wg.Add(1)
		go func(env Envelope) {
			defer s.wg.Done()
			defer func() { <-s.sem }()

			resp := s.Handle(ctx, &env)
			if resp == nil {
				return
			}
			data, err := json.Marshal(resp)
			if err != nil {
				s.logger.Error().Err(err).Str("id", env.ID).Msg("marshal response")
				return
			}
			if err := t.Send(ctx, data); err != nil && !errors.Is(err, transport.ErrClosed) {
				s.logger.Warn().Err(err).Str("id", env.ID).Msg("send response")
			}
		}(env)
	}
}

// ServeHTTP handles one envelope per POST body. Notifications return
// 202 with an empty body.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		http.Error(w, "malformed envelope", http.StatusBadRequest)
		return
	}

	resp := s.Handle(r.Context(), &env)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	data, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
