package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ai-servis/core/internal/logging"
	"github.com/ai-servis/core/internal/rpc/transport"
)

// DefaultCallTimeout bounds a Call when the caller's context carries
// no deadline of its own.
const DefaultCallTimeout = 30 * time.Second

// Caller issues request envelopes and returns raw results. Implemented
// by the stream Client and by HTTPClient.
type Caller interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// EventHandler consumes unsolicited event and notification envelopes
// received by a client.
type EventHandler func(method string, params map[string]any)

// Client multiplexes concurrent calls over one stream transport.
// Responses correlate to requests by id; each request gets a fresh
// UUID.
type Client struct {
	transport transport.Transport
	logger    zerolog.Logger
	timeout   time.Duration
	onEvent   EventHandler

	mu      sync.Mutex
	pending map[string]chan *Envelope
	closed  bool

	done     chan struct{}
	doneOnce sync.Once
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCallTimeout overrides the default per-call timeout.
func WithCallTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithEventHandler installs a consumer for unsolicited envelopes.
func WithEventHandler(h EventHandler) ClientOption {
	return func(c *Client) { c.onEvent = h }
}

// NewClient starts the receive loop over t. Close the client to stop
// it and fail all in-flight calls.
func NewClient(t transport.Transport, logger zerolog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		transport: t,
		logger:    logger.With().Str("component", "rpc-client").Logger(),
		timeout:   DefaultCallTimeout,
		pending:   make(map[string]chan *Envelope),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go func() {
		defer logging.RecoverPanic(c.logger, "receiveLoop", nil)
		c.receiveLoop()
	}()
	return c
}

func (c *Client) receiveLoop() {
	ctx := context.Background()
	for {
		payload, err := c.transport.Receive(ctx)
		if err != nil {
			if !errors.Is(err, transport.ErrClosed) {
				c.logger.Warn().Err(err).Msg("receive loop terminated")
			}
			c.failAll()
			return
		}

		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			c.logger.Warn().Err(err).Msg("dropping malformed envelope")
			continue
		}

		switch env.Type {
		case TypeResponse:
			c.deliver(&env)
		case TypeEvent, TypeNotification:
			if c.onEvent != nil {
				params, err := env.ParamsMap()
				if err != nil {
					c.logger.Warn().Str("method", env.Method).Err(err).Msg("dropping event with bad params")
					continue
				}
				c.onEvent(env.Method, params)
			}
		default:
			c.logger.Debug().Str("type", string(env.Type)).Msg("ignoring envelope")
		}
	}
}

func (c *Client) deliver(env *Envelope) {
	c.mu.Lock()
	ch, ok := c.pending[env.ID]
	if ok {
		delete(c.pending, env.ID)
	}
	c.mu.Unlock()

	if !ok {
		// Late response after timeout, or a response we never asked for.
		c.logger.Debug().Str("id", env.ID).Msg("response with no pending request")
		return
	}
	ch <- env
}

func (c *Client) failAll() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan *Envelope)
	c.closed = true
	c.mu.Unlock()

	for id, ch := range pending {
		ch <- NewErrorResponse(id, Errorf(CodeTransportClosed, "transport closed with call in flight"))
	}
	c.doneOnce.Do(func() { close(c.done) })
}

// Call sends a request and blocks for its response. Timeouts surface
// as a timeout coded error; a closed transport as transport_closed.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	id := uuid.NewString()
	req, err := NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan *Envelope, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, Errorf(CodeTransportClosed, "client is closed")
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.transport.Send(ctx, data); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		if errors.Is(err, transport.ErrClosed) {
			return nil, Errorf(CodeTransportClosed, "send %s: transport closed", method)
		}
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, &Error{Code: resp.Error.Code, Message: resp.Error.Message}
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, Errorf(CodeTimeout, "call %s timed out", method)
		}
		return nil, ctx.Err()
	case <-c.done:
		return nil, Errorf(CodeTransportClosed, "transport closed with call in flight")
	}
}

// Notify sends a fire-and-forget notification.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	env, err := NewNotification(method, params)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := c.transport.Send(ctx, data); err != nil {
		if errors.Is(err, transport.ErrClosed) {
			return Errorf(CodeTransportClosed, "notify %s: transport closed", method)
		}
		return err
	}
	return nil
}

// Close shuts the transport and fails all pending calls with
// transport_closed.
func (c *Client) Close() error {
	err := c.transport.Close()
	c.failAll()
	return err
}

// HTTPClient is a Caller over one-shot HTTP POSTs.
type HTTPClient struct {
	poster *transport.HTTPPoster
}

// NewHTTPClient builds a Caller for an HTTP envelope endpoint.
func NewHTTPClient(endpoint string) *HTTPClient {
	return &HTTPClient{poster: transport.NewHTTPPoster(endpoint)}
}

// Call posts a request envelope and decodes the response envelope.
func (h *HTTPClient) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	req, err := NewRequest(uuid.NewString(), method, params)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	body, err := h.poster.Post(ctx, data)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, Errorf(CodeTimeout, "call %s timed out", method)
		}
		return nil, Errorf(CodeServiceUnavailable, "call %s: %v", method, err)
	}

	var resp Envelope
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, Errorf(CodeProcessingError, "decode response for %s: %v", method, err)
	}
	if resp.Error != nil {
		return nil, &Error{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	return resp.Result, nil
}
