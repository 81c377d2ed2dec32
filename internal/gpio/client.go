// Package gpio talks to the local hardware daemon over its
// line-delimited JSON socket.
package gpio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ai-servis/core/internal/rpc"
	"github.com/ai-servis/core/internal/rpc/transport"
)

// DefaultAddr is where the hardware daemon listens.
const DefaultAddr = "localhost:8081"

// Pin directions.
const (
	DirectionInput  = "input"
	DirectionOutput = "output"
)

// PinStatus is one configured pin as the daemon reports it.
type PinStatus struct {
	Pin       int    `json:"pin"`
	Direction string `json:"direction"`
	Value     *int   `json:"value,omitempty"`
}

// daemonResponse is the daemon's reply to any command.
type daemonResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Value   *int        `json:"value,omitempty"`
	Pins    []PinStatus `json:"pins,omitempty"`
}

// Client issues commands to the hardware daemon. The daemon answers
// each command with exactly one line, so calls are serialized.
type Client struct {
	mu     sync.Mutex
	line   *transport.Line
	logger zerolog.Logger
}

// Dial connects to the daemon at addr.
func Dial(ctx context.Context, addr string, logger zerolog.Logger) (*Client, error) {
	if addr == "" {
		addr = DefaultAddr
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("gpio dial %s: %w", addr, err)
	}
	return NewClient(conn, logger), nil
}

// NewClient wraps an established daemon connection.
func NewClient(rw io.ReadWriteCloser, logger zerolog.Logger) *Client {
	return &Client{
		line:   transport.NewLine(rw),
		logger: logger.With().Str("component", "gpio-client").Logger(),
	}
}

// Close tears down the daemon connection.
func (c *Client) Close() error { return c.line.Close() }

func (c *Client) call(ctx context.Context, cmd map[string]any) (*daemonResponse, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.line.Send(ctx, payload); err != nil {
		return nil, rpc.Errorf(rpc.CodeServiceUnavailable, "hardware daemon unreachable: %v", err)
	}
	reply, err := c.line.Receive(ctx)
	if err != nil {
		return nil, rpc.Errorf(rpc.CodeServiceUnavailable, "hardware daemon unreachable: %v", err)
	}

	var resp daemonResponse
	if err := json.Unmarshal(reply, &resp); err != nil {
		return nil, rpc.Errorf(rpc.CodeProcessingError, "malformed daemon response: %v", err)
	}
	if resp.Status != "success" {
		msg := resp.Message
		if msg == "" {
			msg = "command failed"
		}
		return nil, rpc.Errorf(rpc.CodeProcessingError, "%s", msg)
	}
	return &resp, nil
}

// Configure sets a pin's direction.
func (c *Client) Configure(ctx context.Context, pin int, direction string) error {
	if direction != DirectionInput && direction != DirectionOutput {
		return rpc.Errorf(rpc.CodeInvalidParams, "invalid direction %q", direction)
	}
	_, err := c.call(ctx, map[string]any{"command": "configure", "pin": pin, "direction": direction})
	if err == nil {
		c.logger.Debug().Int("pin", pin).Str("direction", direction).Msg("pin configured")
	}
	return err
}

// Set drives an output pin to 0 or 1.
func (c *Client) Set(ctx context.Context, pin, value int) error {
	if value != 0 && value != 1 {
		return rpc.Errorf(rpc.CodeInvalidParams, "invalid pin value %d", value)
	}
	_, err := c.call(ctx, map[string]any{"command": "set", "pin": pin, "value": value})
	return err
}

// Get reads a pin's current value.
func (c *Client) Get(ctx context.Context, pin int) (int, error) {
	resp, err := c.call(ctx, map[string]any{"command": "get", "pin": pin})
	if err != nil {
		return 0, err
	}
	if resp.Value == nil {
		return 0, rpc.Errorf(rpc.CodeProcessingError, "daemon returned no value for pin %d", pin)
	}
	return *resp.Value, nil
}

// Status lists all configured pins.
func (c *Client) Status(ctx context.Context) ([]PinStatus, error) {
	resp, err := c.call(ctx, map[string]any{"command": "status"})
	if err != nil {
		return nil, err
	}
	return resp.Pins, nil
}
