// Package transport provides framed byte transports for envelope
// exchange: WebSocket, newline-delimited streams, and HTTP POST.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send and Receive after the transport has
// been closed from either side.
var ErrClosed = errors.New("transport closed")

// Transport moves opaque payloads between two peers. One payload is
// one envelope. Implementations are safe for one concurrent reader
// and any number of writers.
type Transport interface {
	Send(ctx context.Context, payload []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}
