package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

const wsWriteWait = 5 * time.Second

// WS is a WebSocket transport over a gobwas connection. The same type
// serves both ends; state tells the frame codec which masking rules
// apply.
type WS struct {
	conn  net.Conn
	state ws.State
	rw    io.ReadWriter

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

type readWriter struct {
	io.Reader
	io.Writer
}

// NewServerWS wraps a connection obtained from ws.UpgradeHTTP.
func NewServerWS(conn net.Conn) *WS {
	return &WS{conn: conn, state: ws.StateServerSide, rw: conn}
}

// DialWS connects to a WebSocket endpoint and returns the client side
// of the transport.
func DialWS(ctx context.Context, url string) (*WS, error) {
	conn, br, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	t := &WS{conn: conn, state: ws.StateClientSide, rw: conn}
	// The dialer may have buffered bytes past the handshake.
	if br != nil {
		t.rw = readWriter{Reader: io.MultiReader(br, conn), Writer: conn}
	}
	return t, nil
}

// Send writes one text frame. A bounded write deadline keeps a stuck
// peer from blocking the caller forever.
func (t *WS) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.isClosed() {
		return ErrClosed
	}

	deadline := time.Now().Add(wsWriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}

	if t.state == ws.StateClientSide {
		return wsutil.WriteClientMessage(t.conn, ws.OpText, payload)
	}
	return wsutil.WriteServerMessage(t.conn, ws.OpText, payload)
}

// Receive blocks until one data frame arrives. Control frames are
// handled by the codec.
func (t *WS) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.isClosed() {
		return nil, ErrClosed
	}

	if d, ok := ctx.Deadline(); ok {
		if err := t.conn.SetReadDeadline(d); err != nil {
			return nil, err
		}
	} else {
		if err := t.conn.SetReadDeadline(time.Time{}); err != nil {
			return nil, err
		}
	}

	var (
		payload []byte
		err     error
	)
	if t.state == ws.StateClientSide {
		payload, _, err = wsutil.ReadServerData(t.rw)
	} else {
		payload, _, err = wsutil.ReadClientData(t.conn)
	}
	if err != nil {
		var closedErr wsutil.ClosedError
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.As(err, &closedErr) {
			return nil, ErrClosed
		}
		return nil, err
	}
	return payload, nil
}

func (t *WS) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

func (t *WS) isClosed() bool {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	return t.closed
}
