package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

// Line frames payloads as newline-delimited JSON over any byte
// stream. Used for stdio service processes and the line-JSON hardware
// bridge socket.
type Line struct {
	rw     io.ReadWriteCloser
	reader *bufio.Reader

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

// NewLine wraps rw in a line-framed transport.
func NewLine(rw io.ReadWriteCloser) *Line {
	return &Line{
		rw:     rw,
		reader: bufio.NewReader(rw),
	}
}

// Send writes one payload followed by a newline. Embedded newlines in
// the payload are not allowed by the framing; JSON encoding never
// produces them.
func (l *Line) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if l.isClosed() {
		return ErrClosed
	}

	buf := make([]byte, 0, len(payload)+1)
	buf = append(buf, payload...)
	buf = append(buf, '\n')
	if _, err := l.rw.Write(buf); err != nil {
		return err
	}
	return nil
}

// Receive blocks until one full line arrives. Empty lines are skipped.
func (l *Line) Receive(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if l.isClosed() {
			return nil, ErrClosed
		}

		line, err := l.reader.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && len(bytes.TrimSpace(line)) > 0 {
				return bytes.TrimSpace(line), nil
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil, ErrClosed
			}
			return nil, err
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		return line, nil
	}
}

func (l *Line) Close() error {
	l.closeMu.Lock()
	defer l.closeMu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.rw.Close()
}

func (l *Line) isClosed() bool {
	l.closeMu.Lock()
	defer l.closeMu.Unlock()
	return l.closed
}
