package rpc

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ai-servis/core/internal/rpc/transport"
)

func testPair(t *testing.T, reg *ToolRegistry, opts ...ServerOption) (*Client, func()) {
	t.Helper()

	serverConn, clientConn := net.Pipe()
	serverT := transport.NewLine(serverConn)
	clientT := transport.NewLine(clientConn)

	srv := NewServer("test", reg, zerolog.Nop(), opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx, serverT)

	client := NewClient(clientT, zerolog.Nop())
	return client, func() {
		cancel()
		client.Close()
		serverT.Close()
	}
}

func TestServerDispatch(t *testing.T) {
	reg := NewToolRegistry()
	require.NoError(t, reg.Register(Tool{
		Name: "add",
		Handler: func(ctx context.Context, params map[string]any) (any, error) {
			a, _ := params["a"].(float64)
			b, _ := params["b"].(float64)
			return map[string]any{"sum": a + b}, nil
		},
	}))

	client, done := testPair(t, reg)
	defer done()

	raw, err := client.Call(context.Background(), "add", map[string]any{"a": 2, "b": 3})
	require.NoError(t, err)

	var out struct {
		Sum float64 `json:"sum"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Equal(t, float64(5), out.Sum)
}

func TestServerMethodNotFound(t *testing.T) {
	client, done := testPair(t, NewToolRegistry())
	defer done()

	_, err := client.Call(context.Background(), "no_such_tool", nil)
	require.Error(t, err)
	require.Equal(t, CodeMethodNotFound, CodeOf(err))
}

func TestServerHandlerPanicBecomesError(t *testing.T) {
	reg := NewToolRegistry()
	require.NoError(t, reg.Register(Tool{
		Name: "boom",
		Handler: func(ctx context.Context, params map[string]any) (any, error) {
			panic("kaboom")
		},
	}))
	require.NoError(t, reg.Register(echoTool("echo")))

	client, done := testPair(t, reg)
	defer done()

	_, err := client.Call(context.Background(), "boom", nil)
	require.Error(t, err)
	require.Equal(t, CodeHandlerError, CodeOf(err))

	// Server keeps serving after the panic.
	_, err = client.Call(context.Background(), "echo", map[string]any{"k": "v"})
	require.NoError(t, err)
}

func TestServerListTools(t *testing.T) {
	reg := NewToolRegistry()
	require.NoError(t, reg.Register(echoTool("echo")))

	client, done := testPair(t, reg)
	defer done()

	raw, err := client.Call(context.Background(), "list_tools", nil)
	require.NoError(t, err)

	var out struct {
		Tools []Descriptor `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Len(t, out.Tools, 1)
	require.Equal(t, "echo", out.Tools[0].Name)
}

func TestNotificationGetsNoResponse(t *testing.T) {
	got := make(chan string, 1)
	reg := NewToolRegistry()

	client, done := testPair(t, reg, WithNotificationHandler(
		func(ctx context.Context, method string, params map[string]any) {
			got <- method
		}))
	defer done()

	require.NoError(t, client.Notify(context.Background(), "heartbeat", map[string]any{"service": "x"}))

	select {
	case m := <-got:
		require.Equal(t, "heartbeat", m)
	case <-time.After(2 * time.Second):
		t.Fatal("notification never delivered")
	}
}

func TestCallTimeout(t *testing.T) {
	reg := NewToolRegistry()
	require.NoError(t, reg.Register(Tool{
		Name: "slow",
		Handler: func(ctx context.Context, params map[string]any) (any, error) {
			time.Sleep(500 * time.Millisecond)
			return nil, nil
		},
	}))

	client, done := testPair(t, reg)
	defer done()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Call(ctx, "slow", nil)
	require.Error(t, err)
	require.Equal(t, CodeTimeout, CodeOf(err))
}

func TestCloseFailsPendingCalls(t *testing.T) {
	reg := NewToolRegistry()
	require.NoError(t, reg.Register(Tool{
		Name: "hang",
		Handler: func(ctx context.Context, params map[string]any) (any, error) {
			time.Sleep(5 * time.Second)
			return nil, nil
		},
	}))

	client, done := testPair(t, reg)
	defer done()

	errCh := make(chan error, 1)
	go func() {
		_, err := client.Call(context.Background(), "hang", nil)
		errCh <- err
	}()

	time.Sleep(100 * time.Millisecond)
	client.Close()

	select {
	case err := <-errCh:
		require.Error(t, err)
		require.Equal(t, CodeTransportClosed, CodeOf(err))
	case <-time.After(2 * time.Second):
		t.Fatal("pending call never failed")
	}
}
