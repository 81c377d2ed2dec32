package adapters

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ai-servis/core/internal/limits"
	"github.com/ai-servis/core/internal/orchestrator"
	"github.com/ai-servis/core/internal/rpc"
)

func echoHandler() (CommandFunc, *[]orchestrator.ProcessRequest) {
	var seen []orchestrator.ProcessRequest
	fn := func(ctx context.Context, req orchestrator.ProcessRequest) map[string]any {
		seen = append(seen, req)
		return map[string]any{
			"success":    true,
			"response":   "did: " + req.Text,
			"session_id": "sess_fixed",
		}
	}
	return fn, &seen
}

func TestTextHTTPCommand(t *testing.T) {
	handler, seen := echoHandler()
	a := NewTextAdapter("", "", handler, nil, zerolog.Nop())

	body := bytes.NewBufferString(`{"text": "turn up volume", "user_id": "u1"}`)
	r := httptest.NewRequest(http.MethodPost, "/command", body)
	w := httptest.NewRecorder()
	a.handleCommand(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var result map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Equal(t, true, result["success"])
	require.Equal(t, "did: turn up volume", result["response"])

	require.Len(t, *seen, 1)
	require.Equal(t, "text", (*seen)[0].InterfaceType)
	require.Equal(t, "u1", (*seen)[0].UserID)
}

func TestTextHTTPCommandRejectsEmptyText(t *testing.T) {
	handler, _ := echoHandler()
	a := NewTextAdapter("", "", handler, nil, zerolog.Nop())

	r := httptest.NewRequest(http.MethodPost, "/command", strings.NewReader(`{"text": "  "}`))
	w := httptest.NewRecorder()
	a.handleCommand(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTextREPLSession(t *testing.T) {
	handler, seen := echoHandler()
	a := NewTextAdapter("", "", handler, nil, zerolog.Nop())

	server, client := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.serveREPL(context.Background(), server)
	}()

	reader := bufio.NewReader(client)

	// Banner plus prompt.
	banner, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, banner, "text interface")

	_, err = client.Write([]byte("play music\nexit\n"))
	require.NoError(t, err)

	var out strings.Builder
	buf := make([]byte, 256)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	for !strings.Contains(out.String(), "bye") {
		n, err := reader.Read(buf)
		if err != nil {
			break
		}
		out.Write(buf[:n])
	}
	client.Close()
	<-done

	require.Contains(t, out.String(), "did: play music")
	require.Contains(t, out.String(), "bye")

	require.Len(t, *seen, 1)
	require.Equal(t, "play music", (*seen)[0].Text)
	require.Equal(t, "text", (*seen)[0].InterfaceType)
}

func TestWebCommandHandler(t *testing.T) {
	handler, seen := echoHandler()
	a := NewWebAdapter("", handler, nil, zerolog.Nop())

	body := strings.NewReader(`{"text": "lights on", "session_id": "sess_abc"}`)
	r := httptest.NewRequest(http.MethodPost, "/command", body)
	r.Header.Set("Authorization", "Bearer tok123")
	w := httptest.NewRecorder()
	a.handleCommand(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, *seen, 1)
	require.Equal(t, "web", (*seen)[0].InterfaceType)
	require.Equal(t, "sess_abc", (*seen)[0].SessionID)
	require.Equal(t, "tok123", (*seen)[0].Token)
	require.EqualValues(t, 1, a.stats.MessagesReceived.Load())
	require.EqualValues(t, 1, a.stats.MessagesSent.Load())
}

func TestWebBroadcastWithoutClients(t *testing.T) {
	handler, _ := echoHandler()
	a := NewWebAdapter("", handler, nil, zerolog.Nop())

	sent := a.BroadcastMessage(context.Background(), map[string]any{"event": "ping"})
	require.Equal(t, 0, sent)

	err := a.SendMessage(context.Background(), "missing", map[string]any{"event": "ping"})
	require.Equal(t, rpc.CodeNotFound, rpc.CodeOf(err))
}

func mobileWithDevice(t *testing.T) (*MobileAdapter, http.Handler) {
	t.Helper()
	handler, _ := echoHandler()
	a := NewMobileAdapter("", handler, nil, zerolog.Nop())

	body := strings.NewReader(`{"device_id": "dev-1", "user_id": "u1", "platform": "android"}`)
	r := httptest.NewRequest(http.MethodPost, "/api/register", body)
	w := httptest.NewRecorder()
	a.handleRegister(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/register", a.handleRegister)
	mux.HandleFunc("POST /api/command", a.handleCommand)
	mux.HandleFunc("POST /api/push-token", a.handlePushToken)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
	})
	return a, a.requireDevice(mux)
}

func TestMobileMiddlewareRequiresDevice(t *testing.T) {
	_, h := mobileWithDevice(t)

	// No header: rejected.
	r := httptest.NewRequest(http.MethodPost, "/api/command", strings.NewReader(`{"text": "hi"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// Unknown device: rejected.
	r = httptest.NewRequest(http.MethodPost, "/api/command", strings.NewReader(`{"text": "hi"}`))
	r.Header.Set("X-Device-ID", "dev-unknown")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// Registered device: accepted.
	r = httptest.NewRequest(http.MethodPost, "/api/command", strings.NewReader(`{"text": "hi"}`))
	r.Header.Set("X-Device-ID", "dev-1")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	// Health stays open.
	r = httptest.NewRequest(http.MethodGet, "/health", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestMobileCommandInheritsDeviceUser(t *testing.T) {
	handler, seen := echoHandler()
	a := NewMobileAdapter("", handler, nil, zerolog.Nop())

	body := strings.NewReader(`{"device_id": "dev-1", "user_id": "u42"}`)
	r := httptest.NewRequest(http.MethodPost, "/api/register", body)
	a.handleRegister(httptest.NewRecorder(), r)

	r = httptest.NewRequest(http.MethodPost, "/api/command", strings.NewReader(`{"text": "status"}`))
	r.Header.Set("X-Device-ID", "dev-1")
	w := httptest.NewRecorder()
	a.handleCommand(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, *seen, 1)
	require.Equal(t, "u42", (*seen)[0].UserID)
	require.Equal(t, "mobile", (*seen)[0].InterfaceType)
}

func TestMobilePushTokenUpdate(t *testing.T) {
	a, h := mobileWithDevice(t)

	r := httptest.NewRequest(http.MethodPost, "/api/push-token", strings.NewReader(`{"push_token": "tok-xyz"}`))
	r.Header.Set("X-Device-ID", "dev-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "tok-xyz", a.device("dev-1").PushToken)
}

func TestGateAdmission(t *testing.T) {
	limiter := limits.NewConnectionRateLimiter(limits.RateLimiterConfig{
		IPBurst: 1, IPRate: 0.001, GlobalBurst: 100, GlobalRate: 100,
	}, zerolog.Nop())
	defer limiter.Stop()

	gate := &Gate{Limiter: limiter}
	ok, _ := gate.Admit("10.0.0.1")
	require.True(t, ok)

	ok, reason := gate.Admit("10.0.0.1")
	require.False(t, ok)
	require.Equal(t, "rate limited", reason)

	// Nil gate admits everything.
	var none *Gate
	ok, _ = none.Admit("10.0.0.1")
	require.True(t, ok)
}

func TestGateRejectionReturns429(t *testing.T) {
	limiter := limits.NewConnectionRateLimiter(limits.RateLimiterConfig{
		IPBurst: 1, IPRate: 0.001, GlobalBurst: 100, GlobalRate: 100,
	}, zerolog.Nop())
	defer limiter.Stop()

	handler, _ := echoHandler()
	a := NewWebAdapter("", handler, &Gate{Limiter: limiter}, zerolog.Nop())

	mk := func() (*httptest.ResponseRecorder, *http.Request) {
		r := httptest.NewRequest(http.MethodPost, "/command", strings.NewReader(`{"text": "hi"}`))
		r.RemoteAddr = "10.0.0.9:1234"
		return httptest.NewRecorder(), r
	}

	w, r := mk()
	a.handleCommand(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	w, r = mk()
	a.handleCommand(w, r)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestStatsSnapshot(t *testing.T) {
	s := NewStats()
	s.TotalConnections.Add(3)
	s.MessagesReceived.Add(5)

	snap := s.Snapshot()
	require.EqualValues(t, 3, snap["total_connections"])
	require.EqualValues(t, 5, snap["messages_received"])
}
