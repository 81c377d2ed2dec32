package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ai-servis/core/internal/logging"
	"github.com/ai-servis/core/internal/rpc"
	"github.com/ai-servis/core/internal/rpc/transport"
)

const webSendTimeout = 5 * time.Second

// WebAdapter serves browser clients: one-shot HTTP commands and a
// WebSocket endpoint for streaming conversations and server pushes.
type WebAdapter struct {
	addr    string
	handler CommandFunc
	gate    *Gate
	stats   *Stats
	conns   *connTable
	logger  zerolog.Logger

	srv *http.Server

	socketsMu sync.Mutex
	sockets   map[string]*transport.WS
}

// NewWebAdapter creates a web adapter listening on addr.
func NewWebAdapter(addr string, handler CommandFunc, gate *Gate, logger zerolog.Logger) *WebAdapter {
	return &WebAdapter{
		addr:    addr,
		handler: handler,
		gate:    gate,
		stats:   NewStats(),
		conns:   newConnTable(),
		logger:  logger.With().Str("adapter", "web").Logger(),
		sockets: make(map[string]*transport.WS),
	}
}

func (a *WebAdapter) Name() string { return "web" }

// Start begins serving HTTP and WebSocket clients.
func (a *WebAdapter) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /command", a.handleCommand)
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		a.handleWS(ctx, w, r)
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "adapter": a.Name()})
	})
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, a.Stats())
	})

	a.srv = &http.Server{
		Addr:              a.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		defer logging.RecoverPanic(a.logger, "webHTTP", nil)
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.LogError(a.logger, err, "web server failed", nil)
		}
	}()
	a.logger.Info().Str("addr", a.addr).Msg("web adapter listening")
	return nil
}

// Stop drains the HTTP server and closes all sockets.
func (a *WebAdapter) Stop(ctx context.Context) error {
	a.socketsMu.Lock()
	for _, sock := range a.sockets {
		_ = sock.Close()
	}
	a.socketsMu.Unlock()

	if a.srv != nil {
		return a.srv.Shutdown(ctx)
	}
	return nil
}

// Stats reports adapter counters.
func (a *WebAdapter) Stats() map[string]any { return a.stats.Snapshot() }

// Connections lists live WebSocket clients.
func (a *WebAdapter) Connections() []*Connection { return a.conns.list() }

func (a *WebAdapter) handleCommand(w http.ResponseWriter, r *http.Request) {
	if ok, reason := a.gate.Admit(clientIP(r)); !ok {
		a.stats.Errors.Add(1)
		writeErrorJSON(w, http.StatusTooManyRequests, reason)
		return
	}

	req, ok := decodeCommand(w, r)
	if !ok {
		a.stats.Errors.Add(1)
		return
	}

	a.stats.MessagesReceived.Add(1)
	a.stats.Touch()
	result := a.handler(r.Context(), req.toProcess(a.Name()))
	a.stats.MessagesSent.Add(1)
	writeJSON(w, http.StatusOK, result)
}

func (a *WebAdapter) handleWS(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if ok, reason := a.gate.Admit(clientIP(r)); !ok {
		a.stats.Errors.Add(1)
		writeErrorJSON(w, http.StatusTooManyRequests, reason)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		a.stats.Errors.Add(1)
		logging.LogError(a.logger, err, "websocket upgrade failed", nil)
		return
	}

	go a.serveSocket(ctx, transport.NewServerWS(conn), r.RemoteAddr)
}

func (a *WebAdapter) serveSocket(ctx context.Context, sock *transport.WS, remoteAddr string) {
	defer logging.RecoverPanic(a.logger, "webSocket", nil)
	defer sock.Close()

	a.gate.opened()
	defer a.gate.closed()

	c := &Connection{
		ID:           uuid.NewString(),
		RemoteAddr:   remoteAddr,
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
	}
	a.conns.add(c)
	defer a.conns.remove(c.ID)

	a.socketsMu.Lock()
	a.sockets[c.ID] = sock
	a.socketsMu.Unlock()
	defer func() {
		a.socketsMu.Lock()
		delete(a.sockets, c.ID)
		a.socketsMu.Unlock()
	}()

	a.stats.TotalConnections.Add(1)
	a.stats.ActiveConnections.Add(1)
	defer a.stats.ActiveConnections.Add(-1)

	a.logger.Debug().Str("conn_id", c.ID).Str("remote", remoteAddr).Msg("websocket connected")

	var sessionID string
	for {
		payload, err := sock.Receive(ctx)
		if err != nil {
			if !errors.Is(err, transport.ErrClosed) && ctx.Err() == nil {
				a.stats.Errors.Add(1)
			}
			return
		}

		a.conns.touch(c.ID)
		a.stats.Touch()
		a.stats.MessagesReceived.Add(1)

		var req commandRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			a.sendJSON(ctx, sock, map[string]any{"success": false, "error": "invalid JSON message"})
			continue
		}
		if req.SessionID == "" {
			req.SessionID = sessionID
		}

		result := a.handler(ctx, req.toProcess(a.Name()))
		if sid, ok := result["session_id"].(string); ok && sid != "" {
			sessionID = sid
			c.SessionID = sid
		}
		a.sendJSON(ctx, sock, result)
	}
}

func (a *WebAdapter) sendJSON(ctx context.Context, sock *transport.WS, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		a.stats.Errors.Add(1)
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, webSendTimeout)
	defer cancel()
	if err := sock.Send(sendCtx, payload); err != nil {
		a.stats.Errors.Add(1)
		return
	}
	a.stats.MessagesSent.Add(1)
}

// SendMessage pushes a message to one WebSocket client.
func (a *WebAdapter) SendMessage(ctx context.Context, connID string, msg map[string]any) error {
	a.socketsMu.Lock()
	sock, ok := a.sockets[connID]
	a.socketsMu.Unlock()
	if !ok {
		return rpc.Errorf(rpc.CodeNotFound, "connection %s not found", connID)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	sendCtx, cancel := context.WithTimeout(ctx, webSendTimeout)
	defer cancel()
	if err := sock.Send(sendCtx, payload); err != nil {
		a.stats.Errors.Add(1)
		return err
	}
	a.stats.MessagesSent.Add(1)
	return nil
}

// BroadcastMessage pushes a message to every connected WebSocket
// client. Failed sends are counted and skipped; a slow client's
// socket is torn down by its own read loop.
func (a *WebAdapter) BroadcastMessage(ctx context.Context, msg map[string]any) int {
	payload, err := json.Marshal(msg)
	if err != nil {
		a.stats.Errors.Add(1)
		return 0
	}

	a.socketsMu.Lock()
	targets := make([]*transport.WS, 0, len(a.sockets))
	for _, sock := range a.sockets {
		targets = append(targets, sock)
	}
	a.socketsMu.Unlock()

	sent := 0
	for _, sock := range targets {
		sendCtx, cancel := context.WithTimeout(ctx, webSendTimeout)
		err := sock.Send(sendCtx, payload)
		cancel()
		if err != nil {
			a.stats.Errors.Add(1)
			continue
		}
		sent++
		a.stats.MessagesSent.Add(1)
	}
	return sent
}
