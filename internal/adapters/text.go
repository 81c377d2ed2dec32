package adapters

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ai-servis/core/internal/logging"
	"github.com/ai-servis/core/internal/orchestrator"
	"github.com/ai-servis/core/internal/rpc"
)

const textPrompt = "> "

// TextAdapter serves a line-oriented TCP REPL plus a one-shot HTTP
// endpoint for scripted clients.
type TextAdapter struct {
	tcpAddr  string
	httpAddr string
	handler  CommandFunc
	gate     *Gate
	stats    *Stats
	conns    *connTable
	logger   zerolog.Logger

	ln  net.Listener
	srv *http.Server

	clientsMu sync.Mutex
	clients   map[string]net.Conn
}

// NewTextAdapter creates a text adapter. Either address may be empty
// to disable that listener.
func NewTextAdapter(tcpAddr, httpAddr string, handler CommandFunc, gate *Gate, logger zerolog.Logger) *TextAdapter {
	return &TextAdapter{
		tcpAddr:  tcpAddr,
		httpAddr: httpAddr,
		handler:  handler,
		gate:     gate,
		stats:    NewStats(),
		conns:    newConnTable(),
		logger:   logger.With().Str("adapter", "text").Logger(),
		clients:  make(map[string]net.Conn),
	}
}

func (a *TextAdapter) Name() string { return "text" }

// Start begins accepting TCP and HTTP clients.
func (a *TextAdapter) Start(ctx context.Context) error {
	if a.tcpAddr != "" {
		ln, err := net.Listen("tcp", a.tcpAddr)
		if err != nil {
			return fmt.Errorf("text adapter listen: %w", err)
		}
		a.ln = ln
		go a.acceptLoop(ctx)
		a.logger.Info().Str("addr", a.tcpAddr).Msg("text REPL listening")
	}

	if a.httpAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /command", a.handleCommand)
		mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "adapter": a.Name()})
		})
		a.srv = &http.Server{
			Addr:              a.httpAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			defer logging.RecoverPanic(a.logger, "textHTTP", nil)
			if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.LogError(a.logger, err, "text HTTP server failed", nil)
			}
		}()
		a.logger.Info().Str("addr", a.httpAddr).Msg("text HTTP listening")
	}
	return nil
}

// Stop closes the listeners and drains the HTTP server.
func (a *TextAdapter) Stop(ctx context.Context) error {
	if a.ln != nil {
		_ = a.ln.Close()
	}
	if a.srv != nil {
		return a.srv.Shutdown(ctx)
	}
	return nil
}

// Stats reports adapter counters.
func (a *TextAdapter) Stats() map[string]any { return a.stats.Snapshot() }

// Connections lists live REPL sessions.
func (a *TextAdapter) Connections() []*Connection { return a.conns.list() }

func (a *TextAdapter) acceptLoop(ctx context.Context) {
	defer logging.RecoverPanic(a.logger, "textAccept", nil)

	for {
		conn, err := a.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			a.stats.Errors.Add(1)
			continue
		}

		if ok, reason := a.gate.Admit(remoteIP(conn)); !ok {
			a.logger.Warn().Str("ip", remoteIP(conn)).Str("reason", reason).Msg("connection rejected")
			_, _ = fmt.Fprintf(conn, "connection rejected: %s\n", reason)
			_ = conn.Close()
			continue
		}

		go a.serveREPL(ctx, conn)
	}
}

func (a *TextAdapter) serveREPL(ctx context.Context, conn net.Conn) {
	defer logging.RecoverPanic(a.logger, "textREPL", nil)
	defer conn.Close()

	a.gate.opened()
	defer a.gate.closed()

	c := &Connection{
		ID:           uuid.NewString(),
		RemoteAddr:   conn.RemoteAddr().String(),
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
	}
	a.conns.add(c)
	defer a.conns.remove(c.ID)

	a.clientsMu.Lock()
	a.clients[c.ID] = conn
	a.clientsMu.Unlock()
	defer func() {
		a.clientsMu.Lock()
		delete(a.clients, c.ID)
		a.clientsMu.Unlock()
	}()

	a.stats.TotalConnections.Add(1)
	a.stats.ActiveConnections.Add(1)
	defer a.stats.ActiveConnections.Add(-1)

	_, _ = fmt.Fprint(conn, "AI-SERVIS text interface. Type a command, or 'exit' to leave.\n"+textPrompt)

	var sessionID string
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		a.conns.touch(c.ID)
		a.stats.Touch()

		switch {
		case line == "":
			_, _ = fmt.Fprint(conn, textPrompt)
			continue
		case line == "exit" || line == "quit":
			_, _ = fmt.Fprintln(conn, "bye")
			return
		}

		a.stats.MessagesReceived.Add(1)
		result := a.handler(ctx, orchestrator.ProcessRequest{
			Text:          line,
			SessionID:     sessionID,
			InterfaceType: a.Name(),
		})
		if sid, ok := result["session_id"].(string); ok && sid != "" {
			sessionID = sid
			c.SessionID = sid
		}

		_, _ = fmt.Fprintf(conn, "%s\n%s", replyLine(result), textPrompt)
		a.stats.MessagesSent.Add(1)
	}
}

// SendMessage prints a message on one REPL connection.
func (a *TextAdapter) SendMessage(ctx context.Context, connID string, msg map[string]any) error {
	a.clientsMu.Lock()
	conn, ok := a.clients[connID]
	a.clientsMu.Unlock()
	if !ok {
		return rpc.Errorf(rpc.CodeNotFound, "connection %s not found", connID)
	}
	if _, err := fmt.Fprintf(conn, "\n%s\n%s", replyLine(msg), textPrompt); err != nil {
		a.stats.Errors.Add(1)
		return err
	}
	a.stats.MessagesSent.Add(1)
	return nil
}

// BroadcastMessage prints a message on every REPL connection.
func (a *TextAdapter) BroadcastMessage(ctx context.Context, msg map[string]any) int {
	a.clientsMu.Lock()
	ids := make([]string, 0, len(a.clients))
	for id := range a.clients {
		ids = append(ids, id)
	}
	a.clientsMu.Unlock()

	sent := 0
	for _, id := range ids {
		if err := a.SendMessage(ctx, id, msg); err == nil {
			sent++
		}
	}
	return sent
}

// replyLine picks the human-readable line from a command result.
func replyLine(result map[string]any) string {
	if msg, ok := result["response"].(string); ok && msg != "" {
		return msg
	}
	if msg, ok := result["error"].(string); ok && msg != "" {
		return "error: " + msg
	}
	return "done"
}

func (a *TextAdapter) handleCommand(w http.ResponseWriter, r *http.Request) {
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
