package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ai-servis/core/internal/logging"
	"github.com/ai-servis/core/internal/rpc"
	"github.com/ai-servis/core/internal/rpc/transport"
)

// Device is a registered mobile client.
type Device struct {
	DeviceID     string    `json:"device_id"`
	UserID       string    `json:"user_id,omitempty"`
	Platform     string    `json:"platform,omitempty"`
	PushToken    string    `json:"push_token,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeen     time.Time `json:"last_seen"`
}

// MobileAdapter serves phone clients: device registration, one-shot
// commands, push token updates, and a WebSocket for streaming. Every
// route except registration and health requires an X-Device-ID header
// naming a registered device.
type MobileAdapter struct {
	addr    string
	handler CommandFunc
	gate    *Gate
	stats   *Stats
	conns   *connTable
	logger  zerolog.Logger

	srv *http.Server

	devicesMu sync.Mutex
	devices   map[string]*Device

	socketsMu sync.Mutex
	sockets   map[string]*mobileSocket
}

type mobileSocket struct {
	ws       *transport.WS
	deviceID string
}

// NewMobileAdapter creates a mobile adapter listening on addr.
func NewMobileAdapter(addr string, handler CommandFunc, gate *Gate, logger zerolog.Logger) *MobileAdapter {
	return &MobileAdapter{
		addr:    addr,
		handler: handler,
		gate:    gate,
		stats:   NewStats(),
		conns:   newConnTable(),
		logger:  logger.With().Str("adapter", "mobile").Logger(),
		devices: make(map[string]*Device),
		sockets: make(map[string]*mobileSocket),
	}
}

func (a *MobileAdapter) Name() string { return "mobile" }

// Start begins serving mobile clients.
func (a *MobileAdapter) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/register", a.handleRegister)
	mux.HandleFunc("POST /api/unregister", a.handleUnregister)
	mux.HandleFunc("POST /api/command", a.handleCommand)
	mux.HandleFunc("POST /api/push-token", a.handlePushToken)
	mux.HandleFunc("GET /api/devices", a.handleDevices)
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		a.handleWS(ctx, w, r)
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "adapter": a.Name()})
	})

	a.srv = &http.Server{
		Addr:              a.addr,
		Handler:           a.requireDevice(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		defer logging.RecoverPanic(a.logger, "mobileHTTP", nil)
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.LogError(a.logger, err, "mobile server failed", nil)
		}
	}()
	a.logger.Info().Str("addr", a.addr).Msg("mobile adapter listening")
	return nil
}

// Stop drains the HTTP server and closes all sockets.
func (a *MobileAdapter) Stop(ctx context.Context) error {
	a.socketsMu.Lock()
	for _, entry := range a.sockets {
		_ = entry.ws.Close()
	}
	a.socketsMu.Unlock()

	if a.srv != nil {
		return a.srv.Shutdown(ctx)
	}
	return nil
}

// Stats reports adapter counters plus the registered device count.
func (a *MobileAdapter) Stats() map[string]any {
	a.devicesMu.Lock()
	registered := len(a.devices)
	a.devicesMu.Unlock()

	stats := a.stats.Snapshot()
	stats["registered_devices"] = registered
	return stats
}

// Connections lists live WebSocket clients.
func (a *MobileAdapter) Connections() []*Connection { return a.conns.list() }

// requireDevice rejects requests without a registered X-Device-ID.
// Registration and health stay open so new devices can join.
func (a *MobileAdapter) requireDevice(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/register" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		deviceID := r.Header.Get("X-Device-ID")
		if deviceID == "" {
			a.stats.Errors.Add(1)
			writeErrorJSON(w, http.StatusUnauthorized, "X-Device-ID header is required")
			return
		}
		if a.device(deviceID) == nil {
			a.stats.Errors.Add(1)
			writeErrorJSON(w, http.StatusUnauthorized, "unknown device")
			return
		}
		a.touchDevice(deviceID)
		next.ServeHTTP(w, r)
	})
}

func (a *MobileAdapter) device(id string) *Device {
	a.devicesMu.Lock()
	defer a.devicesMu.Unlock()
	return a.devices[id]
}

func (a *MobileAdapter) touchDevice(id string) {
	a.devicesMu.Lock()
	if d, ok := a.devices[id]; ok {
		d.LastSeen = time.Now()
	}
	a.devicesMu.Unlock()
}

func (a *MobileAdapter) handleRegister(w http.ResponseWriter, r *http.Request) {
	if ok, reason := a.gate.Admit(clientIP(r)); !ok {
		a.stats.Errors.Add(1)
		writeErrorJSON(w, http.StatusTooManyRequests, reason)
		return
	}

	var req struct {
		DeviceID  string `json:"device_id"`
		UserID    string `json:"user_id,omitempty"`
		Platform  string `json:"platform,omitempty"`
		PushToken string `json:"push_token,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.DeviceID) == "" {
		writeErrorJSON(w, http.StatusBadRequest, "device_id is required")
		return
	}

	now := time.Now()
	a.devicesMu.Lock()
	d, ok := a.devices[req.DeviceID]
	if !ok {
		d = &Device{DeviceID: req.DeviceID, RegisteredAt: now}
		a.devices[req.DeviceID] = d
	}
	if req.UserID != "" {
		d.UserID = req.UserID
	}
	if req.Platform != "" {
		d.Platform = req.Platform
	}
	if req.PushToken != "" {
		d.PushToken = req.PushToken
	}
	d.LastSeen = now
	a.devicesMu.Unlock()

	a.stats.Touch()
	a.logger.Info().Str("device_id", req.DeviceID).Str("platform", req.Platform).Msg("device registered")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "device": d})
}

func (a *MobileAdapter) handleUnregister(w http.ResponseWriter, r *http.Request) {
	deviceID := r.Header.Get("X-Device-ID")

	a.devicesMu.Lock()
	_, ok := a.devices[deviceID]
	delete(a.devices, deviceID)
	a.devicesMu.Unlock()

	if !ok {
		writeErrorJSON(w, http.StatusNotFound, "unknown device")
		return
	}
	a.logger.Info().Str("device_id", deviceID).Msg("device unregistered")
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *MobileAdapter) handleCommand(w http.ResponseWriter, r *http.Request) {
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
	if req.UserID == "" {
		if d := a.device(r.Header.Get("X-Device-ID")); d != nil {
			req.UserID = d.UserID
		}
	}

	a.stats.MessagesReceived.Add(1)
	a.stats.Touch()
	result := a.handler(r.Context(), req.toProcess(a.Name()))
	a.stats.MessagesSent.Add(1)
	writeJSON(w, http.StatusOK, result)
}

func (a *MobileAdapter) handlePushToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PushToken string `json:"push_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PushToken == "" {
		writeErrorJSON(w, http.StatusBadRequest, "push_token is required")
		return
	}

	deviceID := r.Header.Get("X-Device-ID")
	a.devicesMu.Lock()
	if d, ok := a.devices[deviceID]; ok {
		d.PushToken = req.PushToken
	}
	a.devicesMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *MobileAdapter) handleDevices(w http.ResponseWriter, r *http.Request) {
	a.devicesMu.Lock()
	out := make([]*Device, 0, len(a.devices))
	for _, d := range a.devices {
		copied := *d
		out = append(out, &copied)
	}
	a.devicesMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"devices": out, "count": len(out)})
}

func (a *MobileAdapter) handleWS(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if ok, reason := a.gate.Admit(clientIP(r)); !ok {
		a.stats.Errors.Add(1)
		writeErrorJSON(w, http.StatusTooManyRequests, reason)
		return
	}

	device := a.device(r.Header.Get("X-Device-ID"))
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		a.stats.Errors.Add(1)
		logging.LogError(a.logger, err, "websocket upgrade failed", nil)
		return
	}

	go a.serveSocket(ctx, transport.NewServerWS(conn), r.RemoteAddr, device)
}

func (a *MobileAdapter) serveSocket(ctx context.Context, sock *transport.WS, remoteAddr string, device *Device) {
	defer logging.RecoverPanic(a.logger, "mobileSocket", nil)
	defer sock.Close()

	a.gate.opened()
	defer a.gate.closed()

	c := &Connection{
		ID:           uuid.NewString(),
		RemoteAddr:   remoteAddr,
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
	}
	if device != nil {
		c.UserID = device.UserID
	}
	a.conns.add(c)
	defer a.conns.remove(c.ID)

	entry := &mobileSocket{ws: sock}
	if device != nil {
		entry.deviceID = device.DeviceID
	}
	a.socketsMu.Lock()
	a.sockets[c.ID] = entry
	a.socketsMu.Unlock()
	defer func() {
		a.socketsMu.Lock()
		delete(a.sockets, c.ID)
		a.socketsMu.Unlock()
	}()

	a.stats.TotalConnections.Add(1)
	a.stats.ActiveConnections.Add(1)
	defer a.stats.ActiveConnections.Add(-1)

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
		if req.UserID == "" && device != nil {
			req.UserID = device.UserID
		}

		result := a.handler(ctx, req.toProcess(a.Name()))
		if sid, ok := result["session_id"].(string); ok && sid != "" {
			sessionID = sid
			c.SessionID = sid
		}
		a.sendJSON(ctx, sock, result)
	}
}

func (a *MobileAdapter) sendJSON(ctx context.Context, sock *transport.WS, v any) {
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
func (a *MobileAdapter) SendMessage(ctx context.Context, connID string, msg map[string]any) error {
	a.socketsMu.Lock()
	entry, ok := a.sockets[connID]
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
	if err := entry.ws.Send(sendCtx, payload); err != nil {
		a.stats.Errors.Add(1)
		return err
	}
	a.stats.MessagesSent.Add(1)
	return nil
}

// BroadcastMessage pushes a message to every connected client.
func (a *MobileAdapter) BroadcastMessage(ctx context.Context, msg map[string]any) int {
	payload, err := json.Marshal(msg)
	if err != nil {
		a.stats.Errors.Add(1)
		return 0
	}

	a.socketsMu.Lock()
	targets := make([]*transport.WS, 0, len(a.sockets))
	for _, entry := range a.sockets {
		targets = append(targets, entry.ws)
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

// PushToDevice sends a message to the named device's live sockets.
// Devices without an open socket get nothing here; push notification
// delivery happens out of band via the stored token.
func (a *MobileAdapter) PushToDevice(ctx context.Context, deviceID string, msg map[string]any) int {
	payload, err := json.Marshal(msg)
	if err != nil {
		return 0
	}

	a.socketsMu.Lock()
	targets := make([]*transport.WS, 0)
	for _, entry := range a.sockets {
		if entry.deviceID == deviceID {
			targets = append(targets, entry.ws)
		}
	}
	a.socketsMu.Unlock()

	sent := 0
	for _, sock := range targets {
		sendCtx, cancel := context.WithTimeout(ctx, webSendTimeout)
		err := sock.Send(sendCtx, payload)
		cancel()
		if err == nil {
			sent++
			a.stats.MessagesSent.Add(1)
		}
	}
	return sent
}
