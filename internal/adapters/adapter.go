// Package adapters exposes the orchestrator over user-facing
// interfaces: a TCP/HTTP text adapter, a web adapter with WebSocket
// streaming, and a mobile REST adapter.
package adapters

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ai-servis/core/internal/orchestrator"
)

// CommandFunc processes one user command. Implemented by the
// orchestrator's ProcessCommand.
type CommandFunc func(ctx context.Context, req orchestrator.ProcessRequest) map[string]any

// Adapter is one user-facing interface.
type Adapter interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SendMessage(ctx context.Context, connID string, msg map[string]any) error
	BroadcastMessage(ctx context.Context, msg map[string]any) int
	Stats() map[string]any
}

var (
	_ Adapter = (*TextAdapter)(nil)
	_ Adapter = (*WebAdapter)(nil)
	_ Adapter = (*MobileAdapter)(nil)
)

// Stats tracks adapter activity with atomic counters.
type Stats struct {
	ActiveConnections atomic.Int64
	TotalConnections  atomic.Int64
	MessagesReceived  atomic.Int64
	MessagesSent      atomic.Int64
	Errors            atomic.Int64

	startedAt    time.Time
	lastActivity atomic.Int64
}

// NewStats creates a stats block with the uptime clock started.
func NewStats() *Stats {
	s := &Stats{startedAt: time.Now()}
	s.Touch()
	return s
}

// Touch records activity now.
func (s *Stats) Touch() { s.lastActivity.Store(time.Now().UnixNano()) }

// Snapshot returns the counters as a map.
func (s *Stats) Snapshot() map[string]any {
	return map[string]any{
		"active_connections": s.ActiveConnections.Load(),
		"total_connections":  s.TotalConnections.Load(),
		"messages_received":  s.MessagesReceived.Load(),
		"messages_sent":      s.MessagesSent.Load(),
		"errors":             s.Errors.Load(),
		"uptime_seconds":     time.Since(s.startedAt).Seconds(),
		"last_activity":      time.Unix(0, s.lastActivity.Load()).UTC(),
	}
}

// Connection is one tracked client connection.
type Connection struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id,omitempty"`
	SessionID    string    `json:"session_id,omitempty"`
	RemoteAddr   string    `json:"remote_addr,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// connTable tracks live connections by id.
type connTable struct {
	mu    sync.Mutex
	conns map[string]*Connection
}

func newConnTable() *connTable {
	return &connTable{conns: make(map[string]*Connection)}
}

func (t *connTable) add(c *Connection) {
	t.mu.Lock()
	t.conns[c.ID] = c
	t.mu.Unlock()
}

func (t *connTable) remove(id string) {
	t.mu.Lock()
	delete(t.conns, id)
	t.mu.Unlock()
}

func (t *connTable) touch(id string) {
	t.mu.Lock()
	if c, ok := t.conns[id]; ok {
		c.LastActivity = time.Now()
	}
	t.mu.Unlock()
}

func (t *connTable) list() []*Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Connection, 0, len(t.conns))
	for _, c := range t.conns {
		copied := *c
		out = append(out, &copied)
	}
	return out
}
