// Package orchestrator coordinates command processing across the
// platform: session context, authentication, intent routing, and the
// orchestrator tool surface.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ai-servis/core/internal/logging"
	"github.com/ai-servis/core/internal/rpc"
)

// Session limits.
const (
	SessionTTL        = 30 * time.Minute
	MaxHistoryEntries = 50

	sessionCleanupInterval = 5 * time.Minute
)

// Session is per-conversation state used for follow-up resolution and
// personalization.
type Session struct {
	ID              string            `json:"session_id"`
	UserID          string            `json:"user_id"`
	InterfaceType   string            `json:"interface_type"`
	CreatedAt       time.Time         `json:"created_at"`
	LastAccessed    time.Time         `json:"last_accessed"`
	CommandHistory  []string          `json:"command_history,omitempty"`
	ResponseHistory []string          `json:"response_history,omitempty"`
	LastIntent      string            `json:"last_intent,omitempty"`
	LastParameters  map[string]any    `json:"last_parameters,omitempty"`
	LastUsedService string            `json:"last_used_service,omitempty"`
	Preferences     map[string]string `json:"preferences,omitempty"`
}

// SessionManager tracks sessions with a 30-minute idle TTL. Sessions
// optionally persist to a JSON file across restarts.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	path     string
	logger   zerolog.Logger
	now      func() time.Time
}

// NewSessionManager creates a manager. When dataDir is non-empty,
// sessions load from and persist to dataDir/sessions.json.
func NewSessionManager(dataDir string, logger zerolog.Logger) *SessionManager {
	m := &SessionManager{
		sessions: make(map[string]*Session),
		logger:   logger.With().Str("component", "sessions").Logger(),
		now:      time.Now,
	}
	if dataDir != "" {
		m.path = filepath.Join(dataDir, "sessions.json")
		m.load()
	}
	return m
}

func (m *SessionManager) load() {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn().Err(err).Msg("could not load sessions")
		}
		return
	}
	var stored map[string]*Session
	if err := json.Unmarshal(data, &stored); err != nil {
		m.logger.Warn().Err(err).Msg("could not parse sessions file")
		return
	}
	m.sessions = stored
	m.logger.Info().Int("sessions", len(stored)).Msg("sessions loaded")
}

// saveLocked persists only active sessions.
func (m *SessionManager) saveLocked() {
	if m.path == "" {
		return
	}
	now := m.now()
	active := make(map[string]*Session)
	for id, s := range m.sessions {
		if now.Sub(s.LastAccessed) < SessionTTL {
			active[id] = s
		}
	}
	data, err := json.MarshalIndent(active, "", "  ")
	if err != nil {
		m.logger.Error().Err(err).Msg("marshal sessions")
		return
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		m.logger.Error().Err(err).Msg("create session dir")
		return
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		m.logger.Error().Err(err).Msg("write sessions")
	}
}

// Create starts a new session and returns its id.
func (m *SessionManager) Create(userID, interfaceType string) *Session {
	now := m.now()
	s := &Session{
		ID:             fmt.Sprintf("sess_%s", strings.ReplaceAll(uuid.NewString(), "-", "")[:16]),
		UserID:         userID,
		InterfaceType:  interfaceType,
		CreatedAt:      now,
		LastAccessed:   now,
		LastParameters: map[string]any{},
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.saveLocked()
	m.mu.Unlock()

	m.logger.Info().Str("session_id", s.ID).Str("user_id", userID).Msg("session created")
	return s
}

// Get returns an active session, refreshing its access time. Expired
// or unknown sessions fail with not_found.
func (m *SessionManager) Get(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok || m.now().Sub(s.LastAccessed) >= SessionTTL {
		return nil, rpc.Errorf(rpc.CodeNotFound, "session %s not found or expired", sessionID)
	}
	s.LastAccessed = m.now()
	return s, nil
}

// RecordOutcome updates the session with the result of a routed
// command and appends to the bounded history.
func (m *SessionManager) RecordOutcome(sessionID, command, response, intentName string, params map[string]any, service string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return
	}

	s.CommandHistory = append(s.CommandHistory, command)
	s.ResponseHistory = append(s.ResponseHistory, response)
	if len(s.CommandHistory) > MaxHistoryEntries {
		s.CommandHistory = s.CommandHistory[len(s.CommandHistory)-MaxHistoryEntries:]
		s.ResponseHistory = s.ResponseHistory[len(s.ResponseHistory)-MaxHistoryEntries:]
	}

	if intentName != "" {
		s.LastIntent = intentName
	}
	if params != nil {
		s.LastParameters = params
	}
	if service != "" {
		s.LastUsedService = service
	}
	s.LastAccessed = m.now()
	m.saveLocked()
}

// CleanupExpired drops sessions idle past the TTL.
func (m *SessionManager) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, s := range m.sessions {
		if now.Sub(s.LastAccessed) >= SessionTTL {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info().Int("removed", removed).Msg("expired sessions cleaned up")
		m.saveLocked()
	}
	return removed
}

// Count returns the number of tracked sessions.
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// RunCleanup sweeps expired sessions until ctx is canceled.
func (m *SessionManager) RunCleanup(ctx context.Context) {
	defer logging.RecoverPanic(m.logger, "sessionCleanup", nil)

	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanupExpired()
		}
	}
}
