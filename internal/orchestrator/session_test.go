package orchestrator

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ai-servis/core/internal/rpc"
)

func TestSessionCreateAndGet(t *testing.T) {
	m := NewSessionManager("", zerolog.Nop())

	s := m.Create("user-1", "voice")
	require.True(t, strings.HasPrefix(s.ID, "sess_"))
	require.Len(t, s.ID, len("sess_")+16)
	require.Equal(t, "user-1", s.UserID)

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	require.Equal(t, s.ID, got.ID)

	_, err = m.Get("sess_missing")
	require.Equal(t, rpc.CodeNotFound, rpc.CodeOf(err))
}

func TestSessionExpiry(t *testing.T) {
	m := NewSessionManager("", zerolog.Nop())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	s := m.Create("user-1", "voice")

	// Still active just inside the TTL.
	now = now.Add(29 * time.Minute)
	_, err := m.Get(s.ID)
	require.NoError(t, err)

	// The access above refreshed the window; idle past the TTL expires.
	now = now.Add(31 * time.Minute)
	_, err = m.Get(s.ID)
	require.Equal(t, rpc.CodeNotFound, rpc.CodeOf(err))

	require.Equal(t, 1, m.CleanupExpired())
	require.Equal(t, 0, m.Count())
}

func TestSessionHistoryBounded(t *testing.T) {
	m := NewSessionManager("", zerolog.Nop())
	s := m.Create("user-1", "voice")

	for i := 0; i < MaxHistoryEntries+10; i++ {
		m.RecordOutcome(s.ID, fmt.Sprintf("command %d", i), "ok", "audio_control", nil, "")
	}

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	require.Len(t, got.CommandHistory, MaxHistoryEntries)
	require.Len(t, got.ResponseHistory, MaxHistoryEntries)
	require.Equal(t, "command 10", got.CommandHistory[0])
	require.Equal(t, fmt.Sprintf("command %d", MaxHistoryEntries+9),
		got.CommandHistory[len(got.CommandHistory)-1])
}

func TestSessionPersistenceAcrossRestarts(t *testing.T) {
	dir := t.TempDir()

	m := NewSessionManager(dir, zerolog.Nop())
	s := m.Create("user-1", "text")
	m.RecordOutcome(s.ID, "play music", "ok", "audio_control",
		map[string]any{"action": "play"}, "ai-audio-assistant")

	reloaded := NewSessionManager(dir, zerolog.Nop())
	got, err := reloaded.Get(s.ID)
	require.NoError(t, err)
	require.Equal(t, "user-1", got.UserID)
	require.Equal(t, "audio_control", got.LastIntent)
	require.Equal(t, "play", got.LastParameters["action"])
}
