package config

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreGetSetReset(t *testing.T) {
	s, err := NewStore(map[string]any{
		"heartbeat_timeout_seconds": 30,
		"enable_mdns":               true,
	}, "")
	require.NoError(t, err)

	v, err := s.Get("heartbeat_timeout_seconds")
	require.NoError(t, err)
	require.Equal(t, 30, v)

	require.NoError(t, s.Set("heartbeat_timeout_seconds", 60))
	v, err = s.Get("heartbeat_timeout_seconds")
	require.NoError(t, err)
	require.Equal(t, 60, v)

	require.NoError(t, s.Reset("heartbeat_timeout_seconds"))
	v, err = s.Get("heartbeat_timeout_seconds")
	require.NoError(t, err)
	require.Equal(t, 30, v)
}

func TestStoreUnknownKey(t *testing.T) {
	s, err := NewStore(map[string]any{"known": 1}, "")
	require.NoError(t, err)

	_, err = s.Get("mystery")
	require.True(t, errors.Is(err, ErrUnknownKey))

	err = s.Set("mystery", 2)
	require.True(t, errors.Is(err, ErrUnknownKey))

	err = s.Reset("mystery")
	require.True(t, errors.Is(err, ErrUnknownKey))
}

func TestStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")

	s1, err := NewStore(map[string]any{"cleanup_interval_seconds": 60}, path)
	require.NoError(t, err)
	require.NoError(t, s1.Set("cleanup_interval_seconds", 120))

	s2, err := NewStore(map[string]any{"cleanup_interval_seconds": 60}, path)
	require.NoError(t, err)
	v, err := s2.Get("cleanup_interval_seconds")
	require.NoError(t, err)
	require.Equal(t, 120, v)
}

func TestStoreIgnoresUnknownPersistedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")

	s1, err := NewStore(map[string]any{"a": 1, "b": 2}, path)
	require.NoError(t, err)
	require.NoError(t, s1.Set("a", 9))

	// Schema shrank between restarts; stale keys must not resurface.
	s2, err := NewStore(map[string]any{"a": 1}, path)
	require.NoError(t, err)
	_, err = s2.Get("b")
	require.True(t, errors.Is(err, ErrUnknownKey))
}
