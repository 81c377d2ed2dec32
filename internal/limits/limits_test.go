package limits

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterPerIPBurst(t *testing.T) {
	l := NewConnectionRateLimiter(RateLimiterConfig{
		IPBurst:     2,
		IPRate:      0.001,
		GlobalBurst: 100,
		GlobalRate:  100,
	}, zerolog.Nop())
	defer l.Stop()

	require.True(t, l.Allow("10.0.0.1"))
	require.True(t, l.Allow("10.0.0.1"))
	require.False(t, l.Allow("10.0.0.1"))

	// A different IP has its own bucket.
	require.True(t, l.Allow("10.0.0.2"))
}

func TestRateLimiterGlobalCap(t *testing.T) {
	l := NewConnectionRateLimiter(RateLimiterConfig{
		IPBurst:     100,
		IPRate:      100,
		GlobalBurst: 3,
		GlobalRate:  0.001,
	}, zerolog.Nop())
	defer l.Stop()

	for i := 0; i < 3; i++ {
		require.True(t, l.Allow("10.0.0.1"))
	}
	require.False(t, l.Allow("10.0.0.2"))
}

func TestGoroutineLimiter(t *testing.T) {
	gl := NewGoroutineLimiter(2)

	require.True(t, gl.Acquire())
	require.True(t, gl.Acquire())
	require.False(t, gl.Acquire())
	require.Equal(t, 2, gl.Current())

	gl.Release()
	require.True(t, gl.Acquire())
}

func TestResourceGuardConnectionLimit(t *testing.T) {
	g := NewResourceGuard(GuardConfig{MaxConnections: 2}, zerolog.Nop())

	ok, _ := g.ShouldAccept()
	require.True(t, ok)

	g.ConnectionOpened()
	g.ConnectionOpened()

	ok, reason := g.ShouldAccept()
	require.False(t, ok)
	require.Contains(t, reason, "max connections")

	g.ConnectionClosed()
	ok, _ = g.ShouldAccept()
	require.True(t, ok)
}

func TestResourceGuardCPUBrake(t *testing.T) {
	g := NewResourceGuard(GuardConfig{CPURejectThreshold: 50}, zerolog.Nop())
	g.currentCPU.Store(90.0)

	ok, reason := g.ShouldAccept()
	require.False(t, ok)
	require.Contains(t, reason, "CPU")
}

func TestResourceGuardStats(t *testing.T) {
	g := NewResourceGuard(GuardConfig{}, zerolog.Nop())
	g.UpdateResources()

	stats := g.Stats()
	require.Equal(t, DefaultMaxConnections, stats["max_connections"])
	require.Greater(t, stats["memory_bytes"].(int64), int64(0))
}
