package limits

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/ai-servis/core/internal/logging"
)

// Resource guard defaults.
const (
	DefaultMaxConnections     = 10000
	DefaultMaxGoroutines      = 5000
	DefaultCPURejectThreshold = 85.0
	DefaultMemoryLimitBytes   = int64(512 << 20)

	resourceUpdateInterval = 15 * time.Second
)

// GoroutineLimiter bounds concurrent goroutines with a semaphore.
type GoroutineLimiter struct {
	sem chan struct{}
	max int
}

// NewGoroutineLimiter allows up to max concurrent holders.
func NewGoroutineLimiter(max int) *GoroutineLimiter {
	return &GoroutineLimiter{sem: make(chan struct{}, max), max: max}
}

// Acquire takes a slot without blocking. Callers that get true must
// Release.
func (gl *GoroutineLimiter) Acquire() bool {
	select {
	case gl.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns a slot.
func (gl *GoroutineLimiter) Release() { <-gl.sem }

// Current returns the held slot count.
func (gl *GoroutineLimiter) Current() int { return len(gl.sem) }

// Max returns the slot capacity.
func (gl *GoroutineLimiter) Max() int { return gl.max }

// GuardConfig holds the static limits the guard enforces. Zero values
// take the defaults.
type GuardConfig struct {
	MaxConnections     int
	MaxGoroutines      int
	CPURejectThreshold float64
	MemoryLimitBytes   int64
}

// ResourceGuard enforces static admission limits. It never
// auto-adjusts: limits come from configuration and the guard only
// measures against them.
type ResourceGuard struct {
	cfg    GuardConfig
	logger zerolog.Logger

	goroutines *GoroutineLimiter

	currentCPU    atomic.Value // float64
	currentMemory atomic.Int64
	connections   atomic.Int64
}

// NewResourceGuard creates a guard with the given limits.
func NewResourceGuard(cfg GuardConfig, logger zerolog.Logger) *ResourceGuard {
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.MaxGoroutines == 0 {
		cfg.MaxGoroutines = DefaultMaxGoroutines
	}
	if cfg.CPURejectThreshold == 0 {
		cfg.CPURejectThreshold = DefaultCPURejectThreshold
	}
	if cfg.MemoryLimitBytes == 0 {
		cfg.MemoryLimitBytes = DefaultMemoryLimitBytes
	}

	g := &ResourceGuard{
		cfg:        cfg,
		logger:     logger.With().Str("component", "resource-guard").Logger(),
		goroutines: NewGoroutineLimiter(cfg.MaxGoroutines),
	}
	g.currentCPU.Store(0.0)
	return g
}

// ConnectionOpened accounts a new connection.
func (g *ResourceGuard) ConnectionOpened() { g.connections.Add(1) }

// ConnectionClosed accounts a closed connection.
func (g *ResourceGuard) ConnectionClosed() { g.connections.Add(-1) }

// ShouldAccept reports whether a new connection may be admitted and,
// when rejected, why.
func (g *ResourceGuard) ShouldAccept() (bool, string) {
	conns := g.connections.Load()
	if conns >= int64(g.cfg.MaxConnections) {
		return false, fmt.Sprintf("at max connections (%d)", g.cfg.MaxConnections)
	}

	cpuPct := g.currentCPU.Load().(float64)
	if cpuPct > g.cfg.CPURejectThreshold {
		return false, fmt.Sprintf("CPU %.1f%% > %.1f%%", cpuPct, g.cfg.CPURejectThreshold)
	}

	if g.currentMemory.Load() > g.cfg.MemoryLimitBytes {
		return false, "memory limit exceeded"
	}

	if runtime.NumGoroutine() > g.cfg.MaxGoroutines {
		return false, fmt.Sprintf("goroutine limit exceeded (%d)", g.cfg.MaxGoroutines)
	}
	return true, "OK"
}

// AcquireGoroutine reserves a worker slot; pair with ReleaseGoroutine.
func (g *ResourceGuard) AcquireGoroutine() bool { return g.goroutines.Acquire() }

// ReleaseGoroutine returns a worker slot.
func (g *ResourceGuard) ReleaseGoroutine() { g.goroutines.Release() }

// UpdateResources refreshes the CPU and memory readings.
func (g *ResourceGuard) UpdateResources() {
	percents, err := cpu.Percent(0, false)
	if err != nil {
		logging.LogError(g.logger, err, "cpu usage read failed", nil)
	} else if len(percents) > 0 {
		g.currentCPU.Store(percents[0])
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	g.currentMemory.Store(int64(mem.Alloc))
}

// StartMonitoring refreshes resource readings periodically until ctx
// is canceled.
func (g *ResourceGuard) StartMonitoring(ctx context.Context) {
	go func() {
		defer logging.RecoverPanic(g.logger, "resourceMonitor", nil)

		ticker := time.NewTicker(resourceUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.UpdateResources()
			}
		}
	}()
}

// Stats reports the guard's readings and limits.
func (g *ResourceGuard) Stats() map[string]any {
	return map[string]any{
		"max_connections":      g.cfg.MaxConnections,
		"current_connections":  g.connections.Load(),
		"cpu_percent":          g.currentCPU.Load().(float64),
		"cpu_reject_threshold": g.cfg.CPURejectThreshold,
		"memory_bytes":         g.currentMemory.Load(),
		"memory_limit_bytes":   g.cfg.MemoryLimitBytes,
		"goroutines_current":   runtime.NumGoroutine(),
		"goroutines_limit":     g.cfg.MaxGoroutines,
	}
}
