// Package limits gates adapter connections: per-IP and global rate
// limiting plus a resource guard that rejects work under CPU, memory,
// or goroutine pressure.
package limits

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Rate limiter defaults.
const (
	DefaultIPBurst     = 10
	DefaultIPRate      = 1.0
	DefaultIPTTL       = 5 * time.Minute
	DefaultGlobalBurst = 300
	DefaultGlobalRate  = 50.0

	rateCleanupInterval = time.Minute
)

// ConnectionRateLimiter applies token-bucket limits per client IP and
// globally. The global check runs first so distributed floods are cut
// off without a map lookup.
type ConnectionRateLimiter struct {
	mu         sync.Mutex
	ipLimiters map[string]*ipEntry
	ipBurst    int
	ipRate     float64
	ipTTL      time.Duration

	global *rate.Limiter

	logger zerolog.Logger
	stop   chan struct{}
	once   sync.Once
}

type ipEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiterConfig configures a ConnectionRateLimiter. Zero values
// take the defaults.
type RateLimiterConfig struct {
	IPBurst     int
	IPRate      float64
	IPTTL       time.Duration
	GlobalBurst int
	GlobalRate  float64
}

// NewConnectionRateLimiter starts a limiter with a background sweep of
// idle IP entries. Call Stop on shutdown.
func NewConnectionRateLimiter(cfg RateLimiterConfig, logger zerolog.Logger) *ConnectionRateLimiter {
	if cfg.IPBurst == 0 {
		cfg.IPBurst = DefaultIPBurst
	}
	if cfg.IPRate == 0 {
		cfg.IPRate = DefaultIPRate
	}
	if cfg.IPTTL == 0 {
		cfg.IPTTL = DefaultIPTTL
	}
	if cfg.GlobalBurst == 0 {
		cfg.GlobalBurst = DefaultGlobalBurst
	}
	if cfg.GlobalRate == 0 {
		cfg.GlobalRate = DefaultGlobalRate
	}

	l := &ConnectionRateLimiter{
		ipLimiters: make(map[string]*ipEntry),
		ipBurst:    cfg.IPBurst,
		ipRate:     cfg.IPRate,
		ipTTL:      cfg.IPTTL,
		global:     rate.NewLimiter(rate.Limit(cfg.GlobalRate), cfg.GlobalBurst),
		logger:     logger.With().Str("component", "rate-limiter").Logger(),
		stop:       make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether a connection from ip may proceed.
func (l *ConnectionRateLimiter) Allow(ip string) bool {
	if !l.global.Allow() {
		l.logger.Debug().Str("ip", ip).Msg("connection rejected, global rate limit")
		return false
	}
	if !l.ipLimiter(ip).Allow() {
		l.logger.Debug().Str("ip", ip).Msg("connection rejected, per-ip rate limit")
		return false
	}
	return true
}

func (l *ConnectionRateLimiter) ipLimiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.ipLimiters[ip]
	if !ok {
		entry = &ipEntry{limiter: rate.NewLimiter(rate.Limit(l.ipRate), l.ipBurst)}
		l.ipLimiters[ip] = entry
	}
	entry.lastAccess = time.Now()
	return entry.limiter
}

func (l *ConnectionRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rateCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stop:
			return
		}
	}
}

func (l *ConnectionRateLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for ip, entry := range l.ipLimiters {
		if now.Sub(entry.lastAccess) > l.ipTTL {
			delete(l.ipLimiters, ip)
		}
	}
}

// Stop ends the cleanup goroutine.
func (l *ConnectionRateLimiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// Stats reports limiter configuration and tracked IP count.
func (l *ConnectionRateLimiter) Stats() map[string]any {
	l.mu.Lock()
	tracked := len(l.ipLimiters)
	l.mu.Unlock()

	return map[string]any{
		"tracked_ips": tracked,
		"ip_burst":    l.ipBurst,
		"ip_rate":     l.ipRate,
		"ip_ttl":      l.ipTTL.String(),
	}
}
