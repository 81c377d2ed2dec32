// Package registry implements the service registry: registration,
// heartbeat liveness, capability discovery, and stale-entry cleanup,
// with optional mDNS and MQTT announcement.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ai-servis/core/internal/logging"
	"github.com/ai-servis/core/internal/rpc"
)

// Service status values.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusUnknown   = "unknown"
)

// Defaults for the runtime configuration store.
const (
	DefaultHeartbeatTimeout = 30 * time.Second
	DefaultCleanupInterval  = 60 * time.Second
)

// Entry is one registered service.
type Entry struct {
	Name           string         `json:"name"`
	Host           string         `json:"host"`
	Port           int            `json:"port"`
	Capabilities   []string       `json:"capabilities"`
	HealthEndpoint string         `json:"health_endpoint,omitempty"`
	LastHeartbeat  time.Time      `json:"last_heartbeat"`
	RegisteredAt   time.Time      `json:"registered_at"`
	Status         string         `json:"status"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func (e *Entry) clone() *Entry {
	c := *e
	c.Capabilities = append([]string(nil), e.Capabilities...)
	if e.Metadata != nil {
		c.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Announcer publishes registry changes to an external discovery plane
// (MQTT, mDNS). Implementations must not block for long.
type Announcer interface {
	AnnounceRegister(e *Entry)
	AnnounceUnregister(name string)
}

// Registry tracks services and their liveness. A service is unhealthy
// once its heartbeat is older than the timeout and evicted once it is
// older than twice the timeout.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*Entry

	heartbeatTimeout time.Duration
	logger           zerolog.Logger
	announcers       []Announcer

	now func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithHeartbeatTimeout overrides the liveness timeout.
func WithHeartbeatTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.heartbeatTimeout = d
		}
	}
}

// WithAnnouncer adds a discovery-plane publisher.
func WithAnnouncer(a Announcer) Option {
	return func(r *Registry) { r.announcers = append(r.announcers, a) }
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New creates an empty registry.
func New(logger zerolog.Logger, opts ...Option) *Registry {
	r := &Registry{
		services:         make(map[string]*Entry),
		heartbeatTimeout: DefaultHeartbeatTimeout,
		logger:           logger.With().Str("component", "registry").Logger(),
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddAnnouncer attaches a discovery-plane publisher after
// construction. Bridges need the registry to exist first, so they
// cannot be passed as options.
func (r *Registry) AddAnnouncer(a Announcer) {
	r.mu.Lock()
	r.announcers = append(r.announcers, a)
	r.mu.Unlock()
}

// SetHeartbeatTimeout adjusts the liveness timeout at runtime.
func (r *Registry) SetHeartbeatTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	r.heartbeatTimeout = d
	r.mu.Unlock()
}

// Register adds a new service. Registering an existing name fails with
// already_registered; use Restart to replace an entry.
func (r *Registry) Register(name, host string, port int, capabilities []string, healthEndpoint string, metadata map[string]any) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[name]; exists {
		return nil, rpc.Errorf(rpc.CodeAlreadyRegistered, "service %s already registered", name)
	}

	now := r.now()
	e := &Entry{
		Name:           name,
		Host:           host,
		Port:           port,
		Capabilities:   append([]string(nil), capabilities...),
		HealthEndpoint: healthEndpoint,
		LastHeartbeat:  now,
		RegisteredAt:   now,
		Status:         StatusHealthy,
		Metadata:       metadata,
	}
	r.services[name] = e
	r.logger.Info().Str("name", name).Str("host", host).Int("port", port).Msg("service registered")

	snapshot := e.clone()
	for _, a := range r.announcers {
		a.AnnounceRegister(snapshot)
	}
	return snapshot, nil
}

// Unregister removes a service by name.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	_, exists := r.services[name]
	if exists {
		delete(r.services, name)
	}
	r.mu.Unlock()

	if !exists {
		return rpc.Errorf(rpc.CodeNotFound, "service %s not found", name)
	}
	r.logger.Info().Str("name", name).Msg("service unregistered")
	for _, a := range r.announcers {
		a.AnnounceUnregister(name)
	}
	return nil
}

// Heartbeat refreshes a service's liveness and marks it healthy.
func (r *Registry) Heartbeat(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.services[name]
	if !exists {
		return rpc.Errorf(rpc.CodeNotFound, "service %s not found", name)
	}
	e.LastHeartbeat = r.now()
	e.Status = StatusHealthy
	return nil
}

// Get returns a snapshot of one service.
func (r *Registry) Get(name string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, exists := r.services[name]
	if !exists {
		return nil, rpc.Errorf(rpc.CodeNotFound, "service %s not found", name)
	}
	return e.clone(), nil
}

// List returns snapshots of all services, optionally filtered by a
// capability, sorted by name.
func (r *Registry) List(capabilityFilter string) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Entry, 0, len(r.services))
	for _, e := range r.services {
		if capabilityFilter != "" && !hasCapability(e, capabilityFilter) {
			continue
		}
		out = append(out, e.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func hasCapability(e *Entry, cap string) bool {
	for _, c := range e.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// FindByCapability returns the first healthy service advertising cap.
func (r *Registry) FindByCapability(cap string) (*Entry, error) {
	for _, e := range r.List(cap) {
		if e.Status == StatusHealthy {
			return e, nil
		}
	}
	return nil, rpc.Errorf(rpc.CodeServiceUnavailable, "no healthy service with capability %s", cap)
}

// CheckHealth re-evaluates every service's status against the
// heartbeat timeout and returns name to status.
func (r *Registry) CheckHealth() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make(map[string]string, len(r.services))
	for name, e := range r.services {
		if now.Sub(e.LastHeartbeat) > r.heartbeatTimeout {
			e.Status = StatusUnhealthy
		} else {
			e.Status = StatusHealthy
		}
		out[name] = e.Status
	}
	return out
}

// CheckServiceHealth re-evaluates one service.
func (r *Registry) CheckServiceHealth(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.services[name]
	if !exists {
		return "", rpc.Errorf(rpc.CodeNotFound, "service %s not found", name)
	}
	if r.now().Sub(e.LastHeartbeat) > r.heartbeatTimeout {
		e.Status = StatusUnhealthy
	} else {
		e.Status = StatusHealthy
	}
	return e.Status, nil
}

// CleanupStale evicts services whose heartbeat is older than twice the
// timeout. Returns the evicted names.
func (r *Registry) CleanupStale() []string {
	r.mu.Lock()
	now := r.now()
	var stale []string
	for name, e := range r.services {
		if now.Sub(e.LastHeartbeat) > 2*r.heartbeatTimeout {
			stale = append(stale, name)
		}
	}
	for _, name := range stale {
		delete(r.services, name)
		r.logger.Warn().Str("name", name).Msg("removing stale service")
	}
	r.mu.Unlock()

	for _, name := range stale {
		for _, a := range r.announcers {
			a.AnnounceUnregister(name)
		}
	}
	return stale
}

// Restart replaces a service's registration. Zero-valued fields keep
// the current values; registration time and heartbeat reset.
func (r *Registry) Restart(name, host string, port int, capabilities []string) (*Entry, error) {
	r.mu.Lock()
	cur, exists := r.services[name]
	if !exists {
		r.mu.Unlock()
		return nil, rpc.Errorf(rpc.CodeNotFound, "service %s not found", name)
	}

	if host == "" {
		host = cur.Host
	}
	if port == 0 {
		port = cur.Port
	}
	if capabilities == nil {
		capabilities = cur.Capabilities
	}
	healthEndpoint := cur.HealthEndpoint
	metadata := cur.Metadata
	delete(r.services, name)

	now := r.now()
	e := &Entry{
		Name:           name,
		Host:           host,
		Port:           port,
		Capabilities:   append([]string(nil), capabilities...),
		HealthEndpoint: healthEndpoint,
		LastHeartbeat:  now,
		RegisteredAt:   now,
		Status:         StatusHealthy,
		Metadata:       metadata,
	}
	r.services[name] = e
	snapshot := e.clone()
	r.mu.Unlock()

	r.logger.Info().Str("name", name).Msg("service restarted")
	for _, a := range r.announcers {
		a.AnnounceRegister(snapshot)
	}
	return snapshot, nil
}

// Count returns the number of registered services.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services)
}

// RunCleanup evicts stale services on the given interval until ctx is
// canceled.
func (r *Registry) RunCleanup(ctx context.Context, interval time.Duration) {
	defer logging.RecoverPanic(r.logger, "cleanupLoop", nil)

	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.CleanupStale()
		}
	}
}
