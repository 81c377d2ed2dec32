package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ai-servis/core/internal/pipeline"
	"github.com/ai-servis/core/internal/registry"
	"github.com/ai-servis/core/internal/rpc"
)

// CallerProvider resolves a service name to a client for its tool
// endpoint.
type CallerProvider func(service string) (rpc.Caller, error)

// RegistryCallerProvider resolves services through the registry and
// talks to them over their HTTP envelope endpoint. Callers are cached
// per endpoint.
func RegistryCallerProvider(reg *registry.Registry) CallerProvider {
	var mu sync.Mutex
	cache := make(map[string]rpc.Caller)

	return func(service string) (rpc.Caller, error) {
		entry, err := reg.Get(service)
		if err != nil {
			return nil, err
		}
		endpoint := fmt.Sprintf("http://%s:%d/rpc", entry.Host, entry.Port)

		mu.Lock()
		defer mu.Unlock()
		if c, ok := cache[endpoint]; ok {
			return c, nil
		}
		c := rpc.NewHTTPClient(endpoint)
		cache[endpoint] = c
		return c, nil
	}
}

// ServiceStats accumulates per-service delivery metrics.
type ServiceStats struct {
	TotalCalls      int64     `json:"total_calls"`
	ErrorCount      int64     `json:"error_count"`
	AvgResponseTime float64   `json:"response_time"`
	HealthStatus    string    `json:"health_status"`
	LastSeen        time.Time `json:"last_seen"`
}

// Router executes parsed commands by dispatching them to the owning
// service, and tracks per-service analytics.
type Router struct {
	provide   CallerProvider
	available func() []string
	logger    zerolog.Logger

	mu    sync.Mutex
	stats map[string]*ServiceStats
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithServiceLister supplies the names mentioned when a service cannot
// be resolved.
func WithServiceLister(list func() []string) RouterOption {
	return func(r *Router) { r.available = list }
}

// NewRouter creates a router over the given caller provider.
func NewRouter(provide CallerProvider, logger zerolog.Logger, opts ...RouterOption) *Router {
	r := &Router{
		provide: provide,
		logger:  logger.With().Str("component", "router").Logger(),
		stats:   make(map[string]*ServiceStats),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) record(service string, elapsed time.Duration, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stats[service]
	if !ok {
		s = &ServiceStats{HealthStatus: registry.StatusHealthy}
		r.stats[service] = s
	}
	s.TotalCalls++
	if failed {
		s.ErrorCount++
		s.HealthStatus = registry.StatusUnhealthy
	} else {
		s.HealthStatus = registry.StatusHealthy
	}
	// Running mean over all calls to the service.
	s.AvgResponseTime += (elapsed.Seconds() - s.AvgResponseTime) / float64(s.TotalCalls)
	s.LastSeen = time.Now()
}

// Analytics returns a snapshot of per-service metrics. When service is
// non-empty only that service is included.
func (r *Router) Analytics(service string) map[string]ServiceStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]ServiceStats)
	for name, s := range r.stats {
		if service != "" && name != service {
			continue
		}
		out[name] = *s
	}
	return out
}

// Execute implements pipeline.Executor. Session and user identifiers
// travel in the call parameters so services can personalize responses.
func (r *Router) Execute(ctx context.Context, parsed *pipeline.Parsed) (*pipeline.Result, error) {
	if parsed.Service == "" {
		return nil, rpc.Errorf(rpc.CodeServiceUnavailable, "no service handles intent %s", parsed.Intent)
	}

	caller, err := r.provide(parsed.Service)
	if err != nil {
		msg := fmt.Sprintf("Service %s is not available", parsed.Service)
		if r.available != nil {
			if names := r.available(); len(names) > 0 {
				msg = fmt.Sprintf("%s. Available services: %s", msg, strings.Join(names, ", "))
			}
		}
		return nil, rpc.Errorf(rpc.CodeServiceUnavailable, "%s", msg)
	}

	// Handlers receive the typed, defaulted parameters; the raw
	// extraction is only a fallback for callers that skipped parsing.
	source := parsed.ValidatedParameters
	if source == nil {
		source = parsed.Parameters
	}
	params := make(map[string]any, len(source)+2)
	for k, v := range source {
		params[k] = v
	}
	if parsed.SessionID != "" {
		params["session_id"] = parsed.SessionID
	}
	if parsed.UserID != "" {
		params["user_id"] = parsed.UserID
	}

	start := time.Now()
	raw, err := caller.Call(ctx, parsed.Tool, params)
	r.record(parsed.Service, time.Since(start), err != nil)
	if err != nil {
		r.logger.Warn().
			Str("service", parsed.Service).
			Str("tool", parsed.Tool).
			Err(err).
			Msg("service call failed")
		return nil, err
	}

	data := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			// Non-object results are kept verbatim.
			data = map[string]any{"result": string(raw)}
		}
	}

	response := fmt.Sprintf("Executed %s via %s", parsed.Tool, parsed.Service)
	if msg, ok := data["message"].(string); ok && msg != "" {
		response = msg
	} else if msg, ok := data["response"].(string); ok && msg != "" {
		response = msg
	}

	return &pipeline.Result{
		Success:     true,
		Response:    response,
		Data:        data,
		ServiceUsed: parsed.Service,
	}, nil
}
