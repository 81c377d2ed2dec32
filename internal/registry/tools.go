package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ai-servis/core/internal/config"
	"github.com/ai-servis/core/internal/rpc"
)

// ConfigDefaults is the runtime configuration schema of the registry
// service.
func ConfigDefaults() map[string]any {
	return map[string]any{
		"heartbeat_timeout_seconds": 30,
		"cleanup_interval_seconds":  60,
		"mqtt_broker":               "localhost",
		"mqtt_port":                 1883,
		"mdns_service_type":         "_ai-servis._tcp.local.",
		"enable_mdns":               true,
		"enable_mqtt":               true,
		"log_level":                 "info",
	}
}

// RegisterTools exposes the registry over the tool surface. cfg may be
// nil when runtime configuration is not wired.
func RegisterTools(tools *rpc.ToolRegistry, r *Registry, cfg *config.Store) error {
	specs := []rpc.Tool{
		{
			Name:        "register_service",
			Description: "Register a service with the discovery registry",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"name", "host", "port", "capabilities"},
				"properties": map[string]any{
					"name":            map[string]any{"type": "string", "minLength": 1},
					"host":            map[string]any{"type": "string", "minLength": 1},
					"port":            map[string]any{"type": "integer", "minimum": 1, "maximum": 65535},
					"capabilities":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"health_endpoint": map[string]any{"type": "string"},
					"metadata":        map[string]any{"type": "object"},
				},
			},
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				e, err := r.Register(
					rpc.StringParam(params, "name", ""),
					rpc.StringParam(params, "host", ""),
					rpc.IntParam(params, "port", 0),
					rpc.StringSliceParam(params, "capabilities"),
					rpc.StringParam(params, "health_endpoint", ""),
					rpc.MapParam(params, "metadata"),
				)
				if err != nil {
					return nil, err
				}
				return map[string]any{"registered": true, "service": e}, nil
			},
		},
		{
			Name:        "discover_services",
			Description: "List registered services, optionally filtered by capability",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"capability": map[string]any{"type": "string"},
				},
			},
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				services := r.List(rpc.StringParam(params, "capability", ""))
				return map[string]any{"services": services, "count": len(services)}, nil
			},
		},
		{
			Name:        "service_heartbeat",
			Description: "Refresh a service's liveness",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"name"},
				"properties": map[string]any{
					"name": map[string]any{"type": "string", "minLength": 1},
				},
			},
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				name := rpc.StringParam(params, "name", "")
				if err := r.Heartbeat(name); err != nil {
					return nil, err
				}
				return map[string]any{"name": name, "status": StatusHealthy}, nil
			},
		},
		{
			Name:        "check_service_health",
			Description: "Evaluate liveness of all registered services",
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				health := r.CheckHealth()
				total := len(health)
				healthy := 0
				for _, s := range health {
					if s == StatusHealthy {
						healthy++
					}
				}
				status := StatusHealthy
				if healthy != total {
					status = "degraded"
				}
				pct := 100.0
				if total > 0 {
					pct = float64(healthy) / float64(total) * 100
				}
				return map[string]any{
					"status": status,
					"summary": map[string]any{
						"total_services":     total,
						"healthy_services":   healthy,
						"unhealthy_services": total - healthy,
						"health_percentage":  pct,
					},
					"health_status": health,
					"timestamp":     time.Now().UTC().Format(time.RFC3339),
				}, nil
			},
		},
		{
			Name:        "monitor_services",
			Description: "Detailed view of one service or all services",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name": map[string]any{"type": "string"},
				},
			},
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				now := time.Now()
				if name := rpc.StringParam(params, "name", ""); name != "" {
					health, err := r.CheckServiceHealth(name)
					if err != nil {
						return nil, err
					}
					e, err := r.Get(name)
					if err != nil {
						return nil, err
					}
					return map[string]any{
						"service":   e,
						"health":    health,
						"uptime":    now.Sub(e.RegisteredAt).String(),
						"timestamp": now.UTC().Format(time.RFC3339),
					}, nil
				}

				var services []map[string]any
				for _, e := range r.List("") {
					health, err := r.CheckServiceHealth(e.Name)
					if err != nil {
						continue // evicted between List and check
					}
					services = append(services, map[string]any{
						"service": e,
						"health":  health,
						"uptime":  now.Sub(e.RegisteredAt).String(),
					})
				}
				return map[string]any{
					"services":       services,
					"total_services": len(services),
					"timestamp":      now.UTC().Format(time.RFC3339),
				}, nil
			},
		},
		{
			Name:        "unregister_service",
			Description: "Remove a service from the registry",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"name"},
				"properties": map[string]any{
					"name": map[string]any{"type": "string", "minLength": 1},
				},
			},
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				name := rpc.StringParam(params, "name", "")
				// Removing an unknown service is a no-op, not an error.
				if err := r.Unregister(name); err != nil {
					return map[string]any{"unregistered": false, "name": name}, nil
				}
				return map[string]any{"unregistered": true, "name": name}, nil
			},
		},
		{
			Name:        "restart_service",
			Description: "Re-register a service, keeping fields not supplied",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"name"},
				"properties": map[string]any{
					"name":         map[string]any{"type": "string", "minLength": 1},
					"host":         map[string]any{"type": "string"},
					"port":         map[string]any{"type": "integer", "minimum": 1, "maximum": 65535},
					"capabilities": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
			},
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				var caps []string
				if _, present := params["capabilities"]; present {
					caps = rpc.StringSliceParam(params, "capabilities")
				}
				e, err := r.Restart(
					rpc.StringParam(params, "name", ""),
					rpc.StringParam(params, "host", ""),
					rpc.IntParam(params, "port", 0),
					caps,
				)
				if err != nil {
					return nil, err
				}
				return map[string]any{"restarted": true, "service": e}, nil
			},
		},
	}

	if cfg != nil {
		specs = append(specs, rpc.Tool{
			Name:        "manage_configuration",
			Description: "Get, set, or reset registry configuration",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"action"},
				"properties": map[string]any{
					"action": map[string]any{"type": "string", "enum": []any{"get", "set", "reset"}},
					"key":    map[string]any{"type": "string"},
					"value":  map[string]any{},
				},
			},
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				return handleConfiguration(cfg, r, params)
			},
		})
	}

	for _, t := range specs {
		if err := tools.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func handleConfiguration(cfg *config.Store, r *Registry, params map[string]any) (any, error) {
	action := rpc.StringParam(params, "action", "")
	key := rpc.StringParam(params, "key", "")

	switch action {
	case "get":
		if key == "" {
			return map[string]any{"configuration": cfg.All()}, nil
		}
		v, err := cfg.Get(key)
		if err != nil {
			return nil, configErr(err)
		}
		return map[string]any{"key": key, "value": v}, nil

	case "set":
		value, present := params["value"]
		if key == "" || !present {
			return nil, rpc.Errorf(rpc.CodeInvalidParams, "set requires key and value")
		}
		if err := cfg.Set(key, value); err != nil {
			return nil, configErr(err)
		}
		applyConfig(r, key, value)
		return map[string]any{"message": fmt.Sprintf("configuration %s updated", key)}, nil

	case "reset":
		if key == "" {
			if err := cfg.ResetAll(); err != nil {
				return nil, configErr(err)
			}
			r.SetHeartbeatTimeout(DefaultHeartbeatTimeout)
			return map[string]any{"message": "all configuration reset to defaults"}, nil
		}
		if err := cfg.Reset(key); err != nil {
			return nil, configErr(err)
		}
		if v, err := cfg.Get(key); err == nil {
			applyConfig(r, key, v)
		}
		return map[string]any{"message": fmt.Sprintf("configuration %s reset to default", key)}, nil

	default:
		return nil, rpc.Errorf(rpc.CodeInvalidParams, "unknown action %s", action)
	}
}

// applyConfig pushes settings that take effect immediately into the
// running registry.
func applyConfig(r *Registry, key string, value any) {
	if key != "heartbeat_timeout_seconds" {
		return
	}
	switch v := value.(type) {
	case float64:
		r.SetHeartbeatTimeout(time.Duration(v) * time.Second)
	case int:
		r.SetHeartbeatTimeout(time.Duration(v) * time.Second)
	}
}

func configErr(err error) error {
	if errors.Is(err, config.ErrUnknownKey) {
		return rpc.Errorf(rpc.CodeUnknownKey, "%v", err)
	}
	return err
}
