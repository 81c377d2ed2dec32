package audiosync

import (
	"context"

	"github.com/ai-servis/core/internal/rpc"
)

// RegisterTools exposes the sync engine over the tool surface.
func RegisterTools(tools *rpc.ToolRegistry, e *Engine) error {
	specs := []rpc.Tool{
		{
			Name:        "add_sync_group",
			Description: "Create a synchronization group of audio zones",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"group_id", "master_zone", "slave_zones"},
				"properties": map[string]any{
					"group_id":    map[string]any{"type": "string", "minLength": 1},
					"master_zone": map[string]any{"type": "string", "minLength": 1},
					"slave_zones": map[string]any{
						"type":     "array",
						"minItems": 1,
						"items":    map[string]any{"type": "string"},
					},
				},
			},
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				g, err := e.AddGroup(
					rpc.StringParam(params, "group_id", ""),
					rpc.StringParam(params, "master_zone", ""),
					rpc.StringSliceParam(params, "slave_zones"),
				)
				if err != nil {
					return nil, err
				}
				return map[string]any{"created": true, "group": g}, nil
			},
		},
		{
			Name:        "remove_sync_group",
			Description: "Remove a synchronization group",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"group_id"},
				"properties": map[string]any{
					"group_id": map[string]any{"type": "string", "minLength": 1},
				},
			},
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				id := rpc.StringParam(params, "group_id", "")
				if err := e.RemoveGroup(id); err != nil {
					return nil, err
				}
				return map[string]any{"removed": true, "group_id": id}, nil
			},
		},
		{
			Name:        "list_sync_groups",
			Description: "List synchronization groups",
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				groups := e.Groups()
				return map[string]any{"groups": groups, "count": len(groups)}, nil
			},
		},
		{
			Name:        "set_network_delay",
			Description: "Set network delay compensation for a zone",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"zone_id", "delay"},
				"properties": map[string]any{
					"zone_id": map[string]any{"type": "string", "minLength": 1},
					"delay":   map[string]any{"type": "number"},
				},
			},
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				zone := rpc.StringParam(params, "zone_id", "")
				delay := rpc.FloatParam(params, "delay", 0)
				e.SetNetworkDelay(zone, delay)
				return map[string]any{"zone_id": zone, "network_delay": delay}, nil
			},
		},
		{
			Name:        "set_clock_offset",
			Description: "Set clock offset compensation for a zone",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"zone_id", "offset"},
				"properties": map[string]any{
					"zone_id": map[string]any{"type": "string", "minLength": 1},
					"offset":  map[string]any{"type": "number"},
				},
			},
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				zone := rpc.StringParam(params, "zone_id", "")
				offset := rpc.FloatParam(params, "offset", 0)
				e.SetClockOffset(zone, offset)
				return map[string]any{"zone_id": zone, "clock_offset": offset}, nil
			},
		},
		{
			Name:        "get_sync_statistics",
			Description: "Report synchronization statistics per zone",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"zone_id": map[string]any{"type": "string"},
				},
			},
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				if zone := rpc.StringParam(params, "zone_id", ""); zone != "" {
					s, err := e.StatsFor(zone)
					if err != nil {
						return nil, err
					}
					return s, nil
				}
				return e.AllStats(), nil
			},
		},
		{
			Name:        "get_sync_performance",
			Description: "Report the rolling quality history for a zone",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"zone_id"},
				"properties": map[string]any{
					"zone_id": map[string]any{"type": "string", "minLength": 1},
				},
			},
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				zone := rpc.StringParam(params, "zone_id", "")
				return map[string]any{
					"zone_id": zone,
					"samples": e.Performance(zone),
				}, nil
			},
		},
	}

	for _, spec := range specs {
		if err := tools.Register(spec); err != nil {
			return err
		}
	}
	return nil
}
