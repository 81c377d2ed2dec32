package orchestrator

import (
	"context"

	"github.com/ai-servis/core/internal/intent"
	"github.com/ai-servis/core/internal/pipeline"
	"github.com/ai-servis/core/internal/rpc"
)

func newQueuedCommand(params map[string]any) *pipeline.Command {
	cmd := pipeline.NewCommand(
		rpc.StringParam(params, "text", ""),
		rpc.StringParam(params, "interface_type", "voice"),
	)
	cmd.SessionID = rpc.StringParam(params, "session_id", "")
	cmd.UserID = rpc.StringParam(params, "user_id", "")
	if p := rpc.IntParam(params, "priority", 0); p >= 1 && p <= 5 {
		cmd.Priority = pipeline.Priority(p)
	}
	return cmd
}

// RegisterTools exposes the orchestrator over the tool surface.
func RegisterTools(tools *rpc.ToolRegistry, o *Orchestrator) error {
	specs := []rpc.Tool{
		{
			Name:        "process_command",
			Description: "Process a natural language command with session context",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"text"},
				"properties": map[string]any{
					"text":           map[string]any{"type": "string", "minLength": 1},
					"session_id":     map[string]any{"type": "string"},
					"user_id":        map[string]any{"type": "string"},
					"interface_type": map[string]any{"type": "string"},
					"token":          map[string]any{"type": "string"},
					"context":        map[string]any{"type": "object"},
				},
			},
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				req := ProcessRequest{
					Text:          rpc.StringParam(params, "text", ""),
					SessionID:     rpc.StringParam(params, "session_id", ""),
					UserID:        rpc.StringParam(params, "user_id", ""),
					InterfaceType: rpc.StringParam(params, "interface_type", "voice"),
					Token:         rpc.StringParam(params, "token", ""),
					Context:       rpc.MapParam(params, "context"),
				}
				return o.ProcessCommand(ctx, req), nil
			},
		},
		{
			Name:        "create_session",
			Description: "Create a new conversation session",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"user_id":        map[string]any{"type": "string"},
					"interface_type": map[string]any{"type": "string"},
				},
			},
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				s := o.sessions.Create(
					rpc.StringParam(params, "user_id", ""),
					rpc.StringParam(params, "interface_type", "voice"),
				)
				return map[string]any{
					"session_id": s.ID,
					"created_at": s.CreatedAt,
				}, nil
			},
		},
		{
			Name:        "analyze_intent",
			Description: "Classify a command without executing it",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"text"},
				"properties": map[string]any{
					"text": map[string]any{"type": "string", "minLength": 1},
				},
			},
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				cls := o.classifier.Classify(rpc.StringParam(params, "text", ""))
				return map[string]any{
					"intent":       string(cls.Intent),
					"confidence":   cls.Confidence,
					"parameters":   cls.Parameters,
					"alternatives": cls.Alternatives,
				}, nil
			},
		},
		{
			Name:        "route_command",
			Description: "Enqueue a command for asynchronous processing",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"text"},
				"properties": map[string]any{
					"text":           map[string]any{"type": "string", "minLength": 1},
					"session_id":     map[string]any{"type": "string"},
					"user_id":        map[string]any{"type": "string"},
					"interface_type": map[string]any{"type": "string"},
					"priority":       map[string]any{"type": "integer", "minimum": 1, "maximum": 5},
				},
			},
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				cmd := newQueuedCommand(params)
				id, err := o.pipe.Enqueue(cmd)
				if err != nil {
					return nil, err
				}
				return map[string]any{"command_id": id, "status": "queued"}, nil
			},
		},
		{
			Name:        "get_command_status",
			Description: "Report the pipeline status of a command",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"command_id"},
				"properties": map[string]any{
					"command_id": map[string]any{"type": "string", "minLength": 1},
				},
			},
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				return o.pipe.StatusOf(rpc.StringParam(params, "command_id", ""))
			},
		},
		{
			Name:        "cancel_command",
			Description: "Cancel a queued or processing command",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"command_id"},
				"properties": map[string]any{
					"command_id": map[string]any{"type": "string", "minLength": 1},
				},
			},
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				id := rpc.StringParam(params, "command_id", "")
				if !o.pipe.Cancel(id) {
					return nil, rpc.Errorf(rpc.CodeNotFound, "command %s not found", id)
				}
				return map[string]any{"command_id": id, "cancelled": true}, nil
			},
		},
		{
			Name:        "train_intents",
			Description: "Train the intent model with labeled examples",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"examples"},
				"properties": map[string]any{
					"examples": map[string]any{
						"type":     "array",
						"minItems": 1,
						"items": map[string]any{
							"type":     "object",
							"required": []any{"text", "intent"},
							"properties": map[string]any{
								"text":   map[string]any{"type": "string", "minLength": 1},
								"intent": map[string]any{"type": "string", "minLength": 1},
							},
						},
					},
				},
			},
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				raw, _ := params["examples"].([]any)
				examples := make([]intent.TrainingExample, 0, len(raw))
				for _, item := range raw {
					m, ok := item.(map[string]any)
					if !ok {
						continue
					}
					examples = append(examples, intent.TrainingExample{
						Text:   rpc.StringParam(m, "text", ""),
						Intent: intent.Type(rpc.StringParam(m, "intent", "")),
					})
				}
				if err := o.classifier.Train(examples); err != nil {
					return nil, err
				}
				return map[string]any{"trained": true, "examples": len(examples)}, nil
			},
		},
		{
			Name:        "get_metrics",
			Description: "Report pipeline, queue, and session metrics",
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				return map[string]any{
					"pipeline":        o.pipe.Metrics().Snapshot(),
					"queue":           o.pipe.QueueStatus(),
					"active_sessions": o.sessions.Count(),
				}, nil
			},
		},
		{
			Name:        "service_analytics",
			Description: "Report per-service delivery metrics",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"service_name": map[string]any{"type": "string"},
					"metric": map[string]any{
						"type": "string",
						"enum": []any{"response_time", "error_count", "health_status", "last_seen"},
					},
				},
			},
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				service := rpc.StringParam(params, "service_name", "")
				metric := rpc.StringParam(params, "metric", "response_time")
				stats := o.router.Analytics(service)

				values := make(map[string]any, len(stats))
				for name, s := range stats {
					switch metric {
					case "error_count":
						values[name] = s.ErrorCount
					case "health_status":
						values[name] = s.HealthStatus
					case "last_seen":
						values[name] = s.LastSeen
					default:
						values[name] = s.AvgResponseTime
					}
				}
				return map[string]any{"metric": metric, "services": values}, nil
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
