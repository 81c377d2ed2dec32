package msgqueue

import (
	"context"

	"github.com/ai-servis/core/internal/rpc"
)

// RegisterTools exposes the queue manager over the tool surface.
func RegisterTools(tools *rpc.ToolRegistry, m *Manager) error {
	channelEnum := make([]any, 0, len(Channels()))
	for _, ch := range Channels() {
		channelEnum = append(channelEnum, string(ch))
	}

	specs := []rpc.Tool{
		{
			Name:        "enqueue_message",
			Description: "Queue a message for delivery",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"channel", "to", "body"},
				"properties": map[string]any{
					"channel": map[string]any{"type": "string", "enum": channelEnum},
					"from":    map[string]any{"type": "string"},
					"to":      map[string]any{"type": "string", "minLength": 1},
					"subject": map[string]any{"type": "string"},
					"body":    map[string]any{"type": "string"},
					"priority": map[string]any{
						"type": "string",
						"enum": []any{"low", "normal", "high", "urgent"},
					},
					"max_retries": map[string]any{"type": "integer", "minimum": 0},
					"retry_strategy": map[string]any{
						"type": "string",
						"enum": []any{
							string(RetryImmediate), string(RetryExponential),
							string(RetryLinear), string(RetryFixedInterval),
							string(RetryIntervalTable),
						},
					},
				},
			},
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				msg := NewMessage(
					Channel(rpc.StringParam(params, "channel", "")),
					rpc.StringParam(params, "from", ""),
					rpc.StringParam(params, "to", ""),
					rpc.StringParam(params, "body", ""),
				)
				msg.Subject = rpc.StringParam(params, "subject", "")
				if p := rpc.StringParam(params, "priority", ""); p != "" {
					msg.Priority = Priority(p)
				}

				var opts []EnqueueOption
				if n := rpc.IntParam(params, "max_retries", -1); n >= 0 {
					opts = append(opts, WithMaxRetries(n))
				}
				if s := rpc.StringParam(params, "retry_strategy", ""); s != "" {
					opts = append(opts, WithStrategy(Strategy(s)))
				}

				if err := m.Enqueue(msg, opts...); err != nil {
					return nil, err
				}
				return map[string]any{"message_id": msg.ID, "status": string(msg.Status)}, nil
			},
		},
		{
			Name:        "get_queue_status",
			Description: "Report queue depth per channel",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"channel": map[string]any{"type": "string", "enum": channelEnum},
				},
			},
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				return m.QueueStatus(Channel(rpc.StringParam(params, "channel", "")))
			},
		},
		{
			Name:        "get_statistics",
			Description: "Report delivery statistics",
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				return m.Stats(), nil
			},
		},
		{
			Name:        "get_message_history",
			Description: "Report delivery attempts for a message",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"message_id"},
				"properties": map[string]any{
					"message_id": map[string]any{"type": "string", "minLength": 1},
				},
			},
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				id := rpc.StringParam(params, "message_id", "")
				history := m.History(id)
				return map[string]any{"message_id": id, "attempts": history}, nil
			},
		},
		{
			Name:        "clear_queue",
			Description: "Drop all queued messages of a channel",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"channel"},
				"properties": map[string]any{
					"channel": map[string]any{"type": "string", "enum": channelEnum},
				},
			},
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				removed, err := m.ClearQueue(Channel(rpc.StringParam(params, "channel", "")))
				if err != nil {
					return nil, err
				}
				return map[string]any{"cleared": removed}, nil
			},
		},
		{
			Name:        "pause_queue",
			Description: "Suspend message delivery",
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				m.Pause()
				return map[string]any{"status": string(StatePaused)}, nil
			},
		},
		{
			Name:        "resume_queue",
			Description: "Resume message delivery",
			Handler: func(ctx context.Context, params map[string]any) (any, error) {
				m.Resume()
				return map[string]any{"status": string(StateActive)}, nil
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
