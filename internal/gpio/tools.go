package gpio

import (
	"context"
	"time"

	"github.com/ai-servis/core/internal/rpc"
)

// RegisterTools exposes hardware control over the tool surface.
func RegisterTools(tools *rpc.ToolRegistry, ctl *Controller) error {
	spec := rpc.Tool{
		Name:        "hardware_control",
		Description: "Configure and drive GPIO pins through the hardware daemon",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"action"},
			"properties": map[string]any{
				"action": map[string]any{
					"type": "string",
					"enum": []any{
						"configure_pin", "set_pin", "get_pin", "toggle_pin",
						"blink_pin", "control_led", "control_relay",
						"read_button", "status",
					},
				},
				"pin":       map[string]any{"type": "integer", "minimum": 0},
				"direction": map[string]any{"type": "string", "enum": []any{DirectionInput, DirectionOutput}},
				"value":     map[string]any{"type": "integer", "enum": []any{0, 1}},
				"state":     map[string]any{"type": "boolean"},
				"times":     map[string]any{"type": "integer", "minimum": 1},
			},
		},
		Handler: func(ctx context.Context, params map[string]any) (any, error) {
			action := rpc.StringParam(params, "action", "")
			pin := rpc.IntParam(params, "pin", 0)

			switch action {
			case "configure_pin":
				direction := rpc.StringParam(params, "direction", DirectionOutput)
				if err := ctl.Client().Configure(ctx, pin, direction); err != nil {
					return nil, err
				}
				return map[string]any{"pin": pin, "direction": direction}, nil

			case "set_pin":
				value := rpc.IntParam(params, "value", 0)
				if err := ctl.Client().Set(ctx, pin, value); err != nil {
					return nil, err
				}
				return map[string]any{"pin": pin, "value": value}, nil

			case "get_pin":
				value, err := ctl.GetPinValue(ctx, pin)
				if err != nil {
					return nil, err
				}
				return map[string]any{"pin": pin, "value": value}, nil

			case "toggle_pin":
				value, err := ctl.TogglePin(ctx, pin)
				if err != nil {
					return nil, err
				}
				return map[string]any{"pin": pin, "value": value}, nil

			case "blink_pin":
				times := rpc.IntParam(params, "times", 3)
				if err := ctl.BlinkPin(ctx, pin, times, 500*time.Millisecond); err != nil {
					return nil, err
				}
				return map[string]any{"pin": pin, "blinked": times}, nil

			case "control_led":
				on := rpc.BoolParam(params, "state", false)
				if err := ctl.ControlLED(ctx, pin, on); err != nil {
					return nil, err
				}
				return map[string]any{"pin": pin, "on": on}, nil

			case "control_relay":
				on := rpc.BoolParam(params, "state", false)
				if err := ctl.ControlRelay(ctx, pin, on); err != nil {
					return nil, err
				}
				return map[string]any{"pin": pin, "on": on}, nil

			case "read_button":
				pressed, err := ctl.ReadButton(ctx, pin)
				if err != nil {
					return nil, err
				}
				return map[string]any{"pin": pin, "pressed": pressed}, nil

			case "status":
				pins, err := ctl.AllPins(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]any{"pins": pins, "count": len(pins)}, nil

			default:
				return nil, rpc.Errorf(rpc.CodeInvalidParams, "unknown action %q", action)
			}
		},
	}
	return tools.Register(spec)
}
