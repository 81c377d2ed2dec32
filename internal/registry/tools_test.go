package registry

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ai-servis/core/internal/config"
	"github.com/ai-servis/core/internal/rpc"
)

func newToolSurface(t *testing.T) *rpc.ToolRegistry {
	t.Helper()
	r := New(zerolog.Nop())
	cfg, err := config.NewStore(ConfigDefaults(), "")
	require.NoError(t, err)

	tools := rpc.NewToolRegistry()
	require.NoError(t, RegisterTools(tools, r, cfg))
	return tools
}

func callTool(t *testing.T, tools *rpc.ToolRegistry, name string, params map[string]any) (any, error) {
	t.Helper()
	tool, ok := tools.Get(name)
	require.True(t, ok, "tool %s not registered", name)
	if err := tool.Validate(params); err != nil {
		return nil, err
	}
	return tool.Handler(context.Background(), params)
}

func TestRegisterServiceTool(t *testing.T) {
	tools := newToolSurface(t)

	out, err := callTool(t, tools, "register_service", map[string]any{
		"name":         "ai-audio-assistant",
		"host":         "127.0.0.1",
		"port":         8082,
		"capabilities": []any{"audio", "voice"},
	})
	require.NoError(t, err)
	require.Equal(t, true, out.(map[string]any)["registered"])

	// Schema rejects a missing host.
	_, err = callTool(t, tools, "register_service", map[string]any{
		"name":         "x",
		"port":         1,
		"capabilities": []any{},
	})
	require.Error(t, err)
	require.Equal(t, rpc.CodeInvalidParams, rpc.CodeOf(err))
}

func TestManageConfigurationTool(t *testing.T) {
	tools := newToolSurface(t)

	out, err := callTool(t, tools, "manage_configuration", map[string]any{"action": "get", "key": "heartbeat_timeout_seconds"})
	require.NoError(t, err)
	require.Equal(t, 30, out.(map[string]any)["value"])

	_, err = callTool(t, tools, "manage_configuration", map[string]any{"action": "set", "key": "heartbeat_timeout_seconds", "value": 60})
	require.NoError(t, err)

	out, err = callTool(t, tools, "manage_configuration", map[string]any{"action": "get", "key": "heartbeat_timeout_seconds"})
	require.NoError(t, err)
	require.Equal(t, 60, rpc.IntParam(out.(map[string]any), "value", 0))

	_, err = callTool(t, tools, "manage_configuration", map[string]any{"action": "get", "key": "nonsense"})
	require.Error(t, err)
	require.Equal(t, rpc.CodeUnknownKey, rpc.CodeOf(err))

	_, err = callTool(t, tools, "manage_configuration", map[string]any{"action": "reset"})
	require.NoError(t, err)
	out, err = callTool(t, tools, "manage_configuration", map[string]any{"action": "get", "key": "heartbeat_timeout_seconds"})
	require.NoError(t, err)
	require.Equal(t, 30, rpc.IntParam(out.(map[string]any), "value", 0))
}

func TestUnregisterServiceTool(t *testing.T) {
	tools := newToolSurface(t)

	_, err := callTool(t, tools, "register_service", map[string]any{
		"name": "gpio", "host": "h", "port": 8081, "capabilities": []any{"hardware"},
	})
	require.NoError(t, err)

	out, err := callTool(t, tools, "unregister_service", map[string]any{"name": "gpio"})
	require.NoError(t, err)
	require.Equal(t, true, out.(map[string]any)["unregistered"])

	// Unknown names succeed silently.
	out, err = callTool(t, tools, "unregister_service", map[string]any{"name": "ghost"})
	require.NoError(t, err)
	require.Equal(t, false, out.(map[string]any)["unregistered"])
}

func TestDiscoverServicesTool(t *testing.T) {
	tools := newToolSurface(t)

	_, err := callTool(t, tools, "register_service", map[string]any{
		"name": "gpio", "host": "h", "port": 8081, "capabilities": []any{"hardware"},
	})
	require.NoError(t, err)
	_, err = callTool(t, tools, "register_service", map[string]any{
		"name": "audio", "host": "h", "port": 8082, "capabilities": []any{"audio"},
	})
	require.NoError(t, err)

	out, err := callTool(t, tools, "discover_services", map[string]any{"capability": "hardware"})
	require.NoError(t, err)
	require.Equal(t, 1, out.(map[string]any)["count"])
}
