package rpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func echoTool(name string) Tool {
	return Tool{
		Name:        name,
		Description: "echoes params back",
		Handler: func(ctx context.Context, params map[string]any) (any, error) {
			return params, nil
		},
	}
}

func TestRegisterDuplicateName(t *testing.T) {
	reg := NewToolRegistry()
	require.NoError(t, reg.Register(echoTool("echo")))

	err := reg.Register(echoTool("echo"))
	require.Error(t, err)
	require.Equal(t, CodeDuplicateName, CodeOf(err))
}

func TestToolSchemaValidation(t *testing.T) {
	reg := NewToolRegistry()
	err := reg.Register(Tool{
		Name: "set_volume",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"level"},
			"properties": map[string]any{
				"level": map[string]any{
					"type":    "integer",
					"minimum": 0,
					"maximum": 100,
				},
			},
		},
		Handler: func(ctx context.Context, params map[string]any) (any, error) {
			return map[string]any{"level": params["level"]}, nil
		},
	})
	require.NoError(t, err)

	tool, ok := reg.Get("set_volume")
	require.True(t, ok)

	require.NoError(t, tool.Validate(map[string]any{"level": 50}))

	err = tool.Validate(map[string]any{"level": 150})
	require.Error(t, err)
	require.Equal(t, CodeInvalidParams, CodeOf(err))

	err = tool.Validate(map[string]any{})
	require.Error(t, err)
	require.Equal(t, CodeInvalidParams, CodeOf(err))
}

func TestDescriptorsSorted(t *testing.T) {
	reg := NewToolRegistry()
	require.NoError(t, reg.Register(echoTool("zulu")))
	require.NoError(t, reg.Register(echoTool("alpha")))
	require.NoError(t, reg.Register(echoTool("mike")))

	descs := reg.Descriptors()
	require.Len(t, descs, 3)
	require.Equal(t, "alpha", descs[0].Name)
	require.Equal(t, "mike", descs[1].Name)
	require.Equal(t, "zulu", descs[2].Name)
}
