package adapters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolRegistry_ExecuteAndCollectResult(t *testing.T) {
	r := NewToolRegistry(nil)
	r.Register(ToolDescriptor{Name: "echo", Parameters: map[string]string{"text": "string"}}, func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		return params["text"], nil
	})

	correlationID, err := r.ExecuteTool(context.Background(), "echo", map[string]interface{}{"text": "hi"})
	require.NoError(t, err)

	result, err := r.GetToolResult(context.Background(), correlationID, time.Second)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "hi", result.Output)
}

func TestToolRegistry_ExecutorErrorSurfacesInResult(t *testing.T) {
	r := NewToolRegistry(nil)
	r.Register(ToolDescriptor{Name: "fail"}, func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		return nil, errors.New("boom")
	})

	correlationID, err := r.ExecuteTool(context.Background(), "fail", nil)
	require.NoError(t, err)

	result, err := r.GetToolResult(context.Background(), correlationID, time.Second)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "boom", result.Error)
}

func TestToolRegistry_ValidateParametersRejectsMissing(t *testing.T) {
	r := NewToolRegistry(nil)
	r.Register(ToolDescriptor{Name: "need_x", Parameters: map[string]string{"x": "string"}}, nil)

	err := r.ValidateParameters("need_x", map[string]interface{}{})
	assert.Error(t, err)
}

func TestToolRegistry_GetToolResultTimesOutWhenNeverExecuted(t *testing.T) {
	r := NewToolRegistry(nil)
	_, err := r.GetToolResult(context.Background(), "unknown", 20*time.Millisecond)
	assert.Error(t, err)
}
