package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepbridge/llm-bridge/bridge"
)

func TestRegisterAllRegistersEveryBuiltin(t *testing.T) {
	registry := bridge.NewToolRegistry()
	require.NoError(t, RegisterAll(registry))
	assert.Equal(t, len(Names()), registry.Count())
}

func TestRegisterRejectsUnknownName(t *testing.T) {
	registry := bridge.NewToolRegistry()
	err := Register(registry, "not-a-real-tool")
	require.Error(t, err)
}

func TestEchoHandlerRoundTripsText(t *testing.T) {
	out, err := echoHandler(context.Background(), bridge.ToolCall{Parameters: map[string]interface{}{"text": "hello"}}, bridge.ToolExecutionContext{})
	require.NoError(t, err)
	result := out.(map[string]interface{})
	assert.Equal(t, "hello", result["echoed"])
	assert.Equal(t, true, result["testSuccess"])
	assert.NotEmpty(t, result["timestamp"])
}

func TestDateTimeHandlerDayOfWeek(t *testing.T) {
	out, err := dateTimeHandler(context.Background(), bridge.ToolCall{Parameters: map[string]interface{}{
		"operation": "day_of_week",
		"date":      "2025-12-25",
	}}, bridge.ToolExecutionContext{})
	require.NoError(t, err)
	assert.Contains(t, out.(string), "Thursday")
}

func TestFileSystemHandlerRejectsPathTraversal(t *testing.T) {
	_, err := fileSystemHandler(context.Background(), bridge.ToolCall{Parameters: map[string]interface{}{
		"operation": "read_file",
		"path":      "../../etc/passwd",
	}}, bridge.ToolExecutionContext{})
	require.Error(t, err)
}

func TestFileSystemHandlerWriteThenReadFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/note.txt"

	_, err := fileSystemHandler(context.Background(), bridge.ToolCall{Parameters: map[string]interface{}{
		"operation": "write_file",
		"path":      path,
		"content":   "hi there",
	}}, bridge.ToolExecutionContext{})
	require.NoError(t, err)

	out, err := fileSystemHandler(context.Background(), bridge.ToolCall{Parameters: map[string]interface{}{
		"operation": "read_file",
		"path":      path,
	}}, bridge.ToolExecutionContext{})
	require.NoError(t, err)
	assert.Contains(t, out.(string), "hi there")
}

func TestMathHandlerEvaluatesExpression(t *testing.T) {
	out, err := mathHandler(context.Background(), bridge.ToolCall{Parameters: map[string]interface{}{
		"operation":  "evaluate",
		"expression": "2 * (3 + 4) + sqrt(16)",
	}}, bridge.ToolExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, "18.000000", out)
}

func TestMathHandlerStatisticsMean(t *testing.T) {
	out, err := mathHandler(context.Background(), bridge.ToolCall{Parameters: map[string]interface{}{
		"operation": "statistics",
		"stat_type": "mean",
		"numbers":   []interface{}{1.0, 2.0, 3.0},
	}}, bridge.ToolExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, "2.000000", out)
}

func TestMathHandlerSolveLinear(t *testing.T) {
	out, err := mathHandler(context.Background(), bridge.ToolCall{Parameters: map[string]interface{}{
		"operation": "solve",
		"equation":  "x+5=10",
	}}, bridge.ToolExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, "x = 5.000000", out)
}

func TestMathHandlerConvertsTemperature(t *testing.T) {
	out, err := mathHandler(context.Background(), bridge.ToolCall{Parameters: map[string]interface{}{
		"operation": "convert",
		"value":     float64(100),
		"from_unit": "celsius",
		"to_unit":   "fahrenheit",
	}}, bridge.ToolExecutionContext{})
	require.NoError(t, err)
	assert.Equal(t, "212.000000 fahrenheit", out)
}

func TestHTTPRequestHandlerRejectsBadURL(t *testing.T) {
	_, err := httpRequestHandler(context.Background(), bridge.ToolCall{Parameters: map[string]interface{}{
		"method": "GET",
		"url":    "not-a-url",
	}}, bridge.ToolExecutionContext{})
	require.Error(t, err)
}

func TestHTTPRequestHandlerRejectsInvalidMethod(t *testing.T) {
	_, err := httpRequestHandler(context.Background(), bridge.ToolCall{Parameters: map[string]interface{}{
		"method": "PATCH",
		"url":    "https://example.com",
	}}, bridge.ToolExecutionContext{})
	require.Error(t, err)
}
