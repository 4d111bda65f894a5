package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validToolDef(name string) ToolDefinition {
	return ToolDefinition{
		Name:        name,
		Description: "test tool",
		InputSchema: map[string]interface{}{"type": "object"},
	}
}

func noopHandler(ctx context.Context, call ToolCall, execCtx ToolExecutionContext) (interface{}, error) {
	return "ok", nil
}

func TestToolRegistryRegisterAndGet(t *testing.T) {
	r := NewToolRegistry()
	require.NoError(t, r.Register(validToolDef("echo"), noopHandler, false))

	def, handler, ok := r.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", def.Name)
	assert.NotNil(t, handler)
}

func TestToolRegistryRejectsDuplicateWithoutReplace(t *testing.T) {
	r := NewToolRegistry()
	require.NoError(t, r.Register(validToolDef("echo"), noopHandler, false))
	err := r.Register(validToolDef("echo"), noopHandler, false)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestToolRegistryAllowsReplace(t *testing.T) {
	r := NewToolRegistry()
	require.NoError(t, r.Register(validToolDef("echo"), noopHandler, false))
	require.NoError(t, r.Register(validToolDef("echo"), noopHandler, true))
	assert.Equal(t, 1, r.Count())
}

func TestToolRegistryRejectsNilHandler(t *testing.T) {
	r := NewToolRegistry()
	err := r.Register(validToolDef("echo"), nil, false)
	require.Error(t, err)
}

func TestToolRegistryRejectsEmptyName(t *testing.T) {
	r := NewToolRegistry()
	err := r.Register(ToolDefinition{}, noopHandler, false)
	require.Error(t, err)
}

func TestToolRegistryRejectsMalformedSchema(t *testing.T) {
	r := NewToolRegistry()
	def := validToolDef("bad")
	def.InputSchema = map[string]interface{}{"type": 12345}
	err := r.Register(def, noopHandler, false)
	require.Error(t, err)
}

func TestToolRegistryUnregisterRemovesEntry(t *testing.T) {
	r := NewToolRegistry()
	require.NoError(t, r.Register(validToolDef("echo"), noopHandler, false))
	r.Unregister("echo")
	_, _, ok := r.Get("echo")
	assert.False(t, ok)
}

func TestToolRegistryListReturnsSnapshot(t *testing.T) {
	r := NewToolRegistry()
	require.NoError(t, r.Register(validToolDef("echo"), noopHandler, false))
	require.NoError(t, r.Register(validToolDef("math"), noopHandler, false))
	assert.Len(t, r.List(), 2)
}

func TestValidateEchoResultAcceptsWellFormedResult(t *testing.T) {
	result := map[string]interface{}{"echoed": "hi", "timestamp": "2026-01-01T00:00:00Z", "testSuccess": true}
	assert.NoError(t, validateEchoResult(result))
}

func TestValidateEchoResultRejectsFalseTestSuccess(t *testing.T) {
	result := map[string]interface{}{"echoed": "hi", "timestamp": "2026-01-01T00:00:00Z", "testSuccess": false}
	err := validateEchoResult(result)
	require.Error(t, err)
}

func TestValidateEchoResultRejectsMissingTimestamp(t *testing.T) {
	result := map[string]interface{}{"echoed": "hi", "testSuccess": true}
	err := validateEchoResult(result)
	require.Error(t, err)
}

func TestValidateEchoResultRejectsNonStringEchoed(t *testing.T) {
	result := map[string]interface{}{"echoed": 5, "timestamp": "2026-01-01T00:00:00Z", "testSuccess": true}
	err := validateEchoResult(result)
	require.Error(t, err)
}
