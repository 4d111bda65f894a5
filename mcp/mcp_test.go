package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepbridge/llm-bridge/bridge"
)

func TestBuildTransportRejectsMissingCommand(t *testing.T) {
	c := New(bridge.McpServerConfig{Name: "dice", Kind: bridge.McpTransportStdio})
	_, err := c.buildTransport(context.Background())
	require.Error(t, err)
	var berr *bridge.BridgeError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, bridge.KindInvalidConfig, berr.Kind)
}

func TestBuildTransportRejectsMissingURL(t *testing.T) {
	c := New(bridge.McpServerConfig{Name: "remote", Kind: bridge.McpTransportHTTP})
	_, err := c.buildTransport(context.Background())
	require.Error(t, err)
	var berr *bridge.BridgeError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, bridge.KindInvalidConfig, berr.Kind)
}

func TestBuildTransportRejectsUnknownKind(t *testing.T) {
	c := New(bridge.McpServerConfig{Name: "mystery", Kind: "carrier-pigeon"})
	_, err := c.buildTransport(context.Background())
	require.Error(t, err)
}

func TestIsConnectedFalseBeforeConnect(t *testing.T) {
	c := New(bridge.McpServerConfig{Name: "dice", Kind: bridge.McpTransportStdio, Command: "/bin/true"})
	assert.False(t, c.IsConnected())
}

func TestDisconnectWithoutConnectIsNoop(t *testing.T) {
	c := New(bridge.McpServerConfig{Name: "dice", Kind: bridge.McpTransportStdio, Command: "/bin/true"})
	assert.NoError(t, c.Disconnect(context.Background()))
}

func TestListToolsRequiresConnection(t *testing.T) {
	c := New(bridge.McpServerConfig{Name: "dice", Kind: bridge.McpTransportStdio, Command: "/bin/true"})
	_, err := c.ListTools(context.Background())
	require.Error(t, err)
}

func TestCallToolRequiresConnection(t *testing.T) {
	c := New(bridge.McpServerConfig{Name: "dice", Kind: bridge.McpTransportStdio, Command: "/bin/true"})
	_, err := c.CallTool(context.Background(), bridge.McpCall{Tool: "roll_d20"})
	require.Error(t, err)
}

func TestSchemaToMapHandlesNilAndTyped(t *testing.T) {
	assert.Equal(t, map[string]interface{}{"type": "object"}, schemaToMap(nil))

	typed := struct {
		Type string `json:"type"`
	}{Type: "object"}
	got := schemaToMap(typed)
	assert.Equal(t, "object", got["type"])
}
