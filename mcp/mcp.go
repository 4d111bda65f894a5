// Package mcp implements bridge.McpClient against the official MCP Go SDK
// (github.com/modelcontextprotocol/go-sdk), connecting to a single remote
// tool server over stdio or streamable HTTP (spec §4.7).
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deepbridge/llm-bridge/bridge"
)

// Client is a concrete bridge.McpClient backed by one live MCP session.
//
// The zero value is not usable; construct with New.
type Client struct {
	cfg bridge.McpServerConfig

	mu      sync.RWMutex
	client  *mcpsdk.Client
	session *mcpsdk.ClientSession
}

var _ bridge.McpClient = (*Client)(nil)

// New returns a Client for the given server config. The connection is not
// established until Connect is called.
func New(cfg bridge.McpServerConfig) *Client {
	return &Client{
		cfg: cfg,
		client: mcpsdk.NewClient(
			&mcpsdk.Implementation{Name: "llm-bridge", Version: "1.0.0"},
			nil,
		),
	}
}

// NewFactory adapts New to bridge.McpClientFactory so a BridgeClient can
// bring up McpServerConfig entries without importing this package's
// concrete type.
func NewFactory() bridge.McpClientFactory {
	return func(cfg bridge.McpServerConfig) bridge.McpClient {
		return New(cfg)
	}
}

// Connect establishes the underlying transport session. Calling Connect on
// an already-connected Client replaces the existing session.
func (c *Client) Connect(ctx context.Context) error {
	transport, err := c.buildTransport(ctx)
	if err != nil {
		return err
	}

	session, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return bridge.NewProviderError(fmt.Sprintf("mcp: failed to connect to server %q", c.cfg.Name), err)
	}

	c.mu.Lock()
	if c.session != nil {
		_ = c.session.Close()
	}
	c.session = session
	c.mu.Unlock()

	return nil
}

func (c *Client) buildTransport(ctx context.Context) (mcpsdk.Transport, error) {
	switch c.cfg.Kind {
	case bridge.McpTransportStdio:
		if c.cfg.Command == "" {
			return nil, bridge.NewInvalidConfigError(fmt.Sprintf("mcp: stdio server %q requires a non-empty command", c.cfg.Name))
		}
		cmd := exec.CommandContext(ctx, c.cfg.Command, c.cfg.Args...)
		return &mcpsdk.CommandTransport{Command: cmd}, nil

	case bridge.McpTransportHTTP:
		if c.cfg.URL == "" {
			return nil, bridge.NewInvalidConfigError(fmt.Sprintf("mcp: http server %q requires a non-empty url", c.cfg.Name))
		}
		return &mcpsdk.StreamableClientTransport{Endpoint: c.cfg.URL}, nil

	default:
		return nil, bridge.NewInvalidConfigError(fmt.Sprintf("mcp: unknown transport kind %q for server %q", c.cfg.Kind, c.cfg.Name))
	}
}

// Disconnect closes the underlying session. It is a no-op if not connected.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	if err != nil {
		return bridge.NewProviderError(fmt.Sprintf("mcp: error closing server %q", c.cfg.Name), err)
	}
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session != nil
}

// ListTools discovers the server's tool catalogue and translates each
// mcpsdk.Tool into a bridge.ToolDefinition.
func (c *Client) ListTools(ctx context.Context) ([]bridge.ToolDefinition, error) {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()

	if session == nil {
		return nil, bridge.NewProviderError(fmt.Sprintf("mcp: server %q is not connected", c.cfg.Name), nil)
	}

	var defs []bridge.ToolDefinition
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			return nil, bridge.NewProviderError(fmt.Sprintf("mcp: failed to list tools for server %q", c.cfg.Name), err)
		}
		defs = append(defs, bridge.ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schemaToMap(tool.InputSchema),
		})
	}
	return defs, nil
}

// CallTool invokes a remote tool and concatenates its text content blocks
// into a single McpResult, mirroring how tool output is assembled for
// builtins registered through the tools package.
func (c *Client) CallTool(ctx context.Context, call bridge.McpCall) (bridge.McpResult, error) {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()

	if session == nil {
		return bridge.McpResult{}, bridge.NewProviderError(fmt.Sprintf("mcp: server %q is not connected", c.cfg.Name), nil)
	}

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      call.Tool,
		Arguments: call.Arguments,
	})
	if err != nil {
		return bridge.McpResult{}, bridge.NewProviderError(fmt.Sprintf("mcp: call to tool %q failed", call.Tool), err)
	}

	var sb strings.Builder
	for _, content := range result.Content {
		if tc, ok := content.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}

	return bridge.McpResult{Content: sb.String(), IsError: result.IsError}, nil
}

// schemaToMap normalizes an SDK-returned JSON schema value to a plain map
// so it travels through bridge.ToolDefinition.InputSchema the same way a
// locally authored schema would.
func schemaToMap(schema interface{}) map[string]interface{} {
	if schema == nil {
		return map[string]interface{}{"type": "object"}
	}
	if m, ok := schema.(map[string]interface{}); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]interface{}{"type": "object"}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]interface{}{"type": "object"}
	}
	return m
}
