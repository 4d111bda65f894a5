package bridge

import "context"

// McpCall/McpResult are the transport-agnostic shapes an McpClient
// implementation bridges to its underlying protocol (spec §4.7).
type McpCall struct {
	Tool      string
	Arguments map[string]interface{}
}

type McpResult struct {
	Content interface{}
	IsError bool
}

// McpClient connects to one remote MCP tool server. Implementations live
// in the mcp package; BridgeClient only depends on this interface to
// avoid an import cycle (mcp imports bridge for ToolDefinition/Handler).
type McpClient interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
	ListTools(ctx context.Context) ([]ToolDefinition, error)
	CallTool(ctx context.Context, call McpCall) (McpResult, error)
}

// McpClientFactory constructs an McpClient for one server config; the mcp
// package supplies the concrete factory, keeping bridge transport-agnostic.
type McpClientFactory func(cfg McpServerConfig) McpClient

// McpToolRegistry discovers a connected McpClient's tools and registers
// them with a ToolRouter's backing ToolRegistry (spec §4.7).
type McpToolRegistry struct {
	client       McpClient
	registry     *ToolRegistry
	registeredAt []string
}

func NewMcpToolRegistry(client McpClient, registry *ToolRegistry) *McpToolRegistry {
	return &McpToolRegistry{client: client, registry: registry}
}

// RegisterMcpTools discovers remote tools and registers each as a
// ToolHandler that shapes the call through McpClient.CallTool.
func (r *McpToolRegistry) RegisterMcpTools(ctx context.Context) error {
	defs, err := r.client.ListTools(ctx)
	if err != nil {
		return NewProviderError("failed to list MCP tools", err)
	}
	for _, def := range defs {
		handler := r.makeHandler(def.Name)
		if err := r.registry.Register(def, handler, true); err != nil {
			return err
		}
		r.registeredAt = append(r.registeredAt, def.Name)
	}
	return nil
}

func (r *McpToolRegistry) makeHandler(toolName string) ToolHandler {
	return func(ctx context.Context, call ToolCall, execCtx ToolExecutionContext) (interface{}, error) {
		result, err := r.client.CallTool(ctx, McpCall{Tool: toolName, Arguments: call.Parameters})
		if err != nil {
			return nil, err
		}
		if result.IsError {
			return nil, NewToolError(toolName, nil)
		}
		return result.Content, nil
	}
}

// UnregisterMcpTools removes every tool this registry registered.
func (r *McpToolRegistry) UnregisterMcpTools() {
	for _, name := range r.registeredAt {
		r.registry.Unregister(name)
	}
	r.registeredAt = nil
}

func (r *McpToolRegistry) GetRegisteredToolCount() int {
	return len(r.registeredAt)
}
