package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// mcpPair is the (client, tool-registry) stashed per MCP server name
// (spec §4.7 bring-up/dispose).
type mcpPair struct {
	client   McpClient
	registry *McpToolRegistry
}

// BridgeClient is the provider-agnostic façade: validates configuration,
// owns the Provider/Model/Tool registries, and routes chat/stream calls
// to the right plugin, falling back to the Agent Loop for tool-bearing
// multi-turn requests (spec §4.1).
type BridgeClient struct {
	config BridgeClientConfig
	logger Logger

	providers *ProviderRegistry
	models    *ModelRegistry
	tools     *ToolRegistry
	router    *ToolRouter
	transport Transport
	limiter   RateLimiter

	pluginInitMu sync.Mutex
	initialized  map[string]bool

	// mcpFactory constructs McpClients for configured servers; nil skips
	// MCP bring-up entirely (no mcp package wired into this process).
	mcpFactory McpClientFactory

	mcpMu  sync.Mutex
	mcpSet map[string]mcpPair
}

// BridgeClientOption customizes construction beyond config, primarily
// for test doubles (a fake Transport, a deterministic Logger).
type BridgeClientOption func(*BridgeClient)

func WithTransport(t Transport) BridgeClientOption {
	return func(c *BridgeClient) { c.transport = t }
}

func WithLogger(l Logger) BridgeClientOption {
	return func(c *BridgeClient) { c.logger = l }
}

func WithMcpClientFactory(f McpClientFactory) BridgeClientOption {
	return func(c *BridgeClient) { c.mcpFactory = f }
}

// New validates cfg, builds the registries, seeds models, and brings up
// configured MCP servers (spec §4.1). New registers no provider plugins:
// they must be registered via RegisterProvider before the first
// Chat/Stream call that needs them.
func New(cfg BridgeClientConfig, opts ...BridgeClientOption) (*BridgeClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	limiter, err := NewRateLimiter(cfg.RateLimitPolicy)
	if err != nil {
		return nil, err
	}

	c := &BridgeClient{
		config:      cfg,
		logger:      NoopLogger{},
		providers:   NewProviderRegistry(),
		models:      NewModelRegistry(),
		tools:       NewToolRegistry(),
		initialized: make(map[string]bool),
		mcpSet:      make(map[string]mcpPair),
		limiter:     limiter,
		transport:   NewHTTPTransport(time.Duration(cfg.Timeout) * time.Millisecond),
	}

	for _, opt := range opts {
		opt(c)
	}
	c.router = NewToolRouter(c.tools, c.logger)

	c.seedModels()
	c.bringUpMcp(context.Background())

	return c, nil
}

func (c *BridgeClient) seedModels() {
	allowed := make(map[string]bool, len(c.config.Providers))
	for key := range c.config.Providers {
		providerType := key
		if i := indexOfDot(key); i >= 0 {
			providerType = key[:i]
		}
		allowed[providerType] = true
	}

	switch c.config.ModelSeed.Mode {
	case ModelSeedNone:
		return
	case ModelSeedCustom:
		for _, entry := range c.config.ModelSeed.Catalog {
			c.models.Register(entry)
		}
	default:
		c.models.SeedBuiltin(BuiltinModelCatalog(), allowed)
	}
}

func indexOfDot(s string) int {
	for i, r := range s {
		if r == '.' {
			return i
		}
	}
	return -1
}

// bringUpMcp implements spec §4.7's bring-up: per-server failures are
// logged at WARN and skipped, never propagated to construction.
func (c *BridgeClient) bringUpMcp(ctx context.Context) {
	if c.mcpFactory == nil || c.config.ToolsConfig == nil || !c.config.ToolsConfig.Enabled {
		return
	}
	for _, server := range c.config.ToolsConfig.McpServers {
		client := c.mcpFactory(server)
		if err := client.Connect(ctx); err != nil {
			c.logger.Warn(ctx, "mcp server connect failed", F("server", server.Name), F("error", err.Error()))
			continue
		}
		reg := NewMcpToolRegistry(client, c.tools)
		if err := reg.RegisterMcpTools(ctx); err != nil {
			c.logger.Warn(ctx, "mcp tool registration failed", F("server", server.Name), F("error", err.Error()))
			_ = client.Disconnect(ctx)
			continue
		}
		c.mcpMu.Lock()
		c.mcpSet[server.Name] = mcpPair{client: client, registry: reg}
		c.mcpMu.Unlock()
	}
}

// RegisterProvider adds a plugin to the Provider Registry. Typically
// called once per supported provider at process startup, before any
// Chat/Stream call routes to it.
func (c *BridgeClient) RegisterProvider(plugin ProviderPlugin) {
	c.providers.Register(plugin)
}

// RegisterTool delegates to the Tool Router's backing registry, failing
// with ToolSystemDisabledError when tools are disabled (spec §4.1).
func (c *BridgeClient) RegisterTool(def ToolDefinition, handler ToolHandler) error {
	if c.config.ToolsConfig == nil || !c.config.ToolsConfig.Enabled {
		return NewToolSystemDisabledError()
	}
	return c.tools.Register(def, handler, false)
}

func (c *BridgeClient) GetConfig() BridgeClientConfig {
	return c.config
}

// Dispose tears down every MCP pair, tolerating individual failures, and
// is idempotent (spec §4.1).
func (c *BridgeClient) Dispose(ctx context.Context) error {
	c.mcpMu.Lock()
	pairs := c.mcpSet
	c.mcpSet = make(map[string]mcpPair)
	c.mcpMu.Unlock()

	for name, pair := range pairs {
		pair.registry.UnregisterMcpTools()
		if err := pair.client.Disconnect(ctx); err != nil {
			c.logger.Warn(ctx, "mcp disconnect failed during dispose", F("server", name), F("error", err.Error()))
		}
	}
	return nil
}

func (c *BridgeClient) toolsEnabled() bool {
	return c.config.ToolsConfig != nil && c.config.ToolsConfig.Enabled
}

// qualifyModel substitutes the configured DefaultModel for an empty model
// name and returns any other name unchanged; it adds no provider prefix
// (spec §4.1 chat/stream routing).
func (c *BridgeClient) qualifyModel(model string) string {
	if model == "" {
		model = c.config.DefaultModel
	}
	return model
}

func (c *BridgeClient) defaultProviderID() string {
	key := c.config.DefaultProvider
	if i := indexOfDot(key); i >= 0 {
		return key[:i]
	}
	return key
}

// resolvePlugin finds the entry's plugin, initializing it exactly once
// per (plugin id, provider-config key) (spec §4.1, §5).
func (c *BridgeClient) resolvePlugin(ctx context.Context, entry ModelCatalogEntry, providerConfigKey string) (ProviderPlugin, error) {
	pluginID, version := splitPluginRef(entry.ProviderPlugin)
	plugin, ok := c.providers.Get(pluginID, version)
	if !ok {
		return nil, NewUnknownModelError(entry.ID)
	}

	initKey := pluginID + "@" + providerConfigKey
	c.pluginInitMu.Lock()
	defer c.pluginInitMu.Unlock()
	if c.initialized[initKey] {
		return plugin, nil
	}
	providerCfg := c.config.Providers[providerConfigKey]
	if err := plugin.Initialize(ctx, providerCfg); err != nil {
		return nil, NewProviderError(fmt.Sprintf("failed to initialize provider plugin %q", pluginID), err)
	}
	c.initialized[initKey] = true
	return plugin, nil
}

func splitPluginRef(ref string) (id, version string) {
	for i := len(ref) - 1; i >= 0; i-- {
		if ref[i] == '-' {
			return ref[:i], ref[i+1:]
		}
	}
	return ref, ""
}

// Chat implements spec §4.1's chat(request): qualify the model, resolve
// the plugin, and either perform a single non-streaming exchange or
// delegate to the Agent Loop when the request warrants multi-turn
// execution.
func (c *BridgeClient) Chat(ctx context.Context, req *ChatRequest) (*UnifiedResponse, error) {
	req.Model = c.qualifyModel(req.Model)
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if len(req.Tools) > 0 && !c.toolsEnabled() {
		return nil, NewToolSystemDisabledError()
	}

	entry, ok := c.models.Get(req.Model, c.defaultProviderID())
	if !ok {
		return nil, NewUnknownModelError(req.Model)
	}

	plugin, err := c.resolvePlugin(ctx, entry, c.config.DefaultProvider)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx, entry.ProviderID); err != nil {
		return nil, err
	}

	caps := entry.Capabilities
	if ShouldExecuteMultiTurn(req, c.toolsEnabled()) {
		loop := NewAgentLoop(plugin, c.transport, c.router, c.logger)
		resp, _, err := loop.Execute(ctx, req, &caps)
		return resp, err
	}

	return c.singleTurn(ctx, plugin, req, &caps)
}

func (c *BridgeClient) singleTurn(ctx context.Context, plugin ProviderPlugin, req *ChatRequest, caps *ModelCapabilities) (*UnifiedResponse, error) {
	httpReq, err := plugin.TranslateRequest(ctx, req, caps, nil)
	if err != nil {
		return nil, err
	}
	httpResp, err := c.transport.Fetch(ctx, *httpReq)
	if err != nil {
		return nil, plugin.NormalizeError(err, nil, nil)
	}
	if httpResp.Status >= 400 {
		body := drainBody(httpResp)
		return nil, plugin.NormalizeError(nil, httpResp, body)
	}
	return plugin.ParseResponse(ctx, httpResp)
}

// Stream implements spec §4.1's stream(request), wrapping the plugin's
// delta sequence with the Streaming State Machine so tool interruption
// can occur mid-stream (spec §4.3, §4.8).
func (c *BridgeClient) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamDelta, <-chan error) {
	out := make(chan StreamDelta)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		req.Model = c.qualifyModel(req.Model)
		if err := req.Validate(); err != nil {
			errs <- err
			return
		}
		if len(req.Tools) > 0 && !c.toolsEnabled() {
			errs <- NewToolSystemDisabledError()
			return
		}
		entry, ok := c.models.Get(req.Model, c.defaultProviderID())
		if !ok {
			errs <- NewUnknownModelError(req.Model)
			return
		}
		plugin, err := c.resolvePlugin(ctx, entry, c.config.DefaultProvider)
		if err != nil {
			errs <- err
			return
		}
		if err := c.limiter.Wait(ctx, entry.ProviderID); err != nil {
			errs <- err
			return
		}

		caps := entry.Capabilities
		state := newMultiTurnState(req.Messages)
		machine := NewStreamingStateMachine()
		execCtx := c.router.CreateExecutionContext(state.Messages, nil)
		cfg := req.MultiTurn
		if cfg == nil {
			cfg = &MultiTurnConfig{}
		}
		im, err := NewIterationManager(cfg.MaxIterations, cfg.OverallTimeoutMs, cfg.IterationTimeoutMs)
		if err != nil {
			errs <- err
			return
		}

		for {
			if err := im.startIteration(); err != nil {
				errs <- err
				return
			}
			state.Iteration = im.iteration
			state.LastIterationTime = time.Now()

			if err := im.checkTimeouts(); err != nil {
				errs <- err
				return
			}

			turnReq := *req
			turnReq.Messages = state.Messages
			httpReq, err := plugin.TranslateRequest(ctx, &turnReq, &caps, nil)
			if err != nil {
				errs <- err
				return
			}
			chunks, transportErrs, err := c.transport.Stream(ctx, *httpReq)
			if err != nil {
				errs <- plugin.NormalizeError(err, nil, nil)
				return
			}
			deltaCh, parseErrs := plugin.ParseStream(ctx, chunks)

			result, err := machine.handleStreamingResponse(deltaCh, mergeErrChans(parseErrs, transportErrs))
			if err != nil {
				errs <- err
				return
			}
			for _, d := range result.Deltas {
				out <- d
				state.Messages = appendDeltaToHistory(state.Messages, d)
			}
			if !result.Paused {
				im.completeIteration(nil)
				return
			}

			if err := machine.pauseForToolExecution(result.PendingCalls); err != nil {
				errs <- err
				return
			}
			results := c.router.Execute(ctx, result.PendingCalls, execCtx, cfg.ToolExecutionStrategy, cfg.MaxConcurrentTools, time.Duration(cfg.ToolTimeoutMs)*time.Millisecond)
			for _, r := range results {
				state.Messages = append(state.Messages, ToolResultMessage(r.CallID, toolResultText(r)))
			}
			im.completeIteration(results)
			if err := machine.resumeAfterToolExecution(results); err != nil {
				errs <- err
				return
			}

			if err := im.checkTimeouts(); err != nil {
				errs <- err
				return
			}
			if im.iteration >= im.maxIterations {
				errs <- NewMaxIterationsExceededError(im.iteration, im.maxIterations, im.errorContext(PhaseTerminationCheck))
				return
			}
		}
	}()

	return out, errs
}

func appendDeltaToHistory(messages []Message, d StreamDelta) []Message {
	if len(d.Delta.Content) == 0 {
		return messages
	}
	return append(messages, d.Delta)
}

func mergeErrChans(a, b <-chan error) <-chan error {
	out := make(chan error, 1)
	go func() {
		select {
		case err := <-a:
			if err != nil {
				out <- err
				return
			}
		case err := <-b:
			if err != nil {
				out <- err
				return
			}
		}
	}()
	return out
}
