// Package anthropic adapts the Anthropic Messages API onto the
// bridge.ProviderPlugin contract (spec §4.2), building request bodies and
// parsing responses through the official SDK's param/response types while
// leaving actual network I/O to the caller's bridge.Transport.
package anthropic

import (
	"context"
	"encoding/json"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/deepbridge/llm-bridge/bridge"
)

const (
	defaultBaseURL    = "https://api.anthropic.com/v1"
	anthropicVersion  = "2023-06-01"
	cacheBetaHeader   = "anthropic-beta"
	cacheBetaFeature  = "prompt-caching-2024-07-31"
	pluginID          = "anthropic"
	pluginVersion     = "1.0.0"
	defaultMaxTokens  = 4096
)

// Plugin implements bridge.ProviderPlugin for the Anthropic Messages API.
type Plugin struct {
	apiKey  string
	baseURL string
}

func New() *Plugin {
	return &Plugin{baseURL: defaultBaseURL}
}

func (p *Plugin) ID() string      { return pluginID }
func (p *Plugin) Name() string    { return "Anthropic" }
func (p *Plugin) Version() string { return pluginVersion }

func (p *Plugin) Initialize(ctx context.Context, config map[string]interface{}) error {
	if key, ok := config["apiKey"].(string); ok && key != "" {
		p.apiKey = key
	}
	if p.apiKey == "" {
		return bridge.NewInvalidConfigError("anthropic provider config requires apiKey")
	}
	if url, ok := config["baseURL"].(string); ok && url != "" {
		p.baseURL = strings.TrimSuffix(url, "/")
	}
	return nil
}

func (p *Plugin) TranslateRequest(ctx context.Context, req *bridge.ChatRequest, caps *bridge.ModelCapabilities, convCtx *bridge.ConversationContext) (*bridge.HttpRequest, error) {
	messages, system := encodeMessages(req.Messages)
	if len(messages) == 0 {
		return nil, bridge.NewValidationError("anthropic request requires at least one user/assistant message")
	}

	maxTokens := defaultMaxTokens
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = *req.MaxTokens
	} else if caps != nil && caps.MaxTokens > 0 {
		maxTokens = caps.MaxTokens
	}

	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  messages,
		Model:     sdk.Model(req.Model),
	}
	if len(system) > 0 {
		params.System = system
	}
	if caps != nil && caps.SupportsTemperature && req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	if caps != nil && caps.ToolCalls && len(req.Tools) > 0 {
		params.Tools = encodeTools(req.Tools)
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, bridge.NewValidationError("failed to encode anthropic request: " + err.Error())
	}
	if req.Stream {
		var raw map[string]interface{}
		if err := json.Unmarshal(body, &raw); err == nil {
			raw["stream"] = true
			body, _ = json.Marshal(raw)
		}
	}

	return &bridge.HttpRequest{
		URL:    p.baseURL + "/messages",
		Method: "POST",
		Headers: map[string]string{
			"Content-Type":      "application/json",
			"x-api-key":         p.apiKey,
			"anthropic-version": anthropicVersion,
		},
		Body: body,
	}, nil
}

func (p *Plugin) ParseResponse(ctx context.Context, resp *bridge.HttpResponse) (*bridge.UnifiedResponse, error) {
	if resp.Body == nil {
		return nil, bridge.NewValidationError("anthropic response has no body")
	}
	defer resp.Body.Close()

	var msg sdk.Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, bridge.NewValidationError("malformed anthropic response: " + err.Error())
	}

	parts, calls := decodeContent(msg.Content)
	assistant := bridge.NewMessage(bridge.RoleAssistant, parts...)
	if len(calls) > 0 {
		assistant.Metadata = map[string]interface{}{"toolCalls": calls}
	}

	return &bridge.UnifiedResponse{
		Message: assistant,
		Usage: &bridge.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		Model:    string(msg.Model),
		Metadata: map[string]interface{}{"stop_reason": string(msg.StopReason)},
	}, nil
}

// ParseStream decodes Anthropic's content_block_delta / message_delta SSE
// events into StreamDeltas. Anthropic signals completion via a
// message_delta event carrying stop_reason, not a "[DONE]" sentinel.
func (p *Plugin) ParseStream(ctx context.Context, chunks <-chan []byte) (<-chan bridge.StreamDelta, <-chan error) {
	out := make(chan bridge.StreamDelta)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		for event := range bridge.ParseSSE(chunks) {
			switch event.Event {
			case "content_block_delta":
				var payload struct {
					Delta struct {
						Type string `json:"type"`
						Text string `json:"text"`
					} `json:"delta"`
				}
				if skipped := bridge.DecodeSSEData(event, &payload); skipped {
					continue
				}
				if payload.Delta.Text == "" {
					continue
				}
				select {
				case out <- bridge.StreamDelta{Delta: bridge.AssistantMessage(payload.Delta.Text)}:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			case "message_delta":
				var payload struct {
					Delta struct {
						StopReason string `json:"stop_reason"`
					} `json:"delta"`
				}
				if skipped := bridge.DecodeSSEData(event, &payload); skipped {
					continue
				}
				if payload.Delta.StopReason == "" {
					continue
				}
				delta := bridge.Message{Metadata: map[string]interface{}{"stop_reason": payload.Delta.StopReason}}
				select {
				case out <- bridge.StreamDelta{
					Delta:    delta,
					Finished: true,
					Metadata: map[string]interface{}{"stop_reason": payload.Delta.StopReason},
				}:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
				return
			case "error":
				errs <- bridge.NewProviderError("anthropic stream error event: "+event.Data, nil)
				return
			}
		}
	}()

	return out, errs
}

func (p *Plugin) IsTerminal(deltaOrResponse interface{}, convCtx *bridge.ConversationContext) bool {
	return p.DetectTermination(deltaOrResponse, convCtx).ShouldTerminate
}

func (p *Plugin) DetectTermination(deltaOrResponse interface{}, convCtx *bridge.ConversationContext) bridge.UnifiedTerminationSignal {
	reason := stopReasonOf(deltaOrResponse)
	if reason == "" {
		return bridge.UnifiedTerminationSignal{Reason: bridge.ReasonUnknown, Confidence: bridge.ConfidenceMedium}
	}
	return bridge.AnthropicStopReasonSignal(reason)
}

func stopReasonOf(v interface{}) string {
	switch t := v.(type) {
	case bridge.Message:
		return metaString(t.Metadata, "stop_reason")
	case *bridge.UnifiedResponse:
		return metaString(t.Metadata, "stop_reason")
	case bridge.StreamDelta:
		return metaString(t.Metadata, "stop_reason")
	default:
		return ""
	}
}

func metaString(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func (p *Plugin) NormalizeError(err error, resp *bridge.HttpResponse, body []byte) *bridge.BridgeError {
	if err != nil {
		return bridge.NewTransportError("anthropic request failed", err)
	}
	if resp == nil {
		return bridge.NewProviderError("anthropic request failed with no response", nil)
	}
	return bridge.DefaultNormalizeError(resp.Status, body, pluginID, resp.Headers)
}

// SupportsCaching, GetCacheHeaders and MarkForCaching implement the
// optional bridge.CacheSupporter capability: Anthropic's prompt-caching
// beta is opted into per-request via a header, unlike OpenAI/Gemini which
// have no request-shaping cache contract.
func (p *Plugin) SupportsCaching() bool { return true }

func (p *Plugin) GetCacheHeaders() map[string]string {
	return map[string]string{cacheBetaHeader: cacheBetaFeature}
}

func (p *Plugin) MarkForCaching(req *bridge.HttpRequest) {
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	req.Headers[cacheBetaHeader] = cacheBetaFeature
}

func encodeMessages(messages []bridge.Message) ([]sdk.MessageParam, []sdk.TextBlockParam) {
	out := make([]sdk.MessageParam, 0, len(messages))
	var system []sdk.TextBlockParam

	for _, m := range messages {
		if m.Role == bridge.RoleSystem {
			if text := m.Text(); text != "" {
				system = append(system, sdk.TextBlockParam{Text: text})
			}
			continue
		}

		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Content))
		for _, part := range m.Content {
			switch part.Type {
			case bridge.ContentText:
				if part.Text != "" {
					blocks = append(blocks, sdk.NewTextBlock(part.Text))
				}
			case bridge.ContentToolUse:
				if part.ToolUse != nil {
					blocks = append(blocks, sdk.NewToolUseBlock(part.ToolUse.ID, part.ToolUse.Parameters, part.ToolUse.Name))
				}
			}
		}
		if m.Role == bridge.RoleTool {
			blocks = append(blocks, sdk.NewToolResultBlock(m.ToolCallID(), m.Text(), false))
		}
		if len(blocks) == 0 {
			continue
		}

		switch m.Role {
		case bridge.RoleUser, bridge.RoleTool:
			out = append(out, sdk.NewUserMessage(blocks...))
		case bridge.RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(blocks...))
		}
	}
	return out, system
}

func encodeTools(tools []bridge.ToolDefinition) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := sdk.ToolInputSchemaParam{ExtraFields: t.InputSchema}
		u := sdk.ToolUnionParamOfTool(schema, t.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(t.Description)
		}
		out = append(out, u)
	}
	return out
}

func decodeContent(blocks []sdk.ContentBlockUnion) ([]bridge.ContentPart, []bridge.ToolCall) {
	var parts []bridge.ContentPart
	var calls []bridge.ToolCall
	for _, block := range blocks {
		switch block.Type {
		case "text":
			if block.Text != "" {
				parts = append(parts, bridge.TextPart(block.Text))
			}
		case "tool_use":
			var params map[string]interface{}
			if raw, err := json.Marshal(block.Input); err == nil {
				_ = json.Unmarshal(raw, &params)
			}
			call := bridge.ToolCall{ID: block.ID, Name: block.Name, Parameters: params}
			calls = append(calls, call)
			parts = append(parts, bridge.ToolUsePart(call))
		}
	}
	return parts, calls
}
