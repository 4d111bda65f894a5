// Package xai adapts xAI's OpenAI-compatible chat completions API onto
// the bridge.ProviderPlugin contract (spec §4.2). Request/response bodies
// are built against the documented wire shape directly, since xai-go's
// fluent ChatRequest builder executes requests itself rather than
// exposing translatable param types; the SDK is still used for model
// catalog lookups (context window sizing) the way the adapter this is
// grounded on uses it for startup model-info caching.
package xai

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	xaigo "github.com/roelfdiedericks/xai-go"

	"github.com/deepbridge/llm-bridge/bridge"
)

const (
	defaultBaseURL = "https://api.x.ai/v1"
	pluginID       = "xai"
	pluginVersion  = "1.0.0"
)

// Plugin implements bridge.ProviderPlugin for xAI's Grok models.
type Plugin struct {
	apiKey  string
	baseURL string

	contextMu    sync.RWMutex
	contextCache map[string]int
}

func New() *Plugin {
	return &Plugin{baseURL: defaultBaseURL, contextCache: map[string]int{}}
}

func (p *Plugin) ID() string      { return pluginID }
func (p *Plugin) Name() string    { return "xAI" }
func (p *Plugin) Version() string { return pluginVersion }

func (p *Plugin) Initialize(ctx context.Context, config map[string]interface{}) error {
	if key, ok := config["apiKey"].(string); ok && key != "" {
		p.apiKey = key
	}
	if p.apiKey == "" {
		return bridge.NewInvalidConfigError("xai provider config requires apiKey")
	}
	if url, ok := config["baseURL"].(string); ok && url != "" {
		p.baseURL = strings.TrimSuffix(url, "/")
	}

	// Warm the model context-window cache in the background, the way
	// FetchXAIModelInfo does on provider construction; failures fall back
	// to DefaultEstimateTokenUsage's own cap and are not fatal here.
	go p.warmModelCache()
	return nil
}

func (p *Plugin) warmModelCache() {
	client, err := xaigo.New(xaigo.Config{
		APIKey:  xaigo.NewSecureString(p.apiKey),
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	models, err := client.ListModels(ctx)
	if err != nil {
		return
	}
	p.contextMu.Lock()
	defer p.contextMu.Unlock()
	for _, m := range models {
		p.contextCache[m.Name] = int(m.MaxPromptLength)
	}
}

func (p *Plugin) contextWindow(model string) int {
	p.contextMu.RLock()
	defer p.contextMu.RUnlock()
	return p.contextCache[model]
}

type xaiMessage struct {
	Role      string        `json:"role"`
	Content   string        `json:"content"`
	ToolCalls []xaiToolCall `json:"tool_calls,omitempty"`
	ToolID    string        `json:"tool_call_id,omitempty"`
}

type xaiToolCall struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function xaiFunctionCall `json:"function"`
}

type xaiFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type xaiTool struct {
	Type     string      `json:"type"`
	Function xaiFunction `json:"function"`
}

type xaiFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type xaiRequest struct {
	Model       string       `json:"model"`
	Messages    []xaiMessage `json:"messages"`
	Temperature *float64     `json:"temperature,omitempty"`
	MaxTokens   *int         `json:"max_tokens,omitempty"`
	Tools       []xaiTool    `json:"tools,omitempty"`
	Stream      bool         `json:"stream,omitempty"`
}

func (p *Plugin) TranslateRequest(ctx context.Context, req *bridge.ChatRequest, caps *bridge.ModelCapabilities, convCtx *bridge.ConversationContext) (*bridge.HttpRequest, error) {
	body := xaiRequest{Model: req.Model, Stream: req.Stream}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, encodeMessage(m))
	}
	if caps != nil && caps.SupportsTemperature && req.Temperature != nil {
		body.Temperature = req.Temperature
	}
	if req.MaxTokens != nil {
		body.MaxTokens = req.MaxTokens
	}
	if caps != nil && caps.ToolCalls && len(req.Tools) > 0 {
		for _, t := range req.Tools {
			body.Tools = append(body.Tools, xaiTool{
				Type: "function",
				Function: xaiFunction{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.InputSchema,
				},
			})
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, bridge.NewValidationError("failed to encode xai request: " + err.Error())
	}

	return &bridge.HttpRequest{
		URL:    p.baseURL + "/chat/completions",
		Method: "POST",
		Headers: map[string]string{
			"Content-Type":  "application/json",
			"Authorization": "Bearer " + p.apiKey,
		},
		Body: payload,
	}, nil
}

func encodeMessage(m bridge.Message) xaiMessage {
	role := string(m.Role)
	out := xaiMessage{Role: role, Content: m.Text()}
	if m.Role == bridge.RoleTool {
		out.ToolID = m.ToolCallID()
	}
	for _, call := range m.ToolCalls() {
		args, _ := json.Marshal(call.Parameters)
		out.ToolCalls = append(out.ToolCalls, xaiToolCall{
			ID:   call.ID,
			Type: "function",
			Function: xaiFunctionCall{
				Name:      call.Name,
				Arguments: string(args),
			},
		})
	}
	return out
}

type xaiChoice struct {
	FinishReason string     `json:"finish_reason"`
	Message      xaiMessage `json:"message"`
	Delta        xaiMessage `json:"delta"`
}

type xaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type xaiResponse struct {
	ID      string      `json:"id"`
	Model   string      `json:"model"`
	Choices []xaiChoice `json:"choices"`
	Usage   xaiUsage    `json:"usage"`
}

func (p *Plugin) ParseResponse(ctx context.Context, resp *bridge.HttpResponse) (*bridge.UnifiedResponse, error) {
	if resp.Body == nil {
		return nil, bridge.NewValidationError("xai response has no body")
	}
	defer resp.Body.Close()

	var xr xaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&xr); err != nil {
		return nil, bridge.NewValidationError("malformed xai response: " + err.Error())
	}
	if len(xr.Choices) == 0 {
		return nil, bridge.NewValidationError("xai response has no choices")
	}

	choice := xr.Choices[0]
	msg := bridge.AssistantMessage(choice.Message.Content)
	if len(choice.Message.ToolCalls) > 0 {
		calls := make([]bridge.ToolCall, 0, len(choice.Message.ToolCalls))
		for _, tc := range choice.Message.ToolCalls {
			var params map[string]interface{}
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &params)
			calls = append(calls, bridge.ToolCall{ID: tc.ID, Name: tc.Function.Name, Parameters: params})
		}
		msg.Metadata = map[string]interface{}{"toolCalls": calls}
	}
	if msg.Metadata == nil {
		msg.Metadata = map[string]interface{}{}
	}
	msg.Metadata["finish_reason"] = choice.FinishReason

	return &bridge.UnifiedResponse{
		Message: msg,
		Usage: &bridge.Usage{
			PromptTokens:     xr.Usage.PromptTokens,
			CompletionTokens: xr.Usage.CompletionTokens,
			TotalTokens:      xr.Usage.TotalTokens,
		},
		Model:    xr.Model,
		Metadata: map[string]interface{}{"finish_reason": choice.FinishReason},
	}, nil
}

func (p *Plugin) ParseStream(ctx context.Context, chunks <-chan []byte) (<-chan bridge.StreamDelta, <-chan error) {
	out := make(chan bridge.StreamDelta)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		for event := range bridge.ParseSSE(chunks) {
			var xr xaiResponse
			if skipped := bridge.DecodeSSEData(event, &xr); skipped || len(xr.Choices) == 0 {
				continue
			}
			choice := xr.Choices[0]
			delta := bridge.Message{}
			if choice.Delta.Content != "" {
				delta = bridge.AssistantMessage(choice.Delta.Content)
			}
			finished := choice.FinishReason != ""
			if finished {
				if delta.Metadata == nil {
					delta.Metadata = map[string]interface{}{}
				}
				delta.Metadata["finish_reason"] = choice.FinishReason
			}
			select {
			case out <- bridge.StreamDelta{
				ID:       xr.ID,
				Delta:    delta,
				Finished: finished,
				Metadata: map[string]interface{}{"finish_reason": choice.FinishReason},
			}:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()

	return out, errs
}

func (p *Plugin) IsTerminal(deltaOrResponse interface{}, convCtx *bridge.ConversationContext) bool {
	return p.DetectTermination(deltaOrResponse, convCtx).ShouldTerminate
}

// DetectTermination reuses OpenAI's finish_reason vocabulary: xAI's chat
// completions endpoint is OpenAI-compatible and emits the same
// stop/length/tool_calls/content_filter values.
func (p *Plugin) DetectTermination(deltaOrResponse interface{}, convCtx *bridge.ConversationContext) bridge.UnifiedTerminationSignal {
	reason := finishReasonOf(deltaOrResponse)
	if reason == "" {
		return bridge.UnifiedTerminationSignal{Reason: bridge.ReasonUnknown, Confidence: bridge.ConfidenceLow}
	}
	return bridge.OpenAIFinishReasonSignal(reason)
}

func finishReasonOf(v interface{}) string {
	switch t := v.(type) {
	case bridge.Message:
		return metaString(t.Metadata, "finish_reason")
	case *bridge.UnifiedResponse:
		return metaString(t.Metadata, "finish_reason")
	case bridge.StreamDelta:
		return metaString(t.Metadata, "finish_reason")
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
		return bridge.NewTransportError("xai request failed", err)
	}
	if resp == nil {
		return bridge.NewProviderError("xai request failed with no response", nil)
	}
	return bridge.DefaultNormalizeError(resp.Status, body, pluginID, resp.Headers)
}

// EstimateTokenUsage implements the optional bridge.TokenEstimator
// capability, preferring the live model context window fetched via
// xai-go's ListModels when available.
func (p *Plugin) EstimateTokenUsage(req *bridge.ChatRequest, caps bridge.ModelCapabilities) int {
	if caps.ContextLength == 0 {
		if window := p.contextWindow(req.Model); window > 0 {
			caps.ContextLength = window
		}
	}
	return bridge.DefaultEstimateTokenUsage(req, caps, 0, 0)
}
