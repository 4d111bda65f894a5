// Package openai adapts the OpenAI chat completions wire format onto the
// bridge.ProviderPlugin contract (spec §4.2), translating requests and
// parsing responses through the official SDK's param/response types while
// leaving actual network I/O to the caller's bridge.Transport.
package openai

import (
	"context"
	"encoding/json"
	"strings"

	oai "github.com/openai/openai-go/v3"

	"github.com/deepbridge/llm-bridge/bridge"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	pluginID       = "openai"
	pluginVersion  = "1.0.0"
)

// Plugin implements bridge.ProviderPlugin for OpenAI and OpenAI-compatible
// APIs (Azure OpenAI, Ollama, vLLM) via a custom base URL, mirroring the
// adapter's documented compatibility surface.
type Plugin struct {
	apiKey  string
	baseURL string
}

func New() *Plugin {
	return &Plugin{baseURL: defaultBaseURL}
}

func (p *Plugin) ID() string      { return pluginID }
func (p *Plugin) Name() string    { return "OpenAI" }
func (p *Plugin) Version() string { return pluginVersion }

// Initialize reads apiKey/baseURL out of the provider config block (spec
// §4.1 provider config shape). Safe to call only once per BridgeClient,
// enforced by the client rather than the plugin.
func (p *Plugin) Initialize(ctx context.Context, config map[string]interface{}) error {
	if key, ok := config["apiKey"].(string); ok && key != "" {
		p.apiKey = key
	}
	if p.apiKey == "" {
		return bridge.NewInvalidConfigError("openai provider config requires apiKey")
	}
	if url, ok := config["baseURL"].(string); ok && url != "" {
		p.baseURL = strings.TrimSuffix(url, "/")
	}
	return nil
}

func (p *Plugin) TranslateRequest(ctx context.Context, req *bridge.ChatRequest, caps *bridge.ModelCapabilities, convCtx *bridge.ConversationContext) (*bridge.HttpRequest, error) {
	params := oai.ChatCompletionNewParams{
		Model:    oai.ChatModel(req.Model),
		Messages: convertMessages(req.Messages),
	}
	if caps != nil && caps.SupportsTemperature && req.Temperature != nil {
		params.Temperature = oai.Float(*req.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxTokens = oai.Int(int64(*req.MaxTokens))
	}
	if caps != nil && caps.ToolCalls && len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, bridge.NewValidationError("failed to encode openai request: " + err.Error())
	}

	path := "/chat/completions"
	if req.Stream {
		var raw map[string]interface{}
		if err := json.Unmarshal(body, &raw); err == nil {
			raw["stream"] = true
			body, _ = json.Marshal(raw)
		}
	}

	return &bridge.HttpRequest{
		URL:    p.baseURL + path,
		Method: "POST",
		Headers: map[string]string{
			"Content-Type":  "application/json",
			"Authorization": "Bearer " + p.apiKey,
		},
		Body: body,
	}, nil
}

func (p *Plugin) ParseResponse(ctx context.Context, resp *bridge.HttpResponse) (*bridge.UnifiedResponse, error) {
	if resp.Body == nil {
		return nil, bridge.NewValidationError("openai response has no body")
	}
	defer resp.Body.Close()

	var completion oai.ChatCompletion
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, bridge.NewValidationError("malformed openai response: " + err.Error())
	}
	if len(completion.Choices) == 0 {
		return nil, bridge.NewValidationError("openai response has no choices")
	}

	choice := completion.Choices[0]
	msg := bridge.AssistantMessage(choice.Message.Content)
	if len(choice.Message.ToolCalls) > 0 {
		calls := make([]bridge.ToolCall, 0, len(choice.Message.ToolCalls))
		for _, tc := range choice.Message.ToolCalls {
			var params map[string]interface{}
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &params)
			calls = append(calls, bridge.ToolCall{ID: tc.ID, Name: tc.Function.Name, Parameters: params})
		}
		if msg.Metadata == nil {
			msg.Metadata = map[string]interface{}{}
		}
		msg.Metadata["toolCalls"] = calls
	}
	if msg.Metadata == nil {
		msg.Metadata = map[string]interface{}{}
	}
	msg.Metadata["finish_reason"] = string(choice.FinishReason)

	return &bridge.UnifiedResponse{
		Message: msg,
		Usage: &bridge.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
		Model:    completion.Model,
		Metadata: map[string]interface{}{"finish_reason": string(choice.FinishReason)},
	}, nil
}

// ParseStream decodes an SSE byte stream of ChatCompletionChunk events into
// StreamDeltas, honoring the "[DONE]" sentinel (spec §6).
func (p *Plugin) ParseStream(ctx context.Context, chunks <-chan []byte) (<-chan bridge.StreamDelta, <-chan error) {
	out := make(chan bridge.StreamDelta)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		for event := range bridge.ParseSSE(chunks) {
			var chunk oai.ChatCompletionChunk
			if skipped := bridge.DecodeSSEData(event, &chunk); skipped {
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			delta := bridge.Message{}
			if choice.Delta.Content != "" {
				delta = bridge.AssistantMessage(choice.Delta.Content)
			}
			finished := choice.FinishReason != ""
			if finished {
				if delta.Metadata == nil {
					delta.Metadata = map[string]interface{}{}
				}
				delta.Metadata["finish_reason"] = string(choice.FinishReason)
			}
			select {
			case out <- bridge.StreamDelta{
				ID:       chunk.ID,
				Delta:    delta,
				Finished: finished,
				Metadata: map[string]interface{}{"finish_reason": string(choice.FinishReason)},
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
		return bridge.NewTransportError("openai request failed", err)
	}
	if resp == nil {
		return bridge.NewProviderError("openai request failed with no response", nil)
	}
	return bridge.DefaultNormalizeError(resp.Status, body, pluginID, resp.Headers)
}

// EstimateTokenUsage implements the optional bridge.TokenEstimator
// capability using the shared heuristic (spec §4.2).
func (p *Plugin) EstimateTokenUsage(req *bridge.ChatRequest, caps bridge.ModelCapabilities) int {
	return bridge.DefaultEstimateTokenUsage(req, caps, 0, 0)
}

func convertMessages(messages []bridge.Message) []oai.ChatCompletionMessageParamUnion {
	out := make([]oai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case bridge.RoleSystem:
			out = append(out, oai.SystemMessage(m.Text()))
		case bridge.RoleUser:
			out = append(out, oai.UserMessage(m.Text()))
		case bridge.RoleAssistant:
			out = append(out, oai.AssistantMessage(m.Text()))
		case bridge.RoleTool:
			out = append(out, oai.ToolMessage(m.ToolCallID(), m.Text()))
		default:
			out = append(out, oai.UserMessage(m.Text()))
		}
	}
	return out
}

func convertTools(tools []bridge.ToolDefinition) []oai.ChatCompletionToolUnionParam {
	out := make([]oai.ChatCompletionToolUnionParam, len(tools))
	for i, t := range tools {
		out[i] = oai.ChatCompletionFunctionTool(oai.FunctionDefinitionParam{
			Name:        t.Name,
			Description: oai.String(t.Description),
			Parameters:  oai.FunctionParameters(t.InputSchema),
		})
	}
	return out
}
