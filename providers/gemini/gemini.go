// Package gemini adapts the Google Gemini generateContent REST API onto
// the bridge.ProviderPlugin contract (spec §4.2). Unlike the openai-go and
// anthropic-sdk-go clients, generative-ai-go's genai.Client executes
// requests itself rather than exposing translatable param/response types,
// so this plugin mirrors the REST wire shape directly while still
// depending on genai for its FinishReason vocabulary (kept consistent
// with the rest of this repository's termination mapping).
package gemini

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/generative-ai-go/genai"

	"github.com/deepbridge/llm-bridge/bridge"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	pluginID       = "gemini"
	pluginVersion  = "1.0.0"
)

// Plugin implements bridge.ProviderPlugin for Gemini.
//
// Key differences from OpenAI/Anthropic, carried over from the adapter
// this is grounded on:
//   - system prompt travels as systemInstruction, not a message
//   - roles are "user" and "model", not "assistant"
//   - temperature is clamped to [0, 1]
type Plugin struct {
	apiKey  string
	baseURL string
}

func New() *Plugin {
	return &Plugin{baseURL: defaultBaseURL}
}

func (p *Plugin) ID() string      { return pluginID }
func (p *Plugin) Name() string    { return "Gemini" }
func (p *Plugin) Version() string { return pluginVersion }

func (p *Plugin) Initialize(ctx context.Context, config map[string]interface{}) error {
	if key, ok := config["apiKey"].(string); ok && key != "" {
		p.apiKey = key
	}
	if p.apiKey == "" {
		return bridge.NewInvalidConfigError("gemini provider config requires apiKey")
	}
	if url, ok := config["baseURL"].(string); ok && url != "" {
		p.baseURL = strings.TrimSuffix(url, "/")
	}
	return nil
}

type geminiPart struct {
	Text         string              `json:"text,omitempty"`
	FunctionCall *geminiFunctionCall `json:"functionCall,omitempty"`
	FunctionResp *geminiFunctionResp `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args,omitempty"`
}

type geminiFunctionResp struct {
	Name     string                 `json:"name"`
	Response map[string]interface{} `json:"response,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiFunctionDecl struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	Tools             []geminiTool            `json:"tools,omitempty"`
}

func (p *Plugin) TranslateRequest(ctx context.Context, req *bridge.ChatRequest, caps *bridge.ModelCapabilities, convCtx *bridge.ConversationContext) (*bridge.HttpRequest, error) {
	body := geminiRequest{}

	for _, m := range req.Messages {
		if m.Role == bridge.RoleSystem {
			body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: m.Text()}}}
			continue
		}
		body.Contents = append(body.Contents, encodeMessage(m))
	}
	if len(body.Contents) == 0 {
		return nil, bridge.NewValidationError("gemini request requires at least one user/model message")
	}

	cfg := &geminiGenerationConfig{}
	hasCfg := false
	if caps != nil && caps.SupportsTemperature && req.Temperature != nil {
		t := *req.Temperature
		if t > 1.0 {
			t = 1.0
		}
		if t < 0 {
			t = 0
		}
		cfg.Temperature = &t
		hasCfg = true
	}
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		cfg.MaxOutputTokens = *req.MaxTokens
		hasCfg = true
	}
	if hasCfg {
		body.GenerationConfig = cfg
	}

	if caps != nil && caps.ToolCalls && len(req.Tools) > 0 {
		decls := make([]geminiFunctionDecl, len(req.Tools))
		for i, t := range req.Tools {
			decls[i] = geminiFunctionDecl{Name: t.Name, Description: t.Description, Parameters: t.InputSchema}
		}
		body.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, bridge.NewValidationError("failed to encode gemini request: " + err.Error())
	}

	action := "generateContent"
	if req.Stream {
		action = "streamGenerateContent?alt=sse"
	}
	sep := "?"
	if strings.Contains(action, "?") {
		sep = "&"
	}
	url := p.baseURL + "/models/" + req.Model + ":" + action + sep + "key=" + p.apiKey

	return &bridge.HttpRequest{
		URL:     url,
		Method:  "POST",
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    payload,
	}, nil
}

func encodeMessage(m bridge.Message) geminiContent {
	role := "user"
	if m.Role == bridge.RoleAssistant {
		role = "model"
	}
	var parts []geminiPart
	for _, part := range m.Content {
		switch part.Type {
		case bridge.ContentText:
			if part.Text != "" {
				parts = append(parts, geminiPart{Text: part.Text})
			}
		case bridge.ContentToolUse:
			if part.ToolUse != nil {
				parts = append(parts, geminiPart{FunctionCall: &geminiFunctionCall{Name: part.ToolUse.Name, Args: part.ToolUse.Parameters}})
			}
		}
	}
	if m.Role == bridge.RoleTool {
		var resp map[string]interface{}
		_ = json.Unmarshal([]byte(m.Text()), &resp)
		parts = append(parts, geminiPart{FunctionResp: &geminiFunctionResp{Name: m.ToolCallID(), Response: resp}})
	}
	return geminiContent{Role: role, Parts: parts}
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata geminiUsage       `json:"usageMetadata"`
}

func (p *Plugin) ParseResponse(ctx context.Context, resp *bridge.HttpResponse) (*bridge.UnifiedResponse, error) {
	if resp.Body == nil {
		return nil, bridge.NewValidationError("gemini response has no body")
	}
	defer resp.Body.Close()

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, bridge.NewValidationError("malformed gemini response: " + err.Error())
	}
	if len(gr.Candidates) == 0 {
		return nil, bridge.NewValidationError("gemini response has no candidates")
	}

	candidate := gr.Candidates[0]
	parts, calls := decodeParts(candidate.Content.Parts)
	assistant := bridge.NewMessage(bridge.RoleAssistant, parts...)
	if len(calls) > 0 {
		if assistant.Metadata == nil {
			assistant.Metadata = map[string]interface{}{}
		}
		assistant.Metadata["toolCalls"] = calls
	}
	if assistant.Metadata == nil {
		assistant.Metadata = map[string]interface{}{}
	}
	assistant.Metadata["finish_reason"] = candidate.FinishReason

	return &bridge.UnifiedResponse{
		Message: assistant,
		Usage: &bridge.Usage{
			PromptTokens:     gr.UsageMetadata.PromptTokenCount,
			CompletionTokens: gr.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      gr.UsageMetadata.TotalTokenCount,
		},
		Metadata: map[string]interface{}{"finish_reason": candidate.FinishReason},
	}, nil
}

func decodeParts(parts []geminiPart) ([]bridge.ContentPart, []bridge.ToolCall) {
	var out []bridge.ContentPart
	var calls []bridge.ToolCall
	for _, part := range parts {
		if part.Text != "" {
			out = append(out, bridge.TextPart(part.Text))
		}
		if part.FunctionCall != nil {
			call := bridge.ToolCall{Name: part.FunctionCall.Name, Parameters: part.FunctionCall.Args}
			calls = append(calls, call)
			out = append(out, bridge.ToolUsePart(call))
		}
	}
	return out, calls
}

// ParseStream decodes Gemini's SSE stream of GenerateContentResponse
// chunks, each a full geminiResponse snapshot of the candidate so far
// (spec §6). Gemini has no "[DONE]" sentinel; the final chunk instead
// carries a non-empty finishReason.
func (p *Plugin) ParseStream(ctx context.Context, chunks <-chan []byte) (<-chan bridge.StreamDelta, <-chan error) {
	out := make(chan bridge.StreamDelta)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		for event := range bridge.ParseSSE(chunks) {
			var gr geminiResponse
			if skipped := bridge.DecodeSSEData(event, &gr); skipped || len(gr.Candidates) == 0 {
				continue
			}
			candidate := gr.Candidates[0]
			parts, _ := decodeParts(candidate.Content.Parts)
			delta := bridge.NewMessage(bridge.RoleAssistant, parts...)
			finished := candidate.FinishReason != "" && candidate.FinishReason != genai.FinishReasonUnspecified.String()
			if finished {
				delta.Metadata = map[string]interface{}{"finish_reason": candidate.FinishReason}
			}
			select {
			case out <- bridge.StreamDelta{
				Delta:    delta,
				Finished: finished,
				Metadata: map[string]interface{}{"finish_reason": candidate.FinishReason},
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
		return bridge.UnifiedTerminationSignal{Reason: bridge.ReasonUnknown, Confidence: bridge.ConfidenceMedium}
	}
	return bridge.GeminiFinishReasonSignal(reason)
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
		return bridge.NewTransportError("gemini request failed", err)
	}
	if resp == nil {
		return bridge.NewProviderError("gemini request failed with no response", nil)
	}
	return bridge.DefaultNormalizeError(resp.Status, body, pluginID, resp.Headers)
}
