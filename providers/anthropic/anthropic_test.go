package anthropic

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepbridge/llm-bridge/bridge"
)

func newTestPlugin(t *testing.T) *Plugin {
	p := New()
	require.NoError(t, p.Initialize(context.Background(), map[string]interface{}{"apiKey": "sk-ant-test"}))
	return p
}

func TestTranslateRequestSeparatesSystemMessages(t *testing.T) {
	p := newTestPlugin(t)
	req := &bridge.ChatRequest{
		Model: "claude-sonnet-4-5",
		Messages: []bridge.Message{
			bridge.SystemMessage("be terse"),
			bridge.UserMessage("hi"),
		},
	}
	httpReq, err := p.TranslateRequest(context.Background(), req, &bridge.ModelCapabilities{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-test", httpReq.Headers["x-api-key"])
	assert.Contains(t, string(httpReq.Body), "be terse")
}

func TestTranslateRequestRejectsEmptyConversation(t *testing.T) {
	p := newTestPlugin(t)
	req := &bridge.ChatRequest{
		Model:    "claude-sonnet-4-5",
		Messages: []bridge.Message{bridge.SystemMessage("only system")},
	}
	_, err := p.TranslateRequest(context.Background(), req, &bridge.ModelCapabilities{}, nil)
	require.Error(t, err)
	assert.True(t, bridge.IsValidationError(err))
}

func TestParseResponseExtractsToolUse(t *testing.T) {
	p := newTestPlugin(t)
	body := `{
		"id": "msg_1",
		"model": "claude-sonnet-4-5",
		"stop_reason": "tool_use",
		"content": [
			{"type": "text", "text": "let me check"},
			{"type": "tool_use", "id": "toolu_1", "name": "echo", "input": {"text": "hi"}}
		],
		"usage": {"input_tokens": 10, "output_tokens": 4}
	}`
	resp := &bridge.HttpResponse{Status: 200, Body: io.NopCloser(strings.NewReader(body))}
	out, err := p.ParseResponse(context.Background(), resp)
	require.NoError(t, err)
	calls := out.Message.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "echo", calls[0].Name)
	assert.Equal(t, 14, out.Usage.TotalTokens)
}

func TestDetectTerminationMapsMaxTokens(t *testing.T) {
	p := newTestPlugin(t)
	resp := &bridge.UnifiedResponse{Metadata: map[string]interface{}{"stop_reason": "max_tokens"}}
	signal := p.DetectTermination(resp, nil)
	assert.True(t, signal.ShouldTerminate)
	assert.Equal(t, bridge.ReasonTokenLimitReached, signal.Reason)
}

func TestDetectTerminationUnknownIsMediumConfidence(t *testing.T) {
	p := newTestPlugin(t)
	resp := &bridge.UnifiedResponse{Metadata: map[string]interface{}{"stop_reason": "pause_turn"}}
	signal := p.DetectTermination(resp, nil)
	assert.False(t, signal.ShouldTerminate)
	assert.Equal(t, bridge.ConfidenceMedium, signal.Confidence)
}

func TestMarkForCachingSetsBetaHeader(t *testing.T) {
	p := newTestPlugin(t)
	req := &bridge.HttpRequest{}
	p.MarkForCaching(req)
	assert.Equal(t, cacheBetaFeature, req.Headers[cacheBetaHeader])
}
