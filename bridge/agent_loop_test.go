package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAgentLoop(t *testing.T, plugin ProviderPlugin) *AgentLoop {
	t.Helper()
	registry := NewToolRegistry()
	require.NoError(t, registry.Register(validToolDef("echo"), noopHandler, false))
	router := NewToolRouter(registry, nil)
	return NewAgentLoop(plugin, &fakeTransport{}, router, nil)
}

func toolCallMessage(callID string) Message {
	return NewMessage(RoleAssistant, ToolUsePart(ToolCall{ID: callID, Name: "echo", Parameters: map[string]interface{}{"text": "hi"}}))
}

// TestAgentLoopExecutePairsToolResultWithNextIterationRequest covers
// spec §8 scenario S4: iteration 2's request must carry a tool-role
// message immediately following the iteration-1 assistant message, and
// the loop must not terminate on the iteration that just dispatched the
// tool call even though the provider's own finish reason maps to
// ShouldTerminate=true for a natural-language completion.
func TestAgentLoopExecutePairsToolResultWithNextIterationRequest(t *testing.T) {
	plugin := &fakePlugin{
		responses: []*UnifiedResponse{
			{Message: toolCallMessage("call-1")},
			{Message: AssistantMessage("done")},
		},
		terminationSignal: UnifiedTerminationSignal{ShouldTerminate: true, Reason: ReasonNaturalCompletion, Confidence: ConfidenceHigh},
	}
	loop := newTestAgentLoop(t, plugin)

	resp, state, err := loop.Execute(context.Background(), &ChatRequest{
		Messages: []Message{UserMessage("hi")},
		Model:    "fake-model",
	}, &ModelCapabilities{})

	require.NoError(t, err)
	assert.Equal(t, "done", resp.Message.Text())
	assert.Equal(t, 2, state.TotalIterations)

	var assistantIdx = -1
	for i, m := range state.Messages {
		if m.Role == RoleAssistant && len(m.ToolCalls()) > 0 {
			assistantIdx = i
			break
		}
	}
	require.NotEqual(t, -1, assistantIdx, "expected the tool-calling assistant message to be present")
	require.Less(t, assistantIdx+1, len(state.Messages), "expected a message to follow the tool-calling assistant message")
	next := state.Messages[assistantIdx+1]
	assert.Equal(t, RoleTool, next.Role)
	assert.Equal(t, "call-1", next.ToolCallID())
}

// TestAgentLoopExecuteReturnsMaxIterationsExceeded covers spec §8
// scenario S5: with maxIterations=2 and every assistant message
// carrying a new tool call, the loop must refuse a third iteration with
// MaxIterationsExceededError{currentIteration: 2}.
func TestAgentLoopExecuteReturnsMaxIterationsExceeded(t *testing.T) {
	plugin := &fakePlugin{
		responses: []*UnifiedResponse{
			{Message: toolCallMessage("call-1")},
			{Message: toolCallMessage("call-2")},
			{Message: toolCallMessage("call-3")},
		},
	}
	loop := newTestAgentLoop(t, plugin)

	_, state, err := loop.Execute(context.Background(), &ChatRequest{
		Messages: []Message{UserMessage("hi")},
		Model:    "fake-model",
		MultiTurn: &MultiTurnConfig{MaxIterations: 2},
	}, &ModelCapabilities{})

	require.Error(t, err)
	exceeded, ok := AsMaxIterationsExceeded(err)
	require.True(t, ok)
	assert.Equal(t, 2, exceeded.CurrentIteration)
	assert.Equal(t, 2, exceeded.MaxIterations)
	assert.Equal(t, ReasonMaxIterations, *state.TerminationReason)
}
