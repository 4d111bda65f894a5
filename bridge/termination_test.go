package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeConversationTerminationWithNoMessagesIsUnknownLow(t *testing.T) {
	state := newMultiTurnState(nil)
	signal := AnalyzeConversationTermination(nil, state, nil)
	assert.Equal(t, ReasonUnknown, signal.Reason)
	assert.Equal(t, ConfidenceLow, signal.Confidence)
	assert.False(t, signal.ShouldTerminate)
}

func TestAnalyzeConversationTerminationWithoutAssistantMessageIsUnknownLow(t *testing.T) {
	state := newMultiTurnState([]Message{UserMessage("hi")})
	signal := AnalyzeConversationTermination(state.Messages, state, nil)
	assert.Equal(t, ReasonUnknown, signal.Reason)
}

func TestAnalyzeConversationTerminationWithNilPluginIsUnknownLow(t *testing.T) {
	messages := []Message{UserMessage("hi"), AssistantMessage("hello")}
	state := newMultiTurnState(messages)
	signal := AnalyzeConversationTermination(messages, state, nil)
	assert.Equal(t, ReasonUnknown, signal.Reason)
	assert.Equal(t, ConfidenceLow, signal.Confidence)
}

type panickingPlugin struct{ fakePlugin }

func (p *panickingPlugin) DetectTermination(deltaOrResponse interface{}, convCtx *ConversationContext) UnifiedTerminationSignal {
	panic("boom")
}

func TestSafeDetectTerminationRecoversPluginPanic(t *testing.T) {
	messages := []Message{UserMessage("hi"), AssistantMessage("hello")}
	state := newMultiTurnState(messages)
	signal := AnalyzeConversationTermination(messages, state, &panickingPlugin{})
	assert.False(t, signal.ShouldTerminate)
	assert.Equal(t, ReasonUnknown, signal.Reason)
	assert.Equal(t, ConfidenceLow, signal.Confidence)
	assert.Contains(t, signal.Message, "PROVIDER_ERROR")
}

func TestSafeDetectTerminationReturnsPluginSignalOnSuccess(t *testing.T) {
	messages := []Message{UserMessage("hi"), AssistantMessage("hello")}
	state := newMultiTurnState(messages)
	plugin := &fakePlugin{
		terminationSignal: UnifiedTerminationSignal{ShouldTerminate: true, Reason: ReasonNaturalCompletion, Confidence: ConfidenceHigh},
	}
	signal := AnalyzeConversationTermination(messages, state, plugin)
	assert.True(t, signal.ShouldTerminate)
	assert.Equal(t, ReasonNaturalCompletion, signal.Reason)
}
