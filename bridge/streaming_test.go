package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamingStateMachineStartsIdle(t *testing.T) {
	m := NewStreamingStateMachine()
	assert.Equal(t, StateIdle, m.Current())
}

func TestStreamingStateMachineAllowsLegalTransition(t *testing.T) {
	m := NewStreamingStateMachine()
	require.NoError(t, m.Transition(StateStreaming))
	assert.Equal(t, StateStreaming, m.Current())
}

func TestStreamingStateMachineRejectsIllegalTransition(t *testing.T) {
	m := NewStreamingStateMachine()
	err := m.Transition(StateToolExecution)
	require.Error(t, err)
	assert.True(t, IsStreamingError(err))
	assert.Equal(t, StateIdle, m.Current())
}

func TestStreamingStateMachineFullLifecycle(t *testing.T) {
	m := NewStreamingStateMachine()
	require.NoError(t, m.Transition(StateStreaming))
	require.NoError(t, m.Transition(StatePaused))
	require.NoError(t, m.Transition(StateToolExecution))
	require.NoError(t, m.Transition(StateResuming))
	require.NoError(t, m.Transition(StateStreaming))
	require.NoError(t, m.Transition(StateIdle))
	assert.Equal(t, StateIdle, m.Current())
}

func TestHandleStreamingResponseDrainsToCompletion(t *testing.T) {
	m := NewStreamingStateMachine()
	deltaCh := make(chan StreamDelta, 2)
	errCh := make(chan error, 1)
	deltaCh <- StreamDelta{Delta: NewMessage(RoleAssistant, TextPart("hi"))}
	deltaCh <- StreamDelta{Delta: NewMessage(RoleAssistant, TextPart(" there")), Finished: true}
	close(deltaCh)

	result, err := m.handleStreamingResponse(deltaCh, errCh)
	require.NoError(t, err)
	assert.False(t, result.Paused)
	assert.Len(t, result.Deltas, 2)
	assert.Equal(t, StateIdle, m.Current())
}

func TestHandleStreamingResponsePausesOnToolCalls(t *testing.T) {
	m := NewStreamingStateMachine()
	deltaCh := make(chan StreamDelta, 1)
	errCh := make(chan error, 1)
	call := ToolCall{ID: "c1", Name: "echo"}
	deltaCh <- StreamDelta{Delta: NewMessage(RoleAssistant, ToolUsePart(call))}

	result, err := m.handleStreamingResponse(deltaCh, errCh)
	require.NoError(t, err)
	assert.True(t, result.Paused)
	require.Len(t, result.PendingCalls, 1)
	assert.Equal(t, "echo", result.PendingCalls[0].Name)
	assert.Equal(t, StatePaused, m.Current())
}

func TestResumeAfterToolExecutionReturnsToStreaming(t *testing.T) {
	m := NewStreamingStateMachine()
	require.NoError(t, m.Transition(StateStreaming))
	require.NoError(t, m.Transition(StatePaused))
	require.NoError(t, m.Transition(StateToolExecution))

	err := m.resumeAfterToolExecution([]ToolResult{{CallID: "c1", Success: true}})
	require.NoError(t, err)
	assert.Equal(t, StateStreaming, m.Current())
}

func TestPauseForToolExecutionFromWrongStateErrors(t *testing.T) {
	m := NewStreamingStateMachine()
	err := m.pauseForToolExecution(nil)
	require.Error(t, err)
	assert.True(t, IsStreamingError(err))
}
