package bridge

import (
	"fmt"
	"sync"
)

// StreamingState is the Streaming State Machine's state (spec §4.3).
type StreamingState string

const (
	StateIdle          StreamingState = "idle"
	StateStreaming     StreamingState = "streaming"
	StatePaused        StreamingState = "paused"
	StateToolExecution StreamingState = "tool_execution"
	StateResuming      StreamingState = "resuming"
)

// allowedTransitions enumerates the legal state graph (spec §4.3): every
// edge not listed here is rejected by Transition.
var allowedTransitions = map[StreamingState][]StreamingState{
	StateIdle:          {StateStreaming},
	StateStreaming:     {StatePaused, StateIdle},
	StatePaused:        {StateToolExecution},
	StateToolExecution: {StateResuming},
	StateResuming:      {StateStreaming, StateIdle},
}

// StreamingStateMachine guards the legal transitions of one in-flight
// streamed multi-turn exchange. Not safe for concurrent use from more
// than one goroutine advancing it simultaneously — callers serialize
// transitions through the Agent Loop's single iteration driver.
type StreamingStateMachine struct {
	mu    sync.Mutex
	state StreamingState
}

func NewStreamingStateMachine() *StreamingStateMachine {
	return &StreamingStateMachine{state: StateIdle}
}

func (m *StreamingStateMachine) Current() StreamingState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves to next if the edge is legal, else returns a
// StreamingIntegrationError describing the rejected edge.
func (m *StreamingStateMachine) Transition(next StreamingState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, allowed := range allowedTransitions[m.state] {
		if allowed == next {
			m.state = next
			return nil
		}
	}
	return createStateSynchronizationError(m.state, next)
}

// StreamingResult is the terminal outcome of handleStreamingResponse
// (spec §4.3): either a fully drained stream or a pause for tool
// execution, never both.
type StreamingResult struct {
	Deltas       []StreamDelta
	Paused       bool
	PendingCalls []ToolCall
	Response     *UnifiedResponse
}

// StreamingIntegrationError is the specialized error family for
// streaming/multi-turn interaction failures (spec §4.3, §7).
type StreamingIntegrationError struct {
	*MultiTurnExecutionError
	FromState StreamingState
	ToState   StreamingState
}

func createStreamingPauseError(from StreamingState, cause error) *StreamingIntegrationError {
	msg := fmt.Sprintf("failed to pause streaming from state %q for tool execution", from)
	mtErr := newMultiTurnError(KindStreaming, CodeStreamingError, msg, cause, MultiTurnContext{Phase: PhaseStreamingResponse}, RecoveryRetry)
	return &StreamingIntegrationError{MultiTurnExecutionError: mtErr, FromState: from, ToState: StatePaused}
}

// createToolExecutionDuringStreamingError's recovery action depends on
// whether any tool in the batch succeeded: partial success continues the
// turn with the successes folded in, total failure falls back to a
// non-streaming retry of the same turn (spec §4.3, §7).
func createToolExecutionDuringStreamingError(anySucceeded bool, cause error) *StreamingIntegrationError {
	recovery := RecoveryFallbackNonStreaming
	if anySucceeded {
		recovery = RecoveryContinue
	}
	mtErr := newMultiTurnError(KindStreaming, CodeStreamingError, "tool execution during streaming encountered an error", cause, MultiTurnContext{Phase: PhaseToolExecution}, recovery)
	return &StreamingIntegrationError{MultiTurnExecutionError: mtErr, FromState: StateToolExecution, ToState: StateToolExecution}
}

func createStreamingResumeError(cause error) *StreamingIntegrationError {
	mtErr := newMultiTurnError(KindStreaming, CodeStreamingError, "failed to resume streaming after tool execution", cause, MultiTurnContext{Phase: PhaseStreamingResponse}, RecoveryFallbackNonStreaming)
	return &StreamingIntegrationError{MultiTurnExecutionError: mtErr, FromState: StateResuming, ToState: StateStreaming}
}

func createStateSynchronizationError(from, to StreamingState) *StreamingIntegrationError {
	msg := fmt.Sprintf("illegal streaming state transition %q -> %q", from, to)
	mtErr := newMultiTurnError(KindStreaming, CodeStreamingError, msg, nil, MultiTurnContext{Phase: PhaseStateUpdate}, RecoveryAbort)
	return &StreamingIntegrationError{MultiTurnExecutionError: mtErr, FromState: from, ToState: to}
}

// handleStreamingResponse resets the machine to idle, moves it to
// streaming, and drains deltas from the plugin-parsed stream until either
// the stream naturally terminates or a delta carries tool calls requiring
// a pause (spec §4.3). PendingCalls is populated only in the paused case.
func (m *StreamingStateMachine) handleStreamingResponse(deltaCh <-chan StreamDelta, errCh <-chan error) (*StreamingResult, error) {
	m.mu.Lock()
	m.state = StateIdle
	m.mu.Unlock()
	if err := m.Transition(StateStreaming); err != nil {
		return nil, createStreamingPauseError(m.Current(), err)
	}

	var deltas []StreamDelta
	for {
		select {
		case delta, ok := <-deltaCh:
			if !ok {
				if err := m.Transition(StateIdle); err != nil {
					return nil, err
				}
				return &StreamingResult{Deltas: deltas}, nil
			}
			deltas = append(deltas, delta)
			if calls := delta.Delta.ToolCalls(); len(calls) > 0 {
				if err := m.Transition(StatePaused); err != nil {
					return nil, createStreamingPauseError(StateStreaming, err)
				}
				return &StreamingResult{Deltas: deltas, Paused: true, PendingCalls: calls}, nil
			}
			if delta.Finished {
				if err := m.Transition(StateIdle); err != nil {
					return nil, err
				}
				return &StreamingResult{Deltas: deltas}, nil
			}
		case err := <-errCh:
			if err != nil {
				return nil, NewStreamingError("stream delivery failed", err)
			}
		}
	}
}

// pauseForToolExecution transitions paused -> tool_execution immediately
// before dispatching calls to the ToolRouter (spec §4.3).
func (m *StreamingStateMachine) pauseForToolExecution(calls []ToolCall) error {
	if err := m.Transition(StateToolExecution); err != nil {
		anySucceeded := false
		return createToolExecutionDuringStreamingError(anySucceeded, err)
	}
	_ = calls
	return nil
}

// resumeAfterToolExecution transitions tool_execution -> resuming ->
// streaming once results are folded back into conversation history
// (spec §4.3). If any result failed and continueOnToolError is false,
// the caller should not call this and should instead terminate the turn.
func (m *StreamingStateMachine) resumeAfterToolExecution(results []ToolResult) error {
	if err := m.Transition(StateResuming); err != nil {
		anySucceeded := anyToolSucceeded(results)
		return createToolExecutionDuringStreamingError(anySucceeded, err)
	}
	if err := m.Transition(StateStreaming); err != nil {
		return createStreamingResumeError(err)
	}
	return nil
}

func anyToolSucceeded(results []ToolResult) bool {
	for _, r := range results {
		if r.Success {
			return true
		}
	}
	return false
}
