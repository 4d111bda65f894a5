package bridge

import (
	"context"
	"time"
)

// MultiTurnState is the Agent Loop's mutable record of one in-flight
// multi-turn exchange (spec §3, §4.8).
type MultiTurnState struct {
	Messages        []Message
	ToolCalls       []ToolCall
	Results         []ToolResult
	ShouldContinue  bool
	LastResponse    *UnifiedResponse

	Iteration         int
	TotalIterations   int
	StartTime         time.Time
	LastIterationTime time.Time
	StreamingState    StreamingState

	CompletedToolCalls []ToolCall
	PendingToolCalls   []ToolCall

	TerminationReason        *TerminationReason
	TerminationSignalHistory []UnifiedTerminationSignal
	CurrentTerminationSignal *UnifiedTerminationSignal
}

func newMultiTurnState(messages []Message) *MultiTurnState {
	now := time.Now()
	return &MultiTurnState{
		Messages:          append([]Message{}, messages...),
		ShouldContinue:    true,
		StartTime:         now,
		LastIterationTime: now,
		StreamingState:    StateIdle,
	}
}

// AgentLoop drives the multi-turn protocol of spec §4.8: repeatedly
// translate/send/parse a turn, dispatch any tool calls the assistant
// requested, fold results back into history, and re-check termination,
// until the Termination Analyzer says to stop or the Iteration Manager
// refuses to admit another turn.
type AgentLoop struct {
	plugin    ProviderPlugin
	transport Transport
	router    *ToolRouter
	logger    Logger
}

func NewAgentLoop(plugin ProviderPlugin, transport Transport, router *ToolRouter, logger Logger) *AgentLoop {
	if logger == nil {
		logger = NoopLogger{}
	}
	return &AgentLoop{plugin: plugin, transport: transport, router: router, logger: logger}
}

// Execute runs the full non-streaming multi-turn protocol and returns the
// final response once the loop terminates (spec §4.8).
func (al *AgentLoop) Execute(ctx context.Context, req *ChatRequest, caps *ModelCapabilities) (*UnifiedResponse, *MultiTurnState, error) {
	cfg := req.MultiTurn
	if cfg == nil {
		cfg = &MultiTurnConfig{}
	}
	im, err := NewIterationManager(cfg.MaxIterations, cfg.OverallTimeoutMs, cfg.IterationTimeoutMs)
	if err != nil {
		return nil, nil, err
	}

	state := newMultiTurnState(req.Messages)
	execCtx := al.router.CreateExecutionContext(state.Messages, nil)

	for {
		if err := im.startIteration(); err != nil {
			state.TerminationReason = reasonPtr(ReasonMaxIterations)
			return state.LastResponse, state, err
		}
		state.Iteration = im.iteration
		state.LastIterationTime = time.Now()

		if err := im.checkTimeouts(); err != nil {
			state.TerminationReason = reasonPtr(ReasonTimeout)
			return state.LastResponse, state, err
		}

		turnReq := *req
		turnReq.Messages = state.Messages
		httpReq, err := al.plugin.TranslateRequest(ctx, &turnReq, caps, al.conversationContext(state))
		if err != nil {
			return state.LastResponse, state, err
		}

		httpResp, err := al.transport.Fetch(ctx, *httpReq)
		if err != nil {
			return state.LastResponse, state, al.plugin.NormalizeError(err, nil, nil)
		}
		if httpResp.Status >= 400 {
			body := drainBody(httpResp)
			return state.LastResponse, state, al.plugin.NormalizeError(nil, httpResp, body)
		}

		resp, err := al.plugin.ParseResponse(ctx, httpResp)
		if err != nil {
			return state.LastResponse, state, err
		}
		state.LastResponse = resp
		state.Messages = append(state.Messages, resp.Message)

		calls := resp.Message.ToolCalls()
		var results []ToolResult
		if len(calls) > 0 {
			state.PendingToolCalls = calls
			strategy := cfg.ToolExecutionStrategy
			results = al.router.Execute(ctx, calls, execCtx, strategy, cfg.MaxConcurrentTools, time.Duration(cfg.ToolTimeoutMs)*time.Millisecond)
			state.PendingToolCalls = nil
			state.CompletedToolCalls = append(state.CompletedToolCalls, calls...)
			for _, r := range results {
				state.Messages = append(state.Messages, ToolResultMessage(r.CallID, toolResultText(r)))
			}
			im.completeIteration(results)

			if !cfg.continueOnToolError() && anyToolFailed(results) {
				state.TerminationReason = reasonPtr(ReasonError)
				return resp, state, NewToolError(calls[0].Name, nil)
			}
		} else {
			im.completeIteration(nil)
		}

		state.TotalIterations = im.iteration

		// A turn that just dispatched tool calls is never a termination
		// candidate: the assistant's own finish-reason ("tool_calls",
		// "tool_use", ...) reflects why it stopped generating this turn, not
		// whether the conversation is done, and the tool results still need
		// to reach the provider on the next iteration. Mirrors how the
		// streaming path pauses on tool-call detection before ever
		// consulting a finish-reason signal (streaming.go).
		if len(calls) == 0 {
			signal := AnalyzeConversationTermination(state.Messages, state, al.plugin)
			state.CurrentTerminationSignal = &signal
			state.TerminationSignalHistory = append(state.TerminationSignalHistory, signal)

			if signal.ShouldTerminate {
				reason := coarseTerminationReason(signal.Reason)
				state.TerminationReason = &reason
				state.ShouldContinue = false
				return resp, state, nil
			}
		}

		if err := im.checkTimeouts(); err != nil {
			reason := ReasonTimeout
			state.TerminationReason = &reason
			state.ShouldContinue = false
			return resp, state, err
		}
		if im.iteration >= im.maxIterations {
			reason := ReasonMaxIterations
			state.TerminationReason = &reason
			state.ShouldContinue = false
			return resp, state, NewMaxIterationsExceededError(im.iteration, im.maxIterations, im.errorContext(PhaseTerminationCheck))
		}
	}
}

// coarseTerminationReason folds the enhanced stop reasons into
// natural_completion for MultiTurnState.TerminationReason, per §4.8 step
// e, while the full-fidelity reason stays available on
// CurrentTerminationSignal.
func coarseTerminationReason(r TerminationReason) TerminationReason {
	switch r {
	case ReasonTokenLimitReached, ReasonContentFiltered, ReasonStopSequence:
		return ReasonNaturalCompletion
	default:
		return r
	}
}

func (al *AgentLoop) conversationContext(state *MultiTurnState) *ConversationContext {
	return &ConversationContext{
		History:              state.Messages,
		Iteration:            state.Iteration,
		TotalIterations:      state.TotalIterations,
		StartTime:            state.StartTime,
		LastIterationTime:    state.LastIterationTime,
		StreamingState:       state.StreamingState,
		ToolExecutionHistory: append(append([]ToolCall{}, state.CompletedToolCalls...), state.PendingToolCalls...),
	}
}

func reasonPtr(r TerminationReason) *TerminationReason { return &r }

func anyToolFailed(results []ToolResult) bool {
	for _, r := range results {
		if !r.Success {
			return true
		}
	}
	return false
}

func toolResultText(r ToolResult) string {
	if !r.Success {
		return r.Error
	}
	if s, ok := r.Data.(string); ok {
		return s
	}
	return jsonStringify(r.Data)
}
