package bridge

// TerminationReason is the unified completion reason (spec §3).
type TerminationReason string

const (
	ReasonNaturalCompletion TerminationReason = "natural_completion"
	ReasonMaxIterations     TerminationReason = "max_iterations"
	ReasonTimeout           TerminationReason = "timeout"
	ReasonCancelled         TerminationReason = "cancelled"
	ReasonError             TerminationReason = "error"
	ReasonTokenLimitReached TerminationReason = "token_limit_reached"
	ReasonContentFiltered   TerminationReason = "content_filtered"
	ReasonStopSequence      TerminationReason = "stop_sequence"
	ReasonUnknown           TerminationReason = "unknown"
)

// Confidence qualifies how certain a termination signal is (spec §3).
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ProviderSpecificSignal preserves the raw field/value a plugin mapped
// from, for debugging and for the default helper's decoration pass.
type ProviderSpecificSignal struct {
	OriginalField string
	OriginalValue string
	Metadata      map[string]interface{}
}

// UnifiedTerminationSignal is the provider-agnostic completion decision
// (spec §3).
type UnifiedTerminationSignal struct {
	ShouldTerminate bool
	Reason          TerminationReason
	Confidence      Confidence
	ProviderSpecific ProviderSpecificSignal
	Message         string
}

func unknownLowSignal(field, value, message string) UnifiedTerminationSignal {
	return UnifiedTerminationSignal{
		ShouldTerminate: false,
		Reason:          ReasonUnknown,
		Confidence:      ConfidenceLow,
		ProviderSpecific: ProviderSpecificSignal{OriginalField: field, OriginalValue: value},
		Message:         message,
	}
}

// AnalyzeConversationTermination implements spec §4.4's
// analyzeConversationTermination(messages, state, plugin?).
func AnalyzeConversationTermination(messages []Message, state *MultiTurnState, plugin ProviderPlugin) UnifiedTerminationSignal {
	if len(messages) == 0 {
		return unknownLowSignal("message_count", "0", "No messages to analyze for termination")
	}

	var lastAssistant *Message
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleAssistant {
			m := messages[i]
			lastAssistant = &m
			break
		}
	}
	if lastAssistant == nil {
		return unknownLowSignal("assistant_message", "absent", "No assistant message to analyze for termination")
	}

	convCtx := &ConversationContext{
		History:              state.Messages,
		Iteration:            state.Iteration,
		TotalIterations:      state.TotalIterations,
		StartTime:            state.StartTime,
		LastIterationTime:    state.LastIterationTime,
		StreamingState:       state.StreamingState,
		ToolExecutionHistory: append(append([]ToolCall{}, state.CompletedToolCalls...), state.PendingToolCalls...),
	}

	if plugin == nil {
		return UnifiedTerminationSignal{
			ShouldTerminate: false,
			Reason:          ReasonUnknown,
			Confidence:      ConfidenceLow,
			ProviderSpecific: ProviderSpecificSignal{OriginalField: "fallback"},
		}
	}

	return safeDetectTermination(plugin, *lastAssistant, convCtx)
}

// safeDetectTermination calls plugin.DetectTermination while recovering
// from a panic, wrapping it as a ProviderError via the returned signal's
// Message — the analyzer's second line of defense for the §9 "never
// throw from plugin termination detection" decision.
func safeDetectTermination(plugin ProviderPlugin, deltaOrResponse interface{}, convCtx *ConversationContext) (signal UnifiedTerminationSignal) {
	defer func() {
		if r := recover(); r != nil {
			signal = UnifiedTerminationSignal{
				ShouldTerminate: false,
				Reason:          ReasonUnknown,
				Confidence:      ConfidenceLow,
				ProviderSpecific: ProviderSpecificSignal{OriginalField: "panic", OriginalValue: "recovered"},
				Message:         NewProviderError("plugin DetectTermination panicked", nil).Error(),
			}
		}
	}()
	return plugin.DetectTermination(deltaOrResponse, convCtx)
}
