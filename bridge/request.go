package bridge

// ToolExecutionStrategy controls whether the Tool Router dispatches a
// turn's tool calls sequentially or concurrently (spec §4.6).
type ToolExecutionStrategy string

const (
	ToolExecutionSequential ToolExecutionStrategy = "sequential"
	ToolExecutionParallel   ToolExecutionStrategy = "parallel"
)

// MultiTurnConfig governs the Agent Loop / Iteration Manager for a single
// chat/stream call (spec §4.5, §4.8).
type MultiTurnConfig struct {
	// MaxIterations caps the number of provider round-trips. Default 10,
	// hard cap 1000 (spec §4.5).
	MaxIterations int

	// OverallTimeoutMs bounds the whole multi-turn execution. Hard cap
	// 24h. Zero means "unset".
	OverallTimeoutMs int64

	// IterationTimeoutMs bounds a single iteration. Must be strictly less
	// than OverallTimeoutMs when both are set. Zero means "unset".
	IterationTimeoutMs int64

	// ToolExecutionStrategy selects sequential or parallel tool dispatch.
	// Defaults to ToolExecutionSequential.
	ToolExecutionStrategy ToolExecutionStrategy

	// MaxConcurrentTools bounds parallel tool execution concurrency.
	MaxConcurrentTools int

	// ToolTimeoutMs bounds a single tool invocation. Zero means "unset".
	ToolTimeoutMs int64

	// ContinueOnToolError controls §7 tool-error propagation policy.
	// Defaults to true (continue the loop with a failed ToolResult).
	ContinueOnToolError *bool
}

func (c *MultiTurnConfig) continueOnToolError() bool {
	if c == nil || c.ContinueOnToolError == nil {
		return true
	}
	return *c.ContinueOnToolError
}

// ChatRequest is the unified request submitted to BridgeClient.Chat /
// BridgeClient.Stream (spec §3).
type ChatRequest struct {
	Messages    []Message
	Model       string
	Temperature *float64
	MaxTokens   *int
	Tools       []ToolDefinition
	Options     map[string]interface{}
	MultiTurn   *MultiTurnConfig
	Stream      bool
}

// Validate enforces the request-level invariants from spec §3 that do
// not depend on client configuration (the "tools enabled" cross-check
// against BridgeClientConfig is performed by BridgeClient itself).
func (r *ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return NewValidationError("chat request must contain at least one message")
	}
	if r.Model == "" {
		return NewValidationError("chat request must specify a model")
	}
	seen := make(map[string]bool, len(r.Tools))
	for _, t := range r.Tools {
		if seen[t.Name] {
			return NewValidationError("duplicate tool name in request: " + t.Name)
		}
		seen[t.Name] = true
	}
	for i := range r.Messages {
		if err := r.Messages[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ShouldExecuteMultiTurn implements spec §4.8's
// shouldExecuteMultiTurn(request, toolsEnabled).
func ShouldExecuteMultiTurn(r *ChatRequest, toolsEnabled bool) bool {
	return toolsEnabled && len(r.Tools) > 0 && r.MultiTurn != nil
}
