package bridge

// Usage carries provider token accounting, preserved into response
// metadata so the Termination Analyzer and callers have material
// (spec §6).
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// UnifiedResponse is the non-streaming parse result of a Provider
// Plugin's ParseResponse (spec §4.2).
type UnifiedResponse struct {
	Message  Message
	Usage    *Usage
	Model    string
	Metadata map[string]interface{}
}

// StreamDelta is one increment of a streamed response (spec §3).
// Invariant: exactly one delta per response has Finished = true, and it
// is the last delta emitted, unless the stream is aborted.
type StreamDelta struct {
	ID       string
	Delta    Message
	Finished bool
	Usage    *Usage
	Metadata map[string]interface{}
}
