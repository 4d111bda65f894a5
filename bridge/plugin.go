package bridge

import (
	"context"
	"io"
	"time"
)

// HttpRequest is the Transport Contract's request shape (spec §6).
type HttpRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    []byte
}

// HttpResponse is the Transport Contract's response shape (spec §6).
// Body is a single reader for non-streaming responses; streaming
// responses are consumed chunk-by-chunk via Transport.Stream instead.
type HttpResponse struct {
	Status     int
	StatusText string
	Headers    map[string]string
	Body       io.ReadCloser
}

// Transport is the consumed HTTP contract (spec §6): fetch for a single
// buffered response, stream for an incremental byte sequence (typically
// SSE). Cancellation flows through ctx, honoring the caller's signal.
type Transport interface {
	Fetch(ctx context.Context, req HttpRequest) (*HttpResponse, error)
	Stream(ctx context.Context, req HttpRequest) (<-chan []byte, <-chan error, error)
}

// ModelCapabilities gates which request fields a plugin may populate
// when translating a request (spec §3 Model Registry entry).
type ModelCapabilities struct {
	Streaming              bool
	ToolCalls              bool
	Images                 bool
	Documents              bool
	SupportsTemperature    bool
	MaxTokens              int
	ContextLength           int
	SupportedContentTypes  []ContentPartType
}

// ConversationContext is built from MultiTurnState for termination
// analysis and request translation (spec §4.2, §4.4).
type ConversationContext struct {
	History            []Message
	Iteration          int
	TotalIterations    int
	StartTime          time.Time
	LastIterationTime  time.Time
	StreamingState     StreamingState
	ToolExecutionHistory []ToolCall
}

// ProviderPlugin is the polymorphic per-provider adapter (spec §4.2).
// Every method is pure with respect to plugin state except Initialize,
// which must run exactly once (enforced by BridgeClient, not the
// plugin itself) before any translation.
type ProviderPlugin interface {
	ID() string
	Name() string
	Version() string

	// Initialize is one-shot; must complete before TranslateRequest.
	Initialize(ctx context.Context, config map[string]interface{}) error

	// TranslateRequest maps the unified request onto the provider's wire
	// format. Capability-gated options (e.g. temperature) must be
	// omitted when the model disallows them.
	TranslateRequest(ctx context.Context, req *ChatRequest, caps *ModelCapabilities, convCtx *ConversationContext) (*HttpRequest, error)

	// ParseResponse consumes a full non-streaming body and validates it
	// against the provider schema, failing with a ValidationError.
	ParseResponse(ctx context.Context, resp *HttpResponse) (*UnifiedResponse, error)

	// ParseStream returns a lazy sequence of StreamDelta; suspension
	// points are exactly the chunk boundaries delivered by the
	// transport. The channel is closed after the terminal delta or on
	// error (errCh receives at most one error).
	ParseStream(ctx context.Context, resp <-chan []byte) (<-chan StreamDelta, <-chan error)

	// IsTerminal must agree with DetectTermination(...).ShouldTerminate.
	IsTerminal(deltaOrResponse interface{}, convCtx *ConversationContext) bool

	// DetectTermination maps provider-specific fields onto the unified
	// signal. Must never panic on malformed input (spec §9 open
	// question, resolved: never throw); return a safe unknown/low
	// signal instead.
	DetectTermination(deltaOrResponse interface{}, convCtx *ConversationContext) UnifiedTerminationSignal

	// NormalizeError classifies a transport/provider failure into the
	// error taxonomy and sanitizes secrets. Must not panic.
	NormalizeError(err error, resp *HttpResponse, body []byte) *BridgeError
}

// TokenEstimator is an optional ProviderPlugin capability (spec §4.2).
type TokenEstimator interface {
	EstimateTokenUsage(req *ChatRequest, caps ModelCapabilities) int
}

// CacheSupporter is an optional ProviderPlugin capability (spec §4.2).
type CacheSupporter interface {
	SupportsCaching() bool
	GetCacheHeaders() map[string]string
	MarkForCaching(req *HttpRequest)
}

// ConversationContinuer is an optional ProviderPlugin capability
// (spec §9 "shouldContinueConversation").
type ConversationContinuer interface {
	ShouldContinueConversation(convCtx *ConversationContext) bool
}
