package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Kind is the stable taxonomy tag every BridgeError carries (spec §7).
type Kind string

const (
	KindInvalidConfig        Kind = "InvalidConfig"
	KindAuth                 Kind = "Auth"
	KindRateLimit            Kind = "RateLimit"
	KindValidation           Kind = "Validation"
	KindProvider             Kind = "Provider"
	KindTransport            Kind = "Transport"
	KindTimeout              Kind = "Timeout"
	KindStreaming            Kind = "Streaming"
	KindTool                 Kind = "Tool"
	KindMultiTurnExecution   Kind = "MultiTurnExecution"
	KindMaxIterationsExceeded Kind = "MaxIterationsExceeded"
	KindIterationTimeout     Kind = "IterationTimeout"
	KindMultiTurnStreamingInterruption Kind = "MultiTurnStreamingInterruption"
)

// stable error codes, referenced by callers that branch on a string
// rather than the Kind tag (e.g. CLI exit-code maps). Several codes share
// one Kind: UNKNOWN_MODEL and TOOL_SYSTEM_DISABLED are Validation errors,
// TOOL_NOT_FOUND is a Tool error.
const (
	CodeInvalidConfig       = "INVALID_CONFIG"
	CodeAuthError           = "AUTH_ERROR"
	CodeRateLimitError      = "RATE_LIMIT_ERROR"
	CodeValidationError     = "VALIDATION_ERROR"
	CodeUnknownModel        = "UNKNOWN_MODEL"
	CodeToolSystemDisabled  = "TOOL_SYSTEM_DISABLED"
	CodeProviderError       = "PROVIDER_ERROR"
	CodeTransportError      = "TRANSPORT_ERROR"
	CodeTimeoutError        = "TIMEOUT_ERROR"
	CodeStreamingError      = "STREAMING_ERROR"
	CodeToolError           = "TOOL_ERROR"
	CodeToolNotFound        = "TOOL_NOT_FOUND"
	CodeMaxIterationsExceeded = "MAX_ITERATIONS_EXCEEDED"
	CodeIterationTimeout      = "ITERATION_TIMEOUT"
	CodeMultiTurnStreamingInterruption = "MULTI_TURN_STREAMING_INTERRUPTION"
)

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bearer\s+[a-z0-9._\-]+`),
	regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
}

var secretKeyNames = map[string]bool{
	"authorization": true,
	"api-key":       true,
	"auth-token":    true,
}

// redactSecrets strips bearer tokens and sk-... style API keys from a
// string, replacing them with "***". Mirrors the §4.2 sanitization
// contract that every normalizeError implementation must honor.
func redactSecrets(s string) string {
	out := s
	for _, re := range secretPatterns {
		out = re.ReplaceAllString(out, "***")
	}
	return out
}

// redactHeaders returns a copy of headers with secret-named keys redacted.
func redactHeaders(headers map[string]string) map[string]string {
	if headers == nil {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if secretKeyNames[strings.ToLower(k)] {
			out[k] = "***"
			continue
		}
		out[k] = redactSecrets(v)
	}
	return out
}

// BridgeError is the single error type implementing the taxonomy of
// spec.md §7: a Kind tag, a stable Code, a sanitized Message, a
// structured (secret-stripped) Context, and a redacting JSON form.
type BridgeError struct {
	Kind       Kind
	Code       string
	Message    string
	Context    map[string]interface{}
	RetryAfter *time.Duration
	Cause      error
}

func (e *BridgeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *BridgeError) Unwrap() error {
	return e.Cause
}

// MarshalJSON redacts secrets from the message and context before
// serializing, per the §7 toJSON redaction contract.
func (e *BridgeError) MarshalJSON() ([]byte, error) {
	redactedCtx := make(map[string]interface{}, len(e.Context))
	for k, v := range e.Context {
		if s, ok := v.(string); ok {
			redactedCtx[k] = redactSecrets(s)
			continue
		}
		if hdrs, ok := v.(map[string]string); ok {
			redactedCtx[k] = redactHeaders(hdrs)
			continue
		}
		redactedCtx[k] = v
	}
	out := struct {
		Kind       Kind                   `json:"kind"`
		Code       string                 `json:"code"`
		Message    string                 `json:"message"`
		Context    map[string]interface{} `json:"context,omitempty"`
		RetryAfter *time.Duration         `json:"retryAfter,omitempty"`
		Cause      string                 `json:"cause,omitempty"`
	}{
		Kind:       e.Kind,
		Code:       e.Code,
		Message:    redactSecrets(e.Message),
		Context:    redactedCtx,
		RetryAfter: e.RetryAfter,
	}
	if e.Cause != nil {
		out.Cause = redactSecrets(e.Cause.Error())
	}
	return json.Marshal(out)
}

func newBridgeError(kind Kind, code, message string, cause error) *BridgeError {
	return &BridgeError{Kind: kind, Code: code, Message: redactSecrets(message), Cause: cause, Context: map[string]interface{}{}}
}

func NewInvalidConfigError(message string) *BridgeError {
	return newBridgeError(KindInvalidConfig, CodeInvalidConfig, message, nil)
}

func NewAuthError(message string, cause error) *BridgeError {
	return newBridgeError(KindAuth, CodeAuthError, message, cause)
}

func NewRateLimitError(message string, retryAfter *time.Duration, cause error) *BridgeError {
	e := newBridgeError(KindRateLimit, CodeRateLimitError, message, cause)
	e.RetryAfter = retryAfter
	return e
}

func NewValidationError(message string) *BridgeError {
	return newBridgeError(KindValidation, CodeValidationError, message, nil)
}

func NewUnknownModelError(model string) *BridgeError {
	e := newBridgeError(KindValidation, CodeUnknownModel, fmt.Sprintf("unknown model %q", model), nil)
	e.Context["model"] = model
	return e
}

func NewToolSystemDisabledError() *BridgeError {
	return newBridgeError(KindValidation, CodeToolSystemDisabled, "tool system is disabled for this client", nil)
}

func NewProviderError(message string, cause error) *BridgeError {
	return newBridgeError(KindProvider, CodeProviderError, message, cause)
}

func NewTransportError(message string, cause error) *BridgeError {
	return newBridgeError(KindTransport, CodeTransportError, message, cause)
}

func NewTimeoutError(message string, cause error) *BridgeError {
	return newBridgeError(KindTimeout, CodeTimeoutError, message, cause)
}

func NewStreamingError(message string, cause error) *BridgeError {
	return newBridgeError(KindStreaming, CodeStreamingError, message, cause)
}

func NewToolError(toolName string, cause error) *BridgeError {
	e := newBridgeError(KindTool, CodeToolError, fmt.Sprintf("tool %q execution failed", toolName), cause)
	e.Context["tool"] = toolName
	return e
}

func NewToolNotFoundError(toolName string) *BridgeError {
	e := newBridgeError(KindTool, CodeToolNotFound, fmt.Sprintf("tool %q is not registered", toolName), nil)
	e.Context["tool"] = toolName
	return e
}

// ExecutionPhase names the lifecycle point of a multi-turn execution at
// which a MultiTurnExecutionError was raised.
type ExecutionPhase string

const (
	PhaseInitialization     ExecutionPhase = "initialization"
	PhaseIterationStart     ExecutionPhase = "iteration_start"
	PhaseProviderRequest    ExecutionPhase = "provider_request"
	PhaseStreamingResponse  ExecutionPhase = "streaming_response"
	PhaseToolExecution      ExecutionPhase = "tool_execution"
	PhaseStateUpdate        ExecutionPhase = "state_update"
	PhaseTerminationCheck   ExecutionPhase = "termination_check"
	PhaseCleanup            ExecutionPhase = "cleanup"
)

// RecoveryAction names the remediation the Agent Loop / Streaming State
// Machine should take in response to an error (§4.3, §7).
type RecoveryAction string

const (
	RecoveryRetry               RecoveryAction = "retry"
	RecoveryFallbackSingleTurn  RecoveryAction = "fallback_single_turn"
	RecoveryFallbackNonStreaming RecoveryAction = "fallback_non_streaming"
	RecoveryAbort               RecoveryAction = "abort"
	RecoveryContinue            RecoveryAction = "continue"
)

// MultiTurnContext is the envelope every MultiTurnExecutionError carries
// (spec §7).
type MultiTurnContext struct {
	State         map[string]interface{}
	Metrics       *ExecutionMetrics
	Phase         ExecutionPhase
	TotalElapsed  time.Duration
	IterationElapsed time.Duration
	LastIterationTime time.Time
	DebugContext  map[string]interface{}
}

// MultiTurnExecutionError is the base of the §7 MultiTurnExecution family.
type MultiTurnExecutionError struct {
	*BridgeError
	MultiTurnCtx  MultiTurnContext
	RecoveryAction RecoveryAction
	Timestamp     time.Time
}

func newMultiTurnError(kind Kind, code, message string, cause error, ctx MultiTurnContext, recovery RecoveryAction) *MultiTurnExecutionError {
	return &MultiTurnExecutionError{
		BridgeError:    newBridgeError(kind, code, message, cause),
		MultiTurnCtx:   ctx,
		RecoveryAction: recovery,
		Timestamp:      time.Now(),
	}
}

// MaxIterationsExceededError specializes MultiTurnExecutionError for
// scenario S5: the Iteration Manager refused to start another iteration.
type MaxIterationsExceededError struct {
	*MultiTurnExecutionError
	CurrentIteration int
	MaxIterations    int
}

func NewMaxIterationsExceededError(currentIteration, maxIterations int, ctx MultiTurnContext) *MaxIterationsExceededError {
	msg := fmt.Sprintf("maximum iterations exceeded (%d/%d)", currentIteration, maxIterations)
	base := newMultiTurnError(KindMaxIterationsExceeded, CodeMaxIterationsExceeded, msg, nil, ctx, RecoveryAbort)
	return &MaxIterationsExceededError{
		MultiTurnExecutionError: base,
		CurrentIteration:        currentIteration,
		MaxIterations:           maxIterations,
	}
}

// IterationTimeoutError specializes MultiTurnExecutionError when either
// the per-iteration or overall timeout elapses.
type IterationTimeoutError struct {
	*MultiTurnExecutionError
	Overall bool
}

func NewIterationTimeoutError(overall bool, ctx MultiTurnContext) *IterationTimeoutError {
	scope := "iteration"
	if overall {
		scope = "overall"
	}
	msg := fmt.Sprintf("%s timeout exceeded", scope)
	base := newMultiTurnError(KindIterationTimeout, CodeIterationTimeout, msg, nil, ctx, RecoveryAbort)
	return &IterationTimeoutError{MultiTurnExecutionError: base, Overall: overall}
}

// MultiTurnStreamingInterruptionError specializes MultiTurnExecutionError
// for streaming-state-machine failures surfaced up through the Agent Loop.
type MultiTurnStreamingInterruptionError struct {
	*MultiTurnExecutionError
}

func NewMultiTurnStreamingInterruptionError(message string, cause error, ctx MultiTurnContext, recovery RecoveryAction) *MultiTurnStreamingInterruptionError {
	base := newMultiTurnError(KindMultiTurnStreamingInterruption, CodeMultiTurnStreamingInterruption, message, cause, ctx, recovery)
	return &MultiTurnStreamingInterruptionError{MultiTurnExecutionError: base}
}

// Kind-checking helpers mirroring the teacher's Is*Error family.

func IsAuthError(err error) bool {
	var be *BridgeError
	return errors.As(err, &be) && be.Kind == KindAuth
}

func IsRateLimitErrorKind(err error) bool {
	var be *BridgeError
	return errors.As(err, &be) && be.Kind == KindRateLimit
}

func IsValidationError(err error) bool {
	var be *BridgeError
	return errors.As(err, &be) && be.Kind == KindValidation
}

func IsProviderError(err error) bool {
	var be *BridgeError
	return errors.As(err, &be) && be.Kind == KindProvider
}

func IsTransportError(err error) bool {
	var be *BridgeError
	return errors.As(err, &be) && be.Kind == KindTransport
}

func IsTimeoutErrorKind(err error) bool {
	var be *BridgeError
	return errors.As(err, &be) && be.Kind == KindTimeout
}

func IsStreamingError(err error) bool {
	var be *BridgeError
	if errors.As(err, &be) && be.Kind == KindStreaming {
		return true
	}
	var sie *StreamingIntegrationError
	return errors.As(err, &sie)
}

func IsToolErrorKind(err error) bool {
	var be *BridgeError
	return errors.As(err, &be) && be.Kind == KindTool
}

func AsMaxIterationsExceeded(err error) (*MaxIterationsExceededError, bool) {
	var target *MaxIterationsExceededError
	ok := errors.As(err, &target)
	return target, ok
}
