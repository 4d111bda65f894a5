package bridge

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultNormalizeError implements spec §4.2's
// defaultNormalizeError(status, body, providerId, headers?). Every
// shipped plugin's NormalizeError delegates here after any
// provider-specific error-shape handling.
func DefaultNormalizeError(status int, body []byte, providerID string, headers map[string]string) *BridgeError {
	message := extractErrorMessage(body)

	switch status {
	case http.StatusUnauthorized:
		return NewAuthError(message, nil)
	case http.StatusForbidden:
		e := NewProviderError(message, nil)
		e.Context["httpStatus"] = status
		e.Context["providerId"] = providerID
		e.Context["forbidden"] = true
		return e
	case http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(headers)
		return NewRateLimitError(message, retryAfter, nil)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		e := NewProviderError(message, nil)
		e.Context["httpStatus"] = status
		e.Context["providerId"] = providerID
		e.Context["server"] = true
		return e
	default:
		e := NewProviderError(message, nil)
		e.Context["httpStatus"] = status
		e.Context["providerId"] = providerID
		return e
	}
}

// extractErrorMessage walks body.error (as a string) / body.error.message
// / body.message, in that order, falling back to the raw body text.
func extractErrorMessage(body []byte) string {
	if len(body) == 0 {
		return "no error body"
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return string(body)
	}
	if errVal, ok := doc["error"]; ok {
		switch e := errVal.(type) {
		case string:
			return e
		case map[string]interface{}:
			if msg, ok := e["message"].(string); ok {
				return msg
			}
		}
	}
	if msg, ok := doc["message"].(string); ok {
		return msg
	}
	return string(body)
}

// parseRetryAfter parses the Retry-After header, which is either numeric
// seconds or an HTTP-date (spec §6 glossary "Retry-After").
func parseRetryAfter(headers map[string]string) *time.Duration {
	if headers == nil {
		return nil
	}
	var raw string
	for k, v := range headers {
		if strings.EqualFold(k, "Retry-After") {
			raw = v
			break
		}
	}
	if raw == "" {
		return nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		d := time.Duration(secs) * time.Second
		return &d
	}
	if t, err := http.ParseTime(raw); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}

// DefaultDetectTermination implements spec §4.2's
// defaultDetectTermination(plugin, deltaOrResponse, context?): delegate
// to plugin.DetectTermination through safeDetectTermination, which
// recovers a panic into an unknown/low signal. plugin.IsTerminal is not
// consulted.
func DefaultDetectTermination(plugin ProviderPlugin, deltaOrResponse interface{}, convCtx *ConversationContext) UnifiedTerminationSignal {
	return safeDetectTermination(plugin, deltaOrResponse, convCtx)
}

// OpenAIFinishReasonSignal maps an OpenAI-style finish_reason onto the
// unified signal (spec §4.2 authoritative mapping table).
func OpenAIFinishReasonSignal(finishReason string) UnifiedTerminationSignal {
	sig := func(reason TerminationReason, confidence Confidence) UnifiedTerminationSignal {
		return UnifiedTerminationSignal{
			ShouldTerminate: true,
			Reason:          reason,
			Confidence:      confidence,
			ProviderSpecific: ProviderSpecificSignal{OriginalField: "finish_reason", OriginalValue: finishReason},
		}
	}
	switch finishReason {
	case "stop":
		return sig(ReasonNaturalCompletion, ConfidenceHigh)
	case "length":
		return sig(ReasonTokenLimitReached, ConfidenceHigh)
	case "content_filter":
		return sig(ReasonContentFiltered, ConfidenceHigh)
	case "function_call", "tool_calls":
		return sig(ReasonNaturalCompletion, ConfidenceHigh)
	default:
		// OpenAI-style unknowns resolve at "low" confidence — the
		// documented asymmetry vs. Anthropic/Gemini (spec §9 open
		// question, preserved as-is).
		s := sig(ReasonUnknown, ConfidenceLow)
		s.ShouldTerminate = false
		return s
	}
}

// AnthropicStopReasonSignal maps an Anthropic-style stop_reason
// (spec §4.2 authoritative mapping table).
func AnthropicStopReasonSignal(stopReason string) UnifiedTerminationSignal {
	sig := func(reason TerminationReason, confidence Confidence) UnifiedTerminationSignal {
		return UnifiedTerminationSignal{
			ShouldTerminate: true,
			Reason:          reason,
			Confidence:      confidence,
			ProviderSpecific: ProviderSpecificSignal{OriginalField: "stop_reason", OriginalValue: stopReason},
		}
	}
	switch stopReason {
	case "end_turn":
		return sig(ReasonNaturalCompletion, ConfidenceHigh)
	case "max_tokens":
		return sig(ReasonTokenLimitReached, ConfidenceHigh)
	case "stop_sequence":
		return sig(ReasonStopSequence, ConfidenceHigh)
	case "tool_use":
		return sig(ReasonNaturalCompletion, ConfidenceHigh)
	default:
		s := sig(ReasonUnknown, ConfidenceMedium)
		s.ShouldTerminate = false
		return s
	}
}

// GeminiFinishReasonSignal maps a Gemini-style finishReason
// (spec §4.2 authoritative mapping table).
func GeminiFinishReasonSignal(finishReason string) UnifiedTerminationSignal {
	sig := func(reason TerminationReason, confidence Confidence) UnifiedTerminationSignal {
		return UnifiedTerminationSignal{
			ShouldTerminate: true,
			Reason:          reason,
			Confidence:      confidence,
			ProviderSpecific: ProviderSpecificSignal{OriginalField: "finishReason", OriginalValue: finishReason},
		}
	}
	switch finishReason {
	case "STOP":
		return sig(ReasonNaturalCompletion, ConfidenceHigh)
	case "MAX_TOKENS":
		return sig(ReasonTokenLimitReached, ConfidenceHigh)
	case "SAFETY":
		return sig(ReasonContentFiltered, ConfidenceHigh)
	default:
		s := sig(ReasonUnknown, ConfidenceMedium)
		s.ShouldTerminate = false
		return s
	}
}

// StreamingDeltaSignal implements the §4.2 streaming-delta fallback
// rules when a plugin has no explicit finish-reason field to map.
func StreamingDeltaSignal(finished bool, explicitDoneOrFinishedMeta bool) UnifiedTerminationSignal {
	if finished && explicitDoneOrFinishedMeta {
		return UnifiedTerminationSignal{
			ShouldTerminate: true,
			Reason:          ReasonNaturalCompletion,
			Confidence:      ConfidenceHigh,
			ProviderSpecific: ProviderSpecificSignal{OriginalField: "metadata.done"},
		}
	}
	if finished {
		return UnifiedTerminationSignal{
			ShouldTerminate: true,
			Reason:          ReasonNaturalCompletion,
			Confidence:      ConfidenceLow,
			ProviderSpecific: ProviderSpecificSignal{OriginalField: "finished", OriginalValue: "true"},
		}
	}
	return UnifiedTerminationSignal{
		ShouldTerminate: false,
		Reason:          ReasonUnknown,
		Confidence:      ConfidenceLow,
		ProviderSpecific: ProviderSpecificSignal{OriginalField: "finished", OriginalValue: "false"},
	}
}

// DefaultEstimateTokenUsage implements spec §4.2's
// defaultEstimateTokenUsage: ~10 base tokens/message + ceil(len(text)/4)
// per text part, 765/image, 500/document, text+20/code; capped against
// remaining context (minimum 0, typical cap 4000).
func DefaultEstimateTokenUsage(req *ChatRequest, caps ModelCapabilities, promptTokens, conversationTokens int) int {
	total := 0
	for _, msg := range req.Messages {
		total += 10
		for _, part := range msg.Content {
			switch part.Type {
			case ContentText:
				total += int(math.Ceil(float64(len(part.Text)) / 4.0))
			case ContentImage:
				total += 765
			case ContentDocument:
				total += 500
			case ContentCode:
				total += int(math.Ceil(float64(len(part.Text))/4.0)) + 20
			}
		}
	}

	cap := 4000
	if caps.ContextLength > 0 {
		remaining := caps.ContextLength - promptTokens - conversationTokens
		if remaining < 0 {
			remaining = 0
		}
		cap = remaining
	}
	if total > cap {
		total = cap
	}
	if total < 0 {
		total = 0
	}
	return total
}
