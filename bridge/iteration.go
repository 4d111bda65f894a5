package bridge

import (
	"fmt"
	"time"
)

const (
	defaultMaxIterations = 10
	hardCapMaxIterations = 1000
	hardCapOverallTimeout = 24 * time.Hour
)

// ExecutionMetrics summarizes an in-flight or completed multi-turn
// execution (spec §4.5), surfaced both to callers via getExecutionMetrics
// and embedded in MultiTurnContext for error reporting.
type ExecutionMetrics struct {
	IterationsCompleted int
	ToolCallsExecuted   int
	ToolCallsFailed     int
	TotalElapsed        time.Duration
	StartTime           time.Time
	LastIterationTime   time.Time
}

// IterationManager enforces the turn budget of one multi-turn execution:
// a cap on iteration count and optional overall/per-iteration timeouts
// (spec §4.5).
type IterationManager struct {
	maxIterations      int
	overallTimeout     time.Duration // 0 means unset
	iterationTimeout   time.Duration // 0 means unset
	startTime          time.Time
	lastIterationStart time.Time
	iteration          int
	toolCallsExecuted  int
	toolCallsFailed    int
}

// NewIterationManager validates and constructs the manager per spec §4.5:
// maxIterations defaults to 10 when <= 0, capped at 1000; overallTimeoutMs
// must be positive when non-zero and capped at 24h; iterationTimeoutMs
// must be positive when non-zero and strictly less than overallTimeoutMs
// when both are set.
func NewIterationManager(maxIterations int, overallTimeoutMs, iterationTimeoutMs int64) (*IterationManager, error) {
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	if maxIterations > hardCapMaxIterations {
		return nil, NewInvalidConfigError(fmt.Sprintf("maxIterations %d exceeds hard cap %d", maxIterations, hardCapMaxIterations))
	}

	var overall time.Duration
	if overallTimeoutMs != 0 {
		if overallTimeoutMs < 0 {
			return nil, NewInvalidConfigError("overallTimeoutMs must be positive when set")
		}
		overall = time.Duration(overallTimeoutMs) * time.Millisecond
		if overall > hardCapOverallTimeout {
			return nil, NewInvalidConfigError(fmt.Sprintf("overallTimeoutMs exceeds hard cap of %s", hardCapOverallTimeout))
		}
	}

	var perIteration time.Duration
	if iterationTimeoutMs != 0 {
		if iterationTimeoutMs < 0 {
			return nil, NewInvalidConfigError("iterationTimeoutMs must be positive when set")
		}
		perIteration = time.Duration(iterationTimeoutMs) * time.Millisecond
		if overall != 0 && perIteration >= overall {
			return nil, NewInvalidConfigError("iterationTimeoutMs must be strictly less than overallTimeoutMs")
		}
	}

	now := time.Now()
	return &IterationManager{
		maxIterations:    maxIterations,
		overallTimeout:   overall,
		iterationTimeout: perIteration,
		startTime:        now,
	}, nil
}

// startIteration admits the next iteration or refuses it, returning a
// MaxIterationsExceededError when the cap is reached (spec §4.5, S5).
func (im *IterationManager) startIteration() error {
	if im.iteration >= im.maxIterations {
		return NewMaxIterationsExceededError(im.iteration, im.maxIterations, im.errorContext(PhaseIterationStart))
	}
	im.iteration++
	im.lastIterationStart = time.Now()
	return nil
}

// completeIteration records bookkeeping for a finished iteration,
// including tool-call counters fed by the ToolRouter's results.
func (im *IterationManager) completeIteration(results []ToolResult) {
	im.lastIterationStart = time.Time{}
	for _, r := range results {
		im.toolCallsExecuted++
		if !r.Success {
			im.toolCallsFailed++
		}
	}
}

// checkTimeouts returns an IterationTimeoutError if either the overall or
// the current per-iteration budget has elapsed, nil otherwise.
func (im *IterationManager) checkTimeouts() error {
	now := time.Now()
	if im.overallTimeout != 0 && now.Sub(im.startTime) >= im.overallTimeout {
		return NewIterationTimeoutError(true, im.errorContext(PhaseIterationStart))
	}
	if im.iterationTimeout != 0 && !im.lastIterationStart.IsZero() && now.Sub(im.lastIterationStart) >= im.iterationTimeout {
		return NewIterationTimeoutError(false, im.errorContext(PhaseIterationStart))
	}
	return nil
}

// determineTerminationReason resolves the precedence rule of spec §4.5:
// an explicit signal (from the Termination Analyzer) outranks a timeout,
// which outranks exhausting maxIterations, which outranks the default
// natural_completion fallback.
func (im *IterationManager) determineTerminationReason(explicit *UnifiedTerminationSignal) TerminationReason {
	if explicit != nil && explicit.ShouldTerminate {
		return explicit.Reason
	}
	if err := im.checkTimeouts(); err != nil {
		return ReasonTimeout
	}
	if im.iteration >= im.maxIterations {
		return ReasonMaxIterations
	}
	return ReasonNaturalCompletion
}

func (im *IterationManager) getExecutionMetrics() *ExecutionMetrics {
	last := im.lastIterationStart
	if last.IsZero() {
		last = im.startTime
	}
	return &ExecutionMetrics{
		IterationsCompleted: im.iteration,
		ToolCallsExecuted:   im.toolCallsExecuted,
		ToolCallsFailed:     im.toolCallsFailed,
		TotalElapsed:        time.Since(im.startTime),
		StartTime:           im.startTime,
		LastIterationTime:   last,
	}
}

func (im *IterationManager) errorContext(phase ExecutionPhase) MultiTurnContext {
	return MultiTurnContext{
		Metrics:           im.getExecutionMetrics(),
		Phase:             phase,
		TotalElapsed:      time.Since(im.startTime),
		LastIterationTime: im.lastIterationStart,
	}
}
