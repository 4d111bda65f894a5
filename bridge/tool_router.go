package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ToolRouter dispatches ToolCalls to registered handlers, sequentially or
// in parallel, under a per-call timeout (spec §4.6).
type ToolRouter struct {
	registry      *ToolRegistry
	logger        Logger
	contextCounter int64
}

func NewToolRouter(registry *ToolRegistry, logger Logger) *ToolRouter {
	if logger == nil {
		logger = NoopLogger{}
	}
	return &ToolRouter{registry: registry, logger: logger}
}

// ExecutionContextOptions configures CreateExecutionContext.
type ExecutionContextOptions struct {
	UserID      string
	Permissions []string
}

type conversationMetadata struct {
	TotalMessages       int
	Roles               []Role
	ContentTypes        []ContentPartType
	HasUserMessages     bool
	HasAssistantMessages bool
	HasToolMessages     bool
	ConversationFlow    conversationFlow
}

type conversationFlow struct {
	StartsWithUser    bool
	EndsWithAssistant bool
}

func summarizeConversation(messages []Message) conversationMetadata {
	m := conversationMetadata{TotalMessages: len(messages)}
	seenRole := map[Role]bool{}
	seenType := map[ContentPartType]bool{}
	for _, msg := range messages {
		if !seenRole[msg.Role] {
			seenRole[msg.Role] = true
			m.Roles = append(m.Roles, msg.Role)
		}
		switch msg.Role {
		case RoleUser:
			m.HasUserMessages = true
		case RoleAssistant:
			m.HasAssistantMessages = true
		case RoleTool:
			m.HasToolMessages = true
		}
		for _, p := range msg.Content {
			if !seenType[p.Type] {
				seenType[p.Type] = true
				m.ContentTypes = append(m.ContentTypes, p.Type)
			}
		}
	}
	if len(messages) > 0 {
		m.ConversationFlow.StartsWithUser = messages[0].Role == RoleUser
		m.ConversationFlow.EndsWithAssistant = messages[len(messages)-1].Role == RoleAssistant
	}
	return m
}

// CreateExecutionContext implements spec §4.6's createExecutionContext.
func (tr *ToolRouter) CreateExecutionContext(messages []Message, opts *ExecutionContextOptions) ToolExecutionContext {
	contextID := fmt.Sprintf("%d-%s", atomic.AddInt64(&tr.contextCounter, 1), uuid.NewString()[:8])

	permissions := []string{"read"}
	var userID string
	if opts != nil {
		if len(opts.Permissions) > 0 {
			permissions = opts.Permissions
		}
		userID = opts.UserID
	}

	ts := time.Now()
	if len(messages) > 0 {
		last := messages[len(messages)-1]
		if !last.Timestamp.IsZero() {
			ts = last.Timestamp
		}
	}

	return ToolExecutionContext{
		UserID:      userID,
		SessionID:   "session-" + contextID,
		Environment: "agent-loop",
		Permissions: permissions,
		Metadata: map[string]interface{}{
			"contextId":           contextID,
			"timestamp":           ts,
			"messageCount":        len(messages),
			"conversationMetadata": summarizeConversation(messages),
			"executionSource":     "agent-loop",
		},
	}
}

// Execute dispatches calls sequentially or in parallel per strategy,
// respecting maxConcurrent and timeout. Regardless of strategy, the
// returned slice is canonicalized to call-order (spec §5 ordering
// guarantee): "order of completedToolCalls equals completion order [in
// parallel mode], but the message-history append order is canonicalized
// to match call-order".
func (tr *ToolRouter) Execute(ctx context.Context, calls []ToolCall, execCtx ToolExecutionContext, strategy ToolExecutionStrategy, maxConcurrent int, timeout time.Duration) []ToolResult {
	if len(calls) == 0 {
		return nil
	}
	if strategy != ToolExecutionParallel || len(calls) == 1 {
		return tr.executeSequential(ctx, calls, execCtx, timeout)
	}
	return tr.executeParallel(ctx, calls, execCtx, maxConcurrent, timeout)
}

func (tr *ToolRouter) executeSequential(ctx context.Context, calls []ToolCall, execCtx ToolExecutionContext, timeout time.Duration) []ToolResult {
	results := make([]ToolResult, len(calls))
	for i, call := range calls {
		results[i] = tr.executeOne(ctx, call, execCtx, timeout)
	}
	return results
}

func (tr *ToolRouter) executeParallel(ctx context.Context, calls []ToolCall, execCtx ToolExecutionContext, maxConcurrent int, timeout time.Duration) []ToolResult {
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	if maxConcurrent > len(calls) {
		maxConcurrent = len(calls)
	}

	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	results := make([]ToolResult, len(calls))

	for i, call := range calls {
		wg.Add(1)
		sem <- struct{}{}
		go func(index int, c ToolCall) {
			defer wg.Done()
			defer func() { <-sem }()
			results[index] = tr.executeOne(ctx, c, execCtx, timeout)
		}(i, call)
	}
	wg.Wait()
	return results
}

// executeOne runs a single handler under a timeout, with panic recovery,
// returning a ToolResult rather than propagating an error — the caller
// (Agent Loop) decides whether continueOnToolError applies.
func (tr *ToolRouter) executeOne(ctx context.Context, call ToolCall, execCtx ToolExecutionContext, timeout time.Duration) ToolResult {
	def, handler, ok := tr.registry.Get(call.Name)
	_ = def
	if !ok {
		tr.logger.Warn(ctx, "tool not found", F("tool", call.Name), F("call_id", call.ID))
		return ToolResult{CallID: call.ID, Success: false, Error: NewToolNotFoundError(call.Name).Error()}
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	execTimeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan struct{})
	var data interface{}
	var err error

	go func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("tool %q panicked: %v", call.Name, r)
			}
			close(done)
		}()
		data, err = handler(execTimeoutCtx, call, execCtx)
	}()

	select {
	case <-done:
		if err != nil {
			tr.logger.Error(ctx, "tool execution failed", F("tool", call.Name), F("call_id", call.ID), F("error", err.Error()))
			return ToolResult{CallID: call.ID, Success: false, Error: err.Error()}
		}
		tr.logger.Debug(ctx, "tool execution succeeded", F("tool", call.Name), F("call_id", call.ID))
		return ToolResult{CallID: call.ID, Success: true, Data: data}
	case <-execTimeoutCtx.Done():
		tr.logger.Error(ctx, "tool execution timed out", F("tool", call.Name), F("call_id", call.ID), F("timeout", timeout.String()))
		return ToolResult{CallID: call.ID, Success: false, Error: fmt.Sprintf("tool %q timed out after %v", call.Name, timeout)}
	}
}
