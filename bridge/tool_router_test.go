package bridge

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolRouterExecuteSequentialReturnsResultsInCallOrder(t *testing.T) {
	registry := NewToolRegistry()
	require.NoError(t, registry.Register(validToolDef("echo"), func(ctx context.Context, call ToolCall, execCtx ToolExecutionContext) (interface{}, error) {
		return call.Parameters["text"], nil
	}, false))
	router := NewToolRouter(registry, nil)

	calls := []ToolCall{
		{ID: "c1", Name: "echo", Parameters: map[string]interface{}{"text": "one"}},
		{ID: "c2", Name: "echo", Parameters: map[string]interface{}{"text": "two"}},
	}
	results := router.Execute(context.Background(), calls, ToolExecutionContext{}, ToolExecutionSequential, 0, 0)
	require.Len(t, results, 2)
	assert.Equal(t, "c1", results[0].CallID)
	assert.Equal(t, "one", results[0].Data)
	assert.Equal(t, "c2", results[1].CallID)
	assert.Equal(t, "two", results[1].Data)
}

func TestToolRouterExecuteParallelPreservesCallOrderInResultSlice(t *testing.T) {
	registry := NewToolRegistry()
	require.NoError(t, registry.Register(validToolDef("echo"), func(ctx context.Context, call ToolCall, execCtx ToolExecutionContext) (interface{}, error) {
		if call.ID == "slow" {
			time.Sleep(20 * time.Millisecond)
		}
		return call.ID, nil
	}, false))
	router := NewToolRouter(registry, nil)

	calls := []ToolCall{
		{ID: "slow", Name: "echo"},
		{ID: "fast", Name: "echo"},
	}
	results := router.Execute(context.Background(), calls, ToolExecutionContext{}, ToolExecutionParallel, 2, 0)
	require.Len(t, results, 2)
	assert.Equal(t, "slow", results[0].CallID)
	assert.Equal(t, "fast", results[1].CallID)
}

func TestToolRouterExecuteReturnsNilForNoCalls(t *testing.T) {
	router := NewToolRouter(NewToolRegistry(), nil)
	results := router.Execute(context.Background(), nil, ToolExecutionContext{}, ToolExecutionSequential, 0, 0)
	assert.Nil(t, results)
}

func TestToolRouterExecuteOneReturnsNotFoundForUnregisteredTool(t *testing.T) {
	router := NewToolRouter(NewToolRegistry(), nil)
	results := router.Execute(context.Background(), []ToolCall{{ID: "c1", Name: "missing"}}, ToolExecutionContext{}, ToolExecutionSequential, 0, 0)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "not registered")
}

func TestToolRouterExecuteOneRecoversHandlerPanic(t *testing.T) {
	registry := NewToolRegistry()
	require.NoError(t, registry.Register(validToolDef("boom"), func(ctx context.Context, call ToolCall, execCtx ToolExecutionContext) (interface{}, error) {
		panic("handler exploded")
	}, false))
	router := NewToolRouter(registry, nil)

	results := router.Execute(context.Background(), []ToolCall{{ID: "c1", Name: "boom"}}, ToolExecutionContext{}, ToolExecutionSequential, 0, 0)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "panicked")
}

func TestToolRouterExecuteOneTimesOut(t *testing.T) {
	registry := NewToolRegistry()
	require.NoError(t, registry.Register(validToolDef("slow"), func(ctx context.Context, call ToolCall, execCtx ToolExecutionContext) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, false))
	router := NewToolRouter(registry, nil)

	results := router.Execute(context.Background(), []ToolCall{{ID: "c1", Name: "slow"}}, ToolExecutionContext{}, ToolExecutionSequential, 0, 10*time.Millisecond)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "timed out")
}

func TestToolRouterExecuteParallelRespectsMaxConcurrent(t *testing.T) {
	registry := NewToolRegistry()
	var active int32
	var maxObserved int32
	require.NoError(t, registry.Register(validToolDef("track"), func(ctx context.Context, call ToolCall, execCtx ToolExecutionContext) (interface{}, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			cur := atomic.LoadInt32(&maxObserved)
			if n <= cur || atomic.CompareAndSwapInt32(&maxObserved, cur, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil, nil
	}, false))
	router := NewToolRouter(registry, nil)

	calls := make([]ToolCall, 6)
	for i := range calls {
		calls[i] = ToolCall{ID: string(rune('a' + i)), Name: "track"}
	}
	router.Execute(context.Background(), calls, ToolExecutionContext{}, ToolExecutionParallel, 2, 0)
	assert.LessOrEqual(t, atomic.LoadInt32(&maxObserved), int32(2))
}

func TestCreateExecutionContextDefaultsToReadPermission(t *testing.T) {
	router := NewToolRouter(NewToolRegistry(), nil)
	execCtx := router.CreateExecutionContext(nil, nil)
	assert.Equal(t, []string{"read"}, execCtx.Permissions)
	assert.Equal(t, "agent-loop", execCtx.Environment)
}

func TestCreateExecutionContextHonorsOptions(t *testing.T) {
	router := NewToolRouter(NewToolRegistry(), nil)
	execCtx := router.CreateExecutionContext([]Message{UserMessage("hi")}, &ExecutionContextOptions{UserID: "u1", Permissions: []string{"read", "write"}})
	assert.Equal(t, "u1", execCtx.UserID)
	assert.Equal(t, []string{"read", "write"}, execCtx.Permissions)
	assert.Equal(t, 1, execCtx.Metadata["messageCount"])
}
