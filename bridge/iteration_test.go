package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIterationManagerDefaultsMaxIterations(t *testing.T) {
	im, err := NewIterationManager(0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, defaultMaxIterations, im.maxIterations)
}

func TestNewIterationManagerRejectsMaxIterationsAboveHardCap(t *testing.T) {
	_, err := NewIterationManager(hardCapMaxIterations+1, 0, 0)
	require.Error(t, err)
	var be *BridgeError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, KindInvalidConfig, be.Kind)
}

func TestNewIterationManagerRejectsOverallTimeoutAboveHardCap(t *testing.T) {
	over := int64((hardCapOverallTimeout + time.Hour) / time.Millisecond)
	_, err := NewIterationManager(1, over, 0)
	require.Error(t, err)
}

func TestNewIterationManagerRejectsIterationTimeoutNotLessThanOverall(t *testing.T) {
	_, err := NewIterationManager(1, 1000, 1000)
	require.Error(t, err)
}

func TestIterationManagerStartIterationRefusesAtCap(t *testing.T) {
	im, err := NewIterationManager(1, 0, 0)
	require.NoError(t, err)
	require.NoError(t, im.startIteration())

	err = im.startIteration()
	require.Error(t, err)
	target, ok := AsMaxIterationsExceeded(err)
	require.True(t, ok)
	assert.Equal(t, 1, target.CurrentIteration)
	assert.Equal(t, 1, target.MaxIterations)
}

func TestIterationManagerCompleteIterationCountsToolResults(t *testing.T) {
	im, err := NewIterationManager(5, 0, 0)
	require.NoError(t, err)
	require.NoError(t, im.startIteration())
	im.completeIteration([]ToolResult{{Success: true}, {Success: false}})

	metrics := im.getExecutionMetrics()
	assert.Equal(t, 2, metrics.ToolCallsExecuted)
	assert.Equal(t, 1, metrics.ToolCallsFailed)
}

func TestIterationManagerCheckTimeoutsDetectsOverallElapsed(t *testing.T) {
	im, err := NewIterationManager(5, 1, 0)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	err = im.checkTimeouts()
	require.Error(t, err)
	var target *IterationTimeoutError
	require.ErrorAs(t, err, &target)
	assert.True(t, target.Overall)
}

func TestDetermineTerminationReasonPrecedence(t *testing.T) {
	im, err := NewIterationManager(1, 0, 0)
	require.NoError(t, err)
	require.NoError(t, im.startIteration())

	explicit := &UnifiedTerminationSignal{ShouldTerminate: true, Reason: ReasonStopSequence}
	assert.Equal(t, ReasonStopSequence, im.determineTerminationReason(explicit))

	assert.Equal(t, ReasonMaxIterations, im.determineTerminationReason(nil))
}
