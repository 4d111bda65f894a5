package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageValidateRejectsEmptyContent(t *testing.T) {
	m := Message{Role: RoleUser}
	err := m.Validate()
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestMessageValidateAllowsExplicitPlaceholder(t *testing.T) {
	m := PlaceholderAssistantMessage()
	assert.NoError(t, m.Validate())
	assert.True(t, m.IsPlaceholder())
}

func TestUserMessageIsNotAPlaceholder(t *testing.T) {
	m := UserMessage("hi")
	assert.False(t, m.IsPlaceholder())
	assert.NoError(t, m.Validate())
}

func TestMessageTextConcatenatesOnlyTextParts(t *testing.T) {
	m := NewMessage(RoleAssistant, TextPart("hello "), CodePart("1+1", "go"), TextPart("world"))
	assert.Equal(t, "hello world", m.Text())
}

func TestToolResultMessageStampsCallID(t *testing.T) {
	m := ToolResultMessage("call-1", "42")
	assert.Equal(t, "call-1", m.ToolCallID())
	assert.Equal(t, RoleTool, m.Role)
}

func TestMessageToolCallIDEmptyWithoutMetadata(t *testing.T) {
	m := UserMessage("hi")
	assert.Equal(t, "", m.ToolCallID())
}

func TestMessageToolCallsExtractsFromContentParts(t *testing.T) {
	call := ToolCall{ID: "c1", Name: "echo", Parameters: map[string]interface{}{"text": "hi"}}
	m := NewMessage(RoleAssistant, ToolUsePart(call))
	calls := m.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "echo", calls[0].Name)
}

func TestMessageToolCallsExtractsFromMetadataAndContentCombined(t *testing.T) {
	metaCall := ToolCall{ID: "meta-1", Name: "datetime"}
	contentCall := ToolCall{ID: "content-1", Name: "math"}
	m := NewMessage(RoleAssistant, ToolUsePart(contentCall))
	m.Metadata = map[string]interface{}{"toolCalls": []ToolCall{metaCall}}

	calls := m.ToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "datetime", calls[0].Name)
	assert.Equal(t, "math", calls[1].Name)
}
