package bridge

import "time"

// Role identifies who produced a Message (spec §3).
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ContentPartType tags the variant of a ContentPart.
type ContentPartType string

const (
	ContentText     ContentPartType = "text"
	ContentImage    ContentPartType = "image"
	ContentDocument ContentPartType = "document"
	ContentCode     ContentPartType = "code"
	ContentToolUse  ContentPartType = "tool_use"
)

// ContentPart is the tagged-variant content unit of a Message. Only
// ContentText is guaranteed universal across providers; the others are
// conditional on model capability (spec §3).
type ContentPart struct {
	Type ContentPartType

	Text string // ContentText, ContentCode

	Bytes    []byte // ContentImage, ContentDocument (inline)
	URL      string // ContentImage, ContentDocument (remote)
	MimeType string // ContentImage, ContentDocument

	Language string // ContentCode

	ToolUse *ToolCall // ContentToolUse
}

func TextPart(text string) ContentPart {
	return ContentPart{Type: ContentText, Text: text}
}

func CodePart(code, language string) ContentPart {
	return ContentPart{Type: ContentCode, Text: code, Language: language}
}

func ImagePartURL(url, mime string) ContentPart {
	return ContentPart{Type: ContentImage, URL: url, MimeType: mime}
}

func ImagePartBytes(data []byte, mime string) ContentPart {
	return ContentPart{Type: ContentImage, Bytes: data, MimeType: mime}
}

func DocumentPartURL(url, mime string) ContentPart {
	return ContentPart{Type: ContentDocument, URL: url, MimeType: mime}
}

func ToolUsePart(call ToolCall) ContentPart {
	return ContentPart{Type: ContentToolUse, ToolUse: &call}
}

// Message is the unified chat message (spec §3). Invariant: at least one
// ContentPart unless the message is an explicit placeholder (carried via
// Metadata["placeholder"] = true), used for the empty-assistant message
// that seeds a streaming response before the first delta arrives.
type Message struct {
	Role      Role
	Content   []ContentPart
	Timestamp time.Time
	Metadata  map[string]interface{}
}

func NewMessage(role Role, parts ...ContentPart) Message {
	return Message{Role: role, Content: parts, Timestamp: time.Now()}
}

func UserMessage(text string) Message {
	return NewMessage(RoleUser, TextPart(text))
}

func AssistantMessage(text string) Message {
	return NewMessage(RoleAssistant, TextPart(text))
}

func SystemMessage(text string) Message {
	return NewMessage(RoleSystem, TextPart(text))
}

// ToolResultMessage builds the tool-role message the Agent Loop appends
// after dispatching a ToolCall, tagging it with metadata.tool_call_id so
// the pairing invariant in spec §3/§8 can be checked.
func ToolResultMessage(callID, text string) Message {
	m := NewMessage(RoleTool, TextPart(text))
	m.Metadata = map[string]interface{}{"tool_call_id": callID}
	return m
}

// PlaceholderAssistantMessage is the explicit empty-assistant placeholder
// permitted by the §3 content invariant during streaming initiation.
func PlaceholderAssistantMessage() Message {
	m := Message{Role: RoleAssistant, Timestamp: time.Now()}
	m.Metadata = map[string]interface{}{"placeholder": true}
	return m
}

// IsPlaceholder reports whether this message is the explicit
// empty-content placeholder permitted by the §3 invariant.
func (m Message) IsPlaceholder() bool {
	if m.Metadata == nil {
		return false
	}
	v, ok := m.Metadata["placeholder"]
	return ok && v == true
}

// Validate enforces the §3 content invariant.
func (m Message) Validate() error {
	if len(m.Content) == 0 && !m.IsPlaceholder() {
		return NewValidationError("message must have at least one content part unless it is an explicit placeholder")
	}
	return nil
}

// Text concatenates the text of every ContentText part, in order. This is
// the common case for providers/plugins that only need the plain text.
func (m Message) Text() string {
	var out string
	for _, p := range m.Content {
		if p.Type == ContentText {
			out += p.Text
		}
	}
	return out
}

// ToolCallID returns the metadata.tool_call_id stamped on a tool message,
// or "" if absent.
func (m Message) ToolCallID() string {
	if m.Metadata == nil {
		return ""
	}
	if id, ok := m.Metadata["tool_call_id"].(string); ok {
		return id
	}
	return ""
}

// ToolCalls extracts ToolCall values either from metadata.toolCalls
// (set by a provider plugin that surfaces calls out-of-band) or from
// ContentToolUse parts embedded directly in the message (spec §4.8d).
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	if m.Metadata != nil {
		if raw, ok := m.Metadata["toolCalls"].([]ToolCall); ok {
			calls = append(calls, raw...)
		}
	}
	for _, p := range m.Content {
		if p.Type == ContentToolUse && p.ToolUse != nil {
			calls = append(calls, *p.ToolUse)
		}
	}
	return calls
}
