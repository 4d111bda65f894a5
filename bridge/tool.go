package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ToolCall is a single tool invocation requested by a provider within a
// turn (spec §3). ID is unique within that turn.
type ToolCall struct {
	ID         string
	Name       string
	Parameters map[string]interface{}
}

// ToolResult pairs back to a ToolCall by CallID (spec §3). Every
// successful turn that produced tool calls must produce exactly one
// ToolResult per ToolCall before the next provider call.
type ToolResult struct {
	CallID  string
	Success bool
	Data    interface{}
	Error   string
}

// ToolHandler executes a ToolCall under the permissioned
// ToolExecutionContext built by the Tool Router (spec §4.6).
type ToolHandler func(ctx context.Context, call ToolCall, execCtx ToolExecutionContext) (interface{}, error)

// ToolDefinition is the caller-supplied tool description registered into
// the Tool Registry (spec §3). Never mutated after registration;
// unregistered only on explicit call or client dispose.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
	Permissions []string
}

// ToolExecutionContext is the permissioned invocation context the Tool
// Router builds for every dispatched call (spec §4.6).
type ToolExecutionContext struct {
	UserID      string
	SessionID   string
	Environment string
	Permissions []string
	Metadata    map[string]interface{}
}

// validateToolDefinition enforces the §4.6 registration checks: a
// non-empty name and a well-formed JSON schema (compiled, not merely
// decoded, so structural mistakes are caught at registration time
// rather than at first tool call).
func validateToolDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return NewValidationError("tool definition must have a non-empty name")
	}
	if def.InputSchema == nil {
		return nil
	}
	raw, err := json.Marshal(def.InputSchema)
	if err != nil {
		return NewValidationError(fmt.Sprintf("tool %q has an unmarshalable input schema: %v", def.Name, err))
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return NewValidationError(fmt.Sprintf("tool %q has a malformed input schema: %v", def.Name, err))
	}
	c := jsonschema.NewCompiler()
	resourceID := "tool://" + def.Name
	if err := c.AddResource(resourceID, doc); err != nil {
		return NewValidationError(fmt.Sprintf("tool %q input schema rejected: %v", def.Name, err))
	}
	if _, err := c.Compile(resourceID); err != nil {
		return NewValidationError(fmt.Sprintf("tool %q input schema does not compile: %v", def.Name, err))
	}
	return nil
}

// echoResult is the shape a builtin "echo" tool result must take
// (spec §4.6). Extra fields are permitted; missing or misstyped fields
// are rejected.
type echoResult struct {
	Echoed      string `json:"echoed"`
	Timestamp   string `json:"timestamp"`
	TestSuccess bool   `json:"testSuccess"`
}

// validateEchoResult is the dedicated validator named in §4.6.
func validateEchoResult(data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return NewValidationError("echo result is not serializable: " + err.Error())
	}
	var r echoResult
	var probe map[string]interface{}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return NewValidationError("echo result is not an object: " + err.Error())
	}
	if _, ok := probe["echoed"].(string); !ok {
		return NewValidationError("echo result missing or non-string field 'echoed'")
	}
	ts, ok := probe["timestamp"].(string)
	if !ok || ts == "" {
		return NewValidationError("echo result missing string field 'timestamp'")
	}
	success, ok := probe["testSuccess"].(bool)
	if !ok || !success {
		return NewValidationError("echo result field 'testSuccess' must be boolean true")
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return NewValidationError("echo result does not match expected shape: " + err.Error())
	}
	return nil
}
