package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/deepbridge/llm-bridge/bridge"
)

// echoDefinition describes the echo tool named in §4.6: it round-trips
// its input text and stamps the result with the shape the echo result
// validator requires (echoed, timestamp, testSuccess).
var echoDefinition = bridge.ToolDefinition{
	Name:        "echo",
	Description: "Echoes the given text back, stamped with a timestamp. Used to exercise the tool execution loop end to end.",
	InputSchema: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"text": map[string]interface{}{
				"type":        "string",
				"description": "Text to echo back",
			},
		},
		"required": []interface{}{"text"},
	},
}

func echoHandler(ctx context.Context, call bridge.ToolCall, execCtx bridge.ToolExecutionContext) (interface{}, error) {
	var params struct {
		Text string `json:"text"`
	}
	raw, err := json.Marshal(call.Parameters)
	if err != nil {
		return nil, bridge.NewValidationError("echo: invalid parameters: " + err.Error())
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, bridge.NewValidationError("echo: invalid parameters: " + err.Error())
	}

	return map[string]interface{}{
		"echoed":      params.Text,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"testSuccess": true,
	}, nil
}
