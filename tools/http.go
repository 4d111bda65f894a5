package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deepbridge/llm-bridge/bridge"
)

// httpRequestDefinition describes the http tool: make HTTP requests to
// external APIs, with timeout protection and header management.
var httpRequestDefinition = bridge.ToolDefinition{
	Name:        "http",
	Description: "Make HTTP requests (GET, POST, PUT, DELETE) to APIs and web services",
	InputSchema: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"method":          map[string]interface{}{"type": "string", "description": "HTTP method: GET, POST, PUT, DELETE"},
			"url":             map[string]interface{}{"type": "string", "description": "Full URL to request"},
			"headers":         map[string]interface{}{"type": "object", "description": "Optional headers"},
			"body":            map[string]interface{}{"type": "string", "description": "Optional request body (POST, PUT)"},
			"timeout_seconds": map[string]interface{}{"type": "number", "description": "Optional timeout in seconds (default 30)"},
		},
		"required": []interface{}{"method", "url"},
	},
}

func httpRequestHandler(ctx context.Context, call bridge.ToolCall, execCtx bridge.ToolExecutionContext) (interface{}, error) {
	var params struct {
		Method         string            `json:"method"`
		URL            string            `json:"url"`
		Headers        map[string]string `json:"headers"`
		Body           string            `json:"body"`
		TimeoutSeconds float64           `json:"timeout_seconds"`
	}
	if err := decodeParams(call.Parameters, &params); err != nil {
		return nil, err
	}

	method := strings.ToUpper(params.Method)
	if !isValidHTTPMethod(method) {
		return nil, bridge.NewValidationError("http: invalid method " + params.Method)
	}
	if params.URL == "" {
		return nil, bridge.NewValidationError("http: url is required")
	}
	if !strings.HasPrefix(params.URL, "http://") && !strings.HasPrefix(params.URL, "https://") {
		return nil, bridge.NewValidationError("http: url must start with http:// or https://")
	}

	timeout := 30 * time.Second
	if params.TimeoutSeconds > 0 {
		timeout = time.Duration(params.TimeoutSeconds * float64(time.Second))
	}

	return makeHTTPRequest(ctx, method, params.URL, params.Headers, params.Body, timeout)
}

func isValidHTTPMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

func makeHTTPRequest(ctx context.Context, method, url string, headers map[string]string, body string, timeout time.Duration) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &http.Client{Timeout: timeout}

	var bodyReader io.Reader
	if body != "" {
		bodyReader = bytes.NewBufferString(body)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, url, bodyReader)
	if err != nil {
		return "", bridge.NewValidationError("http: failed to build request: " + err.Error())
	}
	req.Header.Set("User-Agent", "llm-bridge/1.0.0")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return "", bridge.NewTransportError("http: request failed", err)
	}
	defer resp.Body.Close()
	duration := time.Since(start)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", bridge.NewTransportError("http: failed to read response", err)
	}

	return formatHTTPResponse(method, url, resp.StatusCode, resp.Header, respBody, duration), nil
}

func formatHTTPResponse(method, url string, status int, headers http.Header, body []byte, duration time.Duration) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "HTTP %s %s\n", method, url)
	fmt.Fprintf(&sb, "Status: %d %s\n", status, http.StatusText(status))
	fmt.Fprintf(&sb, "Duration: %v\n", duration)
	fmt.Fprintf(&sb, "Content-Length: %d bytes\n", len(body))
	if ct := headers.Get("Content-Type"); ct != "" {
		fmt.Fprintf(&sb, "Content-Type: %s\n", ct)
	}
	sb.WriteString("\nResponse Body:\n")

	if isJSONContentType(headers.Get("Content-Type")) {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, body, "", "  "); err == nil {
			sb.Write(pretty.Bytes())
			return sb.String()
		}
	}
	bodyStr := string(body)
	if len(bodyStr) > 1000 {
		sb.WriteString(bodyStr[:1000])
		fmt.Fprintf(&sb, "\n... (truncated, %d more bytes)", len(bodyStr)-1000)
	} else {
		sb.WriteString(bodyStr)
	}
	return sb.String()
}

func isJSONContentType(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/json")
}
