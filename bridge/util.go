package bridge

import (
	"encoding/json"
	"io"
)

// drainBody fully reads and closes an HttpResponse body, swallowing read
// errors since it is only ever used for error-path diagnostics.
func drainBody(resp *HttpResponse) []byte {
	if resp == nil || resp.Body == nil {
		return nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return body
}

// jsonStringify renders an arbitrary tool result payload as JSON text for
// folding back into conversation history, falling back to a placeholder
// on marshal failure (e.g. a channel or func value snuck into tool data).
func jsonStringify(v interface{}) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "<unserializable tool result>"
	}
	return string(b)
}
