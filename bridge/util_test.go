package bridge

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDrainBodyReadsAndClosesBody(t *testing.T) {
	body := io.NopCloser(strings.NewReader("error detail"))
	resp := &HttpResponse{Body: body}
	out := drainBody(resp)
	assert.Equal(t, "error detail", string(out))
}

func TestDrainBodyHandlesNilResponseAndBody(t *testing.T) {
	assert.Nil(t, drainBody(nil))
	assert.Nil(t, drainBody(&HttpResponse{}))
}

func TestJSONStringifyRendersValue(t *testing.T) {
	assert.Equal(t, `{"a":1}`, jsonStringify(map[string]int{"a": 1}))
	assert.Equal(t, "null", jsonStringify(nil))
}

func TestJSONStringifyFallsBackOnUnserializableValue(t *testing.T) {
	out := jsonStringify(make(chan int))
	assert.Equal(t, "<unserializable tool result>", out)
}
