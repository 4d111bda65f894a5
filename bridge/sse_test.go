package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectSSE(t *testing.T, chunks <-chan []byte) []SSEEvent {
	t.Helper()
	var events []SSEEvent
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ParseSSE(chunks) {
			events = append(events, ev)
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for SSE parse to finish")
	}
	return events
}

func TestParseSSEDecodesSingleEvent(t *testing.T) {
	chunks := make(chan []byte, 1)
	chunks <- []byte("event: message\ndata: {\"hello\":1}\n\n")
	close(chunks)

	events := collectSSE(t, chunks)
	require.Len(t, events, 1)
	assert.Equal(t, "message", events[0].Event)
	assert.Equal(t, `{"hello":1}`, events[0].Data)
}

func TestParseSSEStopsOnDoneSentinel(t *testing.T) {
	chunks := make(chan []byte, 1)
	chunks <- []byte("data: first\n\ndata: [DONE]\n\ndata: should-not-appear\n\n")
	close(chunks)

	events := collectSSE(t, chunks)
	require.Len(t, events, 1)
	assert.Equal(t, "first", events[0].Data)
}

func TestParseSSEHandlesMultilineData(t *testing.T) {
	chunks := make(chan []byte, 1)
	chunks <- []byte("data: line one\ndata: line two\n\n")
	close(chunks)

	events := collectSSE(t, chunks)
	require.Len(t, events, 1)
	assert.Equal(t, "line one\nline two", events[0].Data)
}

func TestParseSSEHandlesChunkSplitAcrossWriteBoundary(t *testing.T) {
	chunks := make(chan []byte, 2)
	chunks <- []byte("data: hel")
	chunks <- []byte("lo\n\n")
	close(chunks)

	events := collectSSE(t, chunks)
	require.Len(t, events, 1)
	assert.Equal(t, "hello", events[0].Data)
}

func TestDecodeSSEDataUnmarshalsJSON(t *testing.T) {
	ev := SSEEvent{Data: `{"count":3}`}
	var out struct {
		Count int `json:"count"`
	}
	skipped := DecodeSSEData(ev, &out)
	assert.False(t, skipped)
	assert.Equal(t, 3, out.Count)
}

func TestDecodeSSEDataSkipsMalformedJSON(t *testing.T) {
	ev := SSEEvent{Data: `not json`}
	var out map[string]interface{}
	skipped := DecodeSSEData(ev, &out)
	assert.True(t, skipped)
}

func TestDecodeSSEDataSkipsEmptyData(t *testing.T) {
	ev := SSEEvent{}
	var out map[string]interface{}
	skipped := DecodeSSEData(ev, &out)
	assert.True(t, skipped)
}
