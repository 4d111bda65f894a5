package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeClientConfig() BridgeClientConfig {
	return BridgeClientConfig{
		RawProviders: map[string]map[string]interface{}{
			"fake": {"apiKey": "test-key"},
		},
		DefaultModel: "fake-model",
		ModelSeed: ModelSeed{
			Mode: ModelSeedCustom,
			Catalog: []ModelCatalogEntry{
				{ID: "fake-model", ProviderID: "fake", ProviderPlugin: "fake-1.0.0"},
			},
		},
	}
}

func newTestClient(t *testing.T, transport Transport) *BridgeClient {
	t.Helper()
	c, err := New(fakeClientConfig(), WithTransport(transport))
	require.NoError(t, err)
	c.RegisterProvider(&fakePlugin{id: "fake", version: "1.0.0"})
	return c
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(BridgeClientConfig{})
	require.Error(t, err)
}

func TestNewDefaultsToHTTPTransportWhenNoneGiven(t *testing.T) {
	c, err := New(fakeClientConfig())
	require.NoError(t, err)
	assert.NotNil(t, c.transport)
}

func TestChatRejectsToolsWhenDisabled(t *testing.T) {
	c := newTestClient(t, &fakeTransport{})
	_, err := c.Chat(context.Background(), &ChatRequest{
		Messages: []Message{UserMessage("hi")},
		Tools:    []ToolDefinition{{Name: "echo", InputSchema: map[string]interface{}{"type": "object"}}},
	})
	require.Error(t, err)
	var be *BridgeError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, CodeToolSystemDisabled, be.Code)
}

func TestChatReturnsUnknownModelError(t *testing.T) {
	c := newTestClient(t, &fakeTransport{})
	_, err := c.Chat(context.Background(), &ChatRequest{
		Messages: []Message{UserMessage("hi")},
		Model:    "does-not-exist",
	})
	require.Error(t, err)
	var be *BridgeError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, CodeUnknownModel, be.Code)
}

func TestChatSingleTurnRoundTripsThroughFakePluginAndTransport(t *testing.T) {
	c := newTestClient(t, &fakeTransport{status: 200})
	resp, err := c.Chat(context.Background(), &ChatRequest{
		Messages: []Message{UserMessage("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Message.Text())
}

func TestChatNormalizesTransportErrorThroughPlugin(t *testing.T) {
	c := newTestClient(t, &fakeTransport{err: assertAnError()})
	_, err := c.Chat(context.Background(), &ChatRequest{
		Messages: []Message{UserMessage("hi")},
	})
	require.Error(t, err)
	assert.True(t, IsProviderError(err))
}

func TestStreamClosesChannelsWhenPluginYieldsNoDeltas(t *testing.T) {
	c := newTestClient(t, &fakeTransport{streamChunks: [][]byte{[]byte("data: ignored\n\n")}})
	deltas, errs := c.Stream(context.Background(), &ChatRequest{
		Messages: []Message{UserMessage("hi")},
	})

	var count int
	for range deltas {
		count++
	}
	err := <-errs
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestDisposeIsIdempotent(t *testing.T) {
	c := newTestClient(t, &fakeTransport{})
	require.NoError(t, c.Dispose(context.Background()))
	require.NoError(t, c.Dispose(context.Background()))
}

func assertAnError() error {
	return NewTransportError("connection refused", nil)
}
