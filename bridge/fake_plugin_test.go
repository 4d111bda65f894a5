package bridge

import "context"

// fakePlugin is a minimal ProviderPlugin double for exercising the Agent
// Loop, Termination Analyzer, and Bridge Client without a real transport
// or provider wire format. Every method returns a canned value; override
// the fields needed for a given test.
type fakePlugin struct {
	id      string
	name    string
	version string

	terminationSignal UnifiedTerminationSignal
	isTerminal         bool
	translateErr       error
	parseErr           error
	response           *UnifiedResponse
	// responses, when set, is consumed one entry per ParseResponse call;
	// the last entry repeats once exhausted. Takes priority over response.
	responses     []*UnifiedResponse
	responseCalls int
	normalizedErr *BridgeError
}

func (p *fakePlugin) ID() string {
	if p.id == "" {
		return "fake"
	}
	return p.id
}

func (p *fakePlugin) Name() string {
	if p.name == "" {
		return "Fake"
	}
	return p.name
}

func (p *fakePlugin) Version() string {
	if p.version == "" {
		return "1.0.0"
	}
	return p.version
}

func (p *fakePlugin) Initialize(ctx context.Context, config map[string]interface{}) error {
	return nil
}

func (p *fakePlugin) TranslateRequest(ctx context.Context, req *ChatRequest, caps *ModelCapabilities, convCtx *ConversationContext) (*HttpRequest, error) {
	if p.translateErr != nil {
		return nil, p.translateErr
	}
	return &HttpRequest{URL: "https://fake.example/v1/chat", Method: "POST"}, nil
}

func (p *fakePlugin) ParseResponse(ctx context.Context, resp *HttpResponse) (*UnifiedResponse, error) {
	if p.parseErr != nil {
		return nil, p.parseErr
	}
	if len(p.responses) > 0 {
		idx := p.responseCalls
		if idx >= len(p.responses) {
			idx = len(p.responses) - 1
		}
		p.responseCalls++
		return p.responses[idx], nil
	}
	if p.response != nil {
		return p.response, nil
	}
	return &UnifiedResponse{Message: AssistantMessage("ok")}, nil
}

func (p *fakePlugin) ParseStream(ctx context.Context, resp <-chan []byte) (<-chan StreamDelta, <-chan error) {
	deltaCh := make(chan StreamDelta)
	errCh := make(chan error)
	close(deltaCh)
	close(errCh)
	return deltaCh, errCh
}

func (p *fakePlugin) IsTerminal(deltaOrResponse interface{}, convCtx *ConversationContext) bool {
	return p.isTerminal
}

func (p *fakePlugin) DetectTermination(deltaOrResponse interface{}, convCtx *ConversationContext) UnifiedTerminationSignal {
	return p.terminationSignal
}

func (p *fakePlugin) NormalizeError(err error, resp *HttpResponse, body []byte) *BridgeError {
	if p.normalizedErr != nil {
		return p.normalizedErr
	}
	return NewProviderError("fake provider error", err)
}

var _ ProviderPlugin = (*fakePlugin)(nil)
