package bridge

import (
	"bytes"
	"context"
	"io"
)

// fakeTransport is a canned Transport double: every Fetch returns the
// configured status/body, every Stream returns the configured chunks.
type fakeTransport struct {
	status int
	body   []byte
	err    error

	streamChunks [][]byte
	streamErr    error
}

func (t *fakeTransport) Fetch(ctx context.Context, req HttpRequest) (*HttpResponse, error) {
	if t.err != nil {
		return nil, t.err
	}
	status := t.status
	if status == 0 {
		status = 200
	}
	return &HttpResponse{Status: status, Body: io.NopCloser(bytes.NewReader(t.body))}, nil
}

func (t *fakeTransport) Stream(ctx context.Context, req HttpRequest) (<-chan []byte, <-chan error, error) {
	if t.streamErr != nil {
		return nil, nil, t.streamErr
	}
	chunks := make(chan []byte, len(t.streamChunks))
	for _, c := range t.streamChunks {
		chunks <- c
	}
	close(chunks)
	errs := make(chan error)
	close(errs)
	return chunks, errs, nil
}

var _ Transport = (*fakeTransport)(nil)
