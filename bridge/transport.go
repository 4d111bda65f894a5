package bridge

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// HTTPTransport is the default Transport (spec §6), backed by a single
// shared *http.Client the way the teacher's provider adapters share one
// underlying client across calls rather than allocating per-request.
type HTTPTransport struct {
	client *http.Client
}

func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{client: &http.Client{Timeout: timeout}}
}

func (t *HTTPTransport) Fetch(ctx context.Context, req HttpRequest) (*HttpResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, NewTransportError("failed to build request", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, NewTransportError("request failed", err)
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	return &HttpResponse{
		Status:     resp.StatusCode,
		StatusText: resp.Status,
		Headers:    headers,
		Body:       resp.Body,
	}, nil
}

// Stream performs the request and relays the response body as a channel
// of byte chunks, closing both channels when the body is exhausted or an
// error terminates the read (spec §6 Transport interface).
func (t *HTTPTransport) Stream(ctx context.Context, req HttpRequest) (<-chan []byte, <-chan error, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, nil, NewTransportError("failed to build request", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, nil, NewTransportError("streaming request failed", err)
	}

	chunks := make(chan []byte)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)
		defer resp.Body.Close()

		buf := make([]byte, 4096)
		for {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			default:
			}
			n, err := resp.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					errs <- NewTransportError("stream read failed", err)
				}
				return
			}
		}
	}()

	return chunks, errs, nil
}
