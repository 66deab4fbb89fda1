package execution

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/leapstack-labs/vectorflow/pkg/core"
)

// Runner opens an execution stream for a request. The returned body yields
// frames readable by Decoder; closing it tears the stream down.
type Runner interface {
	Open(ctx context.Context, req core.ExecuteRequest) (io.ReadCloser, error)
}

// HTTPRunner posts execute requests to a remote streaming endpoint.
type HTTPRunner struct {
	url    string
	client *http.Client
}

// NewHTTPRunner creates a runner for the endpoint at url. A nil client
// uses a client without a timeout, since streams are long-lived.
func NewHTTPRunner(url string, client *http.Client) *HTTPRunner {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPRunner{url: url, client: client}
}

// Open sends the request and returns the response body once the runner
// has accepted it.
func (r *HTTPRunner) Open(ctx context.Context, req core.ExecuteRequest) (io.ReadCloser, error) {
	body, err := sonic.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode execute request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to reach runner: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("runner responded %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return resp.Body, nil
}
