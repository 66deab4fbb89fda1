package validate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/leapstack-labs/vectorflow/pkg/core"
	"golang.org/x/sync/errgroup"
)

// Remote checks graphs against a validator service exposing
// POST {base}/parse and POST {base}/validate.
type Remote struct {
	baseURL string
	client  *http.Client
}

// RemoteOption configures a Remote.
type RemoteOption func(*Remote)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *Remote) { r.client = c }
}

// NewRemote creates a client for the service rooted at baseURL,
// e.g. "http://localhost:8000/api/v1/pipelines".
func NewRemote(baseURL string, opts ...RemoteOption) *Remote {
	r := &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type pipelinePayload struct {
	Nodes []core.Node `json:"nodes"`
	Edges []core.Edge `json:"edges"`
	Name  string      `json:"name"`
}

// Check posts the graph to both endpoints concurrently. An empty graph is
// analyzed locally since the service rejects it.
func (r *Remote) Check(ctx context.Context, g core.Graph, name string) (*core.Verdict, error) {
	v := &core.Verdict{Fingerprint: Fingerprint(g)}
	if len(g.Nodes) == 0 {
		v.Analysis = Analyze(g)
		v.Validation = core.ValidationReport{Valid: true, Errors: []core.FieldError{}, Warnings: []string{}}
		return v, nil
	}

	if name == "" {
		name = core.DefaultPipelineName
	}
	body, err := sonic.Marshal(pipelinePayload{Nodes: orEmptyNodes(g.Nodes), Edges: orEmptyEdges(g.Edges), Name: name})
	if err != nil {
		return nil, fmt.Errorf("failed to encode pipeline: %w", err)
	}

	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return r.post(egctx, "/parse", body, &v.Analysis)
	})
	eg.Go(func() error {
		return r.post(egctx, "/validate", body, &v.Validation)
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return v, nil
}

func (r *Remote) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("validator %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("validator %s: failed to read response: %w", path, err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("validator %s: %s: %s", path, resp.Status, errorMessage(data))
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("validator %s: failed to decode response: %w", path, err)
	}
	return nil
}

// errorMessage extracts {"error": ...} or {"detail": ...} from a failure body.
func errorMessage(data []byte) string {
	var body struct {
		Error  string `json:"error"`
		Detail any    `json:"detail"`
	}
	if err := sonic.Unmarshal(data, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Detail != nil {
			return fmt.Sprint(body.Detail)
		}
	}
	return strings.TrimSpace(string(data))
}

func orEmptyNodes(n []core.Node) []core.Node {
	if n == nil {
		return []core.Node{}
	}
	return n
}

func orEmptyEdges(e []core.Edge) []core.Edge {
	if e == nil {
		return []core.Edge{}
	}
	return e
}
