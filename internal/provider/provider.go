// Package provider implements the Embedding Provider client (spec §6):
// a single synchronous HTTP RPC that turns a batch of strings into one
// vector per input, in order.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codebased/codebased/internal/codebaseerrors"
)

// Config configures a Provider's endpoint and request shape.
type Config struct {
	Endpoint   string
	Model      string
	Dimensions int // 0 means omit "dimensions" from the request
	APIKey     string
}

// Provider issues embedding RPCs against a remote HTTP endpoint.
type Provider struct {
	client   *http.Client
	endpoint string
	model    string
	dims     int
	apiKey   string
}

// New constructs a Provider. httpClient may be nil to use a default
// client with no intrinsic timeout, matching spec §5's "the embedding
// provider call has no intrinsic timeout in the core; callers may wrap
// with one".
func New(cfg Config, httpClient *http.Client) *Provider {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Provider{
		client:   httpClient,
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		dims:     cfg.Dimensions,
		apiKey:   cfg.APIKey,
	}
}

type embedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed sends inputs as a single batch RPC and returns one vector per
// input, in request order. Any failure is surfaced as
// EmbeddingProviderFailure (spec §7), for the Indexer to treat as a
// full rollback.
func (p *Provider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	reqBody := embedRequest{Model: p.model, Input: inputs}
	if p.dims > 0 {
		reqBody.Dimensions = p.dims
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, codebaseerrors.EmbeddingProviderFailure(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, codebaseerrors.EmbeddingProviderFailure(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, codebaseerrors.EmbeddingProviderFailure(fmt.Errorf("request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, codebaseerrors.EmbeddingProviderFailure(
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody)))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, codebaseerrors.EmbeddingProviderFailure(fmt.Errorf("decode response: %w", err))
	}
	if len(result.Data) != len(inputs) {
		return nil, codebaseerrors.EmbeddingProviderFailure(
			fmt.Errorf("expected %d embeddings, got %d", len(inputs), len(result.Data)))
	}

	vectors := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// WithTimeout wraps ctx with a deadline, the caller-side timeout spec
// §5 leaves to the caller rather than the core.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}
