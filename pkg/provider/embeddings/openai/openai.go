// Package openai provides an embeddings provider backed by the OpenAI API.
//
// The reference corpus columns are sized once at migration time, so the
// provider is strict about vector width: the model must be one it knows the
// native width of, or the caller must fix the width with [WithDimensions].
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/daleel-app/daleel/pkg/provider/embeddings"
)

// DefaultModel is the default OpenAI embeddings model.
const DefaultModel = oai.EmbeddingModelTextEmbedding3Small

// nativeDims maps the embedding models this service configures to their
// native vector widths.
var nativeDims = map[string]int{
	string(oai.EmbeddingModelTextEmbedding3Small): 1536,
	string(oai.EmbeddingModelTextEmbedding3Large): 3072,
	string(oai.EmbeddingModelTextEmbeddingAda002): 1536,
}

// Ensure Provider implements the embeddings.Provider interface.
var _ embeddings.Provider = (*Provider)(nil)

// Provider implements embeddings.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
	dims   int
	// truncate sends the dimensions request parameter so the model returns
	// Matryoshka-truncated vectors narrower than its native width. Only the
	// 3-series models support it, so it stays off when dims equals the
	// model's native width.
	truncate bool
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	dims    int
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Useful for
// OpenAI-compatible gateways.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithDimensions fixes the output vector width. When it differs from the
// model's native width the API is asked for truncated vectors, which the
// 3-series models support. Required for models the provider does not know.
func WithDimensions(n int) Option {
	return func(c *config) {
		c.dims = n
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI embeddings Provider.
// If model is empty, DefaultModel (text-embedding-3-small) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai embeddings: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	native, known := nativeDims[model]
	dims := cfg.dims
	if dims == 0 {
		if !known {
			return nil, fmt.Errorf("openai embeddings: unknown model %q, set WithDimensions", model)
		}
		dims = native
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{
		client:   oai.NewClient(reqOpts...),
		model:    model,
		dims:     dims,
		truncate: !known || dims != native,
	}, nil
}

// params builds the request, asking for truncated output when the configured
// width differs from the model's native one.
func (p *Provider) params(input oai.EmbeddingNewParamsInputUnion) oai.EmbeddingNewParams {
	req := oai.EmbeddingNewParams{Model: p.model, Input: input}
	if p.truncate {
		req.Dimensions = param.NewOpt(int64(p.dims))
	}
	return req
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, p.params(oai.EmbeddingNewParamsInputUnion{
		OfString: param.NewOpt(text),
	}))
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings: empty response")
	}
	return p.vector(resp.Data[0].Embedding)
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.client.Embeddings.New(ctx, p.params(oai.EmbeddingNewParamsInputUnion{
		OfArrayOfStrings: texts,
	}))
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: embed batch: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	result := make([][]float32, len(texts))
	for _, e := range resp.Data {
		if int(e.Index) >= len(texts) {
			return nil, fmt.Errorf("openai embeddings: unexpected index %d", e.Index)
		}
		vec, err := p.vector(e.Embedding)
		if err != nil {
			return nil, err
		}
		result[e.Index] = vec
	}
	return result, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int {
	return p.dims
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string {
	return p.model
}

// vector converts an API embedding to float32, rejecting widths that would be
// refused by the corpus columns anyway.
func (p *Provider) vector(in []float64) ([]float32, error) {
	if len(in) != p.dims {
		return nil, fmt.Errorf("openai embeddings: got %d-dimensional vector, want %d", len(in), p.dims)
	}
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out, nil
}
