package openai

import (
	"net/http"
	"os"

	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/x/values"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o"

// TokenEnv is read when no token is configured.
const TokenEnv = "OPENAI_API_KEY" //nolint:gosec

type options struct {
	token        string
	model        string
	baseURL      string
	organization string
	httpClient   *http.Client
	providerType llms.ProviderType
}

// Option configures the LLM.
type Option func(*options)

// WithToken sets the API key, by default OPENAI_API_KEY is used.
func WithToken(token string) Option {
	return func(opts *options) {
		opts.token = token
	}
}

// WithModel sets the model, by default gpt-4o.
func WithModel(model string) Option {
	return func(opts *options) {
		opts.model = model
	}
}

// WithBaseURL sets the API endpoint of a compatible gateway,
// including the /v1 path.
func WithBaseURL(baseURL string) Option {
	return func(opts *options) {
		opts.baseURL = baseURL
	}
}

// WithOrganization sets the organization billed for the requests.
func WithOrganization(organization string) Option {
	return func(opts *options) {
		opts.organization = organization
	}
}

// WithHTTPClient sets the HTTP client of the API.
func WithHTTPClient(client *http.Client) Option {
	return func(opts *options) {
		opts.httpClient = client
	}
}

// WithProviderType sets the provider type reported by the LLM,
// by default OPENAI.
func WithProviderType(pt llms.ProviderType) Option {
	return func(opts *options) {
		opts.providerType = pt
	}
}

func newOptions(opts ...Option) *options {
	o := &options{
		providerType: llms.ProviderOpenAI,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.token = values.StringsCoalesce(o.token, os.Getenv(TokenEnv))
	o.model = values.StringsCoalesce(o.model, DefaultModel)
	return o
}
