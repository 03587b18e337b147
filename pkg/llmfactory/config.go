package llmfactory

import (
	"slices"

	"github.com/effective-security/x/configloader"
)

// Purposes of the models used by the agent
const (
	PurposeQuery = "query"
	PurposeHints = "hints"
	// PurposeDefault is used for the purposes with no models
	PurposeDefault = "default"
)

// Config lists the model providers.
type Config struct {
	Providers []*ProviderConfig `json:"providers" yaml:"providers"`
	// DefaultProvider is the name of the provider used when no
	// preferred model is available, by default the first provider.
	DefaultProvider string `json:"default_provider" yaml:"default_provider"`
	// PurposeModels maps the purpose to the preferred model names,
	// in order of preference.
	PurposeModels map[string][]string `json:"purpose_models" yaml:"purpose_models"`
}

// ProviderConfig is an OpenAI compatible provider.
type ProviderConfig struct {
	Name            string       `json:"name" yaml:"name"`
	Token           string       `json:"token,omitempty" yaml:"token,omitempty"`
	DefaultModel    string       `json:"default_model,omitempty" yaml:"default_model,omitempty"`
	AvailableModels []string     `json:"available_models,omitempty" yaml:"available_models,omitempty"`
	OpenAI          OpenAIConfig `json:"open_ai" yaml:"open_ai"`
}

// OpenAIConfig is the endpoint of the provider.
type OpenAIConfig struct {
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// APIType is OPENAI or PERPLEXITY
	APIType string `json:"api_type,omitempty" yaml:"api_type,omitempty"`
	OrgID   string `json:"org_id,omitempty" yaml:"org_id,omitempty"`
}

// FindModel returns the first preferred model served by the provider,
// or its default model.
func (c *ProviderConfig) FindModel(models ...string) string {
	if i := slices.IndexFunc(models, func(m string) bool {
		return slices.Contains(c.AvailableModels, m)
	}); i >= 0 {
		return models[i]
	}
	return c.DefaultModel
}

// Serves returns true when the model is available at the provider.
func (c *ProviderConfig) Serves(model string) bool {
	return model == c.DefaultModel || slices.Contains(c.AvailableModels, model)
}

// LoadConfig loads the config file, environment variables are expanded.
// Empty file returns an empty config.
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return cfg, nil
	}
	if err := configloader.UnmarshalAndExpand(file, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
