package llmfactory

import (
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/pkg/llms/openai"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "llmfactory")

// NewLLM creates the model of the provider, tests override it.
var NewLLM = CreateLLM

// Factory creates the models by purpose, the models are cached.
type Factory struct {
	cfg      *Config
	fallback *ProviderConfig

	lock   sync.Mutex
	models map[string]llms.Model
}

// New returns the Factory
func New(cfg *Config) *Factory {
	f := &Factory{
		cfg:    cfg,
		models: make(map[string]llms.Model),
	}
	for _, p := range cfg.Providers {
		if p.Name == cfg.DefaultProvider {
			f.fallback = p
			break
		}
	}
	if f.fallback == nil && len(cfg.Providers) > 0 {
		f.fallback = cfg.Providers[0]
	}
	return f
}

// CreateLLM creates the OpenAI compatible model of the provider,
// using the first preferred model it serves.
func CreateLLM(cfg *ProviderConfig, preferredModels ...string) (llms.Model, error) {
	var pt llms.ProviderType
	switch apiType := strings.ToUpper(cfg.OpenAI.APIType); apiType {
	case "", "OPENAI", "OPEN_AI":
		pt = llms.ProviderOpenAI
	case "PERPLEXITY":
		pt = llms.ProviderPerplexity
	default:
		return nil, errors.Errorf("unsupported provider type: %s", apiType)
	}

	opts := []openai.Option{
		openai.WithProviderType(pt),
		openai.WithModel(cfg.FindModel(preferredModels...)),
	}
	if cfg.Token != "" {
		opts = append(opts, openai.WithToken(cfg.Token))
	}
	if cfg.OpenAI.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	if cfg.OpenAI.OrgID != "" {
		opts = append(opts, openai.WithOrganization(cfg.OpenAI.OrgID))
	}
	return openai.New(opts...)
}

// DefaultModel returns the default model of the default provider.
func (f *Factory) DefaultModel() (llms.Model, error) {
	if f.fallback == nil {
		return nil, errors.New("no providers configured")
	}
	return f.create(f.fallback, f.fallback.DefaultModel)
}

// ModelByName returns the model of the first provider serving one of
// the names, in order of preference, or the default model.
func (f *Factory) ModelByName(names ...string) (llms.Model, error) {
	for _, name := range names {
		for _, p := range f.cfg.Providers {
			if !p.Serves(name) {
				continue
			}
			m, err := f.create(p, name)
			if err != nil {
				logger.KV(xlog.ERROR,
					"reason", "create_llm",
					"provider", p.Name,
					"model", name,
					"err", err.Error())
				continue
			}
			return m, nil
		}
	}
	return f.DefaultModel()
}

// PurposeModel returns the model configured for the purpose,
// then for the default purpose, then the preferred models.
func (f *Factory) PurposeModel(purpose string, preferredModels ...string) (llms.Model, error) {
	if names, ok := f.cfg.PurposeModels[purpose]; ok {
		return f.ModelByName(names...)
	}
	if names, ok := f.cfg.PurposeModels[PurposeDefault]; ok {
		return f.ModelByName(names...)
	}
	return f.ModelByName(preferredModels...)
}

func (f *Factory) create(p *ProviderConfig, model string) (llms.Model, error) {
	key := p.Name + "/" + model

	f.lock.Lock()
	defer f.lock.Unlock()
	if m, ok := f.models[key]; ok {
		return m, nil
	}
	m, err := NewLLM(p, model)
	if err != nil {
		return nil, err
	}
	logger.KV(xlog.DEBUG,
		"status", "created_llm",
		"provider", p.Name,
		"model", m.GetName())
	f.models[key] = m
	return m, nil
}
