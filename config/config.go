package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/pkg/llmfactory"
	"github.com/effective-security/mcpagent/registry"
	"github.com/effective-security/x/configloader"
	"github.com/effective-security/xlog"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "config")

// Default values
const (
	DefaultModel            = "gpt-4o"
	DefaultBookingURL       = "http://booking-agent:9001/mcp"
	DefaultPaymentURL       = "http://payment-agent:9002/mcp"
	DefaultConnectRetries   = 15
	DefaultConnectDelay     = Duration(time.Second)
	DefaultHost             = "0.0.0.0"
	DefaultPort             = 8000
	DefaultCustomerProvider = "booking"
	DefaultCustomerTool     = "getCustomerContext"
	DefaultHintsTool        = "booking__searchTours"
)

// Config of the agent service
type Config struct {
	LLM       LLMConfig        `json:"llm" yaml:"llm"`
	Providers []ProviderConfig `json:"providers" yaml:"providers" validate:"min=1,unique=ID,dive"`
	Connect   ConnectConfig    `json:"connect" yaml:"connect"`
	Agent     AgentConfig      `json:"agent" yaml:"agent"`
	Stream    StreamConfig     `json:"stream" yaml:"stream"`
	Server    ServerConfig     `json:"server" yaml:"server"`
	Redis     RedisConfig      `json:"redis" yaml:"redis"`
	// LogLevel is the global log level
	LogLevel string `json:"log_level" yaml:"log_level" validate:"oneof=DEBUG INFO WARNING ERROR"`
}

// LLMConfig is the model consumer configuration.
// FactoryFile takes precedence over the single provider settings.
type LLMConfig struct {
	// Provider is OPENAI or PERPLEXITY
	Provider string `json:"provider" yaml:"provider" validate:"oneof=OPENAI PERPLEXITY"`
	APIKey   string `json:"api_key,omitempty" yaml:"api_key,omitempty" validate:"required_without=FactoryFile"`
	BaseURL  string `json:"base_url,omitempty" yaml:"base_url,omitempty" validate:"omitempty,url"`
	Model    string `json:"model" yaml:"model" validate:"required"`
	// HintsModel is the model for hints, defaults to Model
	HintsModel string `json:"hints_model,omitempty" yaml:"hints_model,omitempty"`
	// FactoryFile is the location of llmfactory config
	FactoryFile string `json:"factory_file,omitempty" yaml:"factory_file,omitempty"`
}

// ProviderConfig is the tool provider
type ProviderConfig struct {
	// ID is the namespace of the provider tools
	ID      string `json:"id" yaml:"id" validate:"required,excludes=__"`
	Address string `json:"address" yaml:"address" validate:"required"`
}

// ConnectConfig is the retry policy of the provider sessions
type ConnectConfig struct {
	Retries      int      `json:"retries" yaml:"retries" validate:"min=1"`
	Delay        Duration `json:"delay" yaml:"delay" validate:"min=0"`
	StartupDelay Duration `json:"startup_delay" yaml:"startup_delay" validate:"min=0"`
}

// AgentConfig is the conversation configuration
type AgentConfig struct {
	Name              string  `json:"name" yaml:"name" validate:"required"`
	MaxIterations     int     `json:"max_iterations" yaml:"max_iterations" validate:"min=1"`
	ParallelToolCalls bool    `json:"parallel_tool_calls" yaml:"parallel_tool_calls"`
	Temperature       float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" validate:"min=0,max=2"`
	// SystemPrompt overrides the default persona
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	// CustomerProvider is the provider of the customer lookup tool
	CustomerProvider string `json:"customer_provider" yaml:"customer_provider"`
	// CustomerTool is the local name of the customer lookup tool
	CustomerTool string `json:"customer_tool" yaml:"customer_tool"`
	// HintsTool is the namespaced tool that lists the tours for hints,
	// empty disables hints
	HintsTool string `json:"hints_tool,omitempty" yaml:"hints_tool,omitempty"`
}

// StreamConfig is the pacing of the streamed answer
type StreamConfig struct {
	ChunkSize int      `json:"chunk_size" yaml:"chunk_size" validate:"min=1"`
	Delay     Duration `json:"delay" yaml:"delay" validate:"min=0"`
}

// ServerConfig is the HTTP listener
type ServerConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port" validate:"min=1,max=65535"`
}

// RedisConfig enables the history persistence when URL is set
type RedisConfig struct {
	URL    string `json:"url,omitempty" yaml:"url,omitempty" validate:"omitempty,url"`
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	ChatID string `json:"chat_id,omitempty" yaml:"chat_id,omitempty"`
	// TTL expires the history of an idle chat, zero keeps it
	TTL Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "OPENAI",
			Model:    DefaultModel,
		},
		Providers: []ProviderConfig{
			{ID: "booking", Address: DefaultBookingURL},
			{ID: "payment", Address: DefaultPaymentURL},
		},
		Connect: ConnectConfig{
			Retries: DefaultConnectRetries,
			Delay:   DefaultConnectDelay,
		},
		Agent: AgentConfig{
			Name:              "travel-agent",
			MaxIterations:     20,
			ParallelToolCalls: true,
			CustomerProvider:  DefaultCustomerProvider,
			CustomerTool:      DefaultCustomerTool,
			HintsTool:         DefaultHintsTool,
		},
		Stream: StreamConfig{
			ChunkSize: 1,
			Delay:     Duration(20 * time.Millisecond),
		},
		Server: ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Redis: RedisConfig{
			Prefix: "mcpagent",
		},
		LogLevel: "INFO",
	}
}

// Load returns the configuration.
// The .env files are loaded first so the file can reference them,
// then the defaults are overridden by the file and by the environment.
func Load(file string, envFiles ...string) (*Config, error) {
	if err := LoadEnvFiles(envFiles...); err != nil {
		return nil, err
	}

	cfg := Default()
	if file != "" {
		if err := configloader.UnmarshalAndExpand(file, cfg); err != nil {
			return nil, errors.WithMessagef(err, "failed to load config %s", file)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFiles loads the .env files into the environment,
// existing variables are not overridden.
// With no files, the optional .env in the current folder is loaded.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		return errors.WithMessagef(err, "failed to load env files %v", files)
	}
	logger.KV(xlog.DEBUG, "status", "env_loaded", "files", files)
	return nil
}

// LookupEnvFunc returns the value of the environment variable
type LookupEnvFunc func(key string) (string, bool)

// ApplyEnv overrides the configuration from the environment variables.
func (c *Config) ApplyEnv(lookup LookupEnvFunc) error {
	str := func(key string, target *string) {
		if v, ok := lookup(key); ok && v != "" {
			*target = v
		}
	}
	var errs error
	integer := func(key string, target *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := cast.ToIntE(strings.TrimSpace(v))
			if err != nil {
				errs = errors.CombineErrors(errs, errors.Errorf("invalid %s: %q", key, v))
				return
			}
			*target = n
		}
	}
	duration := func(key string, target *Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := ParseDuration(v)
			if err != nil {
				errs = errors.CombineErrors(errs, errors.Errorf("invalid %s: %q", key, v))
				return
			}
			*target = d
		}
	}
	boolean := func(key string, target *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := cast.ToBoolE(strings.TrimSpace(v))
			if err != nil {
				errs = errors.CombineErrors(errs, errors.Errorf("invalid %s: %q", key, v))
				return
			}
			*target = b
		}
	}

	str("OPENAI_API_KEY", &c.LLM.APIKey)
	str("OPENAI_BASE_URL", &c.LLM.BaseURL)
	str("LLM_MODEL", &c.LLM.Model)
	str("LLM_HINTS_MODEL", &c.LLM.HintsModel)
	str("LLM_FACTORY_FILE", &c.LLM.FactoryFile)
	if v, ok := lookup("BOOKING_AGENT_URL"); ok && v != "" {
		c.SetProvider("booking", v)
	}
	if v, ok := lookup("PAYMENT_AGENT_URL"); ok && v != "" {
		c.SetProvider("payment", v)
	}
	integer("MCP_CONNECT_RETRIES", &c.Connect.Retries)
	duration("MCP_CONNECT_DELAY", &c.Connect.Delay)
	duration("STARTUP_DELAY", &c.Connect.StartupDelay)
	integer("MAX_ITERATIONS", &c.Agent.MaxIterations)
	boolean("PARALLEL_TOOL_CALLS", &c.Agent.ParallelToolCalls)
	str("HOST", &c.Server.Host)
	integer("PORT", &c.Server.Port)
	str("REDIS_URL", &c.Redis.URL)
	duration("REDIS_TTL", &c.Redis.TTL)
	str("LOG_LEVEL", &c.LogLevel)

	c.LLM.Provider = strings.ToUpper(c.LLM.Provider)
	c.LogLevel = strings.ToUpper(c.LogLevel)
	return errs
}

// SetProvider sets the address of the provider, the provider is added if not found
func (c *Config) SetProvider(id, address string) {
	for i := range c.Providers {
		if c.Providers[i].ID == id {
			c.Providers[i].Address = address
			return
		}
	}
	c.Providers = append(c.Providers, ProviderConfig{ID: id, Address: address})
}

// Provider returns the provider by ID
func (c *Config) Provider(id string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate returns error if the configuration is not valid
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		var issues []string
		for _, fe := range verrs {
			issues = append(issues, describe(fe))
		}
		return errors.Errorf("invalid configuration: %s", strings.Join(issues, "; "))
	}
	return errors.WithMessage(err, "invalid configuration")
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required", "required_without":
		if field == "LLM.APIKey" {
			return "OPENAI_API_KEY environment variable not set"
		}
		return field + " is required"
	case "unique":
		return field + " must have unique " + fe.Param()
	case "excludes":
		return field + " must not contain " + registry.Separator
	}
	if fe.Param() != "" {
		return field + " must satisfy " + fe.Tag() + "=" + fe.Param()
	}
	return field + " must satisfy " + fe.Tag()
}

// LLMFactoryConfig returns the model factory configuration
func (c *Config) LLMFactoryConfig() (*llmfactory.Config, error) {
	if c.LLM.FactoryFile != "" {
		return llmfactory.LoadConfig(c.LLM.FactoryFile)
	}

	models := []string{c.LLM.Model}
	purposes := map[string][]string{
		llmfactory.PurposeQuery: {c.LLM.Model},
	}
	if c.LLM.HintsModel != "" && c.LLM.HintsModel != c.LLM.Model {
		models = append(models, c.LLM.HintsModel)
		purposes[llmfactory.PurposeHints] = []string{c.LLM.HintsModel}
	}

	name := strings.ToLower(c.LLM.Provider)
	return &llmfactory.Config{
		DefaultProvider: name,
		Providers: []*llmfactory.ProviderConfig{
			{
				Name:            name,
				Token:           c.LLM.APIKey,
				DefaultModel:    c.LLM.Model,
				AvailableModels: models,
				OpenAI: llmfactory.OpenAIConfig{
					BaseURL: c.LLM.BaseURL,
					APIType: c.LLM.Provider,
				},
			},
		},
		PurposeModels: purposes,
	}, nil
}
