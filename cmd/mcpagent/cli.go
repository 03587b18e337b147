package main

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/agent"
	"github.com/effective-security/mcpagent/config"
	"github.com/effective-security/mcpagent/conversation"
	"github.com/effective-security/mcpagent/pkg/llmfactory"
	"github.com/effective-security/mcpagent/store"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/jessevdk/go-flags"
	"github.com/redis/go-redis/v9"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "cmd")

// Options are the global flags and the commands
type Options struct {
	Config   string   `short:"c" long:"config" description:"configuration file, YAML or JSON"`
	EnvFiles []string `short:"e" long:"env" description:".env file to load, can be repeated"`
	LogLevel string   `short:"l" long:"log-level" description:"overrides the log level: DEBUG|INFO|WARNING|ERROR"`

	Serve ServeCmd `command:"serve" description:"Start the HTTP server"`
	Chat  ChatCmd  `command:"chat" description:"Chat with the agent in the terminal"`
	Tools ToolsCmd `command:"tools" description:"Print the tools offered by the providers"`

	in  io.Reader
	out io.Writer
}

func newOptions(in io.Reader, out io.Writer) *Options {
	o := &Options{in: in, out: out}
	o.Serve.root = o
	o.Chat.root = o
	o.Tools.root = o
	return o
}

func run(args []string, in io.Reader, out io.Writer) error {
	opts := newOptions(in, out)
	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	_, err := parser.ParseArgs(args)
	if err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			_, _ = io.WriteString(out, ferr.Message+"\n")
			return nil
		}
	}
	return err
}

func (o *Options) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.Config, o.EnvFiles...)
	if err != nil {
		return nil, err
	}
	if o.LogLevel != "" {
		cfg.LogLevel = strings.ToUpper(o.LogLevel)
	}
	setupLogging(cfg.LogLevel)
	return cfg, nil
}

func setupLogging(level string) {
	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	switch level {
	case "DEBUG":
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	case "WARNING":
		xlog.SetGlobalLogLevel(xlog.WARNING)
	case "ERROR":
		xlog.SetGlobalLogLevel(xlog.ERROR)
	default:
		xlog.SetGlobalLogLevel(xlog.INFO)
	}
}

// newAgent returns the agent and the function to release it.
func (o *Options) newAgent(cfg *config.Config, cb conversation.Callback) (*agent.Agent, func(), error) {
	fc, err := cfg.LLMFactoryConfig()
	if err != nil {
		return nil, nil, err
	}
	f := llmfactory.New(fc)
	llm, err := f.PurposeModel(llmfactory.PurposeQuery, cfg.LLM.Model)
	if err != nil {
		return nil, nil, err
	}
	hintsLLM, err := f.PurposeModel(llmfactory.PurposeHints, values.StringsCoalesce(cfg.LLM.HintsModel, cfg.LLM.Model))
	if err != nil {
		return nil, nil, err
	}

	opts := []agent.Option{agent.WithHintsModel(hintsLLM)}
	if cb != nil {
		opts = append(opts, agent.WithCallback(cb))
	}

	var client *redis.Client
	if cfg.Redis.URL != "" {
		ropts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "invalid Redis URL")
		}
		client = redis.NewClient(ropts)
		opts = append(opts, agent.WithStore(store.NewRedisStore(client, cfg.Redis.Prefix, store.WithTTL(cfg.Redis.TTL.D()))))
	}

	a := agent.New(cfg, llm, opts...)
	release := func() {
		if err := a.Shutdown(context.Background()); err != nil {
			logger.KV(xlog.WARNING, "status", "shutdown_failed", "err", err.Error())
		}
		if client != nil {
			_ = client.Close()
		}
	}
	return a, release, nil
}
