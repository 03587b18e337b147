package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/effective-security/mcpagent/agent"
	"github.com/effective-security/mcpagent/callbacks"
	"github.com/effective-security/mcpagent/conversation"
	"github.com/effective-security/mcpagent/pkg/llmutils"
)

// ChatCmd runs the conversation in the terminal.
// Without the query, the lines from the input are the queries until EOF or /exit.
type ChatCmd struct {
	Query   string `short:"q" long:"query" description:"single query to answer"`
	Stream  bool   `short:"s" long:"stream" description:"print the answer as it is streamed"`
	Verbose bool   `short:"v" long:"verbose" description:"print the model and tool calls, and the run stats"`
	Phone   string `long:"phone" description:"phone of the authenticated user"`
	Email   string `long:"email" description:"email of the authenticated user"`

	root *Options
}

// Execute implements flags.Commander
func (c *ChatCmd) Execute(_ []string) error {
	cfg, err := c.root.loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var cb conversation.Callback
	if c.Verbose {
		out := c.root.out
		cb = callbacks.NewFanout(
			callbacks.NewPrinter(out, callbacks.ModeVerbose),
			callbacks.NewScratchpad(callbacks.ModeDefault, func(stats *callbacks.RunStats, _ []byte) {
				fmt.Fprintf(out, "Run %s: %s, LLM calls: %d, Tool calls: %d, Tokens: %d\n",
					stats.RunID, stats.Duration, stats.LLMCalls, stats.ToolsCalls, stats.LLMTotalTokens)
			}),
		)
	}

	a, release, err := c.root.newAgent(cfg, cb)
	if err != nil {
		return err
	}
	defer release()

	if err = a.Initialize(ctx); err != nil {
		return err
	}
	if err = a.SetAuthContext(ctx, agent.AuthContext{Phone: c.Phone, Email: c.Email}); err != nil {
		return err
	}

	if c.Query != "" {
		return c.ask(ctx, a, c.Query)
	}
	return c.repl(ctx, a, c.root.in)
}

func (c *ChatCmd) repl(ctx context.Context, a *agent.Agent, in io.Reader) error {
	out := c.root.out
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			if err := a.Reset(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "conversation reset")
		case "/info":
			info, err := a.ConversationInfo()
			if err != nil {
				return err
			}
			fmt.Fprint(out, llmutils.ToYAML(info))
		case "/tools":
			for _, t := range a.Tools() {
				fmt.Fprintf(out, "%s: %s\n", t.Name, t.Description)
			}
		case "/hints":
			for _, h := range a.Hints(ctx) {
				fmt.Fprintf(out, "- %s\n", h)
			}
		default:
			if err := c.ask(ctx, a, line); err != nil {
				fmt.Fprintf(out, "error: %s\n", err.Error())
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *ChatCmd) ask(ctx context.Context, a *agent.Agent, query string) error {
	out := c.root.out
	if !c.Stream {
		answer, err := a.Query(ctx, query)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, answer)
		return nil
	}

	seq, err := a.Stream(ctx, query)
	if err != nil {
		return err
	}
	for fragment := range seq {
		fmt.Fprint(out, fragment)
	}
	fmt.Fprintln(out)
	return nil
}
