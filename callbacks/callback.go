package callbacks

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/effective-security/mcpagent/conversation"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
)

// ensure that the callbacks implement the correct interfaces
var (
	_ conversation.Callback = (*Noop)(nil)
	_ tools.Callback        = (*Noop)(nil)
	_ conversation.Callback = (*Printer)(nil)
	_ tools.Callback        = (*Printer)(nil)
	_ conversation.Callback = (*PackageLogger)(nil)
	_ tools.Callback        = (*PackageLogger)(nil)
	_ conversation.Callback = (*Fanout)(nil)
	_ tools.Callback        = (*Fanout)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose is the verbose mode for callback printing
	ModeVerbose
)

// Fanout forwards the events to every callback, in order.
type Fanout struct {
	callbacks []conversation.Callback
}

// NewFanout returns the Fanout
func NewFanout(callbacks ...conversation.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

// Add appends the callback, not safe for concurrent use with the events.
func (l *Fanout) Add(callback conversation.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) each(fn func(conversation.Callback)) {
	for _, cb := range l.callbacks {
		fn(cb)
	}
}

func (l *Fanout) OnQueryStart(ctx context.Context, name string, input string) {
	l.each(func(cb conversation.Callback) { cb.OnQueryStart(ctx, name, input) })
}

func (l *Fanout) OnQueryEnd(ctx context.Context, name string, input, answer string, messages []llms.Message) {
	l.each(func(cb conversation.Callback) { cb.OnQueryEnd(ctx, name, input, answer, messages) })
}

func (l *Fanout) OnQueryError(ctx context.Context, name string, input string, err error) {
	l.each(func(cb conversation.Callback) { cb.OnQueryError(ctx, name, input, err) })
}

func (l *Fanout) OnModelCallStart(ctx context.Context, llm llms.Model, payload []llms.Message) {
	l.each(func(cb conversation.Callback) { cb.OnModelCallStart(ctx, llm, payload) })
}

func (l *Fanout) OnModelCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse) {
	l.each(func(cb conversation.Callback) { cb.OnModelCallEnd(ctx, llm, resp) })
}

func (l *Fanout) OnReset(ctx context.Context, name string) {
	l.each(func(cb conversation.Callback) { cb.OnReset(ctx, name) })
}

func (l *Fanout) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	l.each(func(cb conversation.Callback) { cb.OnToolStart(ctx, tool, input) })
}

func (l *Fanout) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	l.each(func(cb conversation.Callback) { cb.OnToolEnd(ctx, tool, input, output) })
}

func (l *Fanout) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	l.each(func(cb conversation.Callback) { cb.OnToolError(ctx, tool, input, err) })
}

func (l *Fanout) OnToolNotFound(ctx context.Context, tool string) {
	l.each(func(cb conversation.Callback) { cb.OnToolNotFound(ctx, tool) })
}

// Noop ignores the events.
type Noop struct{}

// NewNoop returns the Noop
func NewNoop() *Noop {
	return &Noop{}
}

func (*Noop) OnQueryStart(context.Context, string, string)                       {}
func (*Noop) OnQueryEnd(context.Context, string, string, string, []llms.Message) {}
func (*Noop) OnQueryError(context.Context, string, string, error)                {}
func (*Noop) OnModelCallStart(context.Context, llms.Model, []llms.Message)       {}
func (*Noop) OnModelCallEnd(context.Context, llms.Model, *llms.ContentResponse)  {}
func (*Noop) OnReset(context.Context, string)                                    {}
func (*Noop) OnToolStart(context.Context, tools.ITool, string)                   {}
func (*Noop) OnToolEnd(context.Context, tools.ITool, string, string)             {}
func (*Noop) OnToolError(context.Context, tools.ITool, string, error)            {}
func (*Noop) OnToolNotFound(context.Context, string)                             {}

// Printer writes a line per event to Out, for the interactive chat.
// The verbose mode also prints the payloads.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

// NewPrinter returns the Printer
func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) printf(format string, args ...any) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, format, args...)
}

func (l *Printer) verbose() bool {
	return l.Mode == ModeVerbose
}

func (l *Printer) OnQueryStart(ctx context.Context, name string, input string) {
	l.printf("Query Start: %s\nInput: %s\n", name, input)
}

func (l *Printer) OnQueryEnd(ctx context.Context, name string, input, answer string, messages []llms.Message) {
	if l.verbose() {
		l.printf("Query End: %s, %d messages\n%s\n", name, len(messages), answer)
		return
	}
	l.printf("Query End: %s, %d messages\n", name, len(messages))
}

func (l *Printer) OnQueryError(ctx context.Context, name string, input string, err error) {
	l.printf("Query Error: %s: %s\n", name, err.Error())
}

func (l *Printer) OnModelCallStart(ctx context.Context, llm llms.Model, payload []llms.Message) {
	l.printf("Model Call: %s model, %d messages\n", llm.GetName(), len(payload))
}

func (l *Printer) OnModelCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse) {
	var calls strings.Builder
	if l.verbose() {
		for _, choice := range resp.Choices {
			for _, tc := range choice.ToolCalls {
				calls.WriteString(tc.String())
				calls.WriteString("\n")
			}
		}
	}
	l.printf("Model Call End: %s model, %d choices\n%s", llm.GetName(), len(resp.Choices), calls.String())
}

func (l *Printer) OnReset(ctx context.Context, name string) {
	l.printf("Reset: %s\n", name)
}

func (l *Printer) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	l.printf("Tool Start: %s\nInput: %s\n", tool.Name(), input)
}

func (l *Printer) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	if l.verbose() {
		l.printf("Tool End: %s\nOutput: %s\n", tool.Name(), output)
		return
	}
	l.printf("Tool End: %s\n", tool.Name())
}

func (l *Printer) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	l.printf("Tool Error: %s: %s\n", tool.Name(), err.Error())
}

func (l *Printer) OnToolNotFound(ctx context.Context, tool string) {
	l.printf("Tool Not Found: %s\n", tool)
}

// PackageLogger writes the events to the package logger,
// model and tool payloads are truncated.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

// NewPackageLogger returns the PackageLogger
func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnQueryStart(ctx context.Context, name string, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "query_start",
		"agent", name,
		"input", slices.StringUpto(input, 256),
	)
}

func (l *PackageLogger) OnQueryEnd(ctx context.Context, name string, input, answer string, messages []llms.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "query_end",
		"agent", name,
		"messages", len(messages),
		"answer", slices.StringUpto(answer, 256),
	)
}

func (l *PackageLogger) OnQueryError(ctx context.Context, name string, input string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "query_error",
		"agent", name,
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnModelCallStart(ctx context.Context, llm llms.Model, payload []llms.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "model_call_start",
		"model", llm.GetName(),
		"messages", len(payload),
	)
}

func (l *PackageLogger) OnModelCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "model_call_end",
		"model", llm.GetName(),
		"choices", len(resp.Choices),
	)
}

func (l *PackageLogger) OnReset(ctx context.Context, name string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "reset",
		"agent", name,
	)
}

func (l *PackageLogger) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"tool", tool.Name(),
		"input", slices.StringUpto(input, 256),
	)
}

func (l *PackageLogger) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"tool", tool.Name(),
		"output", slices.StringUpto(output, 256),
	)
}

func (l *PackageLogger) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "tool_error",
		"tool", tool.Name(),
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnToolNotFound(ctx context.Context, tool string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_not_found",
		"tool", tool,
	)
}
