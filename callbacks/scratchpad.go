package callbacks

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/effective-security/mcpagent/chatmodel"
	"github.com/effective-security/mcpagent/conversation"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/pkg/llmutils"
	"github.com/effective-security/mcpagent/tools"
)

// ensure Scratchpad implements conversation.Callback
var _ conversation.Callback = (*Scratchpad)(nil)

// TimeNowFn is the clock of the scratchpad entries
var TimeNowFn = time.Now

// RunStats is the summary of one query.
type RunStats struct {
	ChatID string
	RunID  string

	Duration            time.Duration
	Failed              bool
	TotalMessages       uint32
	LLMCalls            uint32
	LLMBytesOut         uint64
	LLMBytesIn          uint64
	LLMInputTokens      uint64
	LLMOutputTokens     uint64
	LLMTotalTokens      uint64
	ToolsCalls          uint32
	ToolsCallsSucceeded uint32
	ToolsCallsFailed    uint32
	ToolNotFound        uint32
}

// RunEndFunc receives the stats and the scratchpad of the completed run.
type RunEndFunc func(stats *RunStats, scratchpad []byte)

// Scratchpad records the events of every query run,
// and reports the run when the query ends.
// Events without a chatmodel.Run in the context are ignored.
type Scratchpad struct {
	mode  Mode
	onEnd RunEndFunc

	lock sync.Mutex
	runs map[string]*run
}

// NewScratchpad returns the Scratchpad, onEnd is optional.
func NewScratchpad(mode Mode, onEnd RunEndFunc) *Scratchpad {
	return &Scratchpad{
		runs:  make(map[string]*run),
		mode:  mode,
		onEnd: onEnd,
	}
}

// Runs returns the number of runs in progress.
func (l *Scratchpad) Runs() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return len(l.runs)
}

// record applies fn to the run in progress, if any
func (l *Scratchpad) record(ctx context.Context, fn func(r *run)) {
	chatRun := chatmodel.RunFromContext(ctx)
	if chatRun == nil {
		return
	}
	l.lock.Lock()
	r := l.runs[chatRun.ID()]
	l.lock.Unlock()
	if r == nil {
		return
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	fn(r)
}

func (l *Scratchpad) end(ctx context.Context, failed bool) {
	var stats RunStats
	var pad []byte
	l.record(ctx, func(r *run) {
		r.stats.Failed = failed
		r.stats.Duration = TimeNowFn().Sub(r.started)
		s := &r.stats
		r.print(fmt.Sprintf("Tool calls: %d, Failed: %d, Not Found: %d",
			s.ToolsCalls, s.ToolsCallsFailed, s.ToolNotFound))
		r.print(fmt.Sprintf("LLM calls: %d, Messages: %d, Bytes Out: %d, Bytes In: %d, Input Tokens: %d, Output Tokens: %d, Total Tokens: %d",
			s.LLMCalls, s.TotalMessages, s.LLMBytesOut, s.LLMBytesIn,
			s.LLMInputTokens, s.LLMOutputTokens, s.LLMTotalTokens))
		r.print(fmt.Sprintf("*** Run Ended. Duration: %s ***", s.Duration))

		stats = r.stats
		pad = bytes.Clone(r.w.Bytes())

		l.lock.Lock()
		delete(l.runs, r.stats.RunID)
		l.lock.Unlock()
	})

	if pad != nil && l.onEnd != nil {
		l.onEnd(&stats, pad)
	}
}

func (l *Scratchpad) OnQueryStart(ctx context.Context, name string, input string) {
	chatRun := chatmodel.RunFromContext(ctx)
	if chatRun == nil {
		return
	}
	r := &run{
		stats: RunStats{
			ChatID: chatRun.ChatID(),
			RunID:  chatRun.ID(),
		},
		started: TimeNowFn(),
	}
	r.print("*** Run Started ***")
	r.print(name, "Input:", input)

	l.lock.Lock()
	l.runs[chatRun.ID()] = r
	l.lock.Unlock()
}

func (l *Scratchpad) OnQueryEnd(ctx context.Context, name string, input, answer string, messages []llms.Message) {
	l.record(ctx, func(r *run) {
		if l.mode == ModeVerbose {
			r.print(name, printMessages(messages))
		}
		r.print(name, "Output:", answer)
	})
	l.end(ctx, false)
}

func (l *Scratchpad) OnQueryError(ctx context.Context, name string, input string, err error) {
	l.record(ctx, func(r *run) {
		r.print(name, "*** Error ***", err.Error())
	})
	l.end(ctx, true)
}

func (l *Scratchpad) OnModelCallStart(ctx context.Context, llm llms.Model, payload []llms.Message) {
	l.record(ctx, func(r *run) {
		r.stats.LLMCalls++
		r.stats.TotalMessages += uint32(len(payload))
		r.stats.LLMBytesOut += llmutils.CountMessagesContentSize(payload)
		r.print("*** LLM Call ***", fmt.Sprintf("%s model, %d messages", llm.GetName(), len(payload)))
	})
}

func (l *Scratchpad) OnModelCallEnd(ctx context.Context, llm llms.Model, resp *llms.ContentResponse) {
	l.record(ctx, func(r *run) {
		in, out, total := llmutils.CountTokens(resp)
		r.stats.LLMBytesIn += llmutils.CountResponseContentSize(resp)
		r.stats.LLMInputTokens += uint64(in)
		r.stats.LLMOutputTokens += uint64(out)
		r.stats.LLMTotalTokens += uint64(total)
		r.print("*** LLM Call End ***", fmt.Sprintf("%s model, %d input tokens, %d output tokens, %d total tokens", llm.GetName(), in, out, total))
	})
}

func (l *Scratchpad) OnReset(ctx context.Context, name string) {}

func (l *Scratchpad) OnToolStart(ctx context.Context, tool tools.ITool, input string) {
	l.record(ctx, func(r *run) {
		r.stats.ToolsCalls++
		r.print(tool.Name(), "*** Tool Start ***")
		r.print(tool.Name(), "Input:", input)
	})
}

func (l *Scratchpad) OnToolEnd(ctx context.Context, tool tools.ITool, input string, output string) {
	l.record(ctx, func(r *run) {
		r.stats.ToolsCallsSucceeded++
		if l.mode == ModeVerbose {
			r.print(tool.Name(), "Output:", output)
		}
		r.print(tool.Name(), "*** Tool End ***")
	})
}

func (l *Scratchpad) OnToolError(ctx context.Context, tool tools.ITool, input string, err error) {
	l.record(ctx, func(r *run) {
		r.stats.ToolsCallsFailed++
		r.print(tool.Name(), "*** Tool Error ***", err.Error())
	})
}

func (l *Scratchpad) OnToolNotFound(ctx context.Context, tool string) {
	l.record(ctx, func(r *run) {
		r.stats.ToolNotFound++
		r.print("*** Tool Not Found ***", tool)
	})
}

func printMessages(messages []llms.Message) string {
	var buf strings.Builder
	buf.WriteString("Messages:\n")
	for idx, msg := range messages {
		fmt.Fprintf(&buf, "[%d] %s:\n", idx, msg.Role)
		for _, tc := range msg.ToolCalls {
			fmt.Fprintf(&buf, "  - %s\n", tc.String())
		}
		if msg.Role == llms.RoleTool {
			fmt.Fprintf(&buf, "  - %s\n", llms.ToolCallResponse{
				ToolCallID: msg.ToolCallID,
				Name:       msg.Name,
				Content:    msg.Content,
			}.String())
		}
	}
	return buf.String()
}

// run is guarded by its lock, see Scratchpad.record
type run struct {
	lock    sync.Mutex
	w       bytes.Buffer
	started time.Time
	stats   RunStats
}

// print writes the line:
// <timestamp> <chatID>.<runID> entry entry
func (r *run) print(entries ...string) {
	fmt.Fprintf(&r.w, "%s %s.%s %s\n",
		TimeNowFn().Format(time.DateTime),
		r.stats.ChatID,
		r.stats.RunID,
		strings.Join(entries, " "))
}
