package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/pkg/metricskey"
	"github.com/effective-security/mcpagent/tools"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

// normalizeToolCalls fills the missing IDs and types of the tool calls.
func normalizeToolCalls(calls []llms.ToolCall) []llms.ToolCall {
	res := make([]llms.ToolCall, 0, len(calls))
	for i, tc := range calls {
		fc := llms.FunctionCall{}
		if tc.FunctionCall != nil {
			fc = *tc.FunctionCall
		}
		if tc.ID == "" {
			tc.ID = fmt.Sprintf("%s_%d", fc.Name, i)
		}
		tc.Type = values.StringsCoalesce(tc.Type, "function")
		tc.FunctionCall = &fc
		res = append(res, tc)
	}
	return res
}

// dispatch invokes the tool calls and returns the outcomes in the request order.
func (e *Engine) dispatch(ctx context.Context, calls []llms.ToolCall) []tools.Outcome {
	outcomes := make([]tools.Outcome, len(calls))
	if !e.cfg.ParallelToolCalls || len(calls) < 2 {
		for i, tc := range calls {
			outcomes[i] = e.invoke(ctx, invocation(tc))
		}
		return outcomes
	}

	var wg sync.WaitGroup
	wg.Add(len(calls))
	for i, tc := range calls {
		go func(index int, inv tools.Invocation) {
			defer wg.Done()
			// each goroutine owns its slot
			outcomes[index] = e.invoke(ctx, inv)
		}(i, invocation(tc))
	}
	wg.Wait()
	return outcomes
}

func invocation(tc llms.ToolCall) tools.Invocation {
	inv := tools.Invocation{CallID: tc.ID}
	if tc.FunctionCall != nil {
		inv.Name = tc.FunctionCall.Name
		inv.Arguments = tc.FunctionCall.Arguments
	}
	return inv
}

// invoke always returns the outcome, the tool errors and panics
// are reported in the payload.
func (e *Engine) invoke(ctx context.Context, inv tools.Invocation) (outcome tools.Outcome) {
	tool, ok := e.router.Lookup(inv.Name)
	if !ok {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, inv.Name)
		if e.cfg.Callback != nil {
			e.cfg.Callback.OnToolNotFound(ctx, inv.Name)
		}
		logger.ContextKV(ctx, xlog.WARNING,
			"agent", e.cfg.Name,
			"status", "unknown_tool",
			"tool", inv.Name,
			"call_id", inv.CallID)
		return tools.Failed(inv, tools.CodeUnknownTool, nil)
	}

	if e.cfg.Callback != nil {
		e.cfg.Callback.OnToolStart(ctx, tool, inv.Arguments)
	}

	logger.ContextKV(ctx, xlog.INFO,
		"agent", e.cfg.Name,
		"status", "calling_tool",
		"tool", inv.Name,
		"call_id", inv.CallID,
		"args", slices.StringUpto(inv.Arguments, 256))

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := errors.Newf("tool %s panicked: %v", inv.Name, r)
			outcome = e.failed(ctx, tool, inv, tools.NewOutcome(inv, "", err), err)
		}
	}()

	res, err := tool.Call(ctx, inv.Arguments)
	metricskey.PerfToolCall.MeasureSince(started, inv.Name)

	outcome = tools.NewOutcome(inv, res, err)
	if err != nil {
		return e.failed(ctx, tool, inv, outcome, err)
	}

	metricskey.StatsToolCallsSucceeded.IncrCounter(1, inv.Name)
	logger.ContextKV(ctx, xlog.DEBUG,
		"agent", e.cfg.Name,
		"status", "tool_result",
		"tool", inv.Name,
		"call_id", inv.CallID,
		"result", slices.StringUpto(outcome.Payload, 256))

	if e.cfg.Callback != nil {
		e.cfg.Callback.OnToolEnd(ctx, tool, inv.Arguments, outcome.Payload)
	}
	return outcome
}

func (e *Engine) failed(ctx context.Context, tool tools.ITool, inv tools.Invocation, outcome tools.Outcome, err error) tools.Outcome {
	if outcome.ErrorCode == tools.CodeInvalidArguments {
		metricskey.StatsToolCallsInvalid.IncrCounter(1, inv.Name)
	} else {
		metricskey.StatsToolCallsFailed.IncrCounter(1, inv.Name)
	}
	logger.ContextKV(ctx, xlog.WARNING,
		"agent", e.cfg.Name,
		"status", "tool_call_failed",
		"tool", inv.Name,
		"call_id", inv.CallID,
		"code", outcome.ErrorCode,
		"err", err.Error())

	if e.cfg.Callback != nil {
		e.cfg.Callback.OnToolError(ctx, tool, inv.Arguments, err)
	}
	return outcome
}
