package agent

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/pkg/llmutils"
	"github.com/effective-security/mcpagent/pkg/metricskey"
	"github.com/effective-security/mcpagent/pkg/prompts"
	"github.com/effective-security/mcpagent/registry"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/spf13/cast"
)

// Hints limits
const (
	MaxHints      = 5
	MaxHintLength = 120

	hintsTemperature = 0.4
	hintsMaxTokens   = 150
)

// Hints returns the suggested next user messages,
// grounded on the tours offered by the provider.
// Hints never change the conversation, on any failure the list is empty.
func (a *Agent) Hints(ctx context.Context) []string {
	rt, err := a.ready()
	if err != nil || a.cfg.Agent.HintsTool == "" {
		return []string{}
	}

	hints, err := a.hints(ctx, rt)
	if err != nil {
		metricskey.StatsHintsFailed.IncrCounter(1, a.cfg.Agent.Name)
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "hints_failed",
			"err", err.Error())
		return []string{}
	}
	return hints
}

func (a *Agent) hints(ctx context.Context, rt *runtime) ([]string, error) {
	providerID, localName, ok := registry.SplitName(a.cfg.Agent.HintsTool)
	if !ok {
		return nil, errors.Errorf("invalid hints tool: %q", a.cfg.Agent.HintsTool)
	}

	res, err := rt.registry.CallProvider(ctx, providerID, localName, map[string]any{})
	if err != nil {
		return nil, errors.WithMessage(err, "failed to fetch tours")
	}

	var data map[string]any
	if err = llmutils.Unmarshal([]byte(res), &data); err != nil {
		return nil, errors.WithMessage(err, "invalid tours")
	}

	var tours []map[string]any
	for _, item := range cast.ToSlice(data["tours"]) {
		if tour := cast.ToStringMap(item); len(tour) > 0 {
			tours = append(tours, tour)
		}
	}
	if len(tours) == 0 {
		return []string{}, nil
	}

	prompt, err := prompts.HintsPrompt(prompts.HintsData{
		Tours:         tours,
		LastUser:      rt.engine.LastUserQuery(),
		LastAssistant: rt.engine.LastAnswer(),
	})
	if err != nil {
		return nil, err
	}

	resp, err := a.hintsLLM.GenerateContent(ctx, prompt.Messages(),
		llms.WithTemperature(hintsTemperature),
		llms.WithMaxTokens(hintsMaxTokens),
	)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to generate hints")
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errors.New("model returned empty response")
	}

	content := values.StringsCoalesce(strings.TrimSpace(resp.Choices[0].Content), "[]")
	var list []any
	if err = llmutils.Unmarshal([]byte(content), &list); err != nil {
		return nil, errors.WithMessage(err, "invalid hints")
	}
	return dedupHints(list), nil
}

func dedupHints(list []any) []string {
	res := make([]string, 0, MaxHints)
	seen := make(map[string]struct{}, len(list))
	for _, item := range list {
		h := truncate(cast.ToString(item), MaxHintLength)
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		res = append(res, h)
		if len(res) == MaxHints {
			break
		}
	}
	return res
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
