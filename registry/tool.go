package registry

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/pkg/llmutils"
	"github.com/effective-security/mcpagent/pkg/schema"
	"github.com/effective-security/mcpagent/session"
	"github.com/effective-security/mcpagent/tools"
)

// Session is the provider session used by the registry.
type Session interface {
	ListTools(ctx context.Context) ([]session.ToolInfo, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*session.CallResult, error)
}

// ToolDescriptor describes the registered tool.
type ToolDescriptor struct {
	ProviderID  string             `json:"provider_id" yaml:"provider_id"`
	LocalName   string             `json:"local_name" yaml:"local_name"`
	Name        string             `json:"name" yaml:"name"`
	DisplayName string             `json:"display_name" yaml:"display_name"`
	Description string             `json:"description" yaml:"description"`
	InputSchema *schema.ToolSchema `json:"-" yaml:"-"`
}

// RoutingEntry maps the namespaced name to the owning provider.
type RoutingEntry struct {
	Name       string
	ProviderID string
	LocalName  string
}

// remoteTool is the tool hosted by the provider.
type remoteTool struct {
	desc    ToolDescriptor
	session Session
}

var _ tools.ITool = (*remoteTool)(nil)

func (t *remoteTool) Name() string {
	return t.desc.Name
}

func (t *remoteTool) Description() string {
	return t.desc.Description
}

func (t *remoteTool) Parameters() any {
	return t.desc.InputSchema.Parameters()
}

// Call parses the model arguments, validates them
// and calls the tool by the local name on the owning session.
func (t *remoteTool) Call(ctx context.Context, input string) (string, error) {
	args, err := llmutils.ParseArguments(input)
	if err != nil {
		return "", errors.Mark(err, schema.ErrInvalidArguments)
	}
	if err = t.desc.InputSchema.Validate(args); err != nil {
		return "", err
	}
	return callSession(ctx, t.session, t.desc.LocalName, args)
}

func callSession(ctx context.Context, s Session, localName string, args map[string]any) (string, error) {
	res, err := s.CallTool(ctx, localName, args)
	if err != nil {
		return "", err
	}
	return convertResult(res)
}

// convertResult returns JSON text as is, and wraps plain text as {"result": text}
func convertResult(res *session.CallResult) (string, error) {
	text := strings.TrimSpace(res.Text)
	if res.IsError {
		return "", tools.ResultError(text)
	}
	if text == "" {
		return "{}", nil
	}
	if json.Valid([]byte(text)) {
		return text, nil
	}
	return tools.WrapResult(text), nil
}
