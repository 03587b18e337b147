package agent

import (
	"context"

	"github.com/effective-security/mcpagent/pkg/llmutils"
	"github.com/effective-security/mcpagent/pkg/prompts"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/xlog"
	"github.com/spf13/cast"
)

// AuthContext is the authenticated user
type AuthContext struct {
	Phone string `json:"phone,omitempty" yaml:"phone,omitempty"`
	Email string `json:"email,omitempty" yaml:"email,omitempty"`
}

// IsEmpty returns true if no user details are set
func (c AuthContext) IsEmpty() bool {
	return c.Phone == "" && c.Email == ""
}

// SetAuthContext adds the authenticated user note to the conversation.
// The customer profile is looked up by phone on the customer provider,
// when not found the note only has the user details.
// The same context is added once until Reset.
func (a *Agent) SetAuthContext(ctx context.Context, auth AuthContext) error {
	if auth.IsEmpty() {
		return nil
	}
	rt, err := a.ready()
	if err != nil {
		return err
	}

	a.authLock.Lock()
	defer a.authLock.Unlock()

	if a.authLoaded && a.auth == auth {
		return nil
	}
	if auth.Phone == "" {
		a.auth = auth
		a.authLoaded = true
		return nil
	}

	note := prompts.AuthNote{
		Phone: auth.Phone,
		Email: auth.Email,
	}

	res, err := rt.registry.CallProvider(ctx,
		a.cfg.Agent.CustomerProvider,
		a.cfg.Agent.CustomerTool,
		map[string]any{"phone": auth.Phone})
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "customer_lookup_failed",
			"provider", a.cfg.Agent.CustomerProvider,
			"tool", a.cfg.Agent.CustomerTool,
			"err", err.Error())
	} else {
		var data map[string]any
		if err = llmutils.Unmarshal([]byte(res), &data); err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "customer_lookup_invalid",
				"result", slices.StringUpto(res, 128),
				"err", err.Error())
		} else if customer := cast.ToStringMap(data["customer"]); cast.ToBool(data["found"]) && len(customer) > 0 {
			note = prompts.AuthNote{
				Found: true,
				Name:  cast.ToString(customer["name"]),
				Phone: cast.ToString(customer["phone"]),
				Email: cast.ToString(customer["email"]),
			}
		}
	}

	text, err := prompts.AuthNoteText(note)
	if err != nil {
		return err
	}
	if err = rt.engine.AppendSystemNote(ctx, text); err != nil {
		return err
	}

	a.auth = auth
	a.authLoaded = true

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "auth_context_set",
		"found", note.Found)
	return nil
}
