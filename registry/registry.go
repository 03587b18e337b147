package registry

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/pkg/schema"
	"github.com/effective-security/mcpagent/tools"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "registry")

// ErrNotFound is returned when the tool name is not registered.
var ErrNotFound = errors.New("tool not found")

// ErrProviderNotFound is returned when the provider has no session.
var ErrProviderNotFound = errors.New("provider not found")

// Registry is the routing table and the tool catalog.
type Registry struct {
	lock        sync.RWMutex
	descriptors []ToolDescriptor
	tools       map[string]*remoteTool
	sessions    map[string]Session
}

// New returns an empty registry
func New() *Registry {
	return &Registry{
		tools:    make(map[string]*remoteTool),
		sessions: make(map[string]Session),
	}
}

// RegisterAll lists the tools of the provider and registers them
// under the namespaced names. It never fails:
// an unavailable session or a listing error results in no tools.
func (r *Registry) RegisterAll(ctx context.Context, providerID string, s Session) []ToolDescriptor {
	if isNil(s) {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "session_unavailable",
			"provider", providerID)
		return []ToolDescriptor{}
	}

	list, err := s.ListTools(ctx)
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "list_tools_failed",
			"provider", providerID,
			"err", err.Error())
		return []ToolDescriptor{}
	}

	registered := make([]ToolDescriptor, 0, len(list))

	r.lock.Lock()
	defer r.lock.Unlock()

	r.sessions[providerID] = s
	for _, info := range list {
		if info.Name == "" {
			continue
		}
		desc := ToolDescriptor{
			ProviderID:  providerID,
			LocalName:   info.Name,
			Name:        NamespacedName(providerID, info.Name),
			DisplayName: values.StringsCoalesce(info.Title, info.Name),
			Description: info.Description,
			InputSchema: schema.New(info.Properties, info.Required),
		}
		if _, exists := r.tools[desc.Name]; exists {
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "duplicate_tool",
				"tool", desc.Name)
			continue
		}

		r.tools[desc.Name] = &remoteTool{desc: desc, session: s}
		r.descriptors = append(r.descriptors, desc)
		registered = append(registered, desc)

		logger.ContextKV(ctx, xlog.DEBUG,
			"tool", desc.Name,
			"description", desc.Description)
	}

	logger.ContextKV(ctx, xlog.INFO,
		"provider", providerID,
		"tool_count", len(registered))

	return registered
}

// Route returns the routing entry of the namespaced name.
func (r *Registry) Route(name string) (RoutingEntry, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return RoutingEntry{}, errors.Wrapf(ErrNotFound, "tool %q", name)
	}
	return RoutingEntry{
		Name:       t.desc.Name,
		ProviderID: t.desc.ProviderID,
		LocalName:  t.desc.LocalName,
	}, nil
}

// Lookup returns the tool by the namespaced name.
func (r *Registry) Lookup(name string) (tools.ITool, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return t, true
}

// Catalog returns the tool definitions for the model, in registration order.
func (r *Registry) Catalog() []llms.Tool {
	r.lock.RLock()
	defer r.lock.RUnlock()

	res := make([]llms.Tool, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		res = append(res, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.InputSchema.Parameters(),
			},
		})
	}
	return res
}

// Descriptors returns the registered tools, in registration order.
func (r *Registry) Descriptors() []ToolDescriptor {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return append([]ToolDescriptor{}, r.descriptors...)
}

// Tools returns the registered tools, in registration order.
func (r *Registry) Tools() []tools.ITool {
	r.lock.RLock()
	defer r.lock.RUnlock()

	res := make([]tools.ITool, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		res = append(res, r.tools[d.Name])
	}
	return res
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.descriptors)
}

// Fingerprint returns the hash of the catalog,
// that changes when a tool is added, removed or its schema changed.
func (r *Registry) Fingerprint() string {
	r.lock.RLock()
	defer r.lock.RUnlock()

	names := make([]string, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		names = append(names, d.Name)
	}
	sort.Strings(names)

	h := xxhash.New()
	for _, name := range names {
		_, _ = h.WriteString(name)
		_, _ = fmt.Fprintf(h, ":%016x;", r.tools[name].desc.InputSchema.Hash())
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// Invoke routes the invocation and returns its outcome.
// Every failure is converted to the outcome with the error code.
func (r *Registry) Invoke(ctx context.Context, inv tools.Invocation) tools.Outcome {
	t, ok := r.Lookup(inv.Name)
	if !ok {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "tool_not_found",
			"tool", inv.Name)
		return tools.Failed(inv, tools.CodeUnknownTool, nil)
	}
	res, err := t.Call(ctx, inv.Arguments)
	return tools.NewOutcome(inv, res, err)
}

// CallProvider calls the tool by its local name on the provider session,
// bypassing the catalog. The result is converted as for the model.
func (r *Registry) CallProvider(ctx context.Context, providerID, localName string, args map[string]any) (string, error) {
	r.lock.RLock()
	s, ok := r.sessions[providerID]
	r.lock.RUnlock()
	if !ok {
		return "", errors.Wrapf(ErrProviderNotFound, "provider %q", providerID)
	}
	if args == nil {
		args = map[string]any{}
	}
	return callSession(ctx, s, localName, args)
}

func isNil(s Session) bool {
	if s == nil {
		return true
	}
	v := reflect.ValueOf(s)
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Func:
		return v.IsNil()
	}
	return false
}
