// Package registry is an in-process reference implementation of
// tool.Provider, used by runtime tests and the CLI's "builtin" tool set.
// Grounded on the prior codebase's toolregistry package: a name-keyed map of
// registered handlers with simple Register/Resolve/Call semantics, minus
// the prior codebase's dynamic-discovery-at-runtime and MCP transport layers
// (Non-goal; the core's ToolProvider never talks a wire protocol itself).
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/streetrace-ai/streetrace/runtime/tool"
)

// Handler executes a single tool call and returns its result value.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Registry is an in-process tool.Provider backed by registered Go
// functions, used to exercise "builtin" tools in tests and the CLI without
// standing up a subprocess or MCP server.
type Registry struct {
	mu sync.RWMutex
	handlers map[string]Handler
	sources map[string]string // name -> "source" kind registration, no handler
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{handlers: map[string]Handler{}, sources: map[string]string{}}
}

// RegisterBuiltin registers fn under name as a "builtin" tool.
func (r *Registry) RegisterBuiltin(name string, fn Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = fn
}

// RegisterSource records name as a "source" tool whose implementation is
// external (a local script or MCP endpoint), without providing a handler.
// Calling it through Call returns an error describing it as unimplemented —
// the registry is a reference/test double, not a real subprocess/MCP
// runner.
func (r *Registry) RegisterSource(name, source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = source
}

// Names returns every registered tool name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers)+len(r.sources))
	for n := range r.handlers {
		names = append(names, n)
	}
	for n := range r.sources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Resolve(ctx context.Context, name string) (tool.Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.handlers[name]; ok {
		return tool.Handle{Name: name, Kind: "builtin"}, nil
	}
	if src, ok := r.sources[name]; ok {
		return tool.Handle{Name: name, Kind: "source", Source: src}, nil
	}
	return tool.Handle{}, fmt.Errorf("registry: unknown tool %q", name)
}

func (r *Registry) Call(ctx context.Context, call tool.Call) (tool.Result, error) {
	r.mu.RLock()
	fn, ok := r.handlers[call.Handle.Name]
	r.mu.RUnlock()
	if !ok {
		if _, isSource := r.sources[call.Handle.Name]; isSource {
			return tool.Result{}, fmt.Errorf("registry: tool %q is a source tool with no in-process handler", call.Handle.Name)
		}
		return tool.Result{}, fmt.Errorf("registry: unknown tool %q", call.Handle.Name)
	}
	val, err := fn(ctx, call.Args)
	if err != nil {
		return tool.Result{Err: err}, nil
	}
	return tool.Result{Value: val}, nil
}
