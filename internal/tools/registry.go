package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/nlbuilder/agentd/internal/providers"
)

// Tool is the dispatch contract every tool implements: filesystem,
// terminal, vision, and — through an mcp/wasm adapter — plugins.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// Registry is the unified tool dispatcher over filesystem, terminal,
// vision, and plugin tools (spec.md's Tool Registry, §2). Every observation
// it returns has already passed through the Injection Detector.
type Registry struct {
	tools     map[string]Tool
	injection *InjectionDetector
}

func NewRegistry(injection *InjectionDetector) *Registry {
	return &Registry{tools: make(map[string]Tool), injection: injection}
}

func (r *Registry) Register(tool Tool) {
	r.tools[tool.Name()] = tool
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in stable sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the ToolDefinition list to pass to a provider's
// ChatRequest.Tools.
func (r *Registry) Definitions() []providers.ToolDefinition {
	names := r.Names()
	defs := make([]providers.ToolDefinition, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		defs = append(defs, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionSchema{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// Dispatch looks up and executes a tool by name, scanning its observation
// through the Injection Detector before returning — per spec.md's Agent
// Core Observe step (§4.5.5). Unknown tools produce the exact textual
// error shape spec.md §6 specifies.
func (r *Registry) Dispatch(ctx context.Context, call *providers.ToolCall) *Result {
	tool, ok := r.tools[call.Name]
	if !ok {
		return ErrorResult(fmt.Sprintf("Unknown tool '%s'. Available tools: %s", call.Name, strings.Join(r.Names(), ", ")))
	}

	result := r.execute(ctx, tool, call)
	if result == nil {
		return ErrorResult(fmt.Sprintf("tool %q returned no result", call.Name))
	}

	if r.injection != nil {
		result.ForLLM = r.injection.Scan(result.ForLLM)
	}
	return result
}

// execute runs tool.Execute behind a recover(), so a panicking tool fails
// only its own call, not the task (spec.md §7: "Any panic in a tool
// dispatch is caught, reported as tool-error, and the task continues").
func (r *Registry) execute(ctx context.Context, tool Tool, call *providers.ToolCall) (result *Result) {
	defer func() {
		if rec := recover(); rec != nil {
			result = ErrorResult(fmt.Sprintf("tool %q panicked: %v", call.Name, rec))
		}
	}()
	return tool.Execute(ctx, call.Arguments)
}
