// Package tools provides the tool registry: a uniform view over the
// in-process tools (memory search, task management) and any bridged
// external tools. Each tool carries its function-calling metadata and a
// handler.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	openai "github.com/sashabaranov/go-openai"
)

// Tool is a callable tool.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     func(ctx context.Context, args map[string]any) (string, error)
}

// Registry holds available tools. A filtered view (from Without)
// remembers which names were hidden so a call to one fails as a policy
// violation rather than an unknown tool.
type Registry struct {
	tools  map[string]*Tool
	hidden map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool, replacing any existing tool of the same name.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Get retrieves a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Without returns a filtered view of the registry with the named tools
// hidden. Used for recursion prevention: a scheduled turn must not see
// the task-management tool.
func (r *Registry) Without(names ...string) *Registry {
	out := NewRegistry()
	out.hidden = make(map[string]bool, len(r.hidden)+len(names))
	for n := range r.hidden {
		out.hidden[n] = true
	}
	for _, n := range names {
		out.hidden[n] = true
	}

	for name, t := range r.tools {
		if !out.hidden[name] {
			out.tools[name] = t
		}
	}
	return out
}

// List returns the tools in the provider's function-calling shape, in
// stable name order.
func (r *Registry) List() []openai.Tool {
	names := r.Names()
	out := make([]openai.Tool, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

// Execute runs a tool by name with JSON-encoded arguments. A tool hidden
// from this view fails with ErrPolicyViolation; one that does not exist
// at all fails with ErrToolUnavailable.
func (r *Registry) Execute(ctx context.Context, name, argsJSON string) (string, error) {
	if r.hidden[name] {
		return "", fmt.Errorf("%w: tool %q is disabled in this context", ErrPolicyViolation, name)
	}
	tool := r.tools[name]
	if tool == nil {
		return "", &ErrToolUnavailable{ToolName: name}
	}

	args := map[string]any{}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", fmt.Errorf("invalid JSON arguments for %s: %w", name, err)
		}
	}

	return tool.Handler(ctx, args)
}
