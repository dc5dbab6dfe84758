package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/fintalk/fintalk/llm"
)

// ToolFunc executes one tool call. The context carries the run's
// cancellation signal and, for long-running tools, a progress reporter
// reachable through ReportProgress.
type ToolFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool pairs a tool's schema with its implementation. Schema is a JSON
// schema object ("type", "properties", "required") sent to the model and
// validated against incoming arguments before Func is invoked.
type Tool struct {
	Name        string
	Description string
	Schema      map[string]any
	Func        ToolFunc
}

// Registry maps tool names to registered tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds or replaces a tool.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = &tool
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a registered tool, or nil if the name is unknown.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Definitions returns the registered schemas in the model client's tool
// format, sorted by name so requests are deterministic.
func (r *Registry) Definitions() []llm.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	defs := make([]llm.Tool, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		defs = append(defs, llm.Tool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Schema,
		})
	}
	return defs
}

// ValidateArgs checks arguments against a tool's declared schema: every
// required field must be present, and every declared property that is
// present must match its declared JSON type. Undeclared extra arguments
// pass through.
func ValidateArgs(schema map[string]any, args map[string]any) error {
	if schema == nil {
		return nil
	}

	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			name, ok := r.(string)
			if !ok {
				continue
			}
			if _, present := args[name]; !present {
				return fmt.Errorf("missing required argument %q", name)
			}
		}
	}
	if required, ok := schema["required"].([]string); ok {
		for _, name := range required {
			if _, present := args[name]; !present {
				return fmt.Errorf("missing required argument %q", name)
			}
		}
	}

	properties, ok := schema["properties"].(map[string]any)
	if !ok {
		return nil
	}
	for name, raw := range args {
		propSchema, declared := properties[name].(map[string]any)
		if !declared {
			continue
		}
		wantType, _ := propSchema["type"].(string)
		if wantType == "" {
			continue
		}
		if err := checkJSONType(name, raw, wantType); err != nil {
			return err
		}
	}
	return nil
}

func checkJSONType(name string, value any, wantType string) error {
	switch wantType {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("argument %q: expected string, got %T", name, value)
		}
	case "number":
		if !isJSONNumber(value) {
			return fmt.Errorf("argument %q: expected number, got %T", name, value)
		}
	case "integer":
		if !isJSONInteger(value) {
			return fmt.Errorf("argument %q: expected integer, got %T", name, value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("argument %q: expected boolean, got %T", name, value)
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return fmt.Errorf("argument %q: expected array, got %T", name, value)
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("argument %q: expected object, got %T", name, value)
		}
	}
	return nil
}

func isJSONNumber(value any) bool {
	switch value.(type) {
	case float64, int, json.Number:
		return true
	}
	return false
}

func isJSONInteger(value any) bool {
	switch n := value.(type) {
	case int:
		return true
	case float64:
		return n == float64(int64(n))
	case json.Number:
		_, err := n.Int64()
		return err == nil
	}
	return false
}

// GetStringArg extracts a string argument from parsed tool arguments.
func GetStringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetIntArg extracts an integer argument from parsed tool arguments.
func GetIntArg(args map[string]any, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// GetFloatArg extracts a numeric argument from parsed tool arguments.
func GetFloatArg(args map[string]any, key string) (float64, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// GetBoolArg extracts a boolean argument from parsed tool arguments.
func GetBoolArg(args map[string]any, key string) (bool, bool) {
	v, ok := args[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

type progressKey struct{}

// ProgressFunc receives progress messages from a running tool.
type ProgressFunc func(message string)

func withProgressReporter(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

// ReportProgress surfaces a progress message from inside a tool
// implementation as a tool_progress event. It is a no-op when the context
// carries no reporter (tests calling tools directly, for example).
func ReportProgress(ctx context.Context, message string) {
	if fn, ok := ctx.Value(progressKey{}).(ProgressFunc); ok && fn != nil {
		fn(message)
	}
}
