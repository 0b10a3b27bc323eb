// Package tools holds the function-calling surface exposed to the
// model. A Registry maps tool names to handlers and converts their
// results (including failures) into the JSON tool-result messages the
// completion providers expect.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/stippi/go-voice-assistant/pkg/chat"
)

// Handler executes one tool call. The returned value is serialized to
// JSON as the tool result.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Definition describes one callable tool.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     Handler
}

// Registry dispatches tool calls by name.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Definition
	order  []string
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byName: make(map[string]Definition),
		logger: logger.With("component", "tools"),
	}
}

// Register adds a tool. Registering a duplicate or unnamed tool fails.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tools: tool name cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tools: tool %q has no handler", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[def.Name]; exists {
		return fmt.Errorf("tools: tool %q already registered", def.Name)
	}
	r.byName[def.Name] = def
	r.order = append(r.order, def.Name)
	return nil
}

// RegisterAll registers a batch of tools, stopping at the first error.
func (r *Registry) RegisterAll(defs []Definition) error {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// Definitions returns the tool list in registration order, in the
// provider-facing format.
func (r *Registry) Definitions() []chat.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]chat.Tool, 0, len(r.order))
	for _, name := range r.order {
		def := r.byName[name]
		params := def.Parameters
		if params == nil {
			params = map[string]any{}
		}
		out = append(out, chat.NewTool(def.Name, def.Description, map[string]any{
			"type":       "object",
			"properties": params,
		}))
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// Call executes the named tool with the given JSON argument string and
// returns the JSON tool result. Failures of any kind (unknown name,
// invalid arguments, handler error, handler panic) are reported as an
// {"error": ...} result instead of aborting the turn.
func (r *Registry) Call(ctx context.Context, name, argsJSON string) (result string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", rec)
			result = errorResult(fmt.Sprintf("tool '%s' failed: %v", name, rec))
		}
	}()

	r.mu.RLock()
	def, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		r.logger.Warn("model called unknown function", "tool", name)
		return errorResult(fmt.Sprintf("unknown function '%s'", name))
	}

	args := map[string]any{}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return errorResult(fmt.Sprintf("invalid arguments: %v", err))
		}
	}

	value, err := def.Handler(ctx, args)
	if err != nil {
		r.logger.Warn("tool returned error", "tool", name, "error", err)
		return errorResult(err.Error())
	}

	return successResult(value)
}

func errorResult(msg string) string {
	data, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return `{"error": "internal error"}`
	}
	return string(data)
}

func successResult(value any) string {
	switch v := value.(type) {
	case nil:
		return `{"result": "ok"}`
	case string:
		data, err := json.Marshal(map[string]string{"result": v})
		if err != nil {
			return errorResult(fmt.Sprintf("serializing result: %v", err))
		}
		return string(data)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return errorResult(fmt.Sprintf("serializing result: %v", err))
		}
		return string(data)
	}
}
