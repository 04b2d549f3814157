package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

// Tool parameter limits, carried from the teacher to bound resource use
// regardless of what an LLM or a misbehaving MCP server sends.
const (
	MaxToolNameLength  = 256
	MaxToolParamsSize  = 10 << 20 // 10MB
)

// Registry holds every tool available to a session: thread-safe
// registration, lookup, and schema-validated dispatch.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool

	schemaMu sync.Mutex
	schemas  map[string]*jsonschema.Schema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool

	r.schemaMu.Lock()
	delete(r.schemas, tool.Name())
	r.schemaMu.Unlock()
}

// Unregister removes a tool by name, a no-op if absent.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)

	r.schemaMu.Lock()
	delete(r.schemas, name)
	r.schemaMu.Unlock()
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool in no particular order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// schemaFor compiles and caches the named tool's JSON schema, grounded on
// pluginsdk.compileSchema's per-schema cache.
func (r *Registry) schemaFor(tool Tool) (*jsonschema.Schema, error) {
	r.schemaMu.Lock()
	defer r.schemaMu.Unlock()
	if cached, ok := r.schemas[tool.Name()]; ok {
		return cached, nil
	}
	compiled, err := jsonschema.CompileString(tool.Name()+".schema.json", string(tool.Schema()))
	if err != nil {
		return nil, err
	}
	r.schemas[tool.Name()] = compiled
	return compiled, nil
}

// Validate checks args against the named tool's schema. A tool whose
// Schema() is empty or unparsable as a schema is treated as unconstrained.
func (r *Registry) Validate(tool Tool, args json.RawMessage) error {
	schema, err := r.schemaFor(tool)
	if err != nil {
		return nil
	}
	var decoded any
	if len(args) == 0 {
		args = []byte("{}")
	}
	if err := json.Unmarshal(args, &decoded); err != nil {
		return fmt.Errorf("decode tool args: %w", err)
	}
	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("tool args invalid: %w", err)
	}
	return nil
}

// Execute validates args and dispatches callID to the named tool. A
// name/size limit violation (checked before the tool is looked up) and a
// schema violation are returned as error ToolResults; a missing tool is a
// CodeToolNotFound Go error, and a Go error from the tool's own Execute is
// returned as is.
func (r *Registry) Execute(ctx context.Context, callID, name string, args json.RawMessage) (*dexto.ToolResult, error) {
	if len(name) > MaxToolNameLength {
		return toolError(callID, fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength)), nil
	}
	if len(args) > MaxToolParamsSize {
		return toolError(callID, fmt.Sprintf("tool arguments exceed maximum size of %d bytes", MaxToolParamsSize)), nil
	}

	tool, ok := r.Get(name)
	if !ok {
		return nil, dexto.NewError(dexto.CodeToolNotFound, "tool not found: "+name, nil)
	}

	if err := r.Validate(tool, args); err != nil {
		return toolError(callID, err.Error()), nil
	}

	result, err := tool.Execute(ctx, args)
	if err != nil {
		return nil, err
	}
	if result.ToolCallID == "" {
		result.ToolCallID = callID
	}
	return result, nil
}
