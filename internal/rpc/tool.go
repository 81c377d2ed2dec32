package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Handler executes a tool call. Params have already passed schema
// validation. The returned value is marshaled into the response result.
type Handler func(ctx context.Context, params map[string]any) (any, error)

// Tool is a named operation exposed by a service. InputSchema is a
// JSON Schema document validated against incoming params.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
	Handler     Handler

	compiled *jsonschema.Schema
}

// Descriptor is the wire form of a tool, returned by list_tools.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// Validate checks params against the tool's compiled schema. Tools
// without a schema accept anything.
func (t *Tool) Validate(params map[string]any) error {
	if t.compiled == nil {
		return nil
	}
	// Round trip through JSON so numeric types match what the schema
	// library expects for decoded documents.
	raw, err := json.Marshal(params)
	if err != nil {
		return Errorf(CodeInvalidParams, "marshal params: %v", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Errorf(CodeInvalidParams, "decode params: %v", err)
	}
	if err := t.compiled.Validate(doc); err != nil {
		return Errorf(CodeInvalidParams, "params for %s: %v", t.Name, err)
	}
	return nil
}

// ToolRegistry holds a service's tools keyed by name. Safe for
// concurrent use.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]*Tool)}
}

// Register adds a tool, compiling its input schema. Registering a name
// twice fails with duplicate_name.
func (r *ToolRegistry) Register(t Tool) error {
	if t.Name == "" {
		return Errorf(CodeInvalidParams, "tool name must not be empty")
	}
	if t.Handler == nil {
		return Errorf(CodeInvalidParams, "tool %s has no handler", t.Name)
	}

	if t.InputSchema != nil {
		raw, err := json.Marshal(t.InputSchema)
		if err != nil {
			return fmt.Errorf("marshal schema for %s: %w", t.Name, err)
		}
		var schemaDoc any
		if err := json.Unmarshal(raw, &schemaDoc); err != nil {
			return fmt.Errorf("unmarshal schema for %s: %w", t.Name, err)
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("schema.json", schemaDoc); err != nil {
			return fmt.Errorf("add schema resource for %s: %w", t.Name, err)
		}
		compiled, err := c.Compile("schema.json")
		if err != nil {
			return fmt.Errorf("compile schema for %s: %w", t.Name, err)
		}
		t.compiled = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return Errorf(CodeDuplicateName, "tool %s already registered", t.Name)
	}
	r.tools[t.Name] = &t
	return nil
}

// Get returns the tool registered under name.
func (r *ToolRegistry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Descriptors returns all tools sorted by name.
func (r *ToolRegistry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, Descriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
