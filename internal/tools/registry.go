// Package tools exposes the engine to LLM callers through a scoped registry
// and three meta-tools: discover, how_to_use, and execute. The registry is
// immutable after startup; permission checks happen per call from the
// intersection of the server's instance scope and the session's scope claim.
package tools

import (
	"context"
	"fmt"
	"sort"
)

// Category groups tools for discovery and scope filtering.
type Category string

const (
	CategoryUsers         Category = "users"
	CategoryMemories      Category = "memories"
	CategoryProjects      Category = "projects"
	CategoryCodeArtifacts Category = "code_artifacts"
	CategoryDocuments     Category = "documents"
	CategoryEntities      Category = "entities"
	CategoryLinking       Category = "linking"
)

// AllCategories lists every registered category, in display order.
var AllCategories = []Category{
	CategoryUsers,
	CategoryMemories,
	CategoryProjects,
	CategoryCodeArtifacts,
	CategoryDocuments,
	CategoryEntities,
	CategoryLinking,
}

// IsValidCategory reports whether c names a known category.
func IsValidCategory(c Category) bool {
	for _, v := range AllCategories {
		if v == c {
			return true
		}
	}
	return false
}

// Param documents one tool argument.
type Param struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// Handler executes a tool for the resolved user.
type Handler func(ctx context.Context, userID string, args map[string]interface{}) (interface{}, error)

// Tool is one registered capability.
type Tool struct {
	Name        string                 `json:"name"`
	Category    Category               `json:"category"`
	Description string                 `json:"description"`
	Mutates     bool                   `json:"mutates"`
	Params      []Param                `json:"parameters"`
	Returns     string                 `json:"returns"`
	Examples    []string               `json:"examples,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	Schema      map[string]interface{} `json:"input_schema"`

	Handler Handler `json:"-"`
}

// RequiredScope names the narrowest scope token that permits this tool.
func (t *Tool) RequiredScope() string {
	action := "read"
	if t.Mutates {
		action = "write"
	}
	return fmt.Sprintf("%s:%s", action, t.Category)
}

// Registry is the process-wide tool table.
type Registry struct {
	byName     map[string]*Tool
	byCategory map[Category][]*Tool
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:     make(map[string]*Tool),
		byCategory: make(map[Category][]*Tool),
	}
}

// Register adds a tool. Registering a duplicate name or an unknown category
// is a programming error and panics at startup.
func (r *Registry) Register(t *Tool) {
	if t.Name == "" {
		panic("tools: registering tool with empty name")
	}
	if !IsValidCategory(t.Category) {
		panic(fmt.Sprintf("tools: tool %s has unknown category %q", t.Name, t.Category))
	}
	if _, exists := r.byName[t.Name]; exists {
		panic(fmt.Sprintf("tools: duplicate tool name %s", t.Name))
	}
	if t.Handler == nil {
		panic(fmt.Sprintf("tools: tool %s has no handler", t.Name))
	}
	r.byName[t.Name] = t
	r.byCategory[t.Category] = append(r.byCategory[t.Category], t)
}

// Get returns the named tool, if registered.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// All returns every tool sorted by name.
func (r *Registry) All() []*Tool {
	out := make([]*Tool, 0, len(r.byName))
	for _, t := range r.byName {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ByCategory returns the category's tools sorted by name.
func (r *Registry) ByCategory(c Category) []*Tool {
	out := append([]*Tool(nil), r.byCategory[c]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len reports how many tools are registered.
func (r *Registry) Len() int { return len(r.byName) }
