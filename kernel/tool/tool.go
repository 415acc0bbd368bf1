// Package tool defines the callable tool contract the assistant exposes to
// the remote model, and the typed function tools that implement it.
package tool

import (
	"context"
	"fmt"

	"github.com/halcyonworks/tempo/kernel/model"
)

// Tool is one callable unit in the assistant's registry: a stable name the
// model dispatches on, a description for planning, a declared parameter
// schema, and the executable body behind it.
type Tool interface {
	Name() string
	Description() string
	Declaration() model.ToolDefinition
	Run(context.Context, map[string]any) (map[string]any, error)
}

// BuildMap indexes tools by name for call dispatch. Nil entries are skipped;
// a duplicate or empty name is a registry wiring error.
func BuildMap(tools []Tool) (map[string]Tool, error) {
	out := make(map[string]Tool, len(tools))
	for _, t := range tools {
		if t == nil {
			continue
		}
		name := t.Name()
		if name == "" {
			return nil, fmt.Errorf("tool: empty name")
		}
		if _, exists := out[name]; exists {
			return nil, fmt.Errorf("tool: duplicate tool %q", name)
		}
		out[name] = t
	}
	return out, nil
}

// Declarations collects the model-visible declarations in registry order,
// skipping nil entries.
func Declarations(tools []Tool) []model.ToolDefinition {
	decls := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		if t == nil {
			continue
		}
		decls = append(decls, t.Declaration())
	}
	return decls
}
