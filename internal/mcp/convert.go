// Package mcp provides an MCP server that exposes the Quill workflow.
package mcp

import (
	"sort"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// paramSpec describes one tool argument.
type paramSpec struct {
	Type        string
	Description string
	Required    bool
}

// toolSpec describes a tool before conversion to JSON Schema.
type toolSpec struct {
	Name        string
	Description string
	Parameters  map[string]paramSpec
}

// toolSpecToMCPTool converts a toolSpec to an mcp.Tool with JSON Schema.
func toolSpecToMCPTool(spec toolSpec) *mcpsdk.Tool {
	props := make(map[string]any, len(spec.Parameters))
	var required []string

	for name, p := range spec.Parameters {
		props[name] = map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, name)
		}
	}

	// Sort required for deterministic output
	sort.Strings(required)

	inputSchema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		inputSchema["required"] = required
	}

	return &mcpsdk.Tool{
		Name:        spec.Name,
		Description: spec.Description,
		InputSchema: inputSchema,
	}
}
