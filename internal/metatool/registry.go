// Package metatool implements the gateway's fixed, session-aware meta-tool
// registry: the five tools a downstream client sees regardless of which
// upstreams are connected.
package metatool

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	ToolListServers        = "list-servers"
	ToolListServerTools     = "list-server-tools"
	ToolToolDetails         = "tool-details"
	ToolInspectToolResponse = "inspect-tool-response"
	ToolExecute             = "execute"
)

// ExecutionContext carries the request-scoped data a meta-tool's Execute
// needs: the downstream session and the raw argument map.
type ExecutionContext struct {
	SessionID string
	Args      map[string]any
}

// Tool is one entry in the fixed registry: name, description, declared
// parameter schema, and its handler.
type Tool struct {
	Name        string
	Description string
	Schema      mcp.ToolInputSchema
	Execute     func(ctx context.Context, ec ExecutionContext) *mcp.CallToolResult
}

// Registry is the ordered, fixed set of five meta-tools. Order is preserved
// for advertising to the downstream client.
type Registry struct {
	tools []Tool
	byName map[string]*Tool
}

// NewRegistry builds a registry that advertises tools in the order given.
// BuildRegistry supplies the fixed order: list-servers, list-server-tools,
// tool-details, inspect-tool-response, execute.
func NewRegistry(tools []Tool) *Registry {
	r := &Registry{
		tools:  tools,
		byName: make(map[string]*Tool, len(tools)),
	}
	for i := range r.tools {
		r.byName[r.tools[i].Name] = &r.tools[i]
	}
	return r
}

// Tools returns the registry's tools in advertising order.
func (r *Registry) Tools() []Tool {
	return r.tools
}

// MCPTools renders the registry as mcp.Tool definitions for listing.
func (r *Registry) MCPTools() []mcp.Tool {
	out := make([]mcp.Tool, len(r.tools))
	for i, t := range r.tools {
		out[i] = mcp.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Schema,
		}
	}
	return out
}

// Dispatch finds the named tool and runs it with the given context,
// returning an error tool-result if the name is unknown.
func (r *Registry) Dispatch(ctx context.Context, name string, ec ExecutionContext) *mcp.CallToolResult {
	tool, ok := r.byName[name]
	if !ok {
		return mcp.NewToolResultError("unknown tool: " + name)
	}
	return tool.Execute(ctx, ec)
}
