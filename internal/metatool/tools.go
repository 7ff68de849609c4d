package metatool

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kagenti/mcp-orchestrator/internal/aggregate"
	"github.com/kagenti/mcp-orchestrator/internal/sandbox"
	"github.com/kagenti/mcp-orchestrator/internal/upstream"
)

// BuildRegistry wires the fixed five-tool registry to a live upstream pool
// and scripting engine, in the order they are advertised to downstream
// clients.
func BuildRegistry(mgr *upstream.Manager, engine *sandbox.Engine) *Registry {
	return NewRegistry([]Tool{
		listServersTool(mgr),
		listServerToolsTool(mgr),
		toolDetailsTool(mgr),
		inspectToolResponseTool(mgr, engine),
		executeTool(mgr, engine),
	})
}

func listServersTool(mgr *upstream.Manager) Tool {
	return Tool{
		Name:        ToolListServers,
		Description: "List every configured upstream MCP server for this session, with connection status.",
		Schema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
		Execute: func(_ context.Context, ec ExecutionContext) *mcp.CallToolResult {
			return mcp.NewToolResultText(aggregate.ListServers(mgr, ec.SessionID))
		},
	}
}

func listServerToolsTool(mgr *upstream.Manager) Tool {
	return Tool{
		Name:        ToolListServerTools,
		Description: "List the tools exposed by one upstream server.",
		Schema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"luaServerName": map[string]any{"type": "string", "description": "sanitized server identifier from list-servers"},
			},
			Required: []string{"luaServerName"},
		},
		Execute: func(ctx context.Context, ec ExecutionContext) *mcp.CallToolResult {
			serverName, err := stringArg(ec.Args, "luaServerName")
			if err != nil {
				return mcp.NewToolResultError(err.Error())
			}
			out, err := aggregate.ListServerTools(ctx, mgr, serverName, ec.SessionID)
			if err != nil {
				return notFoundResult(err)
			}
			return mcp.NewToolResultText(out)
		},
	}
}

func toolDetailsTool(mgr *upstream.Manager) Tool {
	return Tool{
		Name:        ToolToolDetails,
		Description: "Show a tool's full description, input schema, and an example invocation.",
		Schema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"luaServerName": map[string]any{"type": "string"},
				"luaToolName":   map[string]any{"type": "string"},
			},
			Required: []string{"luaServerName", "luaToolName"},
		},
		Execute: func(ctx context.Context, ec ExecutionContext) *mcp.CallToolResult {
			serverName, err := stringArg(ec.Args, "luaServerName")
			if err != nil {
				return mcp.NewToolResultError(err.Error())
			}
			toolName, err := stringArg(ec.Args, "luaToolName")
			if err != nil {
				return mcp.NewToolResultError(err.Error())
			}
			out, err := aggregate.GetToolDetails(ctx, mgr, serverName, toolName, ec.SessionID)
			if err != nil {
				return notFoundResult(err)
			}
			return mcp.NewToolResultText(out)
		},
	}
}

func inspectToolResponseTool(mgr *upstream.Manager, engine *sandbox.Engine) Tool {
	return Tool{
		Name: ToolInspectToolResponse,
		Description: "Actually invoke a tool with sample arguments and show the exact shape a script would see. " +
			"This executes the tool; side effects apply.",
		Schema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"luaServerName": map[string]any{"type": "string"},
				"luaToolName":   map[string]any{"type": "string"},
				"sampleArgs":    map[string]any{"type": "object"},
			},
			Required: []string{"luaServerName", "luaToolName"},
		},
		Execute: func(ctx context.Context, ec ExecutionContext) *mcp.CallToolResult {
			serverName, err := stringArg(ec.Args, "luaServerName")
			if err != nil {
				return mcp.NewToolResultError(err.Error())
			}
			toolName, err := stringArg(ec.Args, "luaToolName")
			if err != nil {
				return mcp.NewToolResultError(err.Error())
			}
			sampleArgs, _ := ec.Args["sampleArgs"].(map[string]any)

			out, err := aggregate.InspectToolResponse(ctx, mgr, engine, serverName, toolName, sampleArgs, ec.SessionID)
			if err != nil {
				return notFoundResult(err)
			}
			return wrapScriptResult(out)
		},
	}
}

func executeTool(mgr *upstream.Manager, engine *sandbox.Engine) Tool {
	return Tool{
		Name:        ToolExecute,
		Description: "Run an orchestration script against every connected upstream server.",
		Schema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"script": map[string]any{"type": "string"},
			},
			Required: []string{"script"},
		},
		Execute: func(ctx context.Context, ec ExecutionContext) *mcp.CallToolResult {
			script, err := stringArg(ec.Args, "script")
			if err != nil {
				return mcp.NewToolResultError(err.Error())
			}

			sessions := mgr.GetClientsBySession(ec.SessionID)
			value, err := engine.Run(ctx, script, sessions, nil)
			if err != nil {
				var scriptErr *sandbox.ScriptError
				if errors.As(err, &scriptErr) {
					return scriptErrorResult(scriptErr.Message)
				}
				return scriptErrorResult(err.Error())
			}
			return wrapScriptResult(value)
		},
	}
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	return s, nil
}

func notFoundResult(err error) *mcp.CallToolResult {
	var nf *aggregate.NotFoundError
	if errors.As(err, &nf) {
		return mcp.NewToolResultError(nf.Error())
	}
	return mcp.NewToolResultError(err.Error())
}
