package orchestrator

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kagenti/mcp-orchestrator/internal/aggregate"
)

// WireNativeSurface binds the gateway's namespaced resources and prompts
// onto the downstream MCP server's native resources/* and prompts/* surface
// (as opposed to tools, which are only reachable through the meta-tools and
// the scripting sandbox). It registers a change-notification-driven
// resync: whenever an upstream reports a resources/prompts list change, the
// aggregated, namespaced set is recomputed and re-added.
func (o *Orchestrator) WireNativeSurface(mcpServer *server.MCPServer) {
	o.mu.Lock()
	o.mcpServer = mcpServer
	o.mu.Unlock()

	o.mgr.SetResourceListChangedHandler(func(_, downstreamSessionID string) {
		o.syncNativeSurface(context.Background(), downstreamSessionID)
	})
	o.mgr.SetPromptListChangedHandler(func(_, downstreamSessionID string) {
		o.syncNativeSurface(context.Background(), downstreamSessionID)
	})
}

// syncNativeSurface recomputes the namespaced resource/prompt set visible to
// downstreamSessionID and registers it on the shared downstream server.
// Registration is process-wide (mark3labs/mcp-go has no notion of a
// per-session resource/prompt registry), so the set effectively reflects
// whichever session most recently connected or changed; each resource/prompt
// handler re-resolves the session that is actually calling it from the
// request context, so reads and gets are still served through the correct
// caller's own upstream connections.
func (o *Orchestrator) syncNativeSurface(ctx context.Context, downstreamSessionID string) {
	o.mu.Lock()
	mcpServer := o.mcpServer
	o.mu.Unlock()
	if mcpServer == nil {
		return
	}

	resources, err := aggregate.ListResources(ctx, o.mgr, downstreamSessionID)
	if err != nil {
		o.logger.Warn("failed to aggregate resources for native surface sync", "session", downstreamSessionID, "error", err)
	} else if len(resources) > 0 {
		toAdd := make([]server.ServerResource, 0, len(resources))
		for _, r := range resources {
			toAdd = append(toAdd, server.ServerResource{
				Resource: r,
				Handler:  o.readResourceHandler(),
			})
		}
		mcpServer.AddResources(toAdd...)
	}

	prompts, err := aggregate.ListPrompts(ctx, o.mgr, downstreamSessionID)
	if err != nil {
		o.logger.Warn("failed to aggregate prompts for native surface sync", "session", downstreamSessionID, "error", err)
	} else if len(prompts) > 0 {
		toAdd := make([]server.ServerPrompt, 0, len(prompts))
		for _, p := range prompts {
			toAdd = append(toAdd, server.ServerPrompt{
				Prompt:  p,
				Handler: o.getPromptHandler(),
			})
		}
		mcpServer.AddPrompts(toAdd...)
	}
}

func (o *Orchestrator) readResourceHandler() func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		sessionID := SessionIDFromContext(ctx)
		result, err := aggregate.ReadResource(ctx, o.mgr, req.Params.URI, sessionID)
		if err != nil {
			return nil, err
		}
		return result.Contents, nil
	}
}

func (o *Orchestrator) getPromptHandler() func(context.Context, mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		sessionID := SessionIDFromContext(ctx)
		return aggregate.GetPrompt(ctx, o.mgr, req.Params.Name, req.Params.Arguments, sessionID)
	}
}
