// Package orchestrator wires a downstream session to the upstream connection
// pool on first request, owns the meta-tool registry and scripting engine,
// and adapts the fixed five-tool registry to the mark3labs/mcp-go server's
// tool-handler contract.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kagenti/mcp-orchestrator/internal/config"
	"github.com/kagenti/mcp-orchestrator/internal/metatool"
	"github.com/kagenti/mcp-orchestrator/internal/sandbox"
	"github.com/kagenti/mcp-orchestrator/internal/upstream"
)

const defaultSessionID = "default"

// Orchestrator is the gateway's entry point: it owns the upstream pool, the
// meta-tool registry, and ensures every downstream session's configured
// upstreams are connected before that session's first tool dispatch
// observes them.
type Orchestrator struct {
	cfg    *config.ServerConfig
	logger *slog.Logger

	mgr      *upstream.Manager
	registry *metatool.Registry

	mu        sync.Mutex
	connected map[string]bool
	mcpServer *server.MCPServer
}

// New builds an Orchestrator from a validated ServerConfig. It does not
// connect to any upstream until a downstream session first dispatches a
// tool.
func New(cfg *config.ServerConfig, logger *slog.Logger) *Orchestrator {
	mgr := upstream.NewManager(logger)
	engine := sandbox.NewEngine()
	return &Orchestrator{
		cfg:       cfg,
		logger:    logger,
		mgr:       mgr,
		registry:  metatool.BuildRegistry(mgr, engine),
		connected: map[string]bool{},
	}
}

// Manager exposes the upstream pool, e.g. for wiring change-notification
// handlers or as the session.Deleter the downstream transport's
// SessionIdManager terminates sessions through.
func (o *Orchestrator) Manager() *upstream.Manager {
	return o.mgr
}

// MCPTools renders the fixed meta-tool registry as mcp.Tool definitions, in
// advertising order.
func (o *Orchestrator) MCPTools() []mcp.Tool {
	return o.registry.MCPTools()
}

// ServerTools adapts the registry into mark3labs/mcp-go ServerTool entries,
// each dispatching through EnsureSession before running the meta-tool.
func (o *Orchestrator) ServerTools() []server.ServerTool {
	tools := o.registry.Tools()
	out := make([]server.ServerTool, 0, len(tools))
	for _, tool := range tools {
		out = append(out, server.ServerTool{
			Tool: mcp.Tool{
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: tool.Schema,
			},
			Handler: o.handlerFor(tool.Name),
		})
	}
	return out
}

func (o *Orchestrator) handlerFor(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID := SessionIDFromContext(ctx)
		if err := o.EnsureSession(ctx, sessionID); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to connect configured upstreams: %v", err)), nil
		}

		args, _ := req.Params.Arguments.(map[string]any)
		result := o.registry.Dispatch(ctx, name, metatool.ExecutionContext{
			SessionID: sessionID,
			Args:      args,
		})
		return result, nil
	}
}

// SessionIDFromContext returns the downstream session identifier carried by
// the request context, or "default" if the transport did not attach one.
func SessionIDFromContext(ctx context.Context) string {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		if id := session.SessionID(); id != "" {
			return id
		}
	}
	return defaultSessionID
}

// EnsureSession connects every configured upstream for downstreamSessionID,
// if it has not already been done for this session. Connections to distinct
// servers run concurrently; EnsureSession does not return until all of them
// have either succeeded (and been pooled) or failed (and been recorded),
// satisfying the ordering guarantee that a session's first meta-tool
// dispatch must observe every pool insert requested before it.
func (o *Orchestrator) EnsureSession(ctx context.Context, downstreamSessionID string) error {
	o.mu.Lock()
	if o.connected[downstreamSessionID] {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	var wg sync.WaitGroup
	downstreamCaps, _ := o.mgr.Capabilities().Get(downstreamSessionID)
	caps := clientCapabilitiesFor(downstreamCaps)
	for name, client := range o.cfg.MCPClients {
		wg.Add(1)
		go func(name string, client config.ClientConfig) {
			defer wg.Done()
			switch client.Type {
			case config.ClientTypeHTTP:
				o.mgr.AddHTTPClient(ctx, name, client.URL, downstreamSessionID, client.Headers, client.AllowedTools, caps)
			case config.ClientTypeStdio:
				o.mgr.AddStdioClient(ctx, name, client.Command, downstreamSessionID, client.Args, client.Env, client.AllowedTools, caps)
			default:
				o.logger.Error("unknown upstream client type, skipping", "server", name, "type", client.Type)
			}
		}(name, client)
	}
	wg.Wait()

	o.mu.Lock()
	o.connected[downstreamSessionID] = true
	o.mu.Unlock()

	o.syncNativeSurface(ctx, downstreamSessionID)
	return nil
}

// CloseSession tears down every upstream connection held for
// downstreamSessionID and forgets that it was ever connected, so a later
// reuse of the same session identifier reconnects from scratch.
func (o *Orchestrator) CloseSession(downstreamSessionID string) {
	o.mgr.CloseSession(downstreamSessionID)
	o.mu.Lock()
	delete(o.connected, downstreamSessionID)
	o.mu.Unlock()
}

// Shutdown closes every upstream connection across every session.
func (o *Orchestrator) Shutdown() {
	o.mgr.Close()
}

// clientCapabilitiesFor translates a downstream session's recorded
// capabilities into the mcp.ClientCapabilities the gateway advertises to
// each upstream on connect: only what the downstream can itself honor.
func clientCapabilitiesFor(caps upstream.DownstreamCapabilities) mcp.ClientCapabilities {
	var out mcp.ClientCapabilities
	if caps.Sampling {
		out.Sampling = &struct{}{}
	}
	if caps.Elicitation {
		out.Elicitation = &struct{}{}
	}
	return out
}
