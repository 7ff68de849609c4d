// Package upstream manages the gateway's connections to upstream MCP
// servers: one ClientSession per (server, downstream session) pair, pooled
// by Manager.
package upstream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	notificationToolsListChanged     = "notifications/tools/list_changed"
	notificationResourcesListChanged = "notifications/resources/list_changed"
	notificationPromptsListChanged   = "notifications/prompts/list_changed"
)

type changeNotifier func(serverName string)

// protocolClient is the subset of *client.Client a ClientSession depends on.
// Narrowing to an interface keeps the allowlist/caching/notification logic
// testable without a live upstream.
type protocolClient interface {
	Start(ctx context.Context) error
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	ListResources(ctx context.Context, req mcp.ListResourcesRequest) (*mcp.ListResourcesResult, error)
	ReadResource(ctx context.Context, req mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error)
	ListPrompts(ctx context.Context, req mcp.ListPromptsRequest) (*mcp.ListPromptsResult, error)
	GetPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error)
	OnNotification(handler func(notification mcp.JSONRPCNotification))
	Close() error
}

var _ protocolClient = (*client.Client)(nil)

// ClientSession is one connection to one upstream MCP server on behalf of
// one downstream session. Its serverName and allowedTools never change after
// construction.
type ClientSession struct {
	serverName   string
	allowedTools *[]string

	client protocolClient
	init   *mcp.InitializeResult

	logger *slog.Logger

	mu          sync.Mutex
	haveCache   bool
	cachedTools []mcp.Tool

	closeOnce sync.Once

	onToolsChanged     changeNotifier
	onResourcesChanged changeNotifier
	onPromptsChanged   changeNotifier
}

func gatewayClientCapabilities(caps mcp.ClientCapabilities) mcp.InitializeRequest {
	return mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    caps,
			ClientInfo: mcp.Implementation{
				Name:    "mcp-orchestrator",
				Version: "0.1.0",
			},
		},
	}
}

// newHTTPClientSession connects to an upstream MCP server over streamable
// HTTP, performs the initialize handshake, and wires notification handling.
func newHTTPClientSession(
	ctx context.Context,
	serverName, url string,
	headers map[string]string,
	allowedTools *[]string,
	caps mcp.ClientCapabilities,
	logger *slog.Logger,
	onToolsChanged, onResourcesChanged, onPromptsChanged changeNotifier,
) (*ClientSession, error) {
	var opts []transport.StreamableHTTPCOption
	opts = append(opts, transport.WithContinuousListening())
	if len(headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(headers))
	}

	httpClient, err := client.NewStreamableHttpClient(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("create streamable http client for %q: %w", serverName, err)
	}
	return finishConnect(ctx, serverName, httpClient, allowedTools, caps, logger, onToolsChanged, onResourcesChanged, onPromptsChanged)
}

// newStdioClientSession spawns an upstream MCP server as a child process
// speaking MCP over stdio, with the child's env set to inherit ⋃ env.
func newStdioClientSession(
	ctx context.Context,
	serverName, command string,
	args []string,
	env map[string]string,
	allowedTools *[]string,
	caps mcp.ClientCapabilities,
	logger *slog.Logger,
	onToolsChanged, onResourcesChanged, onPromptsChanged changeNotifier,
) (*ClientSession, error) {
	envSlice := make([]string, 0, len(env))
	for k, v := range env {
		envSlice = append(envSlice, fmt.Sprintf("%s=%s", k, v))
	}

	stdioClient, err := client.NewStdioMCPClient(command, envSlice, args...)
	if err != nil {
		return nil, fmt.Errorf("spawn stdio client for %q: %w", serverName, err)
	}
	return finishConnect(ctx, serverName, stdioClient, allowedTools, caps, logger, onToolsChanged, onResourcesChanged, onPromptsChanged)
}

func finishConnect(
	ctx context.Context,
	serverName string,
	c protocolClient,
	allowedTools *[]string,
	caps mcp.ClientCapabilities,
	logger *slog.Logger,
	onToolsChanged, onResourcesChanged, onPromptsChanged changeNotifier,
) (*ClientSession, error) {
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("start client for %q: %w", serverName, err)
	}

	initResp, err := c.Initialize(ctx, gatewayClientCapabilities(caps))
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize %q: %w", serverName, err)
	}

	sess := &ClientSession{
		serverName:         serverName,
		allowedTools:       allowedTools,
		client:             c,
		init:               initResp,
		logger:             logger.With("upstream", serverName),
		onToolsChanged:     onToolsChanged,
		onResourcesChanged: onResourcesChanged,
		onPromptsChanged:   onPromptsChanged,
	}

	c.OnNotification(sess.handleNotification)

	return sess, nil
}

func (s *ClientSession) handleNotification(notification mcp.JSONRPCNotification) {
	switch notification.Method {
	case notificationToolsListChanged:
		s.mu.Lock()
		s.haveCache = false
		s.cachedTools = nil
		s.mu.Unlock()
		if s.onToolsChanged != nil {
			s.onToolsChanged(s.serverName)
		}
	case notificationResourcesListChanged:
		if s.onResourcesChanged != nil {
			s.onResourcesChanged(s.serverName)
		}
	case notificationPromptsListChanged:
		if s.onPromptsChanged != nil {
			s.onPromptsChanged(s.serverName)
		}
	}
}

// ListTools returns the cached, allowlist-filtered tool list if present,
// otherwise fetches, filters, and caches it. A failed fetch does not poison
// the cache.
func (s *ClientSession) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	s.mu.Lock()
	if s.haveCache {
		cached := s.cachedTools
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	res, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, &ConnectError{ServerName: s.serverName, Err: err}
	}

	filtered := s.applyAllowlist(res.Tools)

	s.mu.Lock()
	s.haveCache = true
	s.cachedTools = filtered
	s.mu.Unlock()

	return filtered, nil
}

func (s *ClientSession) applyAllowlist(tools []mcp.Tool) []mcp.Tool {
	if s.allowedTools == nil {
		return tools
	}
	allowed := *s.allowedTools
	if len(allowed) == 0 {
		s.logger.Warn("allowedTools is empty, no tools visible", "server", s.serverName)
		return []mcp.Tool{}
	}

	allowedSet := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		allowedSet[name] = true
	}

	actual := make(map[string]bool, len(tools))
	kept := make([]mcp.Tool, 0, len(tools))
	for _, t := range tools {
		actual[t.Name] = true
		if allowedSet[t.Name] {
			kept = append(kept, t)
		}
	}
	for _, name := range allowed {
		if !actual[name] {
			s.logger.Error("allowedTools entry not found on upstream", "server", s.serverName, "tool", name)
		}
	}
	return kept
}

// CallTool forwards a tool call by its original upstream name. The allowlist
// controls visibility, not authority: it is not consulted here.
func (s *ClientSession) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	res, err := s.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, &ProtocolError{ServerName: s.serverName, Operation: "callTool:" + name, Err: err}
	}
	return res, nil
}

// ListResources passes through to the upstream.
func (s *ClientSession) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	res, err := s.client.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return nil, &ConnectError{ServerName: s.serverName, Err: err}
	}
	return res.Resources, nil
}

// ReadResource passes through to the upstream, keyed by the server's
// original (non-namespaced) URI.
func (s *ClientSession) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	res, err := s.client.ReadResource(ctx, mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: uri},
	})
	if err != nil {
		return nil, &ProtocolError{ServerName: s.serverName, Operation: "readResource:" + uri, Err: err}
	}
	return res, nil
}

// ListPrompts passes through to the upstream.
func (s *ClientSession) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	res, err := s.client.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		return nil, &ConnectError{ServerName: s.serverName, Err: err}
	}
	return res.Prompts, nil
}

// GetPrompt passes through to the upstream, with arguments forwarded
// unchanged.
func (s *ClientSession) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	res, err := s.client.GetPrompt(ctx, mcp.GetPromptRequest{
		Params: mcp.GetPromptParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, &ProtocolError{ServerName: s.serverName, Operation: "getPrompt:" + name, Err: err}
	}
	return res, nil
}

// GetServerVersion returns the upstream's reported implementation version.
func (s *ClientSession) GetServerVersion() string {
	if s.init == nil {
		return ""
	}
	return s.init.ServerInfo.Version
}

// GetInstructions returns the upstream's reported instructions, if any.
func (s *ClientSession) GetInstructions() string {
	if s.init == nil {
		return ""
	}
	return s.init.Instructions
}

// ServerName returns the session's original (non-sanitized) server name.
func (s *ClientSession) ServerName() string {
	return s.serverName
}

// Close is idempotent.
func (s *ClientSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.client.Close()
	})
	return err
}
