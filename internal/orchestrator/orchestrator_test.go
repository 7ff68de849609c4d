package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagenti/mcp-orchestrator/internal/config"
	"github.com/kagenti/mcp-orchestrator/internal/metatool"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSessionIDFromContextDefaultsWithoutTransportSession(t *testing.T) {
	assert.Equal(t, defaultSessionID, SessionIDFromContext(context.Background()))
}

func TestMCPToolsAdvertisesFixedFiveInOrder(t *testing.T) {
	o := New(&config.ServerConfig{}, discardLogger())
	tools := o.MCPTools()
	require.Len(t, tools, 5)
	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name
	}
	assert.Equal(t, []string{
		metatool.ToolListServers,
		metatool.ToolListServerTools,
		metatool.ToolToolDetails,
		metatool.ToolInspectToolResponse,
		metatool.ToolExecute,
	}, names)
}

func TestEnsureSessionWithNoConfiguredUpstreamsIsNoop(t *testing.T) {
	o := New(&config.ServerConfig{}, discardLogger())
	require.NoError(t, o.EnsureSession(context.Background(), "sess-1"))
	assert.Empty(t, o.Manager().GetClientsBySession("sess-1"))
	assert.Empty(t, o.Manager().GetFailedServers("sess-1"))
}

func TestEnsureSessionRecordsFailuresForUnreachableUpstreams(t *testing.T) {
	cfg := &config.ServerConfig{
		MCPClients: map[string]config.ClientConfig{
			"calculator": {Type: config.ClientTypeHTTP, URL: "http://example.invalid/mcp"},
		},
	}
	o := New(cfg, discardLogger())

	require.NoError(t, o.EnsureSession(context.Background(), "sess-1"))
	failed := o.Manager().GetFailedServers("sess-1")
	assert.Contains(t, failed, "calculator")
}

func TestEnsureSessionIsIdempotentPerSession(t *testing.T) {
	cfg := &config.ServerConfig{
		MCPClients: map[string]config.ClientConfig{
			"calculator": {Type: config.ClientTypeHTTP, URL: "http://example.invalid/mcp"},
		},
	}
	o := New(cfg, discardLogger())

	require.NoError(t, o.EnsureSession(context.Background(), "sess-1"))
	first := len(o.Manager().GetFailedServers("sess-1"))

	require.NoError(t, o.EnsureSession(context.Background(), "sess-1"))
	second := len(o.Manager().GetFailedServers("sess-1"))

	assert.Equal(t, first, second)
}

func TestCloseSessionForgetsConnectionState(t *testing.T) {
	cfg := &config.ServerConfig{
		MCPClients: map[string]config.ClientConfig{
			"calculator": {Type: config.ClientTypeHTTP, URL: "http://example.invalid/mcp"},
		},
	}
	o := New(cfg, discardLogger())
	require.NoError(t, o.EnsureSession(context.Background(), "sess-1"))

	o.CloseSession("sess-1")
	assert.Empty(t, o.Manager().GetFailedServers("sess-1"))
}

func TestServerToolsDispatchesListServersThroughHandler(t *testing.T) {
	o := New(&config.ServerConfig{}, discardLogger())

	var handler server.ToolHandlerFunc
	for _, st := range o.ServerTools() {
		if st.Tool.Name == metatool.ToolListServers {
			handler = st.Handler
		}
	}
	require.NotNil(t, handler)

	res, err := handler(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.IsError)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "No servers configured")
}

func TestUnknownClientTypeIsRecordedAsSkippedNotFatal(t *testing.T) {
	cfg := &config.ServerConfig{
		MCPClients: map[string]config.ClientConfig{
			"mystery": {Type: "carrier-pigeon"},
		},
	}
	o := New(cfg, discardLogger())
	require.NoError(t, o.EnsureSession(context.Background(), "sess-1"))
	assert.Empty(t, o.Manager().GetClientsBySession("sess-1"))
}

func TestSyncNativeSurfaceWithoutWiringIsNoop(t *testing.T) {
	o := New(&config.ServerConfig{}, discardLogger())
	assert.NotPanics(t, func() {
		o.syncNativeSurface(context.Background(), "sess-1")
	})
}

func TestSyncNativeSurfaceAfterWiringDoesNotPanic(t *testing.T) {
	o := New(&config.ServerConfig{}, discardLogger())
	mcpServer := server.NewMCPServer("test", "0.0.1",
		server.WithResourceCapabilities(true, true),
		server.WithPromptCapabilities(true),
	)
	o.WireNativeSurface(mcpServer)

	assert.NotPanics(t, func() {
		o.syncNativeSurface(context.Background(), "sess-1")
	})
}
