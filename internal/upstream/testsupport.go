package upstream

import (
	"context"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
)

// ProtocolClient is protocolClient exported so other packages' tests can
// hand-write a fake upstream and build a real ClientSession around it with
// NewSessionForTesting, rather than requiring a live MCP server.
type ProtocolClient = protocolClient

// ChangeNotifier is changeNotifier exported for the same reason.
type ChangeNotifier = changeNotifier

// NewSessionForTesting builds a ClientSession around a caller-supplied fake
// ProtocolClient, running the same handshake finishConnect performs for a
// real transport. Intended for other packages' test files.
func NewSessionForTesting(serverName string, client ProtocolClient, allowedTools *[]string, onToolsChanged, onResourcesChanged, onPromptsChanged ChangeNotifier) (*ClientSession, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return finishConnect(context.Background(), serverName, client, allowedTools, mcp.ClientCapabilities{}, logger, onToolsChanged, onResourcesChanged, onPromptsChanged)
}

// InsertForTesting pools a pre-built session directly, bypassing add's
// connect/single-flight path, for other packages' tests. Returns false if
// the key was already occupied.
func (m *Manager) InsertForTesting(downstreamSessionID, serverName string, session *ClientSession) bool {
	key := poolKey(serverName, downstreamSessionID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[key]; ok {
		return false
	}
	m.sessions[key] = session
	m.order[downstreamSessionID] = append(m.order[downstreamSessionID], serverName)
	return true
}

// RecordFailureForTesting records a connection failure directly, for other
// packages' tests exercising listServers' failed-entry rendering.
func (m *Manager) RecordFailureForTesting(downstreamSessionID, serverName string, err error) {
	m.recordFailure(downstreamSessionID, serverName, err)
}
