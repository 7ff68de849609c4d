package upstream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/singleflight"
)

// ConnectionResult reports the outcome of an AddHTTPClient/AddStdioClient
// call: either a successful insertion into the pool, or a failure recorded
// for later inspection via GetFailedServers.
type ConnectionResult struct {
	Name    string
	Success bool
	Error   string
}

// ChangeHandler is invoked when an upstream notifies the gateway of a
// tools/resources/prompts list change, carrying the server and downstream
// session the notification belongs to. Only the most recently registered
// handler of each kind is called; there is no fan-out to multiple listeners.
type ChangeHandler func(serverName, downstreamSessionID string)

// Manager is the keyed pool of upstream ClientSessions. Keys are
// "{serverName}-{downstreamSessionID}". Connection attempts for distinct
// servers within one downstream session are independent: the failure of one
// never blocks another.
type Manager struct {
	logger *slog.Logger
	caps   *CapabilityStore

	group singleflight.Group

	mu       sync.Mutex
	sessions map[string]*ClientSession
	order    map[string][]string            // downstreamSessionID -> serverName insertion order
	failed   map[string]map[string]string   // downstreamSessionID -> serverName -> error

	toolsChangedHandler     ChangeHandler
	resourcesChangedHandler ChangeHandler
	promptsChangedHandler   ChangeHandler
}

// NewManager creates an empty upstream connection pool.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger:   logger.With("component", "upstream-manager"),
		caps:     NewCapabilityStore(),
		sessions: map[string]*ClientSession{},
		order:    map[string][]string{},
		failed:   map[string]map[string]string{},
	}
}

// Capabilities returns the manager's capability store, used by the
// orchestrator to record and query what a downstream session can honor
// (sampling, elicitation) before advertising it to upstreams.
func (m *Manager) Capabilities() *CapabilityStore {
	return m.caps
}

func poolKey(serverName, downstreamSessionID string) string {
	return serverName + "-" + downstreamSessionID
}

// SetToolListChangedHandler installs the single handler invoked when any
// pooled session observes a tools/list_changed notification.
func (m *Manager) SetToolListChangedHandler(h ChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolsChangedHandler = h
}

// SetResourceListChangedHandler installs the single handler invoked when any
// pooled session observes a resources/list_changed notification.
func (m *Manager) SetResourceListChangedHandler(h ChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resourcesChangedHandler = h
}

// SetPromptListChangedHandler installs the single handler invoked when any
// pooled session observes a prompts/list_changed notification.
func (m *Manager) SetPromptListChangedHandler(h ChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptsChangedHandler = h
}

func (m *Manager) notifiers(serverName, downstreamSessionID string) (tools, resources, prompts changeNotifier) {
	tools = func(name string) {
		m.mu.Lock()
		h := m.toolsChangedHandler
		m.mu.Unlock()
		if h != nil {
			h(name, downstreamSessionID)
		}
	}
	resources = func(name string) {
		m.mu.Lock()
		h := m.resourcesChangedHandler
		m.mu.Unlock()
		if h != nil {
			h(name, downstreamSessionID)
		}
	}
	prompts = func(name string) {
		m.mu.Lock()
		h := m.promptsChangedHandler
		m.mu.Unlock()
		if h != nil {
			h(name, downstreamSessionID)
		}
	}
	_ = serverName
	return
}

// AddHTTPClient is idempotent for a given (serverName, downstreamSessionID):
// if an entry already exists, it returns success without reconnecting.
// Concurrent calls for the same key are coalesced through a single-flight
// group so exactly one underlying connection is ever established.
func (m *Manager) AddHTTPClient(
	ctx context.Context,
	serverName, url, downstreamSessionID string,
	headers map[string]string,
	allowedTools *[]string,
	caps mcp.ClientCapabilities,
) ConnectionResult {
	return m.add(ctx, serverName, downstreamSessionID, func() (*ClientSession, error) {
		toolsN, resN, promptsN := m.notifiers(serverName, downstreamSessionID)
		return newHTTPClientSession(ctx, serverName, url, headers, allowedTools, caps, m.logger, toolsN, resN, promptsN)
	})
}

// AddStdioClient is the stdio-transport analogue of AddHTTPClient, with the
// same idempotency and single-flight guarantees.
func (m *Manager) AddStdioClient(
	ctx context.Context,
	serverName, command, downstreamSessionID string,
	args []string,
	env map[string]string,
	allowedTools *[]string,
	caps mcp.ClientCapabilities,
) ConnectionResult {
	return m.add(ctx, serverName, downstreamSessionID, func() (*ClientSession, error) {
		toolsN, resN, promptsN := m.notifiers(serverName, downstreamSessionID)
		return newStdioClientSession(ctx, serverName, command, args, env, allowedTools, caps, m.logger, toolsN, resN, promptsN)
	})
}

func (m *Manager) add(_ context.Context, serverName, downstreamSessionID string, connect func() (*ClientSession, error)) ConnectionResult {
	key := poolKey(serverName, downstreamSessionID)

	m.mu.Lock()
	if _, ok := m.sessions[key]; ok {
		m.mu.Unlock()
		return ConnectionResult{Name: serverName, Success: true}
	}
	m.mu.Unlock()

	_, err, _ := m.group.Do(key, func() (any, error) {
		m.mu.Lock()
		existing, ok := m.sessions[key]
		m.mu.Unlock()
		if ok {
			return existing, nil
		}
		session, err := connect()
		if err != nil {
			return nil, err
		}
		m.insert(downstreamSessionID, serverName, session)
		return session, nil
	})
	if err != nil {
		m.recordFailure(downstreamSessionID, serverName, err)
		m.logger.Error("upstream connect failed", "server", serverName, "session", downstreamSessionID, "error", err)
		return ConnectionResult{Name: serverName, Success: false, Error: err.Error()}
	}

	return ConnectionResult{Name: serverName, Success: true}
}

func (m *Manager) insert(downstreamSessionID, serverName string, session *ClientSession) {
	key := poolKey(serverName, downstreamSessionID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[key]; ok {
		return
	}
	m.sessions[key] = session
	m.order[downstreamSessionID] = append(m.order[downstreamSessionID], serverName)
}

func (m *Manager) recordFailure(downstreamSessionID, serverName string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed[downstreamSessionID] == nil {
		m.failed[downstreamSessionID] = map[string]string{}
	}
	m.failed[downstreamSessionID][serverName] = err.Error()
}

// GetClient returns the pooled session for (serverName, downstreamSessionID),
// failing if it is not present.
func (m *Manager) GetClient(serverName, downstreamSessionID string) (*ClientSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[poolKey(serverName, downstreamSessionID)]
	if !ok {
		return nil, fmt.Errorf("no upstream session for server %q, downstream session %q", serverName, downstreamSessionID)
	}
	return session, nil
}

// GetClientsBySession returns every successfully connected upstream for a
// downstream session, keyed by server name. The returned map carries no
// order; OrderedServerNames gives the insertion order.
func (m *Manager) GetClientsBySession(downstreamSessionID string) map[string]*ClientSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]*ClientSession, len(m.order[downstreamSessionID]))
	for _, name := range m.order[downstreamSessionID] {
		if session, ok := m.sessions[poolKey(name, downstreamSessionID)]; ok {
			out[name] = session
		}
	}
	return out
}

// OrderedServerNames returns the insertion-ordered server names successfully
// connected for a downstream session.
func (m *Manager) OrderedServerNames(downstreamSessionID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.order[downstreamSessionID]))
	copy(names, m.order[downstreamSessionID])
	return names
}

// GetFailedServers returns the recorded connection failures for a downstream
// session.
func (m *Manager) GetFailedServers(downstreamSessionID string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.failed[downstreamSessionID]))
	for k, v := range m.failed[downstreamSessionID] {
		out[k] = v
	}
	return out
}

// CloseSession closes every upstream session for downstreamSessionID and
// purges pool entries and failure records. Errors during close are logged,
// not propagated.
func (m *Manager) CloseSession(downstreamSessionID string) {
	m.mu.Lock()
	names := m.order[downstreamSessionID]
	sessions := make([]*ClientSession, 0, len(names))
	for _, name := range names {
		if session, ok := m.sessions[poolKey(name, downstreamSessionID)]; ok {
			sessions = append(sessions, session)
		}
		delete(m.sessions, poolKey(name, downstreamSessionID))
	}
	delete(m.order, downstreamSessionID)
	delete(m.failed, downstreamSessionID)
	m.mu.Unlock()

	m.caps.Delete(downstreamSessionID)

	for _, session := range sessions {
		if err := session.Close(); err != nil {
			m.logger.Warn("error closing upstream session", "server", session.ServerName(), "error", err)
		}
	}
}

// DeleteSessions satisfies the session.Deleter contract the downstream
// transport's SessionIdManager uses on session termination.
func (m *Manager) DeleteSessions(_ context.Context, keys ...string) error {
	for _, key := range keys {
		m.CloseSession(key)
	}
	return nil
}

// Close closes every pooled session and clears all state.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*ClientSession, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.sessions = map[string]*ClientSession{}
	m.order = map[string][]string{}
	m.failed = map[string]map[string]string{}
	m.mu.Unlock()

	for _, session := range sessions {
		if err := session.Close(); err != nil {
			m.logger.Warn("error closing upstream session during shutdown", "server", session.ServerName(), "error", err)
		}
	}
}
