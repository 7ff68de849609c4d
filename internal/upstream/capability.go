package upstream

import "sync"

// DownstreamCapabilities records which optional MCP client capabilities a
// downstream session has advertised, so the gateway only advertises to
// upstreams what the downstream can itself honor.
type DownstreamCapabilities struct {
	Sampling    bool
	Elicitation bool
}

// CapabilityStore is a per-session record of DownstreamCapabilities, queried
// by the orchestrator when building the mcp.ClientCapabilities sent to each
// upstream on connect.
type CapabilityStore struct {
	mu    sync.Mutex
	byKey map[string]DownstreamCapabilities
}

// NewCapabilityStore creates an empty capability store.
func NewCapabilityStore() *CapabilityStore {
	return &CapabilityStore{byKey: map[string]DownstreamCapabilities{}}
}

// Set records the capabilities for a downstream session.
func (c *CapabilityStore) Set(downstreamSessionID string, caps DownstreamCapabilities) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byKey[downstreamSessionID] = caps
}

// Get returns the recorded capabilities for a downstream session, if any.
func (c *CapabilityStore) Get(downstreamSessionID string) (DownstreamCapabilities, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	caps, ok := c.byKey[downstreamSessionID]
	return caps, ok
}

// Delete removes a downstream session's recorded capabilities, called when
// the session ends.
func (c *CapabilityStore) Delete(downstreamSessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byKey, downstreamSessionID)
}
