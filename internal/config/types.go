// Package config loads and validates the gateway's ServerConfig document:
// the downstream listener settings plus the map of upstream MCP clients to
// connect on startup.
package config

// ServerConfig is the top-level document the gateway is started with.
type ServerConfig struct {
	Transport  string                  `json:"transport"`
	Port       *int                    `json:"port,omitempty"`
	Host       *string                 `json:"host,omitempty"`
	LogLevel   string                  `json:"logLevel,omitempty"`
	MCPClients map[string]ClientConfig `json:"mcpClients"`
}

// ClientType distinguishes the two upstream transports a ClientConfig can
// describe.
type ClientType string

const (
	// ClientTypeHTTP connects over MCP streamable HTTP.
	ClientTypeHTTP ClientType = "http"
	// ClientTypeStdio spawns a child process speaking MCP over stdio.
	ClientTypeStdio ClientType = "stdio"
)

// ClientConfig describes one upstream MCP server. Exactly one of the HTTP or
// stdio field groups is meaningful, selected by Type.
type ClientConfig struct {
	Type ClientType `json:"type"`

	// HTTP transport fields.
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	// Stdio transport fields.
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	// AllowedTools is the tool visibility allowlist: nil means "allow all",
	// a non-nil empty slice means "allow none", otherwise it is an
	// intersection filter applied by name.
	AllowedTools *[]string `json:"allowedTools,omitempty"`
}
