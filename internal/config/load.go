package config

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/viper"
)

// Load reads a ServerConfig document from path, JSON or YAML (viper sniffs
// the extension), validates it against the rules in ParseDocument, and
// returns the parsed, typed config.
func Load(path string) (*ServerConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, &ConfigError{Kind: KindUnreadable, Detail: path, Err: err}
	}

	raw, err := json.Marshal(v.AllSettings())
	if err != nil {
		return nil, &ConfigError{Kind: KindUnreadable, Detail: path, Err: err}
	}

	return ParseDocument(raw)
}

// ParseDocument validates and decodes a ServerConfig document already in
// JSON form. Validation runs against a generic tree first so type mistakes
// (a string where a number belongs, an array where an object belongs)
// produce the distinct error kinds the spec calls for, rather than an opaque
// JSON-unmarshal failure.
func ParseDocument(raw []byte) (*ServerConfig, error) {
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, &ConfigError{Kind: KindUnreadable, Detail: "document root", Err: err}
	}

	if err := validatePort(generic["port"]); err != nil {
		return nil, err
	}
	if err := validateHost(generic["host"]); err != nil {
		return nil, err
	}
	clientsRaw := generic["mcpClients"]
	if clientsRaw == nil {
		// viper lower-cases keys, so a document read through Load carries "mcpclients".
		clientsRaw = generic["mcpclients"]
	}
	clients, err := validateClients(clientsRaw)
	if err != nil {
		return nil, err
	}
	for name, clientRaw := range clients {
		if err := validateClient(name, clientRaw); err != nil {
			return nil, err
		}
	}

	var cfg ServerConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, &ConfigError{Kind: KindUnreadable, Detail: "document decode", Err: err}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return &cfg, nil
}

func validatePort(v any) error {
	if v == nil {
		return nil
	}
	if _, ok := v.(float64); !ok {
		return newError(KindBadPort, fmt.Sprintf("port must be a number, got %T", v))
	}
	return nil
}

func validateHost(v any) error {
	if v == nil {
		return nil
	}
	if _, ok := v.(string); !ok {
		return newError(KindBadHost, fmt.Sprintf("host must be a string, got %T", v))
	}
	return nil
}

func validateClients(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	clients, ok := v.(map[string]any)
	if !ok {
		return nil, newError(KindBadClients, fmt.Sprintf("mcpClients must be an object, got %T", v))
	}
	return clients, nil
}

func validateClient(name string, v any) error {
	client, ok := v.(map[string]any)
	if !ok {
		return newError(KindBadClientType, fmt.Sprintf("client %q must be an object", name))
	}

	typ, _ := client["type"].(string)
	switch typ {
	case string(ClientTypeHTTP):
		if url, ok := client["url"].(string); !ok || url == "" {
			return newError(KindMissingURL, fmt.Sprintf("client %q requires a url", name))
		}
	case string(ClientTypeStdio):
		if command, ok := client["command"].(string); !ok || command == "" {
			return newError(KindMissingCommand, fmt.Sprintf("client %q requires a command", name))
		}
	default:
		return newError(KindBadClientType, fmt.Sprintf("client %q has type %q, want %q or %q", name, typ, ClientTypeHTTP, ClientTypeStdio))
	}
	return nil
}
