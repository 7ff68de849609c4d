// Package ident maps arbitrary upstream server and tool names to
// scripting-safe identifiers, and namespaces resource URIs and prompt names
// so the gateway's aggregated view stays unambiguous across upstreams.
package ident

import (
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const resourceScheme = "mcp://"

// Sanitize maps an arbitrary UTF-8 string to a token matching
// [A-Za-z_][A-Za-z0-9_]*. Disallowed code points become '_'; a leading digit
// gets a '_' prefix; empty input becomes "_". Idempotent on valid identifiers.
func Sanitize(name string) string {
	if name == "" {
		return "_"
	}

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if isIdentRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	out := b.String()

	if first := out[0]; first >= '0' && first <= '9' {
		out = "_" + out
	}
	return out
}

func isIdentRune(r rune) bool {
	return r == '_' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

// NamespaceResourceURI returns "mcp://{server}/{uri}".
func NamespaceResourceURI(server, uri string) string {
	return resourceScheme + server + "/" + uri
}

// ParseResourceURI splits a namespaced resource URI back into its server and
// original URI. The server name is taken as the path segment up to the third
// "/" in the string (the first two belong to the "mcp://" scheme).
func ParseResourceURI(namespaced string) (server, uri string, ok bool) {
	if !strings.HasPrefix(namespaced, resourceScheme) {
		return "", "", false
	}
	rest := namespaced[len(resourceScheme):]
	idx := strings.Index(rest, "/")
	if idx < 0 {
		return "", "", false
	}
	server = rest[:idx]
	uri = rest[idx+1:]
	if server == "" || uri == "" {
		return "", "", false
	}
	return server, uri, true
}

// NamespacePromptName returns "{server}/{name}".
func NamespacePromptName(server, name string) string {
	return server + "/" + name
}

// ParsePromptName splits a namespaced prompt name at the first "/". Both
// halves must be non-empty.
func ParsePromptName(namespaced string) (server, name string, ok bool) {
	idx := strings.Index(namespaced, "/")
	if idx < 0 {
		return "", "", false
	}
	server = namespaced[:idx]
	name = namespaced[idx+1:]
	if server == "" || name == "" {
		return "", "", false
	}
	return server, name, true
}

// NamespaceCallToolResult rewrites every embedded "uri" field in a tool
// result that looks like a scheme-qualified URI to its namespaced form.
// Rewriting is idempotent: applying it twice for the same server yields the
// same result as applying it once, because a URI already namespaced under
// this server is left unchanged.
func NamespaceCallToolResult(result *mcp.CallToolResult, server string) (*mcp.CallToolResult, error) {
	if result == nil {
		return nil, nil
	}
	return rewriteURIsInPlace(result, server)
}

// NamespaceGetPromptResult rewrites embedded resource URIs the same way as
// NamespaceCallToolResult, for the result of a getPrompt call.
func NamespaceGetPromptResult(result *mcp.GetPromptResult, server string) (*mcp.GetPromptResult, error) {
	if result == nil {
		return nil, nil
	}
	return rewriteURIsInPlace(result, server)
}

// rewriteURIsInPlace round-trips v through JSON, walking the generic tree and
// rewriting every "uri" string value that contains "://" but isn't already
// namespaced under this server, then decodes back into a value of the same
// shape as v. This avoids depending on the exact set of mcp.Content concrete
// types (TextContent, EmbeddedResource, ResourceLink, ...) that may carry a
// uri field.
func rewriteURIsInPlace[T any](v *T, server string) (*T, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	walkRewriteURI(generic, server)

	rewritten, err := json.Marshal(generic)
	if err != nil {
		return nil, err
	}

	out := new(T)
	if err := json.Unmarshal(rewritten, out); err != nil {
		return nil, err
	}
	return out, nil
}

func walkRewriteURI(node any, server string) {
	switch n := node.(type) {
	case map[string]any:
		if raw, ok := n["uri"].(string); ok && looksLikeURI(raw) {
			n["uri"] = namespaceIfNeeded(raw, server)
		}
		for _, v := range n {
			walkRewriteURI(v, server)
		}
	case []any:
		for _, v := range n {
			walkRewriteURI(v, server)
		}
	}
}

func looksLikeURI(s string) bool {
	return strings.Contains(s, "://")
}

func namespaceIfNeeded(uri, server string) string {
	if strings.HasPrefix(uri, resourceScheme+server+"/") {
		return uri
	}
	return NamespaceResourceURI(server, uri)
}
