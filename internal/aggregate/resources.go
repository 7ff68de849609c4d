package aggregate

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kagenti/mcp-orchestrator/internal/ident"
	"github.com/kagenti/mcp-orchestrator/internal/upstream"
)

// ListResources concatenates resources from every successful upstream for
// the session, rewriting each uri to its namespaced form. Other fields are
// left untouched.
func ListResources(ctx context.Context, mgr *upstream.Manager, sessionID string) ([]mcp.Resource, error) {
	var out []mcp.Resource
	for _, name := range mgr.OrderedServerNames(sessionID) {
		session, err := mgr.GetClient(name, sessionID)
		if err != nil {
			continue
		}
		resources, err := session.ListResources(ctx)
		if err != nil {
			return nil, err
		}
		for _, r := range resources {
			r.URI = ident.NamespaceResourceURI(name, r.URI)
			out = append(out, r)
		}
	}
	return out, nil
}

// ReadResource parses a namespaced uri, routes the read to its owning
// upstream, and rewrites embedded uris in the result back to namespaced
// form.
func ReadResource(ctx context.Context, mgr *upstream.Manager, namespacedURI, sessionID string) (*mcp.ReadResourceResult, error) {
	serverName, originalURI, ok := ident.ParseResourceURI(namespacedURI)
	if !ok {
		return nil, fmt.Errorf("%w: uri %q is not namespaced", errNotNamespaced, namespacedURI)
	}

	session, err := resolveByOriginalName(mgr, serverName, sessionID)
	if err != nil {
		return nil, err
	}

	result, err := session.ReadResource(ctx, originalURI)
	if err != nil {
		return nil, err
	}

	return namespaceReadResourceResult(result, serverName)
}

func resolveByOriginalName(mgr *upstream.Manager, serverName, sessionID string) (*upstream.ClientSession, error) {
	session, err := mgr.GetClient(serverName, sessionID)
	if err != nil {
		candidates := make([]string, 0)
		for _, name := range mgr.OrderedServerNames(sessionID) {
			candidates = append(candidates, ident.Sanitize(name))
		}
		return nil, &NotFoundError{Kind: "server", Name: serverName, Candidates: candidates}
	}
	return session, nil
}

// namespaceReadResourceResult rewrites every ResourceContents entry's uri
// field back to its namespaced form. ResourceContents entries carry their
// uri directly (unlike tool-call content, which embeds it inside nested
// resource fields), so this rewrites in place rather than walking JSON.
func namespaceReadResourceResult(result *mcp.ReadResourceResult, server string) (*mcp.ReadResourceResult, error) {
	out := *result
	out.Contents = make([]mcp.ResourceContents, len(result.Contents))
	for i, c := range result.Contents {
		out.Contents[i] = rewriteResourceContentsURI(c, server)
	}
	return &out, nil
}

func rewriteResourceContentsURI(c mcp.ResourceContents, server string) mcp.ResourceContents {
	switch rc := c.(type) {
	case mcp.TextResourceContents:
		rc.URI = ident.NamespaceResourceURI(server, rc.URI)
		return rc
	case mcp.BlobResourceContents:
		rc.URI = ident.NamespaceResourceURI(server, rc.URI)
		return rc
	default:
		return c
	}
}

var errNotNamespaced = fmt.Errorf("resource uri is not namespaced")
