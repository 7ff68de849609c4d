package aggregate

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kagenti/mcp-orchestrator/internal/ident"
	"github.com/kagenti/mcp-orchestrator/internal/upstream"
)

// ListPrompts concatenates prompts from every successful upstream for the
// session, renaming each to its namespaced "{server}/{name}" form.
func ListPrompts(ctx context.Context, mgr *upstream.Manager, sessionID string) ([]mcp.Prompt, error) {
	var out []mcp.Prompt
	for _, name := range mgr.OrderedServerNames(sessionID) {
		session, err := mgr.GetClient(name, sessionID)
		if err != nil {
			continue
		}
		prompts, err := session.ListPrompts(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range prompts {
			p.Name = ident.NamespacePromptName(name, p.Name)
			out = append(out, p)
		}
	}
	return out, nil
}

// GetPrompt parses a namespaced prompt name, routes the call to its owning
// upstream, and forwards arguments unchanged.
func GetPrompt(ctx context.Context, mgr *upstream.Manager, namespacedName string, args map[string]string, sessionID string) (*mcp.GetPromptResult, error) {
	serverName, originalName, ok := ident.ParsePromptName(namespacedName)
	if !ok {
		return nil, &NotFoundError{Kind: "prompt", Name: namespacedName}
	}

	session, err := resolveByOriginalName(mgr, serverName, sessionID)
	if err != nil {
		return nil, err
	}

	result, err := session.GetPrompt(ctx, originalName, args)
	if err != nil {
		return nil, err
	}

	return ident.NamespaceGetPromptResult(result, serverName)
}
