package aggregate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kagenti/mcp-orchestrator/internal/ident"
	"github.com/kagenti/mcp-orchestrator/internal/upstream"
)

// ScriptRunner is the subset of the scripting sandbox's engine that
// inspectToolResponse needs: run a script against a fixed set of live
// upstream sessions, with a seeded "args" global, and report its designated
// result value. Defined here rather than imported from internal/sandbox so
// the dependency runs the other way (sandbox has no reason to know about
// aggregate).
type ScriptRunner interface {
	Run(ctx context.Context, script string, sessions map[string]*upstream.ClientSession, args map[string]any) (any, error)
}

// ListServers renders the sanitized, per-session view of every upstream: one
// numbered entry per successful connection with its version and, if any,
// instructions on the following lines, then one line per failure with its
// recorded error.
func ListServers(mgr *upstream.Manager, sessionID string) string {
	clients := mgr.GetClientsBySession(sessionID)
	order := mgr.OrderedServerNames(sessionID)
	failed := mgr.GetFailedServers(sessionID)

	failedNames := make([]string, 0, len(failed))
	for name := range failed {
		failedNames = append(failedNames, name)
	}
	sort.Strings(failedNames)

	if len(order) == 0 && len(failedNames) == 0 {
		return "No servers configured for this session."
	}

	var b strings.Builder
	n := 1
	for _, name := range order {
		session := clients[name]
		fmt.Fprintf(&b, "%d. %s (%s)\n", n, ident.Sanitize(name), name)
		fmt.Fprintf(&b, "   version: %s\n", session.GetServerVersion())
		if instr := session.GetInstructions(); instr != "" {
			fmt.Fprintf(&b, "   instructions: %s\n", instr)
		}
		n++
	}
	for _, name := range failedNames {
		fmt.Fprintf(&b, "%d. %s (%s) — failed: %s\n", n, ident.Sanitize(name), name, failed[name])
		n++
	}
	return b.String()
}

// ListServerTools resolves luaServerName against the session's connected
// upstreams and renders their tool names (sanitized) with each tool's first
// description line.
func ListServerTools(ctx context.Context, mgr *upstream.Manager, luaServerName, sessionID string) (string, error) {
	session, _, err := findServer(mgr, luaServerName, sessionID)
	if err != nil {
		return "", err
	}

	tools, err := session.ListTools(ctx)
	if err != nil {
		return "", err
	}

	if len(tools) == 0 {
		return fmt.Sprintf("Server %q has no visible tools.", luaServerName), nil
	}

	var b strings.Builder
	for i, t := range tools {
		fmt.Fprintf(&b, "%d. %s — %s\n", i+1, ident.Sanitize(t.Name), firstLine(t.Description))
	}
	return b.String(), nil
}

// GetToolDetails resolves both identifiers by sanitize-matching against the
// session's upstreams, then renders the tool's full description, formatted
// input schema, and an example invocation line.
func GetToolDetails(ctx context.Context, mgr *upstream.Manager, luaServerName, luaToolName, sessionID string) (string, error) {
	session, serverName, err := findServer(mgr, luaServerName, sessionID)
	if err != nil {
		return "", err
	}

	tools, err := session.ListTools(ctx)
	if err != nil {
		return "", err
	}

	tool, ok := findTool(tools, luaToolName)
	if !ok {
		candidates := make([]string, len(tools))
		for i, t := range tools {
			candidates[i] = ident.Sanitize(t.Name)
		}
		return "", &NotFoundError{Kind: "tool", Name: luaToolName, Candidates: candidates}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s.%s\n\n", ident.Sanitize(serverName), ident.Sanitize(tool.Name))
	if tool.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", tool.Description)
	}
	fmt.Fprintln(&b, "Parameters:")
	for _, line := range FormatSchema(schemaToMap(tool.InputSchema)) {
		fmt.Fprintln(&b, line)
	}
	fmt.Fprintf(&b, "\nExample:\n%s.%s({...}).await()\n", ident.Sanitize(serverName), ident.Sanitize(tool.Name))
	return b.String(), nil
}

// InspectToolResponse actually executes the named tool through the
// scripting sandbox with a one-server binding, so the observed shape
// matches what a script author would see. Every visible tool of that server
// is bound; the generated script calls only the named one.
func InspectToolResponse(ctx context.Context, mgr *upstream.Manager, runner ScriptRunner, luaServerName, luaToolName string, sampleArgs map[string]any, sessionID string) (any, error) {
	session, serverName, err := findServer(mgr, luaServerName, sessionID)
	if err != nil {
		return nil, err
	}

	tools, err := session.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	tool, ok := findTool(tools, luaToolName)
	if !ok {
		candidates := make([]string, len(tools))
		for i, t := range tools {
			candidates[i] = ident.Sanitize(t.Name)
		}
		return nil, &NotFoundError{Kind: "tool", Name: luaToolName, Candidates: candidates}
	}

	sS := ident.Sanitize(serverName)
	sT := ident.Sanitize(tool.Name)
	script := fmt.Sprintf("result(%s.%s(args).await())", sS, sT)

	sessions := map[string]*upstream.ClientSession{serverName: session}
	return runner.Run(ctx, script, sessions, sampleArgs)
}

func findServer(mgr *upstream.Manager, luaServerName, sessionID string) (*upstream.ClientSession, string, error) {
	order := mgr.OrderedServerNames(sessionID)
	for _, name := range order {
		if ident.Sanitize(name) == luaServerName {
			session, err := mgr.GetClient(name, sessionID)
			if err != nil {
				return nil, "", err
			}
			return session, name, nil
		}
	}
	candidates := make([]string, len(order))
	for i, name := range order {
		candidates[i] = ident.Sanitize(name)
	}
	return nil, "", &NotFoundError{Kind: "server", Name: luaServerName, Candidates: candidates}
}

func findTool(tools []mcp.Tool, luaToolName string) (mcp.Tool, bool) {
	for _, t := range tools {
		if ident.Sanitize(t.Name) == luaToolName {
			return t, true
		}
	}
	return mcp.Tool{}, false
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func schemaToMap(schema mcp.ToolInputSchema) map[string]any {
	props := make(map[string]any, len(schema.Properties))
	for k, v := range schema.Properties {
		props[k] = v
	}
	required := make([]any, len(schema.Required))
	for i, r := range schema.Required {
		required[i] = r
	}
	return map[string]any{
		"type":       schema.Type,
		"properties": props,
		"required":   required,
	}
}
