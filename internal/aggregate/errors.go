// Package aggregate implements the gateway's per-session views over the
// upstream pool: tool discovery, resource aggregation, and prompt
// aggregation, all keyed by sanitized server/tool identifiers.
package aggregate

import (
	"fmt"
	"strings"
)

// NotFoundError reports an unknown sanitized server or tool name at the
// aggregation layer. Callers render it as an error tool-result enumerating
// the valid alternatives rather than treating it as fatal.
type NotFoundError struct {
	Kind       string // "server" or "tool"
	Name       string
	Candidates []string
}

func (e *NotFoundError) Error() string {
	kind := e.Kind
	if len(kind) > 0 {
		kind = strings.ToUpper(kind[:1]) + kind[1:]
	}
	available := "none"
	if len(e.Candidates) > 0 {
		available = strings.Join(e.Candidates, ", ")
	}
	return fmt.Sprintf("%s '%s' not found, available: %s", kind, e.Name, available)
}
