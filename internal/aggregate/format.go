package aggregate

import (
	"fmt"
	"sort"
	"strings"
)

// SchemaType returns the formatter's name for a JSON-Schema-like node:
// one of "string", "number", "boolean", "object", "array<T>" (recursive on
// "items"), "enum: v1 | v2 | ..." (an "enum" array trumps an absent/explicit
// "type"), or "unknown".
func SchemaType(schema map[string]any) string {
	if enum, ok := schema["enum"].([]any); ok && len(enum) > 0 {
		values := make([]string, len(enum))
		for i, v := range enum {
			values[i] = fmt.Sprintf("%v", v)
		}
		return "enum: " + strings.Join(values, " | ")
	}

	t, _ := schema["type"].(string)
	switch t {
	case "string", "number", "boolean", "object":
		return t
	case "array":
		items, _ := schema["items"].(map[string]any)
		return "array<" + SchemaType(items) + ">"
	default:
		return "unknown"
	}
}

// FormatSchema renders each property of an object schema as
// "  {name} ({type}, {required|optional})" followed by its description line
// (blank if absent) and a separator blank line. Non-object or
// property-less schemas yield no lines. Pure: depends only on schema.
func FormatSchema(schema map[string]any) []string {
	t, _ := schema["type"].(string)
	if t != "object" {
		return nil
	}

	props, _ := schema["properties"].(map[string]any)
	if len(props) == 0 {
		return nil
	}

	required := map[string]bool{}
	if list, ok := schema["required"].([]any); ok {
		for _, r := range list {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	var lines []string
	for _, name := range names {
		propSchema, _ := props[name].(map[string]any)
		requiredness := "optional"
		if required[name] {
			requiredness = "required"
		}
		lines = append(lines, fmt.Sprintf("  %s (%s, %s)", name, SchemaType(propSchema), requiredness))

		desc, _ := propSchema["description"].(string)
		lines = append(lines, desc)
		lines = append(lines, "")
	}
	return lines
}
