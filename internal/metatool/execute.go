package metatool

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// wrapScriptResult applies the execute meta-tool's post-processing rule to
// a script's designated return value.
func wrapScriptResult(value any) *mcp.CallToolResult {
	if asCallToolResult, ok := tryAsCallToolResult(value); ok {
		return asCallToolResult
	}

	if value == nil {
		return mcp.NewToolResultText("Script executed successfully. No result returned.")
	}

	if obj, ok := value.(map[string]any); ok {
		text, err := json.Marshal(obj)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Script execution failed:\n%v", err))
		}
		return &mcp.CallToolResult{
			Content:           []mcp.Content{mcp.NewTextContent(string(text))},
			StructuredContent: obj,
		}
	}

	return mcp.NewToolResultText(fmt.Sprintf("Script executed successfully.\n\nResult:\n%v", value))
}

// tryAsCallToolResult reports whether value already has the CallToolResult
// shape (a map carrying a "content" array), and if so decodes it directly
// rather than re-wrapping.
func tryAsCallToolResult(value any) (*mcp.CallToolResult, bool) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	if _, hasContent := obj["content"].([]any); !hasContent {
		return nil, false
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, false
	}
	var result mcp.CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false
	}
	return &result, true
}

func scriptErrorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(fmt.Sprintf("Script execution failed:\n%s", message))},
		IsError: true,
	}
}
