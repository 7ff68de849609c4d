package sandbox

import (
	"context"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagenti/mcp-orchestrator/internal/upstream"
)

type fakeToolClient struct {
	tools []mcp.Tool
	call  func(name string, args map[string]any) (*mcp.CallToolResult, error)
}

func (f *fakeToolClient) Start(context.Context) error { return nil }

func (f *fakeToolClient) Initialize(context.Context, mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	return &mcp.InitializeResult{}, nil
}

func (f *fakeToolClient) ListTools(context.Context, mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeToolClient) CallTool(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	return f.call(req.Params.Name, args)
}

func (f *fakeToolClient) ListResources(context.Context, mcp.ListResourcesRequest) (*mcp.ListResourcesResult, error) {
	return &mcp.ListResourcesResult{}, nil
}

func (f *fakeToolClient) ReadResource(context.Context, mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return &mcp.ReadResourceResult{}, nil
}

func (f *fakeToolClient) ListPrompts(context.Context, mcp.ListPromptsRequest) (*mcp.ListPromptsResult, error) {
	return &mcp.ListPromptsResult{}, nil
}

func (f *fakeToolClient) GetPrompt(context.Context, mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{}, nil
}

func (f *fakeToolClient) OnNotification(func(mcp.JSONRPCNotification)) {}

func (f *fakeToolClient) Close() error { return nil }

func numArg(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

func calculatorSession(t *testing.T) *upstream.ClientSession {
	t.Helper()
	fc := &fakeToolClient{
		tools: []mcp.Tool{{Name: "add"}, {Name: "divide"}, {Name: "multiply"}},
		call: func(name string, args map[string]any) (*mcp.CallToolResult, error) {
			switch name {
			case "add":
				a, b := numArg(args, "a"), numArg(args, "b")
				return mcp.NewToolResultText(fmt.Sprintf("%v + %v = %v", a, b, a+b)), nil
			case "divide":
				a, b := numArg(args, "a"), numArg(args, "b")
				if b == 0 {
					return nil, fmt.Errorf("Cannot divide by zero")
				}
				return mcp.NewToolResultText(fmt.Sprintf("%v / %v = %v", a, b, a/b)), nil
			case "multiply":
				a, b := numArg(args, "a"), numArg(args, "b")
				return &mcp.CallToolResult{StructuredContent: a * b}, nil
			}
			return nil, fmt.Errorf("unknown tool %q", name)
		},
	}
	sess, err := upstream.NewSessionForTesting("calculator", fc, nil, nil, nil, nil)
	require.NoError(t, err)
	return sess
}

func dataServerSession(t *testing.T) *upstream.ClientSession {
	t.Helper()
	fc := &fakeToolClient{
		tools: []mcp.Tool{{Name: "list_files"}},
		call: func(name string, args map[string]any) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{StructuredContent: []any{"a.txt", "b.txt"}}, nil
		},
	}
	sess, err := upstream.NewSessionForTesting("data_server", fc, nil, nil, nil, nil)
	require.NoError(t, err)
	return sess
}

func TestScenarioS1ListAndCallThroughScript(t *testing.T) {
	e := NewEngine()
	sessions := map[string]*upstream.ClientSession{"calculator": calculatorSession(t)}

	out, err := e.Run(context.Background(), `result(calculator.add({a:10,b:20}).await())`, sessions, nil)
	require.NoError(t, err)
	assert.Contains(t, fmt.Sprintf("%v", out), "10 + 20 = 30")
}

func TestScenarioS3UpstreamErrorPropagates(t *testing.T) {
	e := NewEngine()
	sessions := map[string]*upstream.ClientSession{"calculator": calculatorSession(t)}

	_, err := e.Run(context.Background(), `result(calculator.divide({a:10,b:0}).await())`, sessions, nil)
	require.Error(t, err)
	var se *ScriptError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Message, "Cannot divide by zero")
}

func TestScenarioS5ScriptSideError(t *testing.T) {
	e := NewEngine()
	_, err := e.Run(context.Background(), `throw new Error("Test error message")`, nil, nil)
	require.Error(t, err)
	var se *ScriptError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Message, "Test error message")
}

func TestScenarioS6MultiServerOrchestration(t *testing.T) {
	e := NewEngine()
	sessions := map[string]*upstream.ClientSession{
		"calculator":  calculatorSession(t),
		"data_server": dataServerSession(t),
	}

	script := `
		var product = calculator.multiply({a:2,b:3}).await();
		var files = data_server.list_files({}).await();
		result({product: product, files: files});
	`
	out, err := e.Run(context.Background(), script, sessions, nil)
	require.NoError(t, err)

	asMap, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(6), asMap["product"])
	assert.ElementsMatch(t, []any{"a.txt", "b.txt"}, asMap["files"])
}

func TestSandboxHasNoHostFacilities(t *testing.T) {
	e := NewEngine()
	out, err := e.Run(context.Background(), `result(typeof require === "undefined" && typeof process === "undefined")`, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestUndefinedResultReturnsNil(t *testing.T) {
	e := NewEngine()
	out, err := e.Run(context.Background(), `1 + 1`, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}
