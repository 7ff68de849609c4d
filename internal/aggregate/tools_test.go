package aggregate

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagenti/mcp-orchestrator/internal/upstream"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeProtocolClient struct {
	tools       []mcp.Tool
	callResult  *mcp.CallToolResult
	callErr     error
	lastCallArg map[string]any
}

func (f *fakeProtocolClient) Start(_ context.Context) error { return nil }

func (f *fakeProtocolClient) Initialize(_ context.Context, _ mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	return &mcp.InitializeResult{ServerInfo: mcp.Implementation{Name: "fake", Version: "9.9"}}, nil
}

func (f *fakeProtocolClient) ListTools(_ context.Context, _ mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeProtocolClient) CallTool(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f.lastCallArg, _ = req.Params.Arguments.(map[string]any)
	if f.callErr != nil {
		return nil, f.callErr
	}
	if f.callResult != nil {
		return f.callResult, nil
	}
	return mcp.NewToolResultText("ok"), nil
}

func (f *fakeProtocolClient) ListResources(_ context.Context, _ mcp.ListResourcesRequest) (*mcp.ListResourcesResult, error) {
	return &mcp.ListResourcesResult{
		Resources: []mcp.Resource{{URI: "file:///data.json", Name: "data"}},
	}, nil
}

func (f *fakeProtocolClient) ReadResource(_ context.Context, req mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return &mcp.ReadResourceResult{
		Contents: []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: `{"name":"Alice"}`},
		},
	}, nil
}

func (f *fakeProtocolClient) ListPrompts(_ context.Context, _ mcp.ListPromptsRequest) (*mcp.ListPromptsResult, error) {
	return &mcp.ListPromptsResult{Prompts: []mcp.Prompt{{Name: "greet"}}}, nil
}

func (f *fakeProtocolClient) GetPrompt(_ context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{Description: "a greeting for " + req.Params.Arguments["who"]}, nil
}

func (f *fakeProtocolClient) OnNotification(_ func(mcp.JSONRPCNotification)) {}

func (f *fakeProtocolClient) Close() error { return nil }

func newPooledSession(t *testing.T, mgr *upstream.Manager, serverName string, fc *fakeProtocolClient, sessionID string) {
	t.Helper()
	sess, err := upstream.NewSessionForTesting(serverName, fc, nil, nil, nil, nil)
	require.NoError(t, err)
	ok := mgr.InsertForTesting(sessionID, serverName, sess)
	require.True(t, ok)
}

func TestListServersNoneConfigured(t *testing.T) {
	mgr := upstream.NewManager(discardLogger())
	assert.Equal(t, "No servers configured for this session.", ListServers(mgr, "sess-1"))
}

func TestListServersIncludesConnectedAndFailed(t *testing.T) {
	mgr := upstream.NewManager(discardLogger())
	newPooledSession(t, mgr, "calculator", &fakeProtocolClient{}, "sess-1")
	mgr.RecordFailureForTesting("sess-1", "broken", assertTestErr("refused"))

	out := ListServers(mgr, "sess-1")
	assert.Contains(t, out, "calculator")
	assert.Contains(t, out, "broken")
	assert.Contains(t, out, "refused")
}

func TestListServerToolsUnknownServer(t *testing.T) {
	mgr := upstream.NewManager(discardLogger())
	_, err := ListServerTools(context.Background(), mgr, "nonexistent", "sess-1")
	require.Error(t, err)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "server", nf.Kind)
}

func TestListServerToolsFormatsNameAndFirstLine(t *testing.T) {
	mgr := upstream.NewManager(discardLogger())
	fc := &fakeProtocolClient{tools: []mcp.Tool{{Name: "add-two", Description: "Adds two numbers.\nMore detail here."}}}
	newPooledSession(t, mgr, "calculator", fc, "sess-1")

	out, err := ListServerTools(context.Background(), mgr, "calculator", "sess-1")
	require.NoError(t, err)
	assert.Contains(t, out, "add_two")
	assert.Contains(t, out, "Adds two numbers.")
	assert.NotContains(t, out, "More detail here.")
}

func TestGetToolDetailsUnknownTool(t *testing.T) {
	mgr := upstream.NewManager(discardLogger())
	fc := &fakeProtocolClient{tools: []mcp.Tool{{Name: "add"}}}
	newPooledSession(t, mgr, "calculator", fc, "sess-1")

	_, err := GetToolDetails(context.Background(), mgr, "calculator", "missing", "sess-1")
	require.Error(t, err)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "tool", nf.Kind)
}

func TestGetToolDetailsIncludesExampleAndSchema(t *testing.T) {
	mgr := upstream.NewManager(discardLogger())
	fc := &fakeProtocolClient{tools: []mcp.Tool{{
		Name:        "add",
		Description: "adds two numbers",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"a": map[string]any{"type": "number", "description": "first operand"},
			},
			Required: []string{"a"},
		},
	}}}
	newPooledSession(t, mgr, "calculator", fc, "sess-1")

	out, err := GetToolDetails(context.Background(), mgr, "calculator", "add", "sess-1")
	require.NoError(t, err)
	assert.Contains(t, out, "calculator.add")
	assert.Contains(t, out, "a (number, required)")
	assert.Contains(t, out, "calculator.add({...}).await()")
}

type testRunner struct {
	script  string
	args    map[string]any
	result  any
	err     error
}

func (r *testRunner) Run(_ context.Context, script string, _ map[string]*upstream.ClientSession, args map[string]any) (any, error) {
	r.script = script
	r.args = args
	return r.result, r.err
}

func TestInspectToolResponseBuildsOneToolScript(t *testing.T) {
	mgr := upstream.NewManager(discardLogger())
	fc := &fakeProtocolClient{tools: []mcp.Tool{{Name: "add"}}}
	newPooledSession(t, mgr, "calculator", fc, "sess-1")

	runner := &testRunner{result: map[string]any{"sum": 30.0}}
	out, err := InspectToolResponse(context.Background(), mgr, runner, "calculator", "add", map[string]any{"a": 10.0, "b": 20.0}, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "result(calculator.add(args).await())", runner.script)
	assert.Equal(t, map[string]any{"a": 10.0, "b": 20.0}, runner.args)
	assert.Equal(t, map[string]any{"sum": 30.0}, out)
}

func assertTestErr(msg string) error { return simpleTestError(msg) }

type simpleTestError string

func (e simpleTestError) Error() string { return string(e) }
