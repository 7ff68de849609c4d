// Package sandbox runs orchestration scripts in a restricted, per-call
// goja VM: one table binding per live upstream session, a result sink the
// script designates its return value through, and no host-OS, filesystem,
// or module-loading facilities bound into the global object.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kagenti/mcp-orchestrator/internal/ident"
	"github.com/kagenti/mcp-orchestrator/internal/upstream"
)

// Engine runs scripts. It holds no state between Run calls: every call gets
// a fresh interpreter, torn down on return whether the script succeeded or
// panicked.
type Engine struct{}

// NewEngine creates a scripting engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Run executes script in a fresh VM bound with one table per entry in
// sessions (keyed by original, non-sanitized server name), an optional
// seeded "args" global, and a "result" sink. It returns whatever native Go
// value the script designated as its result, or a *ScriptError if the
// script threw or failed to parse.
func (e *Engine) Run(ctx context.Context, script string, sessions map[string]*upstream.ClientSession, args map[string]any) (result any, err error) {
	vm := goja.New()

	defer func() {
		if r := recover(); r != nil {
			if gojaErr, ok := r.(*goja.Exception); ok {
				err = &ScriptError{Message: gojaErr.Value().String()}
				return
			}
			err = &ScriptError{Message: fmt.Sprintf("%v", r)}
		}
	}()

	var resultValue goja.Value
	resultSet := false
	sink := func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) > 0 {
			resultValue = call.Arguments[0]
		} else {
			resultValue = goja.Undefined()
		}
		resultSet = true
		return goja.Undefined()
	}
	if setErr := vm.Set("result", sink); setErr != nil {
		return nil, fmt.Errorf("bind result sink: %w", setErr)
	}

	if args != nil {
		if setErr := vm.Set("args", args); setErr != nil {
			return nil, fmt.Errorf("bind args: %w", setErr)
		}
	} else {
		if setErr := vm.Set("args", map[string]any{}); setErr != nil {
			return nil, fmt.Errorf("bind args: %w", setErr)
		}
	}

	for serverName, session := range sessions {
		table, buildErr := e.buildServerTable(ctx, vm, serverName, session)
		if buildErr != nil {
			return nil, buildErr
		}
		if setErr := vm.Set(ident.Sanitize(serverName), table); setErr != nil {
			return nil, fmt.Errorf("bind server table %q: %w", serverName, setErr)
		}
	}

	if _, runErr := vm.RunString(script); runErr != nil {
		if gojaErr, ok := runErr.(*goja.Exception); ok {
			return nil, &ScriptError{Message: gojaErr.Value().String()}
		}
		return nil, &ScriptError{Message: runErr.Error()}
	}

	if !resultSet {
		return nil, nil
	}
	return exportValue(resultValue), nil
}

func exportValue(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

// buildServerTable returns a goja-visible object whose keys are the
// session's sanitized tool names, each bound to a function returning an
// awaitable wrapping a single call to that tool.
func (e *Engine) buildServerTable(ctx context.Context, vm *goja.Runtime, serverName string, session *upstream.ClientSession) (*goja.Object, error) {
	tools, err := session.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	table := vm.NewObject()
	for _, tool := range tools {
		toolName := tool.Name
		fn := func(call goja.FunctionCall) goja.Value {
			var toolArgs map[string]any
			if len(call.Arguments) > 0 {
				if exportErr := vm.ExportTo(call.Arguments[0], &toolArgs); exportErr != nil {
					toolArgs = map[string]any{}
				}
			}
			if toolArgs == nil {
				toolArgs = map[string]any{}
			}
			return newAwaitable(ctx, vm, session, toolName, toolArgs)
		}
		if err := table.Set(ident.Sanitize(toolName), fn); err != nil {
			return nil, fmt.Errorf("bind tool %q: %w", toolName, err)
		}
	}
	return table, nil
}

// newAwaitable returns an object with a single "await" method. The
// underlying tool call is deferred until await() is invoked, matching the
// spec's "await blocks until the operation resolves" wording. The
// interpreter and the call both run on the same goroutine, so await()
// blocks the script until the call returns; a tool call the script never
// awaits is never sent upstream.
func newAwaitable(ctx context.Context, vm *goja.Runtime, session *upstream.ClientSession, toolName string, args map[string]any) *goja.Object {
	obj := vm.NewObject()
	await := func(goja.FunctionCall) goja.Value {
		res, err := session.CallTool(ctx, toolName, args)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		value, convErr := interpretToolResult(res)
		if convErr != nil {
			panic(vm.NewGoError(convErr))
		}
		return vm.ToValue(value)
	}
	_ = obj.Set("await", await)
	return obj
}

// interpretToolResult applies the scripting-visible unwrapping rule: prefer
// structuredContent; else, if there is exactly one text content item,
// attempt a JSON parse of it; else fall back to the raw result shape.
func interpretToolResult(res *mcp.CallToolResult) (any, error) {
	if res.StructuredContent != nil {
		return res.StructuredContent, nil
	}

	if len(res.Content) == 1 {
		if tc, ok := res.Content[0].(mcp.TextContent); ok {
			var parsed any
			if err := json.Unmarshal([]byte(tc.Text), &parsed); err == nil {
				return parsed, nil
			}
		}
	}

	return rawResult(res)
}

func rawResult(res *mcp.CallToolResult) (any, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return generic, nil
}
