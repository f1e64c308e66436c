package tool

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentengine/core"
	"github.com/hupe1980/agentengine/internal/util"
)

// FunctionFunc is the implementation behind a FunctionTool. args have been
// validated against the tool's parameter schema.
type FunctionFunc func(tc *core.ToolContext, args map[string]any) (any, error)

// FunctionTool exposes a Go function to a model. Arguments are checked
// against a minimal JSON schema (type, properties, required, enum) before the
// function runs. Failures are returned as *ToolError: CodeValidation for
// argument mismatches and CodeExecution for function errors; a *ToolError
// returned by the function is passed through unchanged.
//
// A FunctionTool is immutable and safe for concurrent use.
//
//	statutes := tool.NewFunctionTool(
//		"lookup_statute",
//		"Return the text of a statute by its citation",
//		map[string]any{
//			"type": "object",
//			"properties": map[string]any{
//				"citation": map[string]any{"type": "string"},
//			},
//			"required": []string{"citation"},
//		},
//		func(tc *core.ToolContext, args map[string]any) (any, error) {
//			return library.Statute(tc.Context(), args["citation"].(string))
//		},
//	)
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          FunctionFunc
}

// NewFunctionTool creates a tool from an explicit parameter schema.
func NewFunctionTool(name, description string, parameters map[string]any, fn FunctionFunc) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from the json and
// description tags of a struct value.
//
//	type citationArgs struct {
//		Citation string `json:"citation" description:"e.g. UCC 2-201"`
//	}
//	statutes := tool.NewFunctionToolFromStruct("lookup_statute", "Return a statute", citationArgs{}, lookup)
func NewFunctionToolFromStruct(name, description string, structType any, fn FunctionFunc) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn)
}

// Name implements Tool.
func (t *FunctionTool) Name() string { return t.name }

// Description implements Tool.
func (t *FunctionTool) Description() string { return t.description }

// Parameters implements Tool.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call implements Tool.
func (t *FunctionTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	start := time.Now()
	tc.LogDebug("tool.function.start", "tool", t.name, "fc_id", tc.FunctionCallID())

	if err := util.ValidateParameters(args, t.parameters); err != nil {
		tc.LogWarn("tool.function.validation_failed", "tool", t.name, "fc_id", tc.FunctionCallID(), "error", err.Error())
		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
			Err:     err,
		}
	}

	result, err := t.fn(tc, args)
	if err != nil {
		tc.LogError("tool.function.failed", "tool", t.name, "fc_id", tc.FunctionCallID(), "error", err.Error())

		var te *ToolError
		if errors.As(err, &te) {
			return nil, te
		}
		return nil, &ToolError{Tool: t.name, Message: err.Error(), Code: CodeExecution, Err: err}
	}

	tc.LogDebug("tool.function.completed", "tool", t.name, "fc_id", tc.FunctionCallID(), "duration_ms", time.Since(start).Milliseconds())
	return result, nil
}
