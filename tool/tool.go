// Package tool implements the function / tool calling subsystem that lets agents
// invoke structured capabilities (web search, URL fetch, delegation to another
// agent, plain Go functions) with schema validated arguments, consistent error
// handling and metadata for model guidance.
package tool

import (
	"fmt"

	"github.com/hupe1980/agentengine/core"
	"github.com/hupe1980/agentengine/internal/util"
)

// Tool is a function the model may call during an agent turn. The runner
// derives tools from agent capabilities and declares them to the model by
// name, description and parameter schema. Implementations must be safe for
// concurrent use; one tool value serves every invocation of a graph.
type Tool interface {
	Name() string
	Description() string
	// Parameters is the JSON schema of the call arguments.
	Parameters() map[string]any
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// Error codes used by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
)

// ValidationError is returned for arguments that do not match a tool schema.
type ValidationError = util.ValidationError

// ToolError is the error returned by Tool.Call. Code is CodeValidation or
// CodeExecution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
	Err     error  `json:"-"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ToolError) Unwrap() error { return e.Err }

// NewToolError returns a ToolError without a cause.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

func stringArg(tool string, args map[string]any, name string) (string, error) {
	raw, ok := args[name]
	if !ok {
		return "", &ToolError{Tool: tool, Code: CodeValidation, Message: fmt.Sprintf("missing required field '%s'", name)}
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", &ToolError{Tool: tool, Code: CodeValidation, Message: fmt.Sprintf("field '%s' must be a non-empty string", name)}
	}
	return s, nil
}
