package tool

import (
	"errors"
	"time"

	"github.com/hupe1980/agentengine/core"
)

// AgentInvoker runs the named agent on request with a fresh conversation and
// returns its final text.
type AgentInvoker func(tc *core.ToolContext, target, request string) (string, error)

// AgentTool wraps another agent as a callable tool. The model passes the
// sub-task as the single "request" argument; the target agent sees nothing
// else of the delegating agent's conversation.
type AgentTool struct {
	target      string
	description string
	invoke      AgentInvoker
}

// NewAgentTool creates a delegation tool named after target.
func NewAgentTool(target, description string, invoke AgentInvoker) *AgentTool {
	return &AgentTool{target: target, description: description, invoke: invoke}
}

// Name implements Tool. It is the target agent's name.
func (t *AgentTool) Name() string { return t.target }

// Description implements Tool.
func (t *AgentTool) Description() string {
	if t.description != "" {
		return t.description
	}
	return "Delegate a sub-task to the " + t.target + " agent."
}

// Parameters implements Tool.
func (t *AgentTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"request": map[string]any{"type": "string", "description": "The sub-task for the agent, self-contained"},
		},
		"required": []string{"request"},
	}
}

// Call implements Tool. A failure of the target agent is returned as a
// *core.DelegationError naming the delegating and the target agent.
func (t *AgentTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	request, err := stringArg(t.Name(), args, "request")
	if err != nil {
		return nil, err
	}

	start := time.Now()
	tc.LogInfo("tool.delegation.start", "agent", tc.AgentName(), "target", t.target, "fc_id", tc.FunctionCallID())

	out, err := t.invoke(tc, t.target, request)
	if err != nil {
		tc.LogWarn("tool.delegation.failed", "agent", tc.AgentName(), "target", t.target, "error", err.Error())

		var de *core.DelegationError
		if errors.As(err, &de) && de.Agent == tc.AgentName() && de.Target == t.target {
			return nil, err
		}
		return nil, &core.DelegationError{Agent: tc.AgentName(), Target: t.target, Err: err}
	}

	tc.LogInfo("tool.delegation.completed", "agent", tc.AgentName(), "target", t.target, "duration_ms", time.Since(start).Milliseconds())
	return out, nil
}
