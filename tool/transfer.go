package tool

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hupe1980/agentengine/core"
)

// TransferToolName is the name of the tool that hands control to a sub-agent.
const TransferToolName = "transfer_to_agent"

// Transfer is the result of a successful transfer_to_agent call. The runner
// continues the conversation with AgentName once the turn's calls are done.
type Transfer struct {
	Transferred bool   `json:"transferred"`
	AgentName   string `json:"agent_name"`
}

// TransferTool lets a model pass the conversation to one of its sub-agents.
// Unlike an AgentTool the target sees the full conversation and answers the
// user directly.
type TransferTool struct {
	targets []string
}

// NewTransferTool creates a transfer tool restricted to targets.
func NewTransferTool(targets ...string) *TransferTool {
	return &TransferTool{targets: slices.Clone(targets)}
}

// Name implements Tool.
func (t *TransferTool) Name() string { return TransferToolName }

// Description implements Tool.
func (t *TransferTool) Description() string {
	return "Transfer the conversation to another agent better suited to answer. Available agents: " + strings.Join(t.targets, ", ") + "."
}

// Parameters implements Tool.
func (t *TransferTool) Parameters() map[string]any {
	enum := make([]any, len(t.targets))
	for i, name := range t.targets {
		enum[i] = name
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent_name": map[string]any{"type": "string", "description": "The agent to transfer to", "enum": enum},
		},
		"required": []string{"agent_name"},
	}
}

// Call implements Tool.
func (t *TransferTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	name, err := stringArg(t.Name(), args, "agent_name")
	if err != nil {
		return nil, err
	}
	if !slices.Contains(t.targets, name) {
		return nil, &ToolError{
			Tool:    t.Name(),
			Code:    CodeValidation,
			Message: fmt.Sprintf("unknown agent %q (available: %s)", name, strings.Join(t.targets, ", ")),
		}
	}

	tc.LogInfo("tool.transfer", "agent", tc.AgentName(), "target", name, "fc_id", tc.FunctionCallID())
	return Transfer{Transferred: true, AgentName: name}, nil
}
