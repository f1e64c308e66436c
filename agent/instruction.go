package agent

import "github.com/hupe1980/agentengine/internal/util"

// InstructionVars are the values an instruction template may reference,
// e.g. "You assist {{.user_id}}" or "{{.agent | upper}}".
type InstructionVars map[string]any

// RenderInstruction resolves the agent instruction as a text/template
// against vars. Instructions without template markers are returned as is.
func (a *Agent) RenderInstruction(vars InstructionVars) (string, error) {
	state := map[string]any{"agent": a.name}
	for k, v := range vars {
		state[k] = v
	}
	return util.RenderTemplate(a.instruction, state)
}
